// Package version holds build information stamped in with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/itsmostafa/normtree/internal/version.Version=v0.3.0"
package version

import "fmt"

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

// String renders the version line shown by --version.
func String() string {
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Parser reports the version built-in parsers advertise in their
// descriptors. Development builds report 0.0.0-dev.
func Parser() string {
	if Version == "dev" || Version == "" {
		return "0.0.0-dev"
	}
	return Version
}

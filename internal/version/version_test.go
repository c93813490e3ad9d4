package version

import (
	"strings"
	"testing"
)

func TestParser(t *testing.T) {
	orig := Version
	t.Cleanup(func() { Version = orig })

	Version = "dev"
	if got := Parser(); got != "0.0.0-dev" {
		t.Errorf("Parser() = %q for a dev build", got)
	}
	Version = "v1.2.0"
	if got := Parser(); got != "v1.2.0" {
		t.Errorf("Parser() = %q, want v1.2.0", got)
	}
	if !strings.HasPrefix(String(), "v1.2.0 (commit: ") {
		t.Errorf("String() = %q", String())
	}
}

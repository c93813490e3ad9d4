package plugin

import (
	"strings"

	apperrors "github.com/itsmostafa/normtree/internal/errors"
	"github.com/itsmostafa/normtree/internal/parser"
)

// Kind says how a plugin's parser runs.
type Kind string

const (
	// KindModule is a Go parser running in-process.
	KindModule Kind = "module"
	// KindScript is a JavaScript parser running in a goja VM.
	KindScript Kind = "script"
	// KindExecutable is an external process speaking JSON over stdio.
	KindExecutable Kind = "executable"
)

// Metadata identifies a plugin. Every field is required.
type Metadata struct {
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	Author      string `json:"author" yaml:"author"`
	Description string `json:"description" yaml:"description"`
}

// Validate reports the first missing field.
func (m Metadata) Validate() error {
	fields := []struct {
		name  string
		value string
	}{
		{"name", m.Name},
		{"version", m.Version},
		{"author", m.Author},
		{"description", m.Description},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return apperrors.NewValidation("metadata."+f.name, "is required")
		}
	}
	return nil
}

// Module is what a plugin supplies: its metadata and a parser constructor.
// New is called once at registration to check the contract and once per
// parse, so a parser never sees state from another call.
type Module struct {
	Metadata Metadata
	New      func() parser.Parser
	// Kind defaults to KindModule.
	Kind Kind
}

func (m Module) kind() Kind {
	if m.Kind == "" {
		return KindModule
	}
	return m.Kind
}

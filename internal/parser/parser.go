// Package parser defines the capability contract every format parser
// implements, built-in or plugin, and the registry that dispatches content
// to a parser.
package parser

import (
	"context"

	"github.com/itsmostafa/normtree/internal/format"
	"github.com/itsmostafa/normtree/internal/node"
)

// Parser turns content of one or more formats into a node tree.
//
// Parse must accept empty content and return an "Empty Document" node.
// Content-level failures are returned as an error node rather than an
// error, unless Options.Strict is set.
type Parser interface {
	Name() string
	SupportedFormats() []string
	SupportedMIMETypes() []string
	// CanParse returns a confidence in [0,1] that this parser handles content.
	CanParse(content string, hints format.Hints) float64
	Parse(ctx context.Context, content string, opts Options) (*node.Node, error)
	Validate(content string) ValidationResult
	Capabilities() Capabilities
	Describe() Descriptor
}

// Options are parser-specific knobs passed to Parse.
type Options struct {
	// MaxDepth limits structural expansion; 0 means unlimited.
	MaxDepth int `json:"maxDepth,omitempty"`
	// Strict surfaces a ParseError instead of an error node.
	Strict bool `json:"strict,omitempty"`
	// MaxNodes bounds the size of the produced tree; 0 means unlimited.
	// Parsers that build trees from untrusted results stop once it is passed.
	MaxNodes int `json:"maxNodes,omitempty"`
	// Filename is the source name, when known.
	Filename string `json:"filename,omitempty"`
	// Extra carries plugin-specific settings.
	Extra map[string]any `json:"extra,omitempty"`
}

// Clone returns a copy of o that shares no mutable state with it.
func (o Options) Clone() Options {
	out := o
	if o.Extra != nil {
		out.Extra = node.CloneValue(o.Extra).(map[string]any)
	}
	return out
}

// Capabilities are the feature flags a parser advertises.
type Capabilities struct {
	Streaming     bool `json:"streaming"`
	PartialParse  bool `json:"partialParse"`
	Bidirectional bool `json:"bidirectional"`
	Validation    bool `json:"validation"`
	MaxDepth      bool `json:"maxDepth"`
	Metadata      bool `json:"metadata"`
}

// Descriptor summarizes a registered parser.
type Descriptor struct {
	Name         string       `json:"name"`
	Version      string       `json:"version,omitempty"`
	Description  string       `json:"description,omitempty"`
	Formats      []string     `json:"formats"`
	MIMETypes    []string     `json:"mimeTypes"`
	Capabilities Capabilities `json:"capabilities"`
}

// ValidationResult is the outcome of Validate.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// Valid is a passing ValidationResult.
func Valid() ValidationResult {
	return ValidationResult{Valid: true, Errors: []string{}}
}

// Invalid builds a failing ValidationResult.
func Invalid(errs ...string) ValidationResult {
	return ValidationResult{Valid: false, Errors: errs}
}

// Describe builds a Descriptor from a parser's own accessors.
func Describe(p Parser) Descriptor {
	return Descriptor{
		Name:         p.Name(),
		Formats:      p.SupportedFormats(),
		MIMETypes:    p.SupportedMIMETypes(),
		Capabilities: p.Capabilities(),
	}
}

// Package formats implements the built-in tree builders for Markdown, YAML,
// JSON, HTML and XML.
package formats

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	apperrors "github.com/itsmostafa/normtree/internal/errors"
	"github.com/itsmostafa/normtree/internal/format"
	"github.com/itsmostafa/normtree/internal/node"
	"github.com/itsmostafa/normtree/internal/parser"
	"github.com/itsmostafa/normtree/internal/version"
)

// base carries the descriptor data shared by the built-in parsers.
type base struct {
	name        string
	formats     []string
	mimeTypes   []string
	description string
	caps        parser.Capabilities
}

func (b base) Name() string                      { return b.name }
func (b base) SupportedFormats() []string        { return slices.Clone(b.formats) }
func (b base) SupportedMIMETypes() []string      { return slices.Clone(b.mimeTypes) }
func (b base) Capabilities() parser.Capabilities { return b.caps }

func (b base) Describe() parser.Descriptor {
	return parser.Descriptor{
		Name:         b.name,
		Version:      version.Parser(),
		Description:  b.description,
		Formats:      b.SupportedFormats(),
		MIMETypes:    b.SupportedMIMETypes(),
		Capabilities: b.caps,
	}
}

func (b base) format() string {
	return b.formats[0]
}

// hinted reports whether any hint names one of b's formats.
func (b base) hinted(hints format.Hints) bool {
	if f := strings.ToLower(strings.TrimSpace(hints.Format)); f != "" && slices.Contains(b.formats, f) {
		return true
	}
	if f, ok := format.FromMIME(hints.MIMEType); ok && slices.Contains(b.formats, f) {
		return true
	}
	if f, ok := format.FromHints(hints); ok && slices.Contains(b.formats, f) {
		return true
	}
	return false
}

// run applies the policy every built-in shares: empty input yields an
// "Empty Document" node, failures inside build become an error node (or a
// ParseError in strict mode), and the finished tree is stamped.
func (b base) run(ctx context.Context, content string, opts parser.Options, build func() (*node.Node, error)) (*node.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var root *node.Node
	if strings.TrimSpace(content) == "" {
		root = node.NewEmpty(b.format())
	} else {
		built, err := guard(build)
		if err == nil && built == nil {
			err = errors.New("parser produced no tree")
		}
		if err != nil {
			perr := b.parseError(err)
			if opts.Strict {
				return nil, perr
			}
			built = node.NewError(b.format(), perr)
			if perr.Line > 0 {
				built.SetMeta("line", perr.Line)
			}
		}
		root = built
	}

	node.Finalize(root, node.Stamp{Format: b.format(), Parser: b.name, Content: content})
	return root, nil
}

// parseError wraps err as a ParseError for this parser, keeping any line
// number already attached.
func (b base) parseError(err error) *apperrors.ParseError {
	var perr *apperrors.ParseError
	if errors.As(err, &perr) {
		if perr.Parser == "" {
			perr.Parser = b.name
		}
		if perr.Format == "" {
			perr.Format = b.format()
		}
		return perr
	}
	return apperrors.NewParse(b.format(), b.name, err)
}

// lineError builds a ParseError positioned at line.
func lineError(line int, err error) *apperrors.ParseError {
	perr := apperrors.NewParse("", "", err)
	perr.Line = line
	return perr
}

// guard runs build and converts a panic into an error.
func guard(build func() (*node.Node, error)) (root *node.Node, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic during parse: %v", r)
		}
	}()
	return build()
}

package formats

import (
	"github.com/itsmostafa/normtree/internal/format"
	"github.com/itsmostafa/normtree/internal/parser"
)

// Builtins returns a fresh instance of every built-in parser.
func Builtins() []parser.Parser {
	return []parser.Parser{
		NewMarkdown(),
		NewYAML(),
		NewJSON(),
		NewHTML(),
		NewXML(),
	}
}

// RegisterBuiltins registers every built-in parser and makes Markdown the
// default when no default has been chosen.
func RegisterBuiltins(reg *parser.Registry) error {
	for _, p := range Builtins() {
		if err := reg.Register(p); err != nil {
			return err
		}
	}
	if _, ok := reg.Default(); !ok {
		reg.SetDefault(format.Markdown)
	}
	return nil
}

// Package ini is an example script plugin: an INI parser written in
// JavaScript and run in the plugin sandbox.
package ini

import (
	_ "embed"
	"log/slog"

	"github.com/itsmostafa/normtree/internal/format"
	"github.com/itsmostafa/normtree/internal/plugin"
)

//go:embed ini.js
var source string

// Metadata identifies the plugin.
var Metadata = plugin.Metadata{
	Name:        "ini",
	Version:     "1.0.0",
	Author:      "normtree",
	Description: "INI sections and keys, parsed by a sandboxed script",
}

// Spec returns the script description. logger receives the script's print
// output; nil uses slog.Default.
func Spec(logger *slog.Logger) plugin.ScriptSpec {
	return plugin.ScriptSpec{
		Spec: plugin.Spec{
			Metadata:   Metadata,
			Format:     format.INI,
			Formats:    []string{"cfg"},
			MIMETypes:  []string{"text/x-ini", "application/x-ini"},
			Extensions: []string{".ini", ".cfg", ".conf"},
		},
		Source:   source,
		Filename: "ini.js",
		Logger:   logger,
	}
}

// New compiles the embedded script.
func New(logger *slog.Logger) (*plugin.Script, error) {
	return plugin.CompileScript(Spec(logger))
}

// Module compiles the script and wraps it for Manager.Register.
func Module(logger *slog.Logger) (plugin.Module, error) {
	s, err := New(logger)
	if err != nil {
		return plugin.Module{}, err
	}
	return s.Module(), nil
}

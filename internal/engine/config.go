package engine

import (
	"fmt"
	"log/slog"

	"github.com/itsmostafa/normtree/internal/config"
	"github.com/itsmostafa/normtree/internal/format"
	"github.com/itsmostafa/normtree/internal/parser"
	"github.com/itsmostafa/normtree/internal/plugin"
	csvplugin "github.com/itsmostafa/normtree/plugins/csv"
	iniplugin "github.com/itsmostafa/normtree/plugins/ini"
	tomlplugin "github.com/itsmostafa/normtree/plugins/toml"
)

// FromConfig builds an engine from cfg and registers the plugins it lists.
func FromConfig(cfg *config.Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	e, err := New(Options{
		Logger:          logger,
		DefaultParser:   cfg.Parsing.DefaultParser,
		MaxContentBytes: maxContentBytes(cfg.Parsing.MaxContentBytes),
		ParseDefaults: parser.Options{
			MaxDepth: cfg.Parsing.MaxDepth,
			Strict:   cfg.Parsing.Strict,
		},
		Plugins: plugin.Config{
			MaxParseTime: cfg.Plugins.MaxParseTime,
			MaxNodeCount: cfg.Plugins.MaxNodeCount,
			MaxPlugins:   cfg.Plugins.MaxPlugins,
		},
	})
	if err != nil {
		return nil, err
	}

	if cfg.Plugins.BuiltinExamples {
		if err := e.RegisterExamples(logger); err != nil {
			return nil, err
		}
	}
	for _, s := range cfg.Plugins.Scripts {
		script, err := plugin.LoadScript(s.Path, plugin.ScriptSpec{
			Spec:   pluginSpec(s.PluginEntry),
			Logger: logger,
		})
		if err != nil {
			return nil, fmt.Errorf("load script plugin %s: %w", s.Format, err)
		}
		if err := e.RegisterPlugin(s.Format, script.Module()); err != nil {
			return nil, err
		}
	}
	for _, x := range cfg.Plugins.Executables {
		exe, err := plugin.NewExecutable(plugin.ExecSpec{
			Spec:    pluginSpec(x.PluginEntry),
			Command: x.Command,
			Args:    x.Args,
			Dir:     x.Dir,
		})
		if err != nil {
			return nil, fmt.Errorf("load executable plugin %s: %w", x.Format, err)
		}
		if err := e.RegisterPlugin(x.Format, exe.Module()); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// RegisterExamples registers the CSV, TOML and INI example plugins.
func (e *Engine) RegisterExamples(logger *slog.Logger) error {
	ini, err := iniplugin.Module(logger)
	if err != nil {
		return fmt.Errorf("compile ini plugin: %w", err)
	}
	examples := []struct {
		format string
		module plugin.Module
	}{
		{format.CSV, csvplugin.Module()},
		{format.TOML, tomlplugin.Module()},
		{format.INI, ini},
	}
	for _, ex := range examples {
		if err := e.RegisterPlugin(ex.format, ex.module); err != nil {
			return err
		}
	}
	return nil
}

func pluginSpec(entry config.PluginEntry) plugin.Spec {
	return plugin.Spec{
		Metadata: plugin.Metadata{
			Name:        entry.Name,
			Version:     entry.Version,
			Author:      entry.Author,
			Description: entry.Description,
		},
		Format:     entry.Format,
		MIMETypes:  entry.MIMETypes,
		Extensions: entry.Extensions,
	}
}

// maxContentBytes maps the config's "0 means unlimited" onto Options.
func maxContentBytes(n int64) int64 {
	if n == 0 {
		return -1
	}
	return n
}

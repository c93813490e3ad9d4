package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "normtree.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error = %v", err)
	}
	if cfg.Parsing.DefaultParser != "markdown" || cfg.Plugins.MaxParseTime != 5*time.Second {
		t.Errorf("defaults = %+v", cfg)
	}
	if !cfg.Plugins.BuiltinExamples {
		t.Error("example plugins are on by default")
	}
}

func TestLoadMergesFile(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
plugins:
  max_parse_time: 250ms
  builtin_examples: false
  scripts:
    - format: rst
      path: plugins/rst.js
      name: rst
      version: 0.1.0
      author: me
      description: reStructuredText
      extensions: [".rst"]
  executables:
    - format: adoc
      command: ./bin/adoc
      args: ["--json"]
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "text" {
		t.Errorf("log = %+v, want level from file and format from defaults", cfg.Log)
	}
	if cfg.Plugins.MaxParseTime != 250*time.Millisecond {
		t.Errorf("max_parse_time = %s", cfg.Plugins.MaxParseTime)
	}
	if cfg.Plugins.BuiltinExamples {
		t.Error("builtin_examples not overridden")
	}
	if cfg.Plugins.MaxNodeCount != 10000 {
		t.Errorf("max_node_count = %d, want default", cfg.Plugins.MaxNodeCount)
	}

	dir := filepath.Dir(path)
	script := cfg.Plugins.Scripts[0]
	if script.Name != "rst" || script.Extensions[0] != ".rst" {
		t.Errorf("script = %+v", script)
	}
	if script.Path != filepath.Join(dir, "plugins/rst.js") {
		t.Errorf("script path = %q, want resolved against config dir", script.Path)
	}
	if got := cfg.Plugins.Executables[0].Command; got != filepath.Join(dir, "bin/adoc") {
		t.Errorf("command = %q", got)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad yaml", "log: [", "parse config"},
		{"bad level", "log: {level: loud}", "log.level"},
		{"zero timeout", "plugins: {max_parse_time: 0s}", "max_parse_time"},
		{"script without path", "plugins: {scripts: [{format: rst}]}", "path is required"},
		{"duplicate format", "plugins: {scripts: [{format: rst, path: a.js}], executables: [{format: RST, command: x}]}", "already configured"},
		{"executable without format", "plugins: {executables: [{command: x}]}", "format is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %v, want it to mention %q", err, tt.want)
			}
		})
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load(missing) succeeded")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv(EnvLogLevel, "warn")
	t.Setenv(EnvLogFormat, "json")
	t.Setenv(EnvDefaultParser, "yaml")
	t.Setenv(EnvMaxParseTime, "1500")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv() error = %v", err)
	}
	if cfg.Log.Level != "warn" || cfg.Log.Format != "json" || cfg.Parsing.DefaultParser != "yaml" {
		t.Errorf("config = %+v", cfg)
	}
	if cfg.Plugins.MaxParseTime != 1500*time.Millisecond {
		t.Errorf("max parse time = %s", cfg.Plugins.MaxParseTime)
	}

	t.Setenv(EnvMaxParseTime, "soon")
	if err := DefaultConfig().ApplyEnv(); err == nil {
		t.Error("ApplyEnv() accepted a bad duration")
	}
}

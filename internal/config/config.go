// Package config loads normtree's YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/itsmostafa/normtree/internal/logging"
)

// Environment variables read by ApplyEnv.
const (
	EnvLogLevel      = "NORMTREE_LOG_LEVEL"
	EnvLogFormat     = "NORMTREE_LOG_FORMAT"
	EnvDefaultParser = "NORMTREE_DEFAULT_PARSER"
	EnvMaxParseTime  = "NORMTREE_MAX_PARSE_TIME"
)

// Config holds the full normtree configuration.
type Config struct {
	Log     LogConfig     `yaml:"log"`
	Parsing ParsingConfig `yaml:"parsing"`
	Plugins PluginsConfig `yaml:"plugins"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ParsingConfig configures dispatch and input checks.
type ParsingConfig struct {
	DefaultParser   string `yaml:"default_parser"`
	MaxDepth        int    `yaml:"max_depth"`
	MaxContentBytes int64  `yaml:"max_content_bytes"`
	Strict          bool   `yaml:"strict"`
}

// PluginsConfig configures the plugin manager and the plugins to load.
type PluginsConfig struct {
	MaxParseTime    time.Duration      `yaml:"max_parse_time"`
	MaxNodeCount    int                `yaml:"max_node_count"`
	MaxPlugins      int                `yaml:"max_plugins"`
	BuiltinExamples bool               `yaml:"builtin_examples"`
	Scripts         []ScriptPlugin     `yaml:"scripts"`
	Executables     []ExecutablePlugin `yaml:"executables"`
}

// PluginEntry is the part every configured plugin shares.
type PluginEntry struct {
	Format      string   `yaml:"format"`
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Author      string   `yaml:"author"`
	Description string   `yaml:"description"`
	MIMETypes   []string `yaml:"mime_types"`
	Extensions  []string `yaml:"extensions"`
}

// ScriptPlugin is a JavaScript parser file.
type ScriptPlugin struct {
	PluginEntry `yaml:",inline"`
	Path        string `yaml:"path"`
}

// ExecutablePlugin is an external parser program.
type ExecutablePlugin struct {
	PluginEntry `yaml:",inline"`
	Command     string   `yaml:"command"`
	Args        []string `yaml:"args"`
	Dir         string   `yaml:"dir"`
}

// DefaultConfig returns sane defaults.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Parsing: ParsingConfig{
			DefaultParser:   "markdown",
			MaxContentBytes: 10 << 20,
		},
		Plugins: PluginsConfig{
			MaxParseTime:    5 * time.Second,
			MaxNodeCount:    10000,
			MaxPlugins:      32,
			BuiltinExamples: true,
		},
	}
}

// Load reads a YAML config file and returns DefaultConfig merged with it.
// An empty path returns the defaults. Relative plugin paths are resolved
// against the file's directory.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.resolvePaths(filepath.Dir(path))
	return cfg, cfg.Validate()
}

func (c *Config) resolvePaths(dir string) {
	for i := range c.Plugins.Scripts {
		s := &c.Plugins.Scripts[i]
		if s.Path != "" && !filepath.IsAbs(s.Path) {
			s.Path = filepath.Join(dir, s.Path)
		}
	}
	for i := range c.Plugins.Executables {
		e := &c.Plugins.Executables[i]
		// Bare command names are looked up on PATH
		if strings.ContainsRune(e.Command, filepath.Separator) && !filepath.IsAbs(e.Command) {
			e.Command = filepath.Join(dir, e.Command)
		}
		if e.Dir != "" && !filepath.IsAbs(e.Dir) {
			e.Dir = filepath.Join(dir, e.Dir)
		}
	}
}

// ApplyEnv overrides settings from NORMTREE_* environment variables.
func (c *Config) ApplyEnv() error {
	if v, ok := os.LookupEnv(EnvLogLevel); ok && v != "" {
		c.Log.Level = v
	}
	if v, ok := os.LookupEnv(EnvLogFormat); ok && v != "" {
		c.Log.Format = v
	}
	if v, ok := os.LookupEnv(EnvDefaultParser); ok && v != "" {
		c.Parsing.DefaultParser = v
	}
	if v, ok := os.LookupEnv(EnvMaxParseTime); ok && v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxParseTime, err)
		}
		c.Plugins.MaxParseTime = d
	}
	return nil
}

// parseDuration accepts a Go duration or a bare number of milliseconds.
func parseDuration(s string) (time.Duration, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Duration(ms) * time.Millisecond, nil
	}
	return time.ParseDuration(s)
}

// Validate checks that values are sane.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}
	if _, err := logging.ParseFormat(c.Log.Format); err != nil {
		return fmt.Errorf("log.format: %w", err)
	}
	if c.Parsing.MaxDepth < 0 {
		return fmt.Errorf("parsing.max_depth must be >= 0")
	}
	if c.Parsing.MaxContentBytes < 0 {
		return fmt.Errorf("parsing.max_content_bytes must be >= 0")
	}
	if c.Plugins.MaxParseTime <= 0 {
		return fmt.Errorf("plugins.max_parse_time must be > 0")
	}
	if c.Plugins.MaxNodeCount < 0 {
		return fmt.Errorf("plugins.max_node_count must be >= 0")
	}
	if c.Plugins.MaxPlugins <= 0 {
		return fmt.Errorf("plugins.max_plugins must be > 0")
	}

	seen := make(map[string]string)
	claim := func(where string, e PluginEntry) error {
		f := strings.ToLower(strings.TrimSpace(e.Format))
		if f == "" {
			return fmt.Errorf("%s: format is required", where)
		}
		if prev, ok := seen[f]; ok {
			return fmt.Errorf("%s: format %q already configured by %s", where, f, prev)
		}
		seen[f] = where
		return nil
	}
	for i, s := range c.Plugins.Scripts {
		where := fmt.Sprintf("plugins.scripts[%d]", i)
		if err := claim(where, s.PluginEntry); err != nil {
			return err
		}
		if s.Path == "" {
			return fmt.Errorf("%s: path is required", where)
		}
	}
	for i, e := range c.Plugins.Executables {
		where := fmt.Sprintf("plugins.executables[%d]", i)
		if err := claim(where, e.PluginEntry); err != nil {
			return err
		}
		if e.Command == "" {
			return fmt.Errorf("%s: command is required", where)
		}
	}
	return nil
}

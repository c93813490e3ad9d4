package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/itsmostafa/normtree/internal/config"
	"github.com/itsmostafa/normtree/internal/engine"
	"github.com/itsmostafa/normtree/internal/format"
	"github.com/itsmostafa/normtree/internal/logging"
	"github.com/itsmostafa/normtree/internal/version"
)

var configPath string
var logLevel string
var logFormat string

var rootCmd = &cobra.Command{
	Use:   "normtree",
	Short: "Detect document formats and parse them into a normalized tree",
	Long: `normtree classifies text of unknown format (Markdown, YAML, JSON, HTML, XML
and plugin formats such as CSV, TOML and INI) and parses it into one
normalized hierarchy of titled nodes.

Plugins run under a time budget and a node ceiling; script plugins run in a
sandboxed JavaScript runtime and executable plugins in their own process.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.Version = version.Version
	rootCmd.SetVersionTemplate(fmt.Sprintf("normtree %s\n", version.String()))

	// Config flag with env var fallback
	defaultConfig := os.Getenv("NORMTREE_CONFIG")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultConfig, "Path to a YAML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format (text, json)")
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file, then applies env vars and flags in
// that order.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFormat != "" {
		cfg.Log.Format = logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// newEngine sets up logging and builds the engine from the effective
// config.
func newEngine(cmd *cobra.Command) (*engine.Engine, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.Setup(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, nil, err
	}
	e, err := engine.FromConfig(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return e, cfg, nil
}

// hintFlags are the format hints shared by detect and parse.
type hintFlags struct {
	format   string
	mimeType string
	filename string
}

func (h *hintFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&h.format, "format", "f", "", "Format hint (skips detection)")
	cmd.Flags().StringVar(&h.mimeType, "mime", "", "MIME type hint")
	cmd.Flags().StringVar(&h.filename, "filename", "", "Filename hint (defaults to the input path)")
}

func (h *hintFlags) hints(path string) format.Hints {
	hints := format.Hints{Format: h.format, MIMEType: h.mimeType, Filename: h.filename}
	if hints.Filename == "" && path != "" && path != "-" {
		hints.Filename = path
	}
	return hints
}

// readInput reads the file named by args, or stdin when there is none or it
// is "-". limit > 0 stops reading one byte past it so oversize input is
// still reported as too large.
func readInput(cmd *cobra.Command, args []string, limit int64) (string, string, error) {
	path := "-"
	if len(args) > 0 {
		path = args[0]
	}

	var r io.Reader
	if path == "-" {
		r = cmd.InOrStdin()
	} else {
		f, err := os.Open(path)
		if err != nil {
			return "", "", fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	if limit > 0 {
		r = io.LimitReader(r, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", "", fmt.Errorf("read input: %w", err)
	}
	return string(data), path, nil
}

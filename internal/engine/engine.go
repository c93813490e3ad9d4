// Package engine ties detection, dispatch and plugins into the parse
// pipeline: check the input, detect its format, pick a parser, parse.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/itsmostafa/normtree/internal/detect"
	apperrors "github.com/itsmostafa/normtree/internal/errors"
	"github.com/itsmostafa/normtree/internal/format"
	"github.com/itsmostafa/normtree/internal/formats"
	"github.com/itsmostafa/normtree/internal/node"
	"github.com/itsmostafa/normtree/internal/parser"
	"github.com/itsmostafa/normtree/internal/plugin"
)

// DefaultMaxContentBytes bounds the size of parsed content.
const DefaultMaxContentBytes = 10 << 20

// Options configure an Engine.
type Options struct {
	Logger *slog.Logger
	// DefaultParser is the format whose parser handles content nothing
	// else claims. Empty means markdown.
	DefaultParser string
	// MaxContentBytes bounds input size; 0 means DefaultMaxContentBytes and
	// a negative value disables the check.
	MaxContentBytes int64
	// ParseDefaults fill in options a Parse call leaves unset.
	ParseDefaults parser.Options
	Plugins       plugin.Config
}

// Engine is the caller-owned parse pipeline. It is safe for concurrent use.
type Engine struct {
	detector *detect.Detector
	registry *parser.Registry
	plugins  *plugin.Manager
	logger   *slog.Logger
	maxBytes int64
	defaults parser.Options
}

// Result is the outcome of Parse.
type Result struct {
	Tree      *node.Node        `json:"tree"`
	Detection detect.Result     `json:"detection"`
	Parser    parser.Descriptor `json:"parser"`
	Route     parser.Route      `json:"route"`
	Format    string            `json:"format"`
	Duration  time.Duration     `json:"duration"`
}

// New creates an engine with the built-in parsers registered and an empty
// plugin manager bound to its registry.
func New(opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defaultParser := opts.DefaultParser
	if defaultParser == "" {
		defaultParser = format.Markdown
	}
	maxBytes := opts.MaxContentBytes
	if maxBytes == 0 {
		maxBytes = DefaultMaxContentBytes
	}

	reg := parser.NewRegistry(
		parser.WithLogger(logger.With("component", "registry")),
		parser.WithDefault(defaultParser),
	)
	if err := formats.RegisterBuiltins(reg); err != nil {
		return nil, fmt.Errorf("register built-in parsers: %w", err)
	}
	mgr := plugin.NewManager(opts.Plugins, plugin.WithLogger(logger))
	if err := mgr.Bind(reg); err != nil {
		return nil, fmt.Errorf("bind plugin manager: %w", err)
	}

	return &Engine{
		detector: detect.New(),
		registry: reg,
		plugins:  mgr,
		logger:   logger.With("component", "engine"),
		maxBytes: maxBytes,
		defaults: opts.ParseDefaults.Clone(),
	}, nil
}

// Registry returns the engine's parser registry.
func (e *Engine) Registry() *parser.Registry {
	return e.registry
}

// Plugins returns the engine's plugin manager.
func (e *Engine) Plugins() *plugin.Manager {
	return e.plugins
}

// RegisterPlugin registers a plugin module and exposes it to dispatch.
func (e *Engine) RegisterPlugin(formatID string, mod plugin.Module) error {
	return e.plugins.Register(formatID, mod)
}

// CheckInput rejects content that is not text: invalid UTF-8, NUL bytes,
// or more bytes than the configured limit.
func (e *Engine) CheckInput(content string) error {
	if e.maxBytes > 0 && int64(len(content)) > e.maxBytes {
		return apperrors.NewValidation("content", fmt.Sprintf("content is %s, above the limit of %s",
			humanize.IBytes(uint64(len(content))), humanize.IBytes(uint64(e.maxBytes))))
	}
	if !utf8.ValidString(content) {
		return apperrors.NewValidation("content", "content is not valid UTF-8")
	}
	if i := strings.IndexByte(content, 0); i >= 0 {
		return apperrors.NewValidation("content", fmt.Sprintf("content contains a NUL byte at offset %d", i))
	}
	return nil
}

// Detect checks content and classifies its format.
func (e *Engine) Detect(content string, hints format.Hints) (detect.Result, error) {
	if err := e.CheckInput(content); err != nil {
		return detect.Result{}, err
	}
	res := e.detector.Detect(content, hints)
	e.logger.Debug("format detected",
		"format", res.Format,
		"confidence", res.Confidence,
		"source", res.Source,
	)
	return res, nil
}

// Parse checks content, detects its format, dispatches it to a parser and
// returns the tree. Content the chosen parser cannot make sense of comes
// back as a tree with an error node; errors are reserved for bad input,
// content no parser accepts, and plugin policy violations.
func (e *Engine) Parse(ctx context.Context, content string, hints format.Hints, opts parser.Options) (*Result, error) {
	start := time.Now()
	det, err := e.Detect(content, hints)
	if err != nil {
		return nil, err
	}

	res, err := e.resolve(content, hints, det)
	if err != nil {
		return nil, err
	}

	opts = e.options(opts, hints)
	tree, err := res.Parser.Parse(ctx, content, opts)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", res.Format, err)
	}

	elapsed := time.Since(start)
	e.logger.Debug("content parsed",
		"parser", res.Parser.Name(),
		"route", res.Route,
		"nodes", tree.Count(),
		"duration", elapsed,
	)
	return &Result{
		Tree:      tree,
		Detection: det,
		Parser:    res.Parser.Describe(),
		Route:     res.Route,
		Format:    res.Format,
		Duration:  elapsed,
	}, nil
}

// ParseReader reads up to the content limit from r and parses it.
func (e *Engine) ParseReader(ctx context.Context, r io.Reader, hints format.Hints, opts parser.Options) (*Result, error) {
	if e.maxBytes > 0 {
		r = io.LimitReader(r, e.maxBytes+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read content: %w", err)
	}
	return e.Parse(ctx, string(data), hints, opts)
}

// resolve picks the parser. A reliable content detection is passed to the
// registry as a format hint; an explicit format hint must name a format
// some parser claims.
func (e *Engine) resolve(content string, hints format.Hints, det detect.Result) (parser.Resolution, error) {
	if f := strings.ToLower(strings.TrimSpace(hints.Format)); f != "" {
		if _, ok := e.registry.Get(f); !ok {
			return parser.Resolution{}, apperrors.NewFormat(f, "no parser is registered for this format")
		}
	}

	dispatch := hints
	if dispatch.Format == "" {
		// Plugin formats are missing from the static extension table
		if ext := hints.Ext(); ext != "" {
			if _, known := format.FromExtension(ext); !known {
				if _, ok := e.registry.Get(ext); ok {
					dispatch.Format = ext
				}
			}
		}
	}
	if dispatch.Format == "" && det.Source == detect.SourceContent && det.Reliable() {
		if _, ok := e.registry.Get(det.Format); ok {
			dispatch.Format = det.Format
		}
	}
	res, err := e.registry.Resolve(content, dispatch)
	if err != nil {
		return parser.Resolution{}, err
	}
	return res, nil
}

// options fills unset fields of opts from the engine defaults and hints.
func (e *Engine) options(opts parser.Options, hints format.Hints) parser.Options {
	opts = opts.Clone()
	if opts.MaxDepth == 0 {
		opts.MaxDepth = e.defaults.MaxDepth
	}
	opts.Strict = opts.Strict || e.defaults.Strict
	if opts.Filename == "" {
		opts.Filename = hints.Filename
	}
	if opts.Extra == nil && e.defaults.Extra != nil {
		opts.Extra = e.defaults.Clone().Extra
	}
	return opts
}

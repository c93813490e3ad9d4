// Package plugin runs third-party parsers behind a policy layer: metadata
// and contract checks at registration, and a timeout, result validation,
// a node ceiling and usage metrics around every parse.
package plugin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	apperrors "github.com/itsmostafa/normtree/internal/errors"
	"github.com/itsmostafa/normtree/internal/node"
	"github.com/itsmostafa/normtree/internal/parser"
)

// Default limits.
const (
	DefaultMaxParseTime = 5 * time.Second
	DefaultMaxNodeCount = 10000
	DefaultMaxPlugins   = 32
)

// Config holds the resource budget applied to every plugin.
type Config struct {
	// MaxParseTime bounds the wall-clock time of one parse.
	MaxParseTime time.Duration `json:"maxParseTime"`
	// MaxNodeCount bounds the size of a returned tree; 0 disables the check.
	MaxNodeCount int `json:"maxNodeCount"`
	// MaxPlugins bounds how many plugins may be registered at once.
	MaxPlugins int `json:"maxPlugins"`
}

// DefaultConfig returns the default limits.
func DefaultConfig() Config {
	return Config{
		MaxParseTime: DefaultMaxParseTime,
		MaxNodeCount: DefaultMaxNodeCount,
		MaxPlugins:   DefaultMaxPlugins,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxParseTime <= 0 {
		c.MaxParseTime = DefaultMaxParseTime
	}
	if c.MaxPlugins <= 0 {
		c.MaxPlugins = DefaultMaxPlugins
	}
	if c.MaxNodeCount < 0 {
		c.MaxNodeCount = 0
	}
	return c
}

// Metrics are the usage counters of one plugin.
type Metrics struct {
	Invocations     int64         `json:"invocations"`
	Errors          int64         `json:"errors"`
	AverageDuration time.Duration `json:"averageDuration"`
	LastDuration    time.Duration `json:"lastDuration"`
	LastError       string        `json:"lastError,omitempty"`
	LastInvoked     time.Time     `json:"lastInvoked,omitzero"`
}

// observe folds one call into the metrics. The average is a cumulative
// moving average over every invocation, so it stays within the range of
// observed durations.
func (m *Metrics) observe(d time.Duration, err error) {
	m.Invocations++
	m.LastDuration = d
	m.LastInvoked = time.Now().UTC()
	m.AverageDuration += (d - m.AverageDuration) / time.Duration(m.Invocations)
	if err != nil {
		m.Errors++
		m.LastError = err.Error()
	}
}

// Info describes a registered plugin.
type Info struct {
	FormatID string            `json:"formatId"`
	Kind     Kind              `json:"kind"`
	Metadata Metadata          `json:"metadata"`
	Parser   parser.Descriptor `json:"parser"`
	Limits   Config            `json:"limits"`
	Metrics  Metrics           `json:"metrics"`
}

type record struct {
	id       string
	module   Module
	describe parser.Parser
	metrics  Metrics
}

// Manager owns the registered plugins and enforces their budget.
type Manager struct {
	mu       sync.RWMutex
	cfg      Config
	plugins  map[string]*record
	order    []string
	registry *parser.Registry
	logger   *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the manager's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a Manager. Zero limits in cfg take their defaults.
func NewManager(cfg Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:     cfg.withDefaults(),
		plugins: make(map[string]*record),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.logger = m.logger.With("component", "plugin")
	return m
}

// Config returns the limits in effect.
func (m *Manager) Config() Config {
	return m.cfg
}

// Register validates mod and registers it under formatID.
func (m *Manager) Register(formatID string, mod Module) error {
	formatID = strings.ToLower(strings.TrimSpace(formatID))
	if formatID == "" {
		return m.fail("", "register", apperrors.NewPlugin("", apperrors.KindInvalidMetadata, "format id is required"))
	}
	if err := mod.Metadata.Validate(); err != nil {
		return m.fail(formatID, "register", apperrors.WrapPlugin(formatID, apperrors.KindInvalidMetadata, "metadata is incomplete", err))
	}
	p, err := instantiate(formatID, mod)
	if err != nil {
		return m.fail(formatID, "register", err)
	}

	m.mu.Lock()
	if _, exists := m.plugins[formatID]; exists {
		m.mu.Unlock()
		return m.fail(formatID, "register", apperrors.NewPlugin(formatID, apperrors.KindDuplicate, "a plugin is already registered for this format"))
	}
	if len(m.plugins) >= m.cfg.MaxPlugins {
		m.mu.Unlock()
		return m.fail(formatID, "register", apperrors.NewPlugin(formatID, apperrors.KindLimitExceeded,
			fmt.Sprintf("plugin limit of %d reached", m.cfg.MaxPlugins)))
	}
	rec := &record{id: formatID, module: mod, describe: p}
	m.plugins[formatID] = rec
	m.order = append(m.order, formatID)
	reg := m.registry
	m.mu.Unlock()

	if reg != nil {
		if err := reg.Register(m.adapter(rec)); err != nil {
			m.remove(formatID)
			return m.fail(formatID, "register", apperrors.WrapPlugin(formatID, apperrors.KindDuplicate, "registry rejected plugin parser", err))
		}
	}

	m.logger.Debug("plugin registered",
		"plugin", formatID,
		"name", mod.Metadata.Name,
		"version", mod.Metadata.Version,
		"kind", mod.kind(),
	)
	return nil
}

// instantiate builds a parser from mod and checks it honors the contract.
func instantiate(formatID string, mod Module) (p parser.Parser, err error) {
	if mod.New == nil {
		return nil, apperrors.NewPlugin(formatID, apperrors.KindInvalidParser, "module has no parser constructor")
	}
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = apperrors.NewPlugin(formatID, apperrors.KindInvalidParser, fmt.Sprintf("parser constructor panicked: %v", r))
		}
	}()
	p = mod.New()
	if p == nil {
		return nil, apperrors.NewPlugin(formatID, apperrors.KindInvalidParser, "parser constructor returned nil")
	}
	if strings.TrimSpace(p.Name()) == "" {
		return nil, apperrors.NewPlugin(formatID, apperrors.KindInvalidParser, "parser has no name")
	}
	if len(p.SupportedFormats()) == 0 {
		return nil, apperrors.NewPlugin(formatID, apperrors.KindInvalidParser, "parser supports no formats")
	}
	return p, nil
}

// Unregister removes the plugin for formatID together with its metrics and
// any registry entry. It reports whether a plugin was removed.
func (m *Manager) Unregister(formatID string) bool {
	formatID = strings.ToLower(strings.TrimSpace(formatID))
	rec, ok := m.remove(formatID)
	if !ok {
		return false
	}
	m.mu.RLock()
	reg := m.registry
	m.mu.RUnlock()
	if reg != nil {
		reg.Unregister(rec.describe.Name())
	}
	m.logger.Info("plugin unregistered", "plugin", formatID)
	return true
}

func (m *Manager) remove(formatID string) (*record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.plugins[formatID]
	if !ok {
		return nil, false
	}
	delete(m.plugins, formatID)
	m.order = slices.DeleteFunc(m.order, func(id string) bool { return id == formatID })
	return rec, true
}

// Has reports whether a plugin is registered for formatID.
func (m *Manager) Has(formatID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.plugins[strings.ToLower(strings.TrimSpace(formatID))]
	return ok
}

// Parse runs the plugin registered for formatID under the manager's
// budget. The plugin runs on a fresh parser instance with copies of its
// inputs, and the returned tree is a copy the plugin holds no reference
// to. Every call updates the plugin's metrics, whatever the outcome.
func (m *Manager) Parse(ctx context.Context, formatID, content string, opts parser.Options) (*node.Node, error) {
	formatID = strings.ToLower(strings.TrimSpace(formatID))
	m.mu.RLock()
	rec, ok := m.plugins[formatID]
	m.mu.RUnlock()
	if !ok {
		return nil, m.fail(formatID, "parse", apperrors.NewPlugin(formatID, apperrors.KindNotFound, "no plugin registered for this format"))
	}

	start := time.Now()
	tree, err := m.invoke(ctx, rec, content, opts)
	elapsed := time.Since(start)

	m.mu.Lock()
	rec.metrics.observe(elapsed, err)
	m.mu.Unlock()

	if err != nil {
		return nil, m.fail(formatID, "parse", err)
	}
	m.logger.Debug("plugin parse complete",
		"plugin", formatID,
		"duration", elapsed,
		"nodes", tree.Count(),
	)
	return tree, nil
}

type outcome struct {
	tree *node.Node
	err  error
}

func (m *Manager) invoke(ctx context.Context, rec *record, content string, opts parser.Options) (*node.Node, error) {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.MaxParseTime)
	defer cancel()

	p, err := instantiate(rec.id, rec.module)
	if err != nil {
		return nil, err
	}
	if limit := m.cfg.MaxNodeCount; limit > 0 && (opts.MaxNodes <= 0 || opts.MaxNodes > limit) {
		opts.MaxNodes = limit
	}

	done := make(chan outcome, 1)
	go func(opts parser.Options) {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: apperrors.NewPlugin(rec.id, apperrors.KindPanic, fmt.Sprintf("parser panicked: %v", r))}
			}
		}()
		tree, err := p.Parse(ctx, content, opts)
		done <- outcome{tree: tree, err: err}
	}(opts.Clone())

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		// A goroutine cannot be stopped from outside; its result is dropped
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, apperrors.WrapPlugin(rec.id, apperrors.KindTimeout,
				fmt.Sprintf("parse exceeded %s", m.cfg.MaxParseTime), ctx.Err())
		}
		return nil, apperrors.WrapPlugin(rec.id, apperrors.KindExecution, "parse cancelled", ctx.Err())
	}

	if out.err != nil {
		var perr *apperrors.PluginError
		if errors.As(out.err, &perr) {
			return nil, out.err
		}
		if errors.Is(out.err, context.DeadlineExceeded) {
			return nil, apperrors.WrapPlugin(rec.id, apperrors.KindTimeout,
				fmt.Sprintf("parse exceeded %s", m.cfg.MaxParseTime), out.err)
		}
		return nil, apperrors.WrapPlugin(rec.id, apperrors.KindExecution, "parser returned an error", out.err)
	}
	return m.check(rec, out.tree, content)
}

// check validates a returned tree and detaches it from the plugin.
func (m *Manager) check(rec *record, tree *node.Node, content string) (*node.Node, error) {
	if tree == nil {
		return nil, apperrors.NewPlugin(rec.id, apperrors.KindInvalidResult, "parser returned no tree")
	}
	if strings.TrimSpace(tree.Title) == "" {
		return nil, apperrors.NewPlugin(rec.id, apperrors.KindInvalidResult, "root node has no title")
	}
	if limit := m.cfg.MaxNodeCount; limit > 0 {
		if count, exceeded := tree.CountLimit(limit); exceeded {
			return nil, apperrors.NewPlugin(rec.id, apperrors.KindNodeCount,
				fmt.Sprintf("tree has more than %d nodes (stopped counting at %d)", limit, count))
		}
	}

	tree = tree.Clone()
	node.Finalize(tree, node.Stamp{Format: rec.id, Parser: rec.describe.Name(), Content: content})
	return tree, nil
}

// fail logs a policy violation and returns err.
func (m *Manager) fail(formatID, op string, err error) error {
	m.logger.Warn("plugin_error", "plugin", formatID, "operation", op, "error", err)
	return err
}

// Metrics returns a snapshot of the metrics for formatID.
func (m *Manager) Metrics(formatID string) (Metrics, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.plugins[strings.ToLower(strings.TrimSpace(formatID))]
	if !ok {
		return Metrics{}, false
	}
	return rec.metrics, true
}

// List describes every plugin in registration order.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.order))
	for _, id := range m.order {
		rec := m.plugins[id]
		out = append(out, Info{
			FormatID: id,
			Kind:     rec.module.kind(),
			Metadata: rec.module.Metadata,
			Parser:   rec.describe.Describe(),
			Limits:   m.cfg,
			Metrics:  rec.metrics,
		})
	}
	return out
}

// Bind exposes every current and future plugin to reg's dispatch. Dispatched
// parses go through the manager's policy layer.
func (m *Manager) Bind(reg *parser.Registry) error {
	m.mu.Lock()
	m.registry = reg
	recs := make([]*record, 0, len(m.order))
	for _, id := range m.order {
		recs = append(recs, m.plugins[id])
	}
	m.mu.Unlock()

	var errs []error
	for _, rec := range recs {
		if err := reg.Register(m.adapter(rec)); err != nil {
			errs = append(errs, fmt.Errorf("bind plugin %s: %w", rec.id, err))
		}
	}
	return errors.Join(errs...)
}

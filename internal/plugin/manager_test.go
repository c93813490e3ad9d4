package plugin

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	apperrors "github.com/itsmostafa/normtree/internal/errors"
	"github.com/itsmostafa/normtree/internal/format"
	"github.com/itsmostafa/normtree/internal/node"
	"github.com/itsmostafa/normtree/internal/parser"
)

type stubParser struct {
	name    string
	formats []string
	parse   func(ctx context.Context, content string, opts parser.Options) (*node.Node, error)
}

func (s *stubParser) Name() string                 { return s.name }
func (s *stubParser) SupportedFormats() []string   { return s.formats }
func (s *stubParser) SupportedMIMETypes() []string { return nil }
func (s *stubParser) CanParse(content string, hints format.Hints) float64 {
	if hints.Format == s.formats[0] {
		return 1
	}
	return 0
}
func (s *stubParser) Parse(ctx context.Context, content string, opts parser.Options) (*node.Node, error) {
	if s.parse != nil {
		return s.parse(ctx, content, opts)
	}
	return node.New("Stub", content, node.ContentPlain), nil
}
func (s *stubParser) Validate(string) parser.ValidationResult { return parser.Valid() }
func (s *stubParser) Capabilities() parser.Capabilities       { return parser.Capabilities{} }
func (s *stubParser) Describe() parser.Descriptor             { return parser.Describe(s) }

var testMetadata = Metadata{Name: "stub", Version: "1.0.0", Author: "tests", Description: "stub parser"}

func stubModule(parse func(context.Context, string, parser.Options) (*node.Node, error)) Module {
	return Module{
		Metadata: testMetadata,
		New: func() parser.Parser {
			return &stubParser{name: "stub", formats: []string{"stub"}, parse: parse}
		},
	}
}

func quietManager(cfg Config) *Manager {
	return NewManager(cfg, WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func pluginKind(err error) apperrors.PluginKind {
	var perr *apperrors.PluginError
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}

func TestRegisterValidation(t *testing.T) {
	tests := []struct {
		name     string
		formatID string
		module   Module
		want     apperrors.PluginKind
	}{
		{"missing format id", "", stubModule(nil), apperrors.KindInvalidMetadata},
		{"missing author", "stub", Module{
			Metadata: Metadata{Name: "x", Version: "1", Description: "d"},
			New:      stubModule(nil).New,
		}, apperrors.KindInvalidMetadata},
		{"missing constructor", "stub", Module{Metadata: testMetadata}, apperrors.KindInvalidParser},
		{"nil parser", "stub", Module{Metadata: testMetadata, New: func() parser.Parser { return nil }}, apperrors.KindInvalidParser},
		{"no formats", "stub", Module{Metadata: testMetadata, New: func() parser.Parser {
			return &stubParser{name: "stub"}
		}}, apperrors.KindInvalidParser},
		{"panicking constructor", "stub", Module{Metadata: testMetadata, New: func() parser.Parser {
			panic("boom")
		}}, apperrors.KindInvalidParser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := quietManager(DefaultConfig())
			err := m.Register(tt.formatID, tt.module)
			if !errors.Is(err, apperrors.ErrPlugin) {
				t.Fatalf("Register() error = %v, want a PluginError", err)
			}
			if got := pluginKind(err); got != tt.want {
				t.Errorf("kind = %q, want %q", got, tt.want)
			}
			if len(m.List()) != 0 {
				t.Errorf("failed registration left a plugin behind")
			}
		})
	}
}

func TestRegisterDuplicateAndCeiling(t *testing.T) {
	m := quietManager(Config{MaxPlugins: 2})

	if err := m.Register("stub", stubModule(nil)); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if got := pluginKind(m.Register("STUB", stubModule(nil))); got != apperrors.KindDuplicate {
		t.Errorf("duplicate kind = %q", got)
	}
	if err := m.Register("other", stubModule(nil)); err != nil {
		t.Fatalf("Register(other) error = %v", err)
	}
	if got := pluginKind(m.Register("third", stubModule(nil))); got != apperrors.KindLimitExceeded {
		t.Errorf("ceiling kind = %q", got)
	}

	// Freeing a slot allows registration again
	if !m.Unregister("other") {
		t.Fatal("Unregister() = false")
	}
	if err := m.Register("third", stubModule(nil)); err != nil {
		t.Errorf("Register after unregister error = %v", err)
	}
}

func TestParseSuccess(t *testing.T) {
	m := quietManager(DefaultConfig())
	if err := m.Register("stub", stubModule(func(ctx context.Context, content string, opts parser.Options) (*node.Node, error) {
		root := node.New("Root", "", node.ContentPlain)
		root.Add(node.New("A", content, node.ContentPlain), node.New("", "", node.ContentPlain))
		return root, nil
	})); err != nil {
		t.Fatal(err)
	}

	tree, err := m.Parse(context.Background(), "stub", "hello", parser.Options{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if tree.ID != "0000" || tree.Children[1].ID != "0002" {
		t.Errorf("ids not assigned: %q, %q", tree.ID, tree.Children[1].ID)
	}
	if tree.Children[1].Title != node.DefaultTitle {
		t.Errorf("empty child title = %q", tree.Children[1].Title)
	}
	if tree.SourceFormat != "stub" {
		t.Errorf("source format = %q", tree.SourceFormat)
	}
	if tree.ParseInfo == nil || tree.ParseInfo.Parser != "stub" {
		t.Errorf("parse info = %+v", tree.ParseInfo)
	}

	metrics, ok := m.Metrics("stub")
	if !ok {
		t.Fatal("no metrics")
	}
	if metrics.Invocations != 1 || metrics.Errors != 0 {
		t.Errorf("metrics = %+v", metrics)
	}
}

func TestParseNodeCeiling(t *testing.T) {
	m := quietManager(Config{MaxNodeCount: 3})
	if err := m.Register("stub", stubModule(func(context.Context, string, parser.Options) (*node.Node, error) {
		root := node.New("Root", "", node.ContentPlain)
		for i := range 5 {
			root.Add(node.New(fmt.Sprintf("n%d", i), "", node.ContentPlain))
		}
		return root, nil
	})); err != nil {
		t.Fatal(err)
	}

	_, err := m.Parse(context.Background(), "stub", "x", parser.Options{})
	if !errors.Is(err, apperrors.ErrNodeCount) {
		t.Fatalf("Parse() error = %v, want ErrNodeCount", err)
	}
	metrics, _ := m.Metrics("stub")
	if metrics.Errors != 1 {
		t.Errorf("errors = %d, want exactly 1", metrics.Errors)
	}
	if metrics.Invocations != 1 {
		t.Errorf("invocations = %d, want 1", metrics.Invocations)
	}
}

func TestParseTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	m := quietManager(Config{MaxParseTime: 50 * time.Millisecond})
	if err := m.Register("stub", stubModule(func(context.Context, string, parser.Options) (*node.Node, error) {
		// Ignores its context, like a plugin stuck in a loop
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
		return node.New("Late", "", node.ContentPlain), nil
	})); err != nil {
		t.Fatal(err)
	}

	start := time.Now()
	_, err := m.Parse(context.Background(), "stub", "x", parser.Options{})
	if !errors.Is(err, apperrors.ErrPluginTimeout) {
		t.Fatalf("Parse() error = %v, want ErrPluginTimeout", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Parse() took %s, timeout not enforced", elapsed)
	}

	metrics, _ := m.Metrics("stub")
	if metrics.Errors != 1 || metrics.Invocations != 1 {
		t.Errorf("metrics = %+v", metrics)
	}
	if metrics.AverageDuration <= 0 || metrics.AverageDuration > 2*time.Second {
		t.Errorf("average duration = %s, want bounded", metrics.AverageDuration)
	}
}

func TestParseInvalidResults(t *testing.T) {
	tests := []struct {
		name  string
		parse func(context.Context, string, parser.Options) (*node.Node, error)
		want  apperrors.PluginKind
	}{
		{"nil tree", func(context.Context, string, parser.Options) (*node.Node, error) {
			return nil, nil
		}, apperrors.KindInvalidResult},
		{"empty title", func(context.Context, string, parser.Options) (*node.Node, error) {
			return &node.Node{Title: "  "}, nil
		}, apperrors.KindInvalidResult},
		{"panic", func(context.Context, string, parser.Options) (*node.Node, error) {
			panic("bad plugin")
		}, apperrors.KindPanic},
		{"error", func(context.Context, string, parser.Options) (*node.Node, error) {
			return nil, errors.New("failed")
		}, apperrors.KindExecution},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := quietManager(DefaultConfig())
			if err := m.Register("stub", stubModule(tt.parse)); err != nil {
				t.Fatal(err)
			}
			_, err := m.Parse(context.Background(), "stub", "x", parser.Options{})
			if got := pluginKind(err); got != tt.want {
				t.Errorf("kind = %q, want %q (err %v)", got, tt.want, err)
			}
			metrics, _ := m.Metrics("stub")
			if metrics.Errors != 1 {
				t.Errorf("errors = %d, want 1", metrics.Errors)
			}
		})
	}
}

func TestParseIsolatesInputs(t *testing.T) {
	var kept *node.Node
	m := quietManager(DefaultConfig())
	if err := m.Register("stub", stubModule(func(ctx context.Context, content string, opts parser.Options) (*node.Node, error) {
		opts.Extra["injected"] = true
		kept = node.New("Root", "", node.ContentPlain)
		return kept, nil
	})); err != nil {
		t.Fatal(err)
	}

	extra := map[string]any{"k": "v"}
	tree, err := m.Parse(context.Background(), "stub", "x", parser.Options{Extra: extra})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := extra["injected"]; ok {
		t.Error("plugin mutated the caller's options")
	}
	kept.Title = "changed later"
	if tree.Title != "Root" {
		t.Error("plugin kept a reference to the returned tree")
	}
}

func TestParseNotFoundAndUnregister(t *testing.T) {
	m := quietManager(DefaultConfig())
	if _, err := m.Parse(context.Background(), "nope", "x", parser.Options{}); !errors.Is(err, apperrors.ErrPluginNotFound) {
		t.Errorf("Parse(unknown) error = %v", err)
	}

	if err := m.Register("stub", stubModule(nil)); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Parse(context.Background(), "stub", "x", parser.Options{}); err != nil {
		t.Fatal(err)
	}
	if !m.Unregister("stub") {
		t.Fatal("Unregister() = false")
	}
	if _, ok := m.Metrics("stub"); ok {
		t.Error("metrics survived unregister")
	}
	if m.Unregister("stub") {
		t.Error("second Unregister() = true")
	}
}

func TestBindRegistry(t *testing.T) {
	reg := parser.NewRegistry(parser.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	m := quietManager(Config{MaxNodeCount: 2})

	if err := m.Register("stub", stubModule(nil)); err != nil {
		t.Fatal(err)
	}
	if err := m.Bind(reg); err != nil {
		t.Fatalf("Bind() error = %v", err)
	}

	p, err := reg.GetParser("content", format.Hints{Format: "stub"})
	if err != nil {
		t.Fatalf("GetParser() error = %v", err)
	}
	tree, err := p.Parse(context.Background(), "content", parser.Options{})
	if err != nil {
		t.Fatalf("dispatched Parse() error = %v", err)
	}
	if tree.ParseInfo == nil {
		t.Error("dispatched parse bypassed the manager")
	}
	if metrics, _ := m.Metrics("stub"); metrics.Invocations != 1 {
		t.Errorf("invocations = %d, want 1", metrics.Invocations)
	}

	// Plugins registered after binding are dispatched too
	if err := m.Register("late", Module{Metadata: testMetadata, New: func() parser.Parser {
		return &stubParser{name: "late", formats: []string{"late"}}
	}}); err != nil {
		t.Fatal(err)
	}
	if _, ok := reg.Get("late"); !ok {
		t.Error("late plugin not in registry")
	}

	m.Unregister("stub")
	if _, ok := reg.Get("stub"); ok {
		t.Error("unregistered plugin still dispatchable")
	}
}

func TestBindRejectsNameClash(t *testing.T) {
	reg := parser.NewRegistry(parser.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	m := quietManager(DefaultConfig())
	if err := m.Bind(reg); err != nil {
		t.Fatal(err)
	}
	if err := m.Register("stub", stubModule(nil)); err != nil {
		t.Fatal(err)
	}
	// Same parser name under another format id
	err := m.Register("stub2", stubModule(nil))
	if got := pluginKind(err); got != apperrors.KindDuplicate {
		t.Fatalf("kind = %q, want duplicate (err %v)", got, err)
	}
	if m.Has("stub2") {
		t.Error("rejected plugin left registered in manager")
	}
}

func TestMetricsAverage(t *testing.T) {
	var m Metrics
	m.observe(10*time.Millisecond, nil)
	m.observe(30*time.Millisecond, errors.New("x"))
	if m.AverageDuration != 20*time.Millisecond {
		t.Errorf("average = %s, want 20ms", m.AverageDuration)
	}
	if m.Invocations != 2 || m.Errors != 1 || m.LastError != "x" {
		t.Errorf("metrics = %+v", m)
	}
}

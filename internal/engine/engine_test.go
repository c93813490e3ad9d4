package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/itsmostafa/normtree/internal/config"
	apperrors "github.com/itsmostafa/normtree/internal/errors"
	"github.com/itsmostafa/normtree/internal/format"
	"github.com/itsmostafa/normtree/internal/logging"
	"github.com/itsmostafa/normtree/internal/node"
	"github.com/itsmostafa/normtree/internal/parser"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := FromConfig(config.DefaultConfig(), logging.Discard())
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	return e
}

func TestParseDispatch(t *testing.T) {
	e := newEngine(t)
	tests := []struct {
		name       string
		content    string
		hints      format.Hints
		wantParser string
		wantTitle  string
	}{
		{"markdown by content", "# A\n## B\n### C\n## D", format.Hints{}, "markdown", "A"},
		{"json by content", `{"name": "normtree", "tags": ["a", "b"], "nested": {"x": 1}}`, format.Hints{}, "json", "JSON Document"},
		{"yaml by filename", "a: 1\n", format.Hints{Filename: "values.yml"}, "yaml", ""},
		{"csv plugin by filename", "a,b\n1,2\n", format.Hints{Filename: "data.csv"}, "csv", "CSV Document"},
		{"toml plugin by hint", "x = 1\n", format.Hints{Format: "toml"}, "toml", "TOML Document"},
		{"ini plugin by mime", "[s]\nk = v\n", format.Hints{MIMEType: "text/x-ini"}, "ini", "INI Document"},
		{"plain text falls back", "just some words", format.Hints{}, "markdown", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := e.Parse(context.Background(), tt.content, tt.hints, parser.Options{})
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if res.Parser.Name != tt.wantParser {
				t.Errorf("parser = %q, want %q", res.Parser.Name, tt.wantParser)
			}
			if tt.wantTitle != "" && res.Tree.Title != tt.wantTitle {
				t.Errorf("title = %q, want %q", res.Tree.Title, tt.wantTitle)
			}
			if res.Tree.ID != "0000" || res.Tree.ParseInfo == nil {
				t.Errorf("tree not stamped: %+v", res.Tree.ParseInfo)
			}
		})
	}
}

func TestParseMarkdownHierarchy(t *testing.T) {
	res, err := newEngine(t).Parse(context.Background(), "# A\n## B\n### C\n## D", format.Hints{}, parser.Options{})
	if err != nil {
		t.Fatal(err)
	}
	root := res.Tree
	if len(root.Children) != 2 || root.Children[0].Title != "B" || root.Children[1].Title != "D" {
		t.Fatalf("children = %s", root)
	}
	if c := root.Children[0].Children; len(c) != 1 || c[0].Title != "C" {
		t.Errorf("B children = %v", c)
	}
}

func TestParseEmpty(t *testing.T) {
	e := newEngine(t)
	for _, f := range format.Builtin {
		t.Run(f, func(t *testing.T) {
			res, err := e.Parse(context.Background(), "", format.Hints{Format: f}, parser.Options{})
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if res.Tree.Title != node.EmptyTitle {
				t.Errorf("title = %q, want %q", res.Tree.Title, node.EmptyTitle)
			}
		})
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	e, err := New(Options{Logger: logging.Discard(), MaxContentBytes: 16})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"invalid utf-8", "abc\xff", "UTF-8"},
		{"nul byte", "ab\x00cd", "NUL"},
		{"too large", strings.Repeat("x", 17), "above the limit"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Parse(context.Background(), tt.content, format.Hints{}, parser.Options{})
			if !errors.Is(err, apperrors.ErrValidation) {
				t.Fatalf("Parse() error = %v, want ErrValidation", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to mention %q", err, tt.want)
			}
		})
	}

	if _, err := e.ParseReader(context.Background(), strings.NewReader(strings.Repeat("y", 100)), format.Hints{}, parser.Options{}); !errors.Is(err, apperrors.ErrValidation) {
		t.Errorf("ParseReader(oversize) error = %v", err)
	}
}

func TestParseUnknownFormat(t *testing.T) {
	_, err := newEngine(t).Parse(context.Background(), "text", format.Hints{Format: "rst"}, parser.Options{})
	if !errors.Is(err, apperrors.ErrFormat) {
		t.Errorf("Parse() error = %v, want ErrFormat", err)
	}
}

func TestParseDefaults(t *testing.T) {
	e, err := New(Options{
		Logger:        logging.Discard(),
		ParseDefaults: parser.Options{MaxDepth: 1, Strict: true},
	})
	if err != nil {
		t.Fatal(err)
	}

	res, err := e.Parse(context.Background(), `{"a":{"b":1}}`, format.Hints{Format: "json"}, parser.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Tree.Children[0].Content; got != `{"b":1}` {
		t.Errorf("default max depth not applied: %q", got)
	}

	_, err = e.Parse(context.Background(), `{"a":`, format.Hints{Format: "json"}, parser.Options{})
	if !errors.Is(err, apperrors.ErrParse) {
		t.Errorf("default strict not applied: %v", err)
	}
}

func TestDetect(t *testing.T) {
	res, err := newEngine(t).Detect(`{"x":1}`, format.Hints{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Format != format.JSON || res.Confidence <= 0.9 {
		t.Errorf("Detect() = %+v", res)
	}
	for _, alt := range res.Alternatives {
		if alt.Format == format.JSON {
			t.Errorf("json listed as its own alternative")
		}
	}
}

func TestFromConfigPlugins(t *testing.T) {
	dir := t.TempDir()
	script := `function parse(content) { return { title: "Lines", children: content.split("\n").map(function (l) { return { title: l }; }) }; }`
	if err := os.WriteFile(filepath.Join(dir, "lines.js"), []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := config.DefaultConfig()
	cfg.Plugins.BuiltinExamples = false
	cfg.Plugins.Scripts = []config.ScriptPlugin{{
		PluginEntry: config.PluginEntry{
			Format: "lines", Name: "lines", Version: "1.0.0", Author: "tests", Description: "one node per line",
			Extensions: []string{".lines"},
		},
		Path: filepath.Join(dir, "lines.js"),
	}}

	e, err := FromConfig(cfg, logging.Discard())
	if err != nil {
		t.Fatalf("FromConfig() error = %v", err)
	}
	if infos := e.Plugins().List(); len(infos) != 1 || infos[0].FormatID != "lines" {
		t.Fatalf("plugins = %+v", infos)
	}

	res, err := e.Parse(context.Background(), "a\nb", format.Hints{Filename: "x.lines"}, parser.Options{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if res.Parser.Name != "lines" || len(res.Tree.Children) != 2 {
		t.Errorf("result = %s via %s", res.Tree, res.Parser.Name)
	}
	if m, _ := e.Plugins().Metrics("lines"); m.Invocations != 1 {
		t.Errorf("invocations = %d, want 1", m.Invocations)
	}

	cfg.Plugins.Scripts[0].Path = filepath.Join(dir, "missing.js")
	if _, err := FromConfig(cfg, logging.Discard()); err == nil {
		t.Error("FromConfig() accepted a missing script")
	}
}

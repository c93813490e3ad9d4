package plugin

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/itsmostafa/normtree/internal/errors"
	"github.com/itsmostafa/normtree/internal/format"
	"github.com/itsmostafa/normtree/internal/node"
	"github.com/itsmostafa/normtree/internal/parser"
)

const listScript = `
function canParse(content, hints) {
	return content.indexOf("- ") === 0 ? 0.9 : 0;
}

function parse(content, options) {
	if (content.indexOf("!") >= 0) {
		throw new Error("unexpected bang");
	}
	print("parsing", content.length, "bytes");
	var items = content.split("\n").filter(function (l) { return l.length > 0; });
	return {
		title: "List",
		metadata: { items: items.length, strict: options.strict },
		children: items.map(function (l) {
			return { title: l.replace(/^- /, ""), content: l };
		}),
	};
}

function validate(content) {
	if (content.indexOf("!") >= 0) {
		return { valid: false, errors: ["bang found"] };
	}
	return { valid: true, errors: [] };
}
`

func listSpec() ScriptSpec {
	return ScriptSpec{
		Spec: Spec{
			Metadata:   Metadata{Name: "list", Version: "0.1.0", Author: "tests", Description: "dash lists"},
			Format:     "list",
			Extensions: []string{".lst"},
		},
		Source: listScript,
	}
}

func TestCompileScript(t *testing.T) {
	tests := []struct {
		name   string
		source string
		want   apperrors.PluginKind
	}{
		{"syntax error", "function parse( {", apperrors.KindInvalidParser},
		{"missing parse", "function other() {}", apperrors.KindInvalidParser},
		{"throws on load", "throw new Error('no')", apperrors.KindInvalidParser},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := listSpec()
			spec.Source = tt.source
			_, err := CompileScript(spec)
			if got := pluginKind(err); got != tt.want {
				t.Errorf("kind = %q, want %q (err %v)", got, tt.want, err)
			}
		})
	}

	spec := listSpec()
	spec.Format = ""
	if _, err := CompileScript(spec); pluginKind(err) != apperrors.KindInvalidMetadata {
		t.Errorf("missing format error = %v", err)
	}
}

func TestScriptParse(t *testing.T) {
	s, err := CompileScript(listSpec())
	if err != nil {
		t.Fatalf("CompileScript() error = %v", err)
	}
	m := quietManager(DefaultConfig())
	if err := m.Register("list", s.Module()); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	tree, err := m.Parse(context.Background(), "list", "- a\n- b\n", parser.Options{Strict: true})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if tree.Title != "List" || len(tree.Children) != 2 {
		t.Fatalf("tree = %s", tree)
	}
	if got := tree.Children[1].Title; got != "b" {
		t.Errorf("second child = %q, want b", got)
	}
	if tree.Children[0].ContentType != node.ContentPlain {
		t.Errorf("content type = %q", tree.Children[0].ContentType)
	}
	if got, _ := tree.Meta("strict"); got != true {
		t.Errorf("strict metadata = %v", got)
	}
	if tree.ParseInfo.Parser != "list" || tree.Children[0].ID != "0001" {
		t.Errorf("tree not stamped: %+v", tree.ParseInfo)
	}

	if infos := m.List(); len(infos) != 1 || infos[0].Kind != KindScript {
		t.Errorf("List() = %+v", infos)
	}
}

func TestScriptExceptions(t *testing.T) {
	s, err := CompileScript(listSpec())
	if err != nil {
		t.Fatal(err)
	}

	tree, err := s.Parse(context.Background(), "- a!", parser.Options{})
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if tree.ContentType != node.ContentError {
		t.Errorf("content type = %q, want error node", tree.ContentType)
	}

	_, err = s.Parse(context.Background(), "- a!", parser.Options{Strict: true})
	if !errors.Is(err, apperrors.ErrParse) {
		t.Errorf("strict Parse() error = %v, want ErrParse", err)
	}

	tree, err = s.Parse(context.Background(), "  ", parser.Options{})
	if err != nil || tree.Title != node.EmptyTitle {
		t.Errorf("empty Parse() = %v, %v", tree, err)
	}
}

func TestScriptProbes(t *testing.T) {
	s, err := CompileScript(listSpec())
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		content string
		hints   format.Hints
		want    float64
	}{
		{"script score", "- a", format.Hints{}, 0.9},
		{"no match", "plain", format.Hints{}, 0},
		{"extension hint", "plain", format.Hints{Filename: "x.lst"}, 0.5},
		{"format hint", "plain", format.Hints{Format: "LIST"}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.CanParse(tt.content, tt.hints); got != tt.want {
				t.Errorf("CanParse() = %v, want %v", got, tt.want)
			}
		})
	}

	if res := s.Validate("- ok"); !res.Valid {
		t.Errorf("Validate(ok) = %+v", res)
	}
	res := s.Validate("- no!")
	if res.Valid || len(res.Errors) != 1 || res.Errors[0] != "bang found" {
		t.Errorf("Validate(bang) = %+v", res)
	}
}

func TestScriptTimeout(t *testing.T) {
	spec := listSpec()
	spec.Source = `function parse(content) { while (true) {} }`
	s, err := CompileScript(spec)
	if err != nil {
		t.Fatal(err)
	}
	m := quietManager(Config{MaxParseTime: 100 * time.Millisecond})
	if err := m.Register("list", s.Module()); err != nil {
		t.Fatal(err)
	}

	_, err = m.Parse(context.Background(), "list", "- a", parser.Options{})
	if !errors.Is(err, apperrors.ErrPluginTimeout) {
		t.Fatalf("Parse() error = %v, want ErrPluginTimeout", err)
	}
	metrics, _ := m.Metrics("list")
	if metrics.Errors != 1 || metrics.AverageDuration <= 0 || metrics.AverageDuration > 5*time.Second {
		t.Errorf("metrics = %+v", metrics)
	}
}

func TestScriptInvalidResult(t *testing.T) {
	spec := listSpec()
	spec.Source = `function parse(content) { return content === "none" ? undefined : {children: 3}; }`
	s, err := CompileScript(spec)
	if err != nil {
		t.Fatal(err)
	}
	for _, content := range []string{"none", "shape"} {
		_, err := s.Parse(context.Background(), content, parser.Options{})
		if got := pluginKind(err); got != apperrors.KindInvalidResult {
			t.Errorf("Parse(%q) kind = %q (err %v)", content, got, err)
		}
	}
}

func TestScriptNodeLimit(t *testing.T) {
	spec := listSpec()
	spec.Source = `function parse(content) {
	var children = [];
	for (var i = 0; i < 5000; i++) { children.push({title: "n" + i}); }
	return {title: "Wide", children: children};
}`
	s, err := CompileScript(spec)
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.Parse(context.Background(), "- a", parser.Options{MaxNodes: 100})
	if got := pluginKind(err); got != apperrors.KindNodeCount {
		t.Fatalf("Parse() kind = %q (err %v), want %q", got, err, apperrors.KindNodeCount)
	}

	m := quietManager(Config{MaxNodeCount: 100})
	if err := m.Register("list", s.Module()); err != nil {
		t.Fatal(err)
	}
	_, err = m.Parse(context.Background(), "list", "- a", parser.Options{})
	if !errors.Is(err, apperrors.ErrNodeCount) {
		t.Fatalf("manager Parse() error = %v, want ErrNodeCount", err)
	}
	if metrics, _ := m.Metrics("list"); metrics.Errors != 1 {
		t.Errorf("errors = %d, want 1", metrics.Errors)
	}
}

func TestLoadScript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.js")
	if err := os.WriteFile(path, []byte(listScript), 0o644); err != nil {
		t.Fatal(err)
	}
	spec := listSpec()
	spec.Source = ""
	s, err := LoadScript(path, spec)
	if err != nil {
		t.Fatalf("LoadScript() error = %v", err)
	}
	if s.Name() != "list" || s.Describe().Version != "0.1.0" {
		t.Errorf("descriptor = %+v", s.Describe())
	}

	if _, err := LoadScript(filepath.Join(t.TempDir(), "missing.js"), spec); err == nil {
		t.Error("LoadScript(missing) succeeded")
	}
}

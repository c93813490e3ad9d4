package plugin

import (
	"errors"
	"strings"
	"testing"

	"github.com/itsmostafa/normtree/internal/node"
)

func TestFromValue(t *testing.T) {
	tree, err := FromValue(map[string]any{
		"id":          "ignored",
		"title":       "Root",
		"contentType": "markdown",
		"content":     "# Root",
		"lang":        "en",
		"metadata":    map[string]any{"rows": int64(3)},
		"children": []any{
			map[string]any{"title": float64(42), "content": []any{"a", "b"}},
			map[string]any{"title": "leaf", "sourceFormat": "csv"},
		},
	}, 0)
	if err != nil {
		t.Fatalf("FromValue() error = %v", err)
	}
	if tree.ID != "" || tree.Title != "Root" || tree.ContentType != node.ContentMarkdown {
		t.Errorf("root = %+v", tree)
	}
	if got, _ := tree.Meta("lang"); got != "en" {
		t.Errorf("unknown key not kept as metadata: %v", got)
	}
	if got, _ := tree.Meta("rows"); got != int64(3) {
		t.Errorf("rows = %v", got)
	}

	first := tree.Children[0]
	if first.Title != "42" {
		t.Errorf("numeric title = %q", first.Title)
	}
	if first.Content != `["a","b"]` || first.ContentType != node.ContentJSON {
		t.Errorf("array content = %q (%s)", first.Content, first.ContentType)
	}
	if tree.Children[1].SourceFormat != "csv" {
		t.Errorf("source format = %q", tree.Children[1].SourceFormat)
	}
}

func TestFromValueErrors(t *testing.T) {
	deep := map[string]any{"title": "x"}
	for range maxResultDepth + 1 {
		deep = map[string]any{"title": "x", "children": []any{deep}}
	}

	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"not an object", []any{1}, "expected an object"},
		{"bad children", map[string]any{"children": "x"}, "root.children"},
		{"bad metadata", map[string]any{"metadata": 1}, "root.metadata"},
		{"bad grandchild", map[string]any{"children": []any{map[string]any{"children": []any{"x"}}}}, "root.children[0].children[0]"},
		{"too deep", deep, "nested deeper"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromValue(tt.value, 0)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("FromValue() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestFromValueKeepsEmptyTitle(t *testing.T) {
	tree, err := FromValue(map[string]any{"content": "x"}, 0)
	if err != nil {
		t.Fatal(err)
	}
	if tree.Title != "" {
		t.Errorf("title = %q, want empty for the manager to reject", tree.Title)
	}
}

func TestFromValueNodeLimit(t *testing.T) {
	children := make([]any, 1000)
	for i := range children {
		children[i] = map[string]any{"title": "row"}
	}
	wide := map[string]any{"title": "Rows", "children": children}

	tests := []struct {
		name     string
		maxNodes int
		wantErr  bool
	}{
		{"unlimited", 0, false},
		{"exact fit", 1001, false},
		{"one over", 1000, true},
		{"far over", 10, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tree, err := FromValue(wide, tt.maxNodes)
			if tt.wantErr {
				if !errors.Is(err, errTooManyNodes) {
					t.Fatalf("FromValue() error = %v, want errTooManyNodes", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("FromValue() error = %v", err)
			}
			if len(tree.Children) != 1000 {
				t.Errorf("children = %d, want 1000", len(tree.Children))
			}
		})
	}
}

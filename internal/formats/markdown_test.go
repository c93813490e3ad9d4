package formats

import (
	"strings"
	"testing"

	"github.com/itsmostafa/normtree/internal/format"
)

func TestMarkdownHeadingHierarchy(t *testing.T) {
	root := mustParse(t, NewMarkdown(), "# A\n## B\n### C\n## D")

	if root.Title != "A" {
		t.Fatalf("root title = %q, want A", root.Title)
	}
	if got := titles(root.Children); !equalStrings(got, []string{"B", "D"}) {
		t.Fatalf("root children = %v, want [B D]", got)
	}
	b := root.Children[0]
	if got := titles(b.Children); !equalStrings(got, []string{"C"}) {
		t.Errorf("B children = %v, want [C]", got)
	}
	if len(root.Children[1].Children) != 0 {
		t.Errorf("D should be a leaf")
	}
	if level, _ := b.Meta("level"); level != 2 {
		t.Errorf("B level = %v, want 2", level)
	}
	if line, _ := root.Children[1].Meta("line"); line != 4 {
		t.Errorf("D line = %v, want 4", line)
	}
}

func TestMarkdownContentAttachment(t *testing.T) {
	content := "Intro text\n\n## One\nfirst body\n\n## Two\nsecond body\n"
	root := mustParse(t, NewMarkdown(), content)

	if root.Title != DocumentTitle {
		t.Errorf("root title = %q, want %q", root.Title, DocumentTitle)
	}
	if root.Content != "Intro text" {
		t.Errorf("root content = %q", root.Content)
	}
	if got := titles(root.Children); !equalStrings(got, []string{"One", "Two"}) {
		t.Fatalf("children = %v", got)
	}
	if root.Children[0].Content != "first body" {
		t.Errorf("One content = %q", root.Children[0].Content)
	}
	if root.Children[1].Content != "second body" {
		t.Errorf("Two content = %q", root.Children[1].Content)
	}
}

func TestMarkdownSiblingH1s(t *testing.T) {
	root := mustParse(t, NewMarkdown(), "# First\ntext\n# Second\nmore")
	if root.Title != "First" {
		t.Errorf("root title = %q", root.Title)
	}
	if got := titles(root.Children); !equalStrings(got, []string{"Second"}) {
		t.Errorf("children = %v, want [Second]", got)
	}
}

func TestMarkdownSetextHeadings(t *testing.T) {
	content := "Title\n=====\n\nIntro\n\nSub\n---\nbody"
	root := mustParse(t, NewMarkdown(), content)

	if root.Title != "Title" {
		t.Errorf("root title = %q, want Title", root.Title)
	}
	if root.Content != "Intro" {
		t.Errorf("root content = %q, want Intro", root.Content)
	}
	if len(root.Children) != 1 || root.Children[0].Title != "Sub" {
		t.Fatalf("children = %v, want [Sub]", titles(root.Children))
	}
	if root.Children[0].Content != "body" {
		t.Errorf("Sub content = %q", root.Children[0].Content)
	}
}

func TestMarkdownCodeFences(t *testing.T) {
	content := "# A\n```\n# not a heading\n```\ntail"
	root := mustParse(t, NewMarkdown(), content)

	if len(root.Children) != 0 {
		t.Errorf("fenced heading became a node: %v", titles(root.Children))
	}
	if !strings.Contains(root.Content, "# not a heading") {
		t.Errorf("fenced text missing from content: %q", root.Content)
	}
}

func TestMarkdownClosingHashes(t *testing.T) {
	root := mustParse(t, NewMarkdown(), "# Title ##\n## Part #\n")
	if root.Title != "Title" {
		t.Errorf("root title = %q", root.Title)
	}
	if len(root.Children) != 1 || root.Children[0].Title != "Part" {
		t.Errorf("children = %v", titles(root.Children))
	}
}

func TestMarkdownFrontmatter(t *testing.T) {
	content := "---\ntitle: \"Hello\"\nauthor: me\n---\n# Top\ntext"
	root := mustParse(t, NewMarkdown(), content)

	if root.Title != "Top" {
		t.Errorf("root title = %q", root.Title)
	}
	raw, ok := root.Meta("frontmatter")
	if !ok {
		t.Fatal("expected frontmatter metadata")
	}
	fm := raw.(map[string]any)
	if fm["title"] != "Hello" || fm["author"] != "me" {
		t.Errorf("frontmatter = %v", fm)
	}
	want := "---\ntitle: Hello\nauthor: me\n---\n\ntext"
	if root.Content != want {
		t.Errorf("root content = %q, want %q", root.Content, want)
	}
}

func TestMarkdownValidate(t *testing.T) {
	p := NewMarkdown()
	tests := []struct {
		name    string
		content string
		valid   bool
	}{
		{"plain", "# A\ntext", true},
		{"closed fence", "```\ncode\n```", true},
		{"open fence", "# A\n```\ncode", false},
		{"open frontmatter", "---\ntitle: x\n# A", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := p.Validate(tt.content)
			if res.Valid != tt.valid {
				t.Errorf("Validate(%q).Valid = %v, want %v (errors %v)", tt.content, res.Valid, tt.valid, res.Errors)
			}
		})
	}
}

func TestMarkdownCanParse(t *testing.T) {
	p := NewMarkdown()
	if got := p.CanParse("anything at all", format.Hints{}); got < minMarkdownScore {
		t.Errorf("CanParse() = %v, want at least %v", got, minMarkdownScore)
	}
	if got := p.CanParse("plain", format.Hints{Extension: ".md"}); got < 0.5 {
		t.Errorf("CanParse() with .md hint = %v, want >= 0.5", got)
	}
	if got := p.CanParse("# Title\n\n## Section\n\n### More\n\nText with a [link](http://x).", format.Hints{}); got <= 0.5 {
		t.Errorf("CanParse() on markdown = %v, want > 0.5", got)
	}
}

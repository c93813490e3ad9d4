package detect

import (
	"strings"
	"testing"

	"github.com/itsmostafa/normtree/internal/format"
)

func TestDetectHints(t *testing.T) {
	tests := []struct {
		name       string
		hints      format.Hints
		wantFormat string
		wantConf   float64
		wantSource Source
	}{
		{"format hint", format.Hints{Format: "YAML"}, "yaml", 1.0, SourceHint},
		{"mime hint", format.Hints{MIMEType: "application/json"}, "json", 0.9, SourceMIMEType},
		{"filename hint", format.Hints{Filename: "notes.md"}, "markdown", 0.8, SourceFilename},
		{"extension hint", format.Hints{Extension: ".xml"}, "xml", 0.8, SourceFilename},
		{"format beats mime", format.Hints{Format: "html", MIMEType: "application/json"}, "html", 1.0, SourceHint},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect("# not json", tt.hints)
			if got.Format != tt.wantFormat {
				t.Errorf("format = %q, want %q", got.Format, tt.wantFormat)
			}
			if got.Confidence != tt.wantConf {
				t.Errorf("confidence = %v, want %v", got.Confidence, tt.wantConf)
			}
			if got.Source != tt.wantSource {
				t.Errorf("source = %q, want %q", got.Source, tt.wantSource)
			}
		})
	}
}

func TestDetectUnknownMIMEFallsThrough(t *testing.T) {
	got := Detect(`{"x":1}`, format.Hints{MIMEType: "application/pdf"})
	if got.Source != SourceContent || got.Format != format.JSON {
		t.Errorf("got %+v, want json from content", got)
	}
}

func TestDetectSmallJSON(t *testing.T) {
	got := Detect(`{"x":1}`, format.Hints{})
	if got.Format != format.JSON {
		t.Fatalf("format = %q, want json", got.Format)
	}
	if got.Confidence <= 0.9 {
		t.Errorf("confidence = %v, want > 0.9", got.Confidence)
	}
	for _, alt := range got.Alternatives {
		if alt.Format == format.JSON {
			t.Error("json must not appear in alternatives")
		}
	}
	if !got.Reliable() {
		t.Error("expected reliable detection")
	}
}

func TestDetectContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "markdown headings",
			content: "# A\n## B\n### C\n## D",
			want:    format.Markdown,
		},
		{
			name:    "markdown prose",
			content: "# Guide\n\nSome **bold** text and a [link](https://example.com).\n\n- one\n- two\n",
			want:    format.Markdown,
		},
		{
			name:    "yaml tree",
			content: "title: Root\nchildren:\n  - title: A\n",
			want:    format.YAML,
		},
		{
			name:    "html page",
			content: "<!DOCTYPE html><html><head><title>T</title></head><body><h1>Hi</h1><p>text</p></body></html>",
			want:    format.HTML,
		},
		{
			name:    "xml document",
			content: "<?xml version=\"1.0\"?>\n<catalog xmlns:dc=\"http://purl.org/dc/elements/1.1/\"><dc:title>Books</dc:title></catalog>",
			want:    format.XML,
		},
		{
			name:    "toml document",
			content: "title = \"demo\"\n\n[server]\nport = 8080\n\n[[servers]]\nname = \"a\"\n",
			want:    format.TOML,
		},
		{
			name:    "json array",
			content: `[{"id": 1, "name": "first"}, {"id": 2, "name": "second"}]`,
			want:    format.JSON,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Detect(tt.content, format.Hints{})
			if got.Format != tt.want {
				t.Errorf("format = %q (%.2f), want %q; alternatives %+v", got.Format, got.Confidence, tt.want, got.Alternatives)
			}
			if got.Source != SourceContent {
				t.Errorf("source = %q, want content", got.Source)
			}
			if got.Confidence > maxConfidence {
				t.Errorf("confidence %v exceeds cap", got.Confidence)
			}
			if len(got.Alternatives) > 2 {
				t.Errorf("expected at most 2 alternatives, got %d", len(got.Alternatives))
			}
		})
	}
}

func TestDetectDefaultsToPlain(t *testing.T) {
	got := Detect("just some words", format.Hints{})
	if got.Format != format.Plain || got.Confidence != 0.3 || got.Source != SourceDefault {
		t.Errorf("got %+v, want plain/0.3/default", got)
	}
	if got.Reliable() {
		t.Error("default detection must not be reliable")
	}
}

func TestDetectIdempotent(t *testing.T) {
	inputs := []string{
		`{"a":1,"b":[2,3]}`,
		"# Title\n\ntext",
		"<root><a/></root>",
		"key: value\nother: 2\n",
		"",
	}
	d := New()
	for _, in := range inputs {
		first := d.Detect(in, format.Hints{})
		for range 5 {
			again := d.Detect(in, format.Hints{})
			if again.Format != first.Format || again.Confidence != first.Confidence {
				t.Errorf("Detect(%q) not idempotent: %+v vs %+v", in, first, again)
			}
		}
	}
}

func TestScoreAdjustments(t *testing.T) {
	valid := Score(format.JSON, `{"name": "value", "list": [1, 2, 3], "nested": {"ok": true}}`)
	invalid := Score(format.JSON, `{"name": "value", "list": [1, 2, 3], "nested": {"ok": true}`)
	if valid <= invalid {
		t.Errorf("valid JSON score %v should exceed invalid %v", valid, invalid)
	}

	body := strings.Repeat("plain sentence without structure. ", 4)
	short := Score(format.Markdown, "# Heading")
	long := Score(format.Markdown, "# Heading\n\n"+body)
	if short >= long {
		t.Errorf("short content score %v should be scaled below %v", short, long)
	}

	if Score("unknown", "anything") != 0 {
		t.Error("unknown formats score 0")
	}
}

func TestTagsBalanced(t *testing.T) {
	if !tagsBalanced("<div><p>a</p></div>") {
		t.Error("expected balanced")
	}
	if tagsBalanced("<div><p><span><br><img>a</div>") {
		t.Error("expected unbalanced")
	}
}

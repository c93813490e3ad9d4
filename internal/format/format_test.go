package format

import (
	"slices"
	"testing"
)

func TestFromMIME(t *testing.T) {
	tests := []struct {
		mime string
		want string
		ok   bool
	}{
		{"application/json", JSON, true},
		{"Application/JSON; charset=utf-8", JSON, true},
		{"text/markdown", Markdown, true},
		{"text/x-yaml", YAML, true},
		{"application/xhtml+xml", HTML, true},
		{"image/svg+xml", XML, true},
		{"application/pdf", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.mime, func(t *testing.T) {
			got, ok := FromMIME(tt.mime)
			if got != tt.want || ok != tt.ok {
				t.Errorf("FromMIME(%q) = (%q, %v), want (%q, %v)", tt.mime, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestFromFilename(t *testing.T) {
	tests := []struct {
		name string
		want string
		ok   bool
	}{
		{"README.md", Markdown, true},
		{"config.YML", YAML, true},
		{"/tmp/data.json", JSON, true},
		{"index.htm", HTML, true},
		{"feed.rss", XML, true},
		{"Cargo.toml", TOML, true},
		{"photo.png", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := FromFilename(tt.name)
			if got != tt.want || ok != tt.ok {
				t.Errorf("FromFilename(%q) = (%q, %v), want (%q, %v)", tt.name, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestHintsExt(t *testing.T) {
	tests := []struct {
		hints Hints
		want  string
	}{
		{Hints{Filename: "notes.MD"}, "md"},
		{Hints{Extension: ".Json"}, "json"},
		{Hints{Filename: "a.yaml", Extension: "toml"}, "toml"},
		{Hints{}, ""},
	}
	for _, tt := range tests {
		if got := tt.hints.Ext(); got != tt.want {
			t.Errorf("%+v.Ext() = %q, want %q", tt.hints, got, tt.want)
		}
	}
}

func TestFromHintsPrefersExtension(t *testing.T) {
	got, ok := FromHints(Hints{Filename: "data.json", Extension: "yaml"})
	if !ok || got != YAML {
		t.Errorf("FromHints = (%q, %v), want yaml", got, ok)
	}
}

func TestReverseTables(t *testing.T) {
	if !slices.Contains(MIMETypesFor(JSON), "application/json") {
		t.Error("expected application/json for json")
	}
	if !slices.Contains(ExtensionsFor(Markdown), "md") {
		t.Error("expected md for markdown")
	}
	if !(Hints{}).IsZero() || (Hints{Format: "json"}).IsZero() {
		t.Error("IsZero mismatch")
	}
}

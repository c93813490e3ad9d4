// Package format holds format identifiers, caller hints and the static
// MIME-type and file-extension tables shared by the detector and registry.
package format

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/go-enry/go-enry/v2"
)

// Format identifiers for the built-in and example plugin formats.
const (
	Markdown = "markdown"
	YAML     = "yaml"
	JSON     = "json"
	HTML     = "html"
	XML      = "xml"
	CSV      = "csv"
	TOML     = "toml"
	INI      = "ini"
	Plain    = "plain"
)

// Builtin lists the formats handled by the built-in tree builders.
var Builtin = []string{Markdown, YAML, JSON, HTML, XML}

// Hints is caller-supplied out-of-band information about the content.
// Every field is optional.
type Hints struct {
	Format    string `json:"format,omitempty"`
	MIMEType  string `json:"mimeType,omitempty"`
	Filename  string `json:"filename,omitempty"`
	Extension string `json:"extension,omitempty"`
}

// IsZero reports whether no hint is set.
func (h Hints) IsZero() bool {
	return h == Hints{}
}

// Ext returns the normalized extension hint: lowercase, no leading dot.
// An explicit Extension wins over the one derived from Filename.
func (h Hints) Ext() string {
	ext := h.Extension
	if ext == "" && h.Filename != "" {
		ext = filepath.Ext(h.Filename)
	}
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

var mimeTypes = map[string]string{
	"text/markdown":                    Markdown,
	"text/x-markdown":                  Markdown,
	"application/x-yaml":               YAML,
	"application/yaml":                 YAML,
	"text/yaml":                        YAML,
	"text/x-yaml":                      YAML,
	"application/json":                 JSON,
	"text/json":                        JSON,
	"application/ld+json":              JSON,
	"text/html":                        HTML,
	"application/xhtml+xml":            HTML,
	"application/xml":                  XML,
	"text/xml":                         XML,
	"application/rss+xml":              XML,
	"application/atom+xml":             XML,
	"image/svg+xml":                    XML,
	"text/csv":                         CSV,
	"application/toml":                 TOML,
	"text/x-toml":                      TOML,
	"text/plain":                       Plain,
	"application/x-ini":                INI,
	"text/x-ini":                       INI,
	"application/x-wine-extension-ini": INI,
}

var extensions = map[string]string{
	"md":       Markdown,
	"markdown": Markdown,
	"mdown":    Markdown,
	"mkd":      Markdown,
	"yaml":     YAML,
	"yml":      YAML,
	"json":     JSON,
	"jsonld":   JSON,
	"html":     HTML,
	"htm":      HTML,
	"xhtml":    HTML,
	"xml":      XML,
	"xsd":      XML,
	"svg":      XML,
	"rss":      XML,
	"atom":     XML,
	"csv":      CSV,
	"toml":     TOML,
	"ini":      INI,
	"cfg":      INI,
	"txt":      Plain,
	"text":     Plain,
}

// enryLanguages maps linguist language names onto format identifiers.
var enryLanguages = map[string]string{
	"Markdown":           Markdown,
	"YAML":               YAML,
	"JSON":               JSON,
	"JSON5":              JSON,
	"JSON with Comments": JSON,
	"HTML":               HTML,
	"XML":                XML,
	"SVG":                XML,
	"XML Property List":  XML,
	"CSV":                CSV,
	"TOML":               TOML,
	"INI":                INI,
	"Text":               Plain,
}

// FromMIME maps a MIME type to a format. Parameters such as charset are
// ignored.
func FromMIME(mime string) (string, bool) {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	f, ok := mimeTypes[mime]
	if !ok || f == "" {
		return "", false
	}
	return f, true
}

// FromExtension maps a file extension (with or without the dot) to a format.
func FromExtension(ext string) (string, bool) {
	ext = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
	if ext == "" {
		return "", false
	}
	f, ok := extensions[ext]
	return f, ok
}

// FromFilename maps a filename to a format using the static extension
// table first and linguist's extension data second.
func FromFilename(name string) (string, bool) {
	if name == "" {
		return "", false
	}
	if f, ok := FromExtension(filepath.Ext(name)); ok {
		return f, true
	}
	base := filepath.Base(name)
	if lang, safe := enry.GetLanguageByExtension(base); safe && lang != "" {
		if f, ok := enryLanguages[lang]; ok {
			return f, true
		}
	}
	if lang, safe := enry.GetLanguageByFilename(base); safe && lang != "" {
		if f, ok := enryLanguages[lang]; ok {
			return f, true
		}
	}
	return "", false
}

// FromHints resolves the extension-or-filename hint to a format.
func FromHints(h Hints) (string, bool) {
	if h.Extension != "" {
		if f, ok := FromExtension(h.Extension); ok {
			return f, true
		}
	}
	return FromFilename(h.Filename)
}

// MIMETypesFor returns the MIME types statically mapped to a format.
func MIMETypesFor(f string) []string {
	var out []string
	for mime, target := range mimeTypes {
		if target == f {
			out = append(out, mime)
		}
	}
	slices.Sort(out)
	return out
}

// ExtensionsFor returns the extensions statically mapped to a format.
func ExtensionsFor(f string) []string {
	var out []string
	for ext, target := range extensions {
		if target == f {
			out = append(out, ext)
		}
	}
	slices.Sort(out)
	return out
}

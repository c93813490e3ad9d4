package detect

import (
	"regexp"

	"github.com/itsmostafa/normtree/internal/format"
)

// Signature is one weighted pattern rule for a format.
type Signature struct {
	Name       string
	Pattern    *regexp.Regexp
	Confidence float64
	Weight     float64
}

func sig(name, pattern string, confidence, weight float64) Signature {
	return Signature{
		Name:       name,
		Pattern:    regexp.MustCompile(pattern),
		Confidence: confidence,
		Weight:     weight,
	}
}

// formatOrder fixes the evaluation order, which also breaks confidence ties.
var formatOrder = []string{
	format.JSON,
	format.XML,
	format.HTML,
	format.YAML,
	format.TOML,
	format.Markdown,
	format.CSV,
	format.INI,
}

var signatures = map[string][]Signature{
	format.JSON: {
		sig("open-brace", `^\s*[\{\[]`, 0.9, 2),
		sig("close-brace", `[\}\]]\s*$`, 0.9, 2),
		sig("quoted-key", `"[^"\n]*"\s*:`, 0.95, 3),
		sig("value", `:\s*(-?\d|true|false|null|"|\{|\[)`, 0.8, 1),
	},
	format.XML: {
		sig("declaration", `^\s*<\?xml\s`, 0.98, 3),
		sig("root-element", `^\s*<[A-Za-z_][\w.:-]*[\s/>]`, 0.6, 1),
		sig("namespace", `\sxmlns(:[\w.-]+)?\s*=`, 0.85, 2),
		sig("prefixed-element", `<[A-Za-z_][\w.-]*:[\w.-]+[\s/>]`, 0.8, 2),
		sig("cdata", `<!\[CDATA\[`, 0.9, 2),
		sig("self-closing", `<[A-Za-z_][\w.:-]*(\s[^<>]*)?/>`, 0.6, 1),
		sig("closing-tag", `</[A-Za-z_][\w.:-]*>`, 0.5, 1),
	},
	format.HTML: {
		sig("doctype", `(?i)<!doctype\s+html`, 0.98, 3),
		sig("html-tag", `(?i)<html[\s>]`, 0.95, 3),
		sig("head-body", `(?i)<(head|body)[\s>]`, 0.9, 2),
		sig("common-tag", `(?i)<(div|p|span|a|h[1-6]|ul|ol|li|table|section|article|nav|header|footer|main)[\s>]`, 0.8, 2),
		sig("closing-tag", `</[a-zA-Z][\w-]*>`, 0.5, 1),
	},
	format.YAML: {
		sig("document-start", `(?m)^---\s*$`, 0.7, 1),
		sig("key-value", `(?m)^[A-Za-z_][\w-]*:\s+\S`, 0.7, 2),
		sig("nested-key", `(?m)^[A-Za-z_][\w-]*:\s*$`, 0.75, 2),
		sig("indented-key", `(?m)^\s{2,}[A-Za-z_][\w-]*:(\s|$)`, 0.7, 2),
		sig("list-item", `(?m)^\s*-\s+[\w"']`, 0.5, 1),
		sig("tree-keys", `(?m)^\s*-?\s*(title|children):`, 0.85, 2),
	},
	format.TOML: {
		sig("array-table", `(?m)^\[\[[A-Za-z_][\w.-]*\]\]\s*$`, 0.95, 3),
		sig("table", `(?m)^\[[A-Za-z_][\w.-]*\]\s*$`, 0.75, 2),
		sig("typed-assignment", `(?m)^[A-Za-z_][\w.-]*\s*=\s*("|'|-?\d|true\b|false\b|\[|\{)`, 0.8, 2),
	},
	format.Markdown: {
		sig("atx-heading", `(?m)^#{1,6}\s+\S`, 0.9, 3),
		sig("setext-heading", `(?m)^[^\n]*\S[^\n]*\n(=+|-+)[ \t]*$`, 0.8, 2),
		sig("link", `\[[^\]\n]+\]\([^)\n]+\)`, 0.8, 2),
		sig("code-fence", "(?m)^(```|~~~)", 0.8, 2),
		sig("emphasis", `\*\*[^*\n]+\*\*|__[^_\n]+__`, 0.6, 1),
		sig("bullet-list", `(?m)^\s*[-*+]\s+\S`, 0.5, 1),
		sig("ordered-list", `(?m)^\s*\d+\.\s+\S`, 0.5, 1),
		sig("blockquote", `(?m)^>\s`, 0.6, 1),
	},
	format.CSV: {
		sig("delimited-row", `(?m)^[^,\n]*(,[^,\n]*){2,}$`, 0.6, 2),
		sig("quoted-field", `(?m)(^|,)"[^"\n]*"(,|$)`, 0.55, 1),
	},
	format.INI: {
		sig("section", `(?m)^\[[^\]\n]+\]\s*$`, 0.7, 2),
		sig("assignment", `(?m)^[\w.-]+\s*=\s*[^"'\s\[{\d]`, 0.6, 2),
		sig("comment", `(?m)^[;#]`, 0.5, 1),
	},
}

// Signatures returns the rule table for a format.
func Signatures(f string) []Signature {
	return signatures[f]
}

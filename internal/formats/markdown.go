package formats

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/itsmostafa/normtree/internal/detect"
	"github.com/itsmostafa/normtree/internal/format"
	"github.com/itsmostafa/normtree/internal/node"
	"github.com/itsmostafa/normtree/internal/parser"
)

var (
	headerPattern    = regexp.MustCompile(`^(#{1,6})\s+(.+)$`)
	closingHashes    = regexp.MustCompile(`\s+#+\s*$`)
	codeFencePattern = regexp.MustCompile("^(```|~~~)")
	setextH1Pattern  = regexp.MustCompile(`^ {0,3}=+\s*$`)
	setextH2Pattern  = regexp.MustCompile(`^ {0,3}-+\s*$`)
	blockLeadPattern = regexp.MustCompile(`^\s*([-*+]\s|\d+[.)]\s|>|    |\t)`)
)

// minMarkdownScore lets the Markdown parser accept any text, which makes it
// usable as the default parser.
const minMarkdownScore = 0.1

// Markdown builds a tree from ATX and Setext headings.
type Markdown struct {
	base
}

// NewMarkdown creates the Markdown parser.
func NewMarkdown() *Markdown {
	return &Markdown{base{
		name:        "markdown",
		formats:     []string{format.Markdown},
		mimeTypes:   []string{"text/markdown", "text/x-markdown"},
		description: "Heading hierarchy from ATX and Setext headings with optional frontmatter",
		caps:        parser.Capabilities{Validation: true, Metadata: true, PartialParse: true},
	}}
}

func (p *Markdown) CanParse(content string, hints format.Hints) float64 {
	score := detect.Score(format.Markdown, content)
	if p.hinted(hints) {
		score = max(score, 0.5)
	}
	return max(score, minMarkdownScore)
}

func (p *Markdown) Parse(ctx context.Context, content string, opts parser.Options) (*node.Node, error) {
	return p.run(ctx, content, opts, func() (*node.Node, error) {
		return buildMarkdown(content), nil
	})
}

// Validate reports structural problems a lenient parse papers over.
func (p *Markdown) Validate(content string) parser.ValidationResult {
	lines := splitLines(content)
	var errs []string

	body, fm := 0, frontmatterEnd(lines)
	if fm.open && fm.end < 0 {
		errs = append(errs, "line 1: frontmatter is not closed")
	} else if fm.end >= 0 {
		body = fm.end + 1
	}

	fence, fenceLine := "", 0
	for i := body; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if m := codeFencePattern.FindString(trimmed); m != "" {
			if fence == "" {
				fence, fenceLine = m, i+1
			} else if m == fence {
				fence = ""
			}
		}
	}
	if fence != "" {
		errs = append(errs, fmt.Sprintf("line %d: code fence is not closed", fenceLine))
	}

	if len(errs) > 0 {
		return parser.Invalid(errs...)
	}
	return parser.Valid()
}

type frontmatter struct {
	open bool
	end  int // index of the closing delimiter line, -1 when absent
}

func frontmatterEnd(lines []string) frontmatter {
	if len(lines) == 0 || strings.TrimRight(lines[0], " \t") != "---" {
		return frontmatter{end: -1}
	}
	for i := 1; i < len(lines); i++ {
		l := strings.TrimRight(lines[i], " \t")
		if l == "---" || l == "..." {
			return frontmatter{open: true, end: i}
		}
	}
	return frontmatter{open: true, end: -1}
}

// parseFrontmatter reads flat key: value lines. Nested structures are not
// supported; lines without a colon are ignored.
func parseFrontmatter(lines []string) ([]Field, map[string]any) {
	var fields []Field
	meta := make(map[string]any)
	for _, l := range lines {
		key, value, ok := strings.Cut(l, ":")
		key = strings.TrimSpace(key)
		if !ok || key == "" || strings.HasPrefix(key, "#") {
			continue
		}
		value = unquote(strings.TrimSpace(value))
		fields = append(fields, Field{Key: key, Value: String(value)})
		meta[key] = value
	}
	return fields, meta
}

func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

func splitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	return strings.Split(content, "\n")
}

func buildMarkdown(content string) *node.Node {
	lines := splitLines(content)
	o := newOutline(DocumentTitle, node.ContentMarkdown, true)

	// Strip a leading frontmatter block
	start := 0
	var fmFields []Field
	if fm := frontmatterEnd(lines); fm.end >= 0 {
		var meta map[string]any
		fmFields, meta = parseFrontmatter(lines[1:fm.end])
		if len(meta) > 0 {
			o.root.SetMeta("frontmatter", meta)
		}
		start = fm.end + 1
	}

	fence := ""
	for i := start; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		// Code fences are body text and never hold headings
		if m := codeFencePattern.FindString(trimmed); m != "" {
			if fence == "" {
				fence = m
			} else if m == fence {
				fence = ""
			}
			o.line(line)
			continue
		}
		if fence != "" {
			o.line(line)
			continue
		}

		if matches := headerPattern.FindStringSubmatch(trimmed); matches != nil && !strings.HasPrefix(line, "    ") {
			title := strings.TrimSpace(closingHashes.ReplaceAllString(matches[2], ""))
			if title == "" {
				title = strings.TrimSpace(matches[2])
			}
			o.open(len(matches[1]), title, map[string]any{"level": len(matches[1]), "line": i + 1})
			continue
		}

		if level := setextLevel(lines, i); level > 0 {
			o.open(level, trimmed, map[string]any{"level": level, "line": i + 1})
			i++ // skip the underline
			continue
		}

		o.line(line)
	}

	root := o.finish()
	if len(fmFields) > 0 {
		preamble := renderPreamble(fmFields)
		if root.Content != "" {
			root.Content = preamble + "\n\n" + root.Content
		} else {
			root.Content = preamble
		}
	}
	return root
}

// setextLevel returns 1 or 2 when lines[i] is a paragraph line underlined
// with = or -, and 0 otherwise.
func setextLevel(lines []string, i int) int {
	if i+1 >= len(lines) {
		return 0
	}
	text := lines[i]
	if strings.TrimSpace(text) == "" || blockLeadPattern.MatchString(text) {
		return 0
	}
	if codeFencePattern.MatchString(strings.TrimSpace(text)) {
		return 0
	}
	switch next := lines[i+1]; {
	case setextH1Pattern.MatchString(next):
		return 1
	case setextH2Pattern.MatchString(next):
		return 2
	}
	return 0
}

func renderPreamble(fields []Field) string {
	var sb strings.Builder
	sb.WriteString("---\n")
	for _, f := range fields {
		sb.WriteString(f.Key)
		sb.WriteString(": ")
		sb.WriteString(f.Value.Text)
		sb.WriteByte('\n')
	}
	sb.WriteString("---")
	return sb.String()
}

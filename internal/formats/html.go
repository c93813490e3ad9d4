package formats

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	mdbase "github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/itsmostafa/normtree/internal/detect"
	"github.com/itsmostafa/normtree/internal/format"
	"github.com/itsmostafa/normtree/internal/node"
	"github.com/itsmostafa/normtree/internal/parser"
)

// semanticContainers are the fallback top-level sections when a document
// has no headings.
var semanticContainers = []string{"header", "nav", "main", "section", "article", "aside", "footer"}

var (
	whitespaceRun       = regexp.MustCompile(`[ \t\f\r\v]+`)
	hiddenStylePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)display\s*:\s*none`),
		regexp.MustCompile(`(?i)visibility\s*:\s*hidden`),
	}
)

var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true, "hr": true,
	"img": true, "input": true, "link": true, "meta": true, "param": true,
	"source": true, "track": true, "wbr": true, "keygen": true,
}

// optionalEnd are elements whose end tag may be omitted.
var optionalEnd = map[string]bool{
	"html": true, "head": true, "body": true, "p": true, "li": true, "dt": true,
	"dd": true, "option": true, "optgroup": true, "tr": true, "td": true, "th": true,
	"thead": true, "tbody": true, "tfoot": true, "colgroup": true, "rt": true, "rp": true,
}

// HTML builds a tree from heading elements, falling back to semantic
// containers and then to sanitized text.
type HTML struct {
	base
	md        *converter.Converter
	sanitizer *bluemonday.Policy
}

// NewHTML creates the HTML parser.
func NewHTML() *HTML {
	return &HTML{
		base: base{
			name:        "html",
			formats:     []string{format.HTML, "htm", "xhtml"},
			mimeTypes:   []string{"text/html", "application/xhtml+xml"},
			description: "Heading outline of HTML pages with semantic-container and text fallbacks",
			caps:        parser.Capabilities{Validation: true, Metadata: true},
		},
		md: converter.NewConverter(
			converter.WithPlugins(
				mdbase.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
		sanitizer: bluemonday.StrictPolicy(),
	}
}

func (p *HTML) CanParse(content string, hints format.Hints) float64 {
	score := detect.Score(format.HTML, content)
	if p.hinted(hints) {
		if strings.TrimSpace(content) == "" {
			return max(score, 0.1)
		}
		score = max(score, 0.5)
	}
	return score
}

func (p *HTML) Parse(ctx context.Context, content string, opts parser.Options) (*node.Node, error) {
	return p.run(ctx, content, opts, func() (*node.Node, error) {
		doc, err := html.Parse(strings.NewReader(content))
		if err != nil {
			return nil, err
		}
		return p.build(doc)
	})
}

// Validate reports mismatched and unclosed elements.
func (p *HTML) Validate(content string) parser.ValidationResult {
	z := html.NewTokenizer(strings.NewReader(content))
	var stack []string
	var errs []string
	line := 1

	for {
		tt := z.Next()
		raw := z.Raw()
		switch tt {
		case html.ErrorToken:
			if err := z.Err(); !errors.Is(err, io.EOF) {
				errs = append(errs, fmt.Sprintf("line %d: %v", line, err))
			}
			for _, name := range stack {
				if !optionalEnd[name] {
					errs = append(errs, fmt.Sprintf("<%s> is never closed", name))
				}
			}
			if len(errs) > 0 {
				return parser.Invalid(errs...)
			}
			return parser.Valid()
		case html.StartTagToken:
			name, _ := z.TagName()
			if !voidElements[string(name)] {
				stack = append(stack, string(name))
			}
		case html.EndTagToken:
			nameBytes, _ := z.TagName()
			name := string(nameBytes)
			idx := -1
			for i := len(stack) - 1; i >= 0; i-- {
				if stack[i] == name {
					idx = i
					break
				}
			}
			if idx < 0 {
				if !voidElements[name] {
					errs = append(errs, fmt.Sprintf("line %d: unexpected closing tag </%s>", line, name))
				}
			} else {
				for _, open := range stack[idx+1:] {
					if !optionalEnd[open] {
						errs = append(errs, fmt.Sprintf("line %d: <%s> not closed before </%s>", line, open, name))
					}
				}
				stack = stack[:idx]
			}
		}
		line += strings.Count(string(raw), "\n")
	}
}

// pageInfo is document-level data found by simple tag lookup.
type pageInfo struct {
	title       string
	description string
	lang        string
}

func (p *HTML) build(doc *html.Node) (*node.Node, error) {
	info := htmlPageInfo(doc)
	body := findElement(doc, atom.Body)
	if body == nil {
		body = doc
	}

	rootTitle := info.title
	if rootTitle == "" {
		rootTitle = DocumentTitle
	}

	var root *node.Node
	switch {
	case hasHTMLHeadings(body):
		o := newOutline(rootTitle, node.ContentPlain, info.title == "")
		walkHTML(o, body, false)
		root = o.finish()
	default:
		containers := htmlContainers(body)
		if len(containers) > 0 {
			root = node.New(rootTitle, "", node.ContentPlain)
			for _, c := range containers {
				root.Add(p.containerNode(c))
			}
		} else {
			root = node.New(rootTitle, p.sanitizedText(body), node.ContentPlain)
		}
	}

	if info.description != "" {
		root.SetMeta("description", info.description)
	}
	if info.lang != "" {
		root.SetMeta("lang", info.lang)
	}
	if info.title != "" {
		root.SetMeta("documentTitle", info.title)
	}
	return root, nil
}

func htmlPageInfo(doc *html.Node) pageInfo {
	var info pageInfo
	if t := findElement(doc, atom.Title); t != nil {
		info.title = collapse(collectHTMLText(t))
	}
	if h := findElement(doc, atom.Html); h != nil {
		info.lang = attr(h, "lang")
	}
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if info.description != "" {
			return
		}
		if n.Type == html.ElementNode && n.DataAtom == atom.Meta {
			name := strings.ToLower(attr(n, "name"))
			if name == "description" || strings.ToLower(attr(n, "property")) == "og:description" {
				info.description = strings.TrimSpace(attr(n, "content"))
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return info
}

// skipHTML reports whether an element and its subtree carry no visible text.
func skipHTML(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Script, atom.Style, atom.Noscript, atom.Template, atom.Head:
		return true
	}
	if hasAttr(n, "hidden") || strings.EqualFold(attr(n, "aria-hidden"), "true") {
		return true
	}
	style := attr(n, "style")
	for _, pat := range hiddenStylePatterns {
		if pat.MatchString(style) {
			return true
		}
	}
	return false
}

func headingLevel(n *html.Node) int {
	if n.Type != html.ElementNode {
		return 0
	}
	switch n.DataAtom {
	case atom.H1:
		return 1
	case atom.H2:
		return 2
	case atom.H3:
		return 3
	case atom.H4:
		return 4
	case atom.H5:
		return 5
	case atom.H6:
		return 6
	}
	return 0
}

func hasHTMLHeadings(n *html.Node) bool {
	if skipHTML(n) {
		return false
	}
	if headingLevel(n) > 0 && collapse(collectHTMLText(n)) != "" {
		return true
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if hasHTMLHeadings(c) {
			return true
		}
	}
	return false
}

func isBlock(n *html.Node) bool {
	switch n.DataAtom {
	case atom.P, atom.Div, atom.Li, atom.Ul, atom.Ol, atom.Dl, atom.Dt, atom.Dd,
		atom.Table, atom.Tr, atom.Td, atom.Th, atom.Pre, atom.Blockquote,
		atom.Section, atom.Article, atom.Header, atom.Footer, atom.Nav, atom.Main,
		atom.Aside, atom.Br, atom.Hr, atom.Figure, atom.Figcaption, atom.Form:
		return true
	}
	return false
}

// walkHTML feeds headings and text to the outline in document order.
func walkHTML(o *outline, n *html.Node, inPre bool) {
	switch n.Type {
	case html.TextNode:
		if inPre {
			for _, l := range strings.Split(strings.Trim(n.Data, "\n"), "\n") {
				o.line(l)
			}
			return
		}
		o.write(collapse(n.Data))
		return
	case html.ElementNode:
		if skipHTML(n) {
			return
		}
		if level := headingLevel(n); level > 0 {
			title := collapse(collectHTMLText(n))
			if title == "" {
				return
			}
			meta := map[string]any{"level": level, "tag": n.Data}
			if id := attr(n, "id"); id != "" {
				meta["id"] = id
			}
			o.open(level, title, meta)
			return
		}
		if isBlock(n) {
			o.breakLine()
			defer o.breakLine()
		}
		inPre = inPre || n.DataAtom == atom.Pre
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walkHTML(o, c, inPre)
	}
}

// htmlContainers returns the outermost semantic containers in document order.
func htmlContainers(n *html.Node) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if skipHTML(n) {
			return
		}
		if n.Type == html.ElementNode && slices.Contains(semanticContainers, n.Data) {
			out = append(out, n)
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func (p *HTML) containerNode(el *html.Node) *node.Node {
	title := attr(el, "aria-label")
	if title == "" {
		title = attr(el, "id")
	}
	if title == "" {
		title = containerTitle(el.Data)
	}

	var sb strings.Builder
	content := ""
	contentType := node.ContentMarkdown
	if err := html.Render(&sb, el); err == nil {
		if md, err := p.md.ConvertString(sb.String()); err == nil {
			content = strings.TrimSpace(md)
		}
	}
	if content == "" {
		content = collapse(collectHTMLText(el))
		contentType = node.ContentPlain
	}

	n := node.New(title, content, contentType)
	n.SetMeta("tag", el.Data)
	if id := attr(el, "id"); id != "" {
		n.SetMeta("id", id)
	}
	if class := attr(el, "class"); class != "" {
		n.SetMeta("class", class)
	}
	return n
}

// sanitizedText strips every tag with a strict policy and tidies whitespace.
func (p *HTML) sanitizedText(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if skipHTML(c) {
			continue
		}
		if err := html.Render(&sb, c); err != nil {
			return collapse(collectHTMLText(n))
		}
	}
	return tidyText(html.UnescapeString(p.sanitizer.Sanitize(sb.String())))
}

func containerTitle(tag string) string {
	if tag == "" {
		return DocumentTitle
	}
	return strings.ToUpper(tag[:1]) + tag[1:]
}

// collectHTMLText extracts all visible text from a node subtree.
func collectHTMLText(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if skipHTML(n) {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
			sb.WriteByte(' ')
			return
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func findElement(n *html.Node, a atom.Atom) *html.Node {
	if n.Type == html.ElementNode && n.DataAtom == a {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, a); found != nil {
			return found
		}
	}
	return nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

// collapse folds all whitespace runs into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// tidyText collapses spaces within lines and drops blank lines.
func tidyText(s string) string {
	var lines []string
	for _, l := range strings.Split(s, "\n") {
		l = strings.TrimSpace(whitespaceRun.ReplaceAllString(l, " "))
		if l != "" {
			lines = append(lines, l)
		}
	}
	return strings.Join(lines, "\n")
}

package formats

import (
	"context"
	"encoding/xml"
	"errors"
	"io"
	"slices"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/antchfx/xpath"
	"github.com/microcosm-cc/bluemonday"

	"github.com/itsmostafa/normtree/internal/detect"
	"github.com/itsmostafa/normtree/internal/format"
	"github.com/itsmostafa/normtree/internal/node"
	"github.com/itsmostafa/normtree/internal/parser"
)

var (
	xmlTitleExpr       = xpath.MustCompile(`//*[local-name()='title']`)
	xmlDescriptionExpr = xpath.MustCompile(`//*[local-name()='description' or local-name()='subtitle' or local-name()='summary' or local-name()='abstract']`)
	xmlHeadingExpr     = xpath.MustCompile(`//*[local-name()='h1' or local-name()='h2' or local-name()='h3' or local-name()='h4' or local-name()='h5' or local-name()='h6']`)
	xmlContainerExpr   = xpath.MustCompile(`//*[local-name()='header' or local-name()='nav' or local-name()='main' or local-name()='section' or local-name()='article' or local-name()='aside' or local-name()='footer']`)
)

var errNoRootElement = errors.New("document has no root element")

// XML builds a tree from XHTML-style headings, semantic containers or,
// failing both, the element tree itself. Attributes and namespace
// declarations are kept as metadata; CDATA sections and self-closing
// elements are kept verbatim.
type XML struct {
	base
	sanitizer *bluemonday.Policy
}

// NewXML creates the XML parser.
func NewXML() *XML {
	return &XML{
		base: base{
			name:        "xml",
			formats:     []string{format.XML, "svg", "rss", "atom"},
			mimeTypes:   []string{"application/xml", "text/xml", "application/rss+xml", "application/atom+xml", "image/svg+xml"},
			description: "XML element hierarchy with attributes, namespaces, CDATA and self-closing elements preserved",
			caps:        parser.Capabilities{Validation: true, Metadata: true},
		},
		sanitizer: bluemonday.StrictPolicy(),
	}
}

func (p *XML) CanParse(content string, hints format.Hints) float64 {
	score := detect.Score(format.XML, content)
	if p.hinted(hints) {
		if strings.TrimSpace(content) == "" {
			return max(score, 0.1)
		}
		if strings.HasPrefix(strings.TrimSpace(content), "<") {
			score = max(score, 0.5)
		}
	}
	return score
}

func (p *XML) Parse(ctx context.Context, content string, opts parser.Options) (*node.Node, error) {
	return p.run(ctx, content, opts, func() (*node.Node, error) {
		scan, err := scanXML(content)
		if err != nil {
			return nil, err
		}
		doc, err := xmlquery.ParseWithOptions(strings.NewReader(content), xmlquery.ParserOptions{
			Decoder:         &xmlquery.DecoderOptions{Strict: true, Entity: xml.HTMLEntity},
			WithLineNumbers: true,
		})
		if err != nil {
			return nil, err
		}
		return p.build(doc, scan)
	})
}

func (p *XML) Validate(content string) parser.ValidationResult {
	if strings.TrimSpace(content) == "" {
		return parser.Invalid("document is empty")
	}
	if _, err := scanXML(content); err != nil {
		return parser.Invalid(err.Error())
	}
	return parser.Valid()
}

// xmlScan holds what a streaming pass sees that the query tree does not.
type xmlScan struct {
	// selfClosing maps an element's document-order index to its raw tag.
	selfClosing map[int]string
	// declared is set when the document carries its own XML declaration.
	declared bool
}

// scanXML checks well-formedness and records self-closing elements. A
// self-closing tag yields a start and an end token with no input consumed
// between them.
func scanXML(content string) (xmlScan, error) {
	scan := xmlScan{selfClosing: make(map[int]string)}
	dec := xml.NewDecoder(strings.NewReader(content))
	dec.Strict = true
	dec.Entity = xml.HTMLEntity

	elements, depth := 0, 0
	pending, pendingStart, pendingEnd := -1, int64(0), int64(0)
	for {
		before := dec.InputOffset()
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var serr *xml.SyntaxError
			if errors.As(err, &serr) {
				return scan, lineError(serr.Line, err)
			}
			return scan, err
		}
		after := dec.InputOffset()

		switch t := tok.(type) {
		case xml.ProcInst:
			if t.Target == "xml" {
				scan.declared = true
			}
		case xml.StartElement:
			if depth++; depth > maxNesting {
				line, _ := dec.InputPos()
				return scan, lineError(line, errTooDeep)
			}
			pending, pendingStart, pendingEnd = elements, before, after
			elements++
			continue
		case xml.EndElement:
			depth--
			if pending >= 0 && after == pendingEnd {
				scan.selfClosing[pending] = content[pendingStart:pendingEnd]
			}
		}
		pending = -1
	}
	if elements == 0 {
		return scan, errNoRootElement
	}
	return scan, nil
}

// xmlDoc carries per-parse state for the tree builders.
type xmlDoc struct {
	scan     xmlScan
	ordinals map[*xmlquery.Node]int
}

func (d *xmlDoc) selfClosing(n *xmlquery.Node) (string, bool) {
	raw, ok := d.scan.selfClosing[d.ordinals[n]]
	return raw, ok
}

func (p *XML) build(doc *xmlquery.Node, scan xmlScan) (*node.Node, error) {
	rootEl := firstElement(doc)
	if rootEl == nil {
		return nil, errNoRootElement
	}

	d := &xmlDoc{scan: scan, ordinals: make(map[*xmlquery.Node]int)}
	i := 0
	walkElements(doc, func(el *xmlquery.Node) {
		d.ordinals[el] = i
		i++
	})

	title := ""
	if t := xmlquery.QuerySelector(doc, xmlTitleExpr); t != nil {
		title = collapse(t.InnerText())
	}

	var root *node.Node
	switch {
	case xmlquery.QuerySelector(doc, xmlHeadingExpr) != nil:
		rootTitle := title
		if rootTitle == "" {
			rootTitle = DocumentTitle
		}
		o := newOutline(rootTitle, node.ContentPlain, title == "")
		d.walkOutline(o, rootEl)
		root = o.finish()

	case len(outermost(xmlquery.QuerySelectorAll(doc, xmlContainerExpr))) > 0:
		rootTitle := title
		if rootTitle == "" {
			rootTitle = qualifiedName(rootEl)
		}
		root = node.New(rootTitle, "", node.ContentPlain)
		for _, c := range outermost(xmlquery.QuerySelectorAll(doc, xmlContainerExpr)) {
			root.Add(d.containerNode(c))
		}

	case isPlainLeaf(rootEl):
		rootTitle := title
		if rootTitle == "" {
			rootTitle = qualifiedName(rootEl)
		}
		text := tidyText(html2text(p.sanitizer.Sanitize(rootEl.InnerText())))
		root = node.New(rootTitle, text, node.ContentPlain)

	default:
		root = d.elementNode(rootEl)
		if title != "" {
			root.SetMeta("element", root.Title)
			root.Title = title
		}
	}

	if desc := xmlquery.QuerySelector(doc, xmlDescriptionExpr); desc != nil {
		if text := collapse(desc.InnerText()); text != "" {
			root.SetMeta("description", text)
		}
	}
	if title != "" {
		root.SetMeta("documentTitle", title)
	}
	if decl := declaration(doc); scan.declared && len(decl) > 0 {
		root.SetMeta("declaration", decl)
	}
	applyXMLMeta(root, rootEl)
	return root, nil
}

// walkOutline feeds headings and text to the outline in document order.
func (d *xmlDoc) walkOutline(o *outline, n *xmlquery.Node) {
	switch n.Type {
	case xmlquery.TextNode:
		o.write(collapse(n.Data))
		return
	case xmlquery.CharDataNode:
		o.write(cdata(n.Data))
		return
	case xmlquery.ElementNode:
		if raw, ok := d.selfClosing(n); ok {
			o.write(raw)
			return
		}
		local := strings.ToLower(n.Data)
		if local == "head" || local == "script" || local == "style" {
			return
		}
		if len(local) == 2 && local[0] == 'h' && local[1] >= '1' && local[1] <= '6' {
			level := int(local[1] - '0')
			title := collapse(n.InnerText())
			if title != "" {
				meta := map[string]any{"level": level, "tag": qualifiedName(n)}
				if n.LineNumber > 0 {
					meta["line"] = n.LineNumber
				}
				heading := o.open(level, title, meta)
				applyXMLMeta(heading, n)
				return
			}
		}
		o.breakLine()
		defer o.breakLine()
	default:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.walkOutline(o, c)
	}
}

func (d *xmlDoc) containerNode(el *xmlquery.Node) *node.Node {
	title := xmlAttr(el, "title")
	if title == "" {
		title = xmlAttr(el, "id")
	}
	if title == "" {
		for c := el.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == xmlquery.ElementNode && c.Data == "title" {
				title = collapse(c.InnerText())
				break
			}
		}
	}
	if title == "" {
		title = containerTitle(el.Data)
	}

	text, verbatim := d.text(el, true)
	contentType := node.ContentPlain
	if verbatim {
		contentType = node.ContentXML
	}
	n := node.New(title, text, contentType)
	n.SetMeta("tag", qualifiedName(el))
	applyXMLMeta(n, el)
	return n
}

// elementNode maps one element and its element children onto nodes.
func (d *xmlDoc) elementNode(el *xmlquery.Node) *node.Node {
	if raw, ok := d.selfClosing(el); ok {
		n := node.New(qualifiedName(el), raw, node.ContentXML)
		n.SetMeta("selfClosing", true)
		applyXMLMeta(n, el)
		return n
	}

	text, verbatim := d.text(el, false)
	contentType := node.ContentPlain
	if verbatim {
		contentType = node.ContentXML
	}
	n := node.New(qualifiedName(el), text, contentType)
	applyXMLMeta(n, el)
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			n.Add(d.elementNode(c))
		}
	}
	return n
}

// text gathers an element's text. With deep set it descends into child
// elements, writing self-closing ones verbatim; otherwise only direct text
// children count. It reports whether any verbatim markup was kept.
func (d *xmlDoc) text(el *xmlquery.Node, deep bool) (string, bool) {
	var parts []string
	verbatim := false
	var walk func(*xmlquery.Node)
	walk = func(n *xmlquery.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			switch c.Type {
			case xmlquery.TextNode:
				if s := collapse(c.Data); s != "" {
					parts = append(parts, s)
				}
			case xmlquery.CharDataNode:
				parts = append(parts, cdata(c.Data))
				verbatim = true
			case xmlquery.ElementNode:
				if !deep {
					continue
				}
				if raw, ok := d.selfClosing(c); ok {
					parts = append(parts, raw)
					verbatim = true
					continue
				}
				walk(c)
			}
		}
	}
	walk(el)
	return strings.Join(parts, " "), verbatim
}

// applyXMLMeta records attributes, namespace declarations and position.
func applyXMLMeta(n *node.Node, el *xmlquery.Node) {
	attrs := make(map[string]any)
	namespaces := make(map[string]any)
	for _, a := range el.Attr {
		switch {
		case a.Name.Space == "" && a.Name.Local == "xmlns":
			namespaces["xmlns"] = a.Value
		case a.Name.Space == "xmlns":
			namespaces["xmlns:"+a.Name.Local] = a.Value
		case a.Name.Space != "":
			attrs[a.Name.Space+":"+a.Name.Local] = a.Value
		default:
			attrs[a.Name.Local] = a.Value
		}
	}
	if len(attrs) > 0 {
		n.SetMeta("attributes", attrs)
	}
	if len(namespaces) > 0 {
		n.SetMeta("namespaces", namespaces)
	}
	if el.NamespaceURI != "" {
		n.SetMeta("namespaceURI", el.NamespaceURI)
	}
	if el.LineNumber > 0 {
		if _, ok := n.Meta("line"); !ok {
			n.SetMeta("line", el.LineNumber)
		}
	}
}

func declaration(doc *xmlquery.Node) map[string]any {
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.DeclarationNode {
			out := make(map[string]any)
			for _, a := range c.Attr {
				out[a.Name.Local] = a.Value
			}
			return out
		}
	}
	return nil
}

func firstElement(doc *xmlquery.Node) *xmlquery.Node {
	for c := doc.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			return c
		}
	}
	return nil
}

func walkElements(n *xmlquery.Node, fn func(*xmlquery.Node)) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode {
			fn(c)
			walkElements(c, fn)
		}
	}
}

// outermost drops every node nested inside another node of the set.
func outermost(nodes []*xmlquery.Node) []*xmlquery.Node {
	var out []*xmlquery.Node
	for _, n := range nodes {
		nested := false
		for p := n.Parent; p != nil; p = p.Parent {
			if slices.Contains(nodes, p) {
				nested = true
				break
			}
		}
		if !nested {
			out = append(out, n)
		}
	}
	return out
}

// isPlainLeaf reports whether el is a bare text element: no attributes, no
// child elements and no CDATA.
func isPlainLeaf(el *xmlquery.Node) bool {
	if len(el.Attr) > 0 {
		return false
	}
	for c := el.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == xmlquery.ElementNode || c.Type == xmlquery.CharDataNode {
			return false
		}
	}
	return true
}

func qualifiedName(el *xmlquery.Node) string {
	if el.Prefix != "" {
		return el.Prefix + ":" + el.Data
	}
	return el.Data
}

func xmlAttr(el *xmlquery.Node, local string) string {
	for _, a := range el.Attr {
		if a.Name.Local == local && a.Name.Space == "" {
			return a.Value
		}
	}
	return ""
}

func cdata(s string) string {
	return "<![CDATA[" + s + "]]>"
}

// html2text undoes the entity escaping a sanitizer applies to plain text.
func html2text(s string) string {
	return xmlUnescaper.Replace(s)
}

var xmlUnescaper = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&#34;", `"`, "&#39;", "'", "&quot;", `"`, "&apos;", "'")

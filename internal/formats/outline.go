package formats

import (
	"regexp"
	"strings"

	"github.com/itsmostafa/normtree/internal/node"
)

// DocumentTitle is the title of a synthesized root.
const DocumentTitle = "Document"

var blankRuns = regexp.MustCompile(`\n{3,}`)

// outline builds a tree from a sequence of headings and body text using a
// level-keyed stack. The root sits at level 0, so every heading nests below
// it. When promote is set and the first heading is level 1, that heading
// becomes the root instead of a child.
type outline struct {
	root        *node.Node
	contentType string
	promote     bool
	seen        bool
	stack       []outlineEntry
	bodies      map[*node.Node]*strings.Builder
}

type outlineEntry struct {
	node  *node.Node
	level int
}

func newOutline(rootTitle, contentType string, promote bool) *outline {
	root := node.New(rootTitle, "", contentType)
	return &outline{
		root:        root,
		contentType: contentType,
		promote:     promote,
		stack:       []outlineEntry{{node: root, level: 0}},
		bodies:      map[*node.Node]*strings.Builder{root: {}},
	}
}

// open starts a heading of the given level and returns its node.
func (o *outline) open(level int, title string, meta map[string]any) *node.Node {
	first := !o.seen
	o.seen = true

	if first && o.promote && level == 1 {
		o.root.Title = title
		for k, v := range meta {
			o.root.SetMeta(k, v)
		}
		return o.root
	}

	n := node.New(title, "", o.contentType)
	for k, v := range meta {
		n.SetMeta(k, v)
	}
	o.bodies[n] = &strings.Builder{}

	// Pop stack until we find the parent; the root never pops
	for len(o.stack) > 1 && o.stack[len(o.stack)-1].level >= level {
		o.stack = o.stack[:len(o.stack)-1]
	}
	parent := o.stack[len(o.stack)-1].node
	parent.Add(n)

	o.stack = append(o.stack, outlineEntry{node: n, level: level})
	return n
}

// current is the most recently opened heading, or the root.
func (o *outline) current() *node.Node {
	return o.stack[len(o.stack)-1].node
}

// line appends one line of body text to the current node.
func (o *outline) line(s string) {
	b := o.bodies[o.current()]
	b.WriteString(s)
	b.WriteByte('\n')
}

// write appends inline text to the current node, separating words.
func (o *outline) write(s string) {
	if s == "" {
		return
	}
	b := o.bodies[o.current()]
	if b.Len() > 0 {
		last := b.String()[b.Len()-1]
		if last != '\n' && last != ' ' {
			b.WriteByte(' ')
		}
	}
	b.WriteString(s)
}

// breakLine ends the current block of inline text.
func (o *outline) breakLine() {
	b := o.bodies[o.current()]
	if b.Len() > 0 && b.String()[b.Len()-1] != '\n' {
		b.WriteByte('\n')
	}
}

// headings reports whether any heading was opened.
func (o *outline) headings() bool {
	return o.seen
}

// finish writes the accumulated bodies into node content and returns the root.
func (o *outline) finish() *node.Node {
	for n, b := range o.bodies {
		text := strings.TrimSpace(b.String())
		text = blankRuns.ReplaceAllString(text, "\n\n")
		if n.Content != "" && text != "" {
			n.Content = n.Content + "\n\n" + text
		} else if text != "" {
			n.Content = text
		}
	}
	return o.root
}

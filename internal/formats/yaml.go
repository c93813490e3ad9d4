package formats

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/itsmostafa/normtree/internal/detect"
	"github.com/itsmostafa/normtree/internal/format"
	"github.com/itsmostafa/normtree/internal/node"
	"github.com/itsmostafa/normtree/internal/parser"
)

// YAML root titles.
const (
	YAMLDocumentTitle = "YAML Document"
	YAMLStreamTitle   = "YAML Stream"
	ArrayTitle        = "Array"
)

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

// YAML normalizes decoded YAML into a tree. Mappings with a title and
// content or children map directly onto nodes.
type YAML struct {
	base
}

// NewYAML creates the YAML parser.
func NewYAML() *YAML {
	return &YAML{base{
		name:        "yaml",
		formats:     []string{format.YAML, "yml"},
		mimeTypes:   []string{"application/x-yaml", "application/yaml", "text/yaml", "text/x-yaml"},
		description: "YAML documents and streams normalized by key, with tree-shaped mappings mapped directly",
		caps:        parser.Capabilities{Validation: true, Metadata: true, MaxDepth: true},
	}}
}

func (p *YAML) CanParse(content string, hints format.Hints) float64 {
	score := detect.Score(format.YAML, content)
	if p.hinted(hints) {
		if strings.TrimSpace(content) == "" {
			return max(score, 0.1)
		}
		if _, err := decodeYAML(content); err == nil {
			score = max(score, 0.5)
		}
	}
	return score
}

func (p *YAML) Parse(ctx context.Context, content string, opts parser.Options) (*node.Node, error) {
	return p.run(ctx, content, opts, func() (*node.Node, error) {
		docs, err := decodeYAML(content)
		if err != nil {
			return nil, err
		}
		nopts := NormalizeOptions{MaxDepth: opts.MaxDepth, TreeShape: true, TagKey: "tag"}

		switch len(docs) {
		case 0:
			// Comments or directives only
			return node.NewEmpty(format.YAML), nil
		case 1:
			return NormalizeValue(rootTitle(docs[0], YAMLDocumentTitle), docs[0], nopts), nil
		}

		root := node.New(YAMLStreamTitle, "", node.ContentPlain)
		root.SetMeta("documents", len(docs))
		for i, doc := range docs {
			title := fmt.Sprintf("Document %d", i+1)
			root.Add(NormalizeValue(rootTitle(doc, title), doc, nopts))
		}
		return root, nil
	})
}

func (p *YAML) Validate(content string) parser.ValidationResult {
	if _, err := decodeYAML(content); err != nil {
		return parser.Invalid(err.Error())
	}
	return parser.Valid()
}

// rootTitle names a top-level value: arrays are "Array", everything else
// takes the fallback. Tree-shaped mappings override it with their own title.
func rootTitle(v *Value, fallback string) string {
	if v.Kind == KindArray {
		return ArrayTitle
	}
	return fallback
}

// decodeYAML decodes every document of a stream into Values.
func decodeYAML(content string) ([]*Value, error) {
	dec := yaml.NewDecoder(strings.NewReader(content))
	var docs []*Value
	for {
		var doc yaml.Node
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			return docs, nil
		}
		if err != nil {
			return nil, yamlError(err)
		}
		if doc.Kind == yaml.DocumentNode && len(doc.Content) == 0 {
			continue
		}
		conv := yamlConverter{
			active: make(map[*yaml.Node]bool),
			budget: yamlExpansionFloor + yamlExpansionRatio*countYAML(&doc),
		}
		v := conv.convert(&doc)
		if conv.err != nil {
			return nil, conv.err
		}
		docs = append(docs, v)
	}
}

// Alias expansion may grow a document to at most yamlExpansionRatio times
// its node count, plus yamlExpansionFloor.
const (
	yamlExpansionRatio = 10
	yamlExpansionFloor = 10000
)

// countYAML counts the nodes of a document without following aliases.
func countYAML(root *yaml.Node) int {
	count := 0
	stack := []*yaml.Node{root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		count++
		stack = append(stack, n.Content...)
	}
	return count
}

func yamlError(err error) error {
	line := 0
	if m := yamlLinePattern.FindStringSubmatch(err.Error()); m != nil {
		line, _ = strconv.Atoi(m[1])
	}
	return lineError(line, err)
}

// yamlConverter resolves aliases while guarding against reference cycles,
// runaway expansion and excessive nesting. The first failure is kept in err
// and stops further conversion.
type yamlConverter struct {
	active   map[*yaml.Node]bool
	budget   int
	produced int
	depth    int
	err      error
}

func (c *yamlConverter) convert(n *yaml.Node) *Value {
	if n == nil || c.err != nil {
		return Null()
	}
	c.produced++
	if c.produced > c.budget {
		c.err = lineError(n.Line, fmt.Errorf("aliases expand the document past %d values", c.budget))
		return Null()
	}
	c.depth++
	defer func() { c.depth-- }()
	if c.depth > maxNesting {
		c.err = lineError(n.Line, errTooDeep)
		return Null()
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return Null()
		}
		return c.convert(n.Content[0])

	case yaml.AliasNode:
		if n.Alias == nil || c.active[n.Alias] {
			v := String("*" + n.Value)
			v.Tag = "alias"
			v.Line = n.Line
			return v
		}
		c.active[n.Alias] = true
		defer delete(c.active, n.Alias)
		return c.convert(n.Alias)

	case yaml.MappingNode:
		c.active[n] = true
		defer delete(c.active, n)
		v := Object()
		v.Line = n.Line
		c.mapping(v, n)
		return v

	case yaml.SequenceNode:
		c.active[n] = true
		defer delete(c.active, n)
		v := Array()
		v.Line = n.Line
		for _, item := range n.Content {
			v.Append(c.convert(item))
		}
		return v

	default:
		v := yamlScalar(n)
		v.Line = n.Line
		return v
	}
}

// mapping copies key/value pairs into v, expanding merge keys.
func (c *yamlConverter) mapping(v *Value, n *yaml.Node) {
	for i := 0; i+1 < len(n.Content); i += 2 {
		key, val := n.Content[i], n.Content[i+1]
		if key.Kind == yaml.ScalarNode && key.ShortTag() == "!!merge" {
			c.merge(v, val)
			continue
		}
		v.Set(yamlKey(key), c.convert(val))
	}
}

func (c *yamlConverter) merge(v *Value, src *yaml.Node) {
	merged := c.convert(src)
	sources := []*Value{merged}
	if merged.Kind == KindArray {
		sources = merged.Items
	}
	for _, s := range sources {
		if s.Kind != KindObject {
			continue
		}
		for _, f := range s.Fields {
			if _, exists := v.Get(f.Key); !exists {
				v.Set(f.Key, f.Value)
			}
		}
	}
}

func yamlKey(n *yaml.Node) string {
	if n.Kind == yaml.ScalarNode {
		return n.Value
	}
	if n.Kind == yaml.AliasNode && n.Alias != nil && n.Alias.Kind == yaml.ScalarNode {
		return n.Alias.Value
	}
	out, err := yaml.Marshal(n)
	if err != nil {
		return fmt.Sprintf("key@%d", n.Line)
	}
	return strings.TrimSpace(string(out))
}

func yamlScalar(n *yaml.Node) *Value {
	tag := n.ShortTag()
	var v *Value
	switch tag {
	case "!!null":
		v = Null()
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err == nil {
			v = Bool(b)
		} else {
			v = String(n.Value)
		}
	case "!!int", "!!float":
		v = Number(n.Value)
	default:
		v = String(n.Value)
	}
	v.Tag = tag
	return v
}

// Package node defines the normalized tree every parser produces.
//
// A tree has exactly one root and is owned by the caller; nodes hold no
// parent references. Children are kept in document order, and consumers
// must preserve that order. Flatten builds an index-addressed view for
// callers that need parent navigation.
package node

import (
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// DefaultTitle is used when a parser produces a node without a label.
const DefaultTitle = "Untitled"

// EmptyTitle is the title of the node returned for empty input.
const EmptyTitle = "Empty Document"

// Content type tags describing how Content should be interpreted downstream.
const (
	ContentMarkdown = "markdown"
	ContentPlain    = "plaintext"
	ContentJSON     = "json"
	ContentXML      = "xml"
	ContentError    = "error"
	ContentEmpty    = "empty"
)

// ParseInfo is diagnostic information stamped on the root of a parse result.
type ParseInfo struct {
	Parser      string    `json:"parser"`
	Timestamp   time.Time `json:"timestamp"`
	RunID       string    `json:"runId,omitempty"`
	ContentHash string    `json:"contentHash,omitempty"`
}

// Node is one unit of the normalized hierarchy.
type Node struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	ContentType  string         `json:"contentType"`
	Children     []*Node        `json:"children"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	SourceFormat string         `json:"sourceFormat"`
	ParseInfo    *ParseInfo     `json:"parseInfo,omitempty"`
}

// New creates a leaf node. An empty title is replaced by DefaultTitle.
func New(title, content, contentType string) *Node {
	if title == "" {
		title = DefaultTitle
	}
	return &Node{
		Title:       title,
		Content:     content,
		ContentType: contentType,
		Children:    []*Node{},
	}
}

// NewEmpty returns the node every parser produces for empty input.
func NewEmpty(format string) *Node {
	n := New(EmptyTitle, "", ContentEmpty)
	n.SourceFormat = format
	return n
}

// NewError converts a parse failure into a visible error node.
func NewError(format string, err error) *Node {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	n := New("Parse Error", msg, ContentError)
	n.SourceFormat = format
	n.SetMeta("error", msg)
	return n
}

// Add appends children in order and returns n for chaining.
func (n *Node) Add(children ...*Node) *Node {
	for _, c := range children {
		if c != nil {
			n.Children = append(n.Children, c)
		}
	}
	return n
}

// SetMeta sets a metadata key, allocating the map on first use.
func (n *Node) SetMeta(key string, value any) {
	if n.Metadata == nil {
		n.Metadata = make(map[string]any)
	}
	n.Metadata[key] = value
}

// Meta returns a metadata value.
func (n *Node) Meta(key string) (any, bool) {
	if n.Metadata == nil {
		return nil, false
	}
	v, ok := n.Metadata[key]
	return v, ok
}

// IsLeaf reports whether the node has no children.
func (n *Node) IsLeaf() bool {
	return len(n.Children) == 0
}

// MarshalJSON always emits children as an array, never null.
func (n *Node) MarshalJSON() ([]byte, error) {
	type plain Node
	p := plain(*n)
	if p.Children == nil {
		p.Children = []*Node{}
	}
	return json.Marshal(p)
}

// String returns a JSON representation of the node for debugging.
func (n *Node) String() string {
	b, _ := json.MarshalIndent(n, "", "  ")
	return string(b)
}

// Walk traverses the tree in depth-first document order, calling fn for each node.
func (n *Node) Walk(fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, child := range n.Children {
		child.Walk(fn)
	}
}

// WalkDepth is like Walk but also passes the depth (root = 0). Returning
// false from fn skips the node's subtree.
func (n *Node) WalkDepth(fn func(n *Node, depth int) bool) {
	var walk func(*Node, int)
	walk = func(cur *Node, depth int) {
		if cur == nil || !fn(cur, depth) {
			return
		}
		for _, child := range cur.Children {
			walk(child, depth+1)
		}
	}
	walk(n, 0)
}

// Count returns the number of nodes in the tree.
func (n *Node) Count() int {
	count := 0
	n.Walk(func(*Node) { count++ })
	return count
}

// CountLimit counts nodes but stops as soon as the count exceeds limit.
// It reports the nodes seen and whether the limit was exceeded.
func (n *Node) CountLimit(limit int) (int, bool) {
	count := 0
	var walk func(*Node) bool
	walk = func(cur *Node) bool {
		if cur == nil {
			return true
		}
		count++
		if count > limit {
			return false
		}
		for _, child := range cur.Children {
			if !walk(child) {
				return false
			}
		}
		return true
	}
	ok := walk(n)
	return count, !ok
}

// Find returns the first node with the given id, or nil.
func (n *Node) Find(id string) *Node {
	var found *Node
	n.WalkDepth(func(cur *Node, _ int) bool {
		if found != nil {
			return false
		}
		if cur.ID == id {
			found = cur
			return false
		}
		return true
	})
	return found
}

// Clone creates a deep copy of the tree, including metadata.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	clone := &Node{
		ID:           n.ID,
		Title:        n.Title,
		Content:      n.Content,
		ContentType:  n.ContentType,
		SourceFormat: n.SourceFormat,
		Metadata:     cloneMap(n.Metadata),
		Children:     make([]*Node, len(n.Children)),
	}
	if n.ParseInfo != nil {
		info := *n.ParseInfo
		clone.ParseInfo = &info
	}
	for i, child := range n.Children {
		clone.Children[i] = child.Clone()
	}
	return clone
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}
	return out
}

// CloneValue deep-copies the map and slice shapes produced by decoders
// and metadata builders. Other values are returned as-is.
func CloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case map[string]string:
		return maps.Clone(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CloneValue(item)
		}
		return out
	case []string:
		return slices.Clone(val)
	default:
		return v
	}
}

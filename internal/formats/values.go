package formats

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/itsmostafa/normtree/internal/node"
)

// Kind is the shape of a decoded Value.
type Kind int

const (
	KindNull Kind = iota
	KindString
	KindNumber
	KindBool
	KindObject
	KindArray
)

// Field is one key of an object, in source order.
type Field struct {
	Key   string
	Value *Value
}

// Value is a decoded document value that keeps object keys in source order
// and scalars in their source form. JSON, YAML and plugin decoders produce
// it; NormalizeValue turns it into nodes.
type Value struct {
	Kind   Kind
	Text   string // scalar source form
	Tag    string // decoder type tag, e.g. "!!int"
	Fields []Field
	Items  []*Value
	Line   int
}

// String, Number, Bool, Null, Object and Array build Values.
func String(s string) *Value { return &Value{Kind: KindString, Text: s} }
func Number(s string) *Value { return &Value{Kind: KindNumber, Text: s} }
func Bool(b bool) *Value     { return &Value{Kind: KindBool, Text: strconv.FormatBool(b)} }
func Null() *Value           { return &Value{Kind: KindNull, Text: "null"} }
func Object() *Value         { return &Value{Kind: KindObject} }
func Array() *Value          { return &Value{Kind: KindArray} }

// Set adds a field to an object. A repeated key replaces the earlier value
// in place, so the last occurrence wins but keeps the first position.
func (v *Value) Set(key string, val *Value) *Value {
	for i := range v.Fields {
		if v.Fields[i].Key == key {
			v.Fields[i].Value = val
			return v
		}
	}
	v.Fields = append(v.Fields, Field{Key: key, Value: val})
	return v
}

// Append adds an item to an array.
func (v *Value) Append(val *Value) *Value {
	v.Items = append(v.Items, val)
	return v
}

// Get returns the first field with the given key.
func (v *Value) Get(key string) (*Value, bool) {
	for _, f := range v.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return nil, false
}

// IsScalar reports whether v is neither an object nor an array.
func (v *Value) IsScalar() bool {
	return v.Kind != KindObject && v.Kind != KindArray
}

// TypeName is the JSON-style type of v.
func (v *Value) TypeName() string {
	switch v.Kind {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBool:
		return "boolean"
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	default:
		return "null"
	}
}

// Native converts v to plain Go values for metadata. Numbers become int64
// or float64 when they fit, objects become map[string]any.
func (v *Value) Native() any {
	switch v.Kind {
	case KindString:
		return v.Text
	case KindNumber:
		if i, err := strconv.ParseInt(v.Text, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(v.Text, 64); err == nil {
			return f
		}
		return v.Text
	case KindBool:
		return v.Text == "true"
	case KindObject:
		out := make(map[string]any, len(v.Fields))
		for _, f := range v.Fields {
			out[f.Key] = f.Value.Native()
		}
		return out
	case KindArray:
		out := make([]any, len(v.Items))
		for i, item := range v.Items {
			out[i] = item.Native()
		}
		return out
	default:
		return nil
	}
}

// JSON renders v as compact JSON with object keys in source order.
func (v *Value) JSON() string {
	var sb strings.Builder
	v.writeJSON(&sb)
	return sb.String()
}

func (v *Value) writeJSON(sb *strings.Builder) {
	switch v.Kind {
	case KindObject:
		sb.WriteByte('{')
		for i, f := range v.Fields {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeJSONString(sb, f.Key)
			sb.WriteByte(':')
			f.Value.writeJSON(sb)
		}
		sb.WriteByte('}')
	case KindArray:
		sb.WriteByte('[')
		for i, item := range v.Items {
			if i > 0 {
				sb.WriteByte(',')
			}
			item.writeJSON(sb)
		}
		sb.WriteByte(']')
	case KindNumber:
		if json.Valid([]byte(v.Text)) {
			sb.WriteString(v.Text)
		} else {
			writeJSONString(sb, v.Text)
		}
	case KindBool:
		sb.WriteString(v.Text)
	case KindNull:
		sb.WriteString("null")
	default:
		writeJSONString(sb, v.Text)
	}
}

func writeJSONString(sb *strings.Builder, s string) {
	b, _ := json.Marshal(s)
	sb.Write(b)
}

// NormalizeOptions controls NormalizeValue.
type NormalizeOptions struct {
	// MaxDepth stops expansion below this depth; 0 means unlimited.
	MaxDepth int
	// TreeShape maps objects carrying title plus content or children keys
	// directly onto nodes.
	TreeShape bool
	// TagKey names the metadata key that receives scalar type tags.
	TagKey string
}

// NormalizeValue converts a decoded value into a node tree. Objects get one
// child per key and a content preview from their first scalar field; arrays
// get one child per element titled "[i]"; scalars become leaves.
// maxNesting bounds how deeply a decoded document may nest. Normalizing is
// recursive, so deeper input is rejected at decode time.
const maxNesting = 10000

var errTooDeep = fmt.Errorf("document nests deeper than %d levels", maxNesting)

func NormalizeValue(title string, v *Value, opts NormalizeOptions) *node.Node {
	return normalize(title, v, 0, opts)
}

func normalize(title string, v *Value, depth int, opts NormalizeOptions) *node.Node {
	if v == nil {
		v = Null()
	}

	if !v.IsScalar() && opts.MaxDepth > 0 && depth >= opts.MaxDepth {
		// Cut off: keep the remaining structure verbatim
		n := node.New(title, v.JSON(), node.ContentJSON)
		n.SetMeta("truncated", true)
		n.SetMeta("type", v.TypeName())
		setLine(n, v)
		return n
	}

	switch v.Kind {
	case KindObject:
		if opts.TreeShape && isTreeShaped(v) {
			return normalizeShaped(title, v, depth, opts)
		}
		n := node.New(title, objectPreview(v), node.ContentPlain)
		n.SetMeta("type", "object")
		setLine(n, v)
		for _, f := range v.Fields {
			n.Add(normalize(f.Key, f.Value, depth+1, opts))
		}
		return n
	case KindArray:
		n := node.New(title, "", node.ContentPlain)
		n.SetMeta("type", "array")
		n.SetMeta("length", len(v.Items))
		setLine(n, v)
		for i, item := range v.Items {
			n.Add(normalize(fmt.Sprintf("[%d]", i), item, depth+1, opts))
		}
		return n
	default:
		n := node.New(title, v.Text, node.ContentPlain)
		n.SetMeta("type", v.TypeName())
		if opts.TagKey != "" && v.Tag != "" {
			n.SetMeta(opts.TagKey, v.Tag)
		}
		setLine(n, v)
		return n
	}
}

// isTreeShaped reports whether an object has a title and content or
// children keys.
func isTreeShaped(v *Value) bool {
	t, ok := v.Get("title")
	if !ok || !t.IsScalar() {
		return false
	}
	_, hasContent := v.Get("content")
	_, hasChildren := v.Get("children")
	return hasContent || hasChildren
}

func normalizeShaped(fallback string, v *Value, depth int, opts NormalizeOptions) *node.Node {
	title := fallback
	if t, _ := v.Get("title"); t.Kind != KindNull && strings.TrimSpace(t.Text) != "" {
		title = t.Text
	}
	n := node.New(title, "", node.ContentPlain)
	setLine(n, v)

	for _, f := range v.Fields {
		switch f.Key {
		case "title":
		case "content":
			if f.Value.IsScalar() {
				if f.Value.Kind != KindNull {
					n.Content = f.Value.Text
				}
			} else {
				n.Content = f.Value.JSON()
				n.ContentType = node.ContentJSON
			}
		case "children":
			switch f.Value.Kind {
			case KindArray:
				for i, item := range f.Value.Items {
					n.Add(normalize(fmt.Sprintf("[%d]", i), item, depth+1, opts))
				}
			case KindObject:
				for _, cf := range f.Value.Fields {
					n.Add(normalize(cf.Key, cf.Value, depth+1, opts))
				}
			case KindNull:
			default:
				n.Add(normalize("[0]", f.Value, depth+1, opts))
			}
		default:
			n.SetMeta(f.Key, f.Value.Native())
		}
	}
	return n
}

// objectPreview renders the first scalar field as "key: value".
func objectPreview(v *Value) string {
	for _, f := range v.Fields {
		if f.Value.IsScalar() {
			return f.Key + ": " + f.Value.Text
		}
	}
	return ""
}

func setLine(n *node.Node, v *Value) {
	if v.Line > 0 {
		n.SetMeta("line", v.Line)
	}
}

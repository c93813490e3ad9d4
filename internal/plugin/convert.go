package plugin

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	apperrors "github.com/itsmostafa/normtree/internal/errors"
	"github.com/itsmostafa/normtree/internal/node"
)

// maxResultDepth bounds the nesting of a tree decoded from a script or
// process result.
const maxResultDepth = 256

var errTooManyNodes = errors.New("tree exceeds the node limit")

// FromValue converts a decoded node object, as produced by a script or an
// executable plugin, into a tree. Recognized keys are title, content,
// contentType, children, metadata and sourceFormat; other keys are kept as
// metadata. Ids and parse info are assigned by the manager, which also
// rejects a root without a title. maxNodes > 0 stops the conversion as soon
// as the tree grows past it.
func FromValue(v any, maxNodes int) (*node.Node, error) {
	c := converter{limit: maxNodes}
	return c.fromValue(v, 0, "root")
}

// resultError classifies a FromValue failure for plugin id.
func resultError(id, message string, maxNodes int, err error) error {
	if errors.Is(err, errTooManyNodes) {
		return apperrors.WrapPlugin(id, apperrors.KindNodeCount,
			fmt.Sprintf("tree has more than %d nodes", maxNodes), err)
	}
	return apperrors.WrapPlugin(id, apperrors.KindInvalidResult, message, err)
}

type converter struct {
	limit int
	count int
}

func (c *converter) fromValue(v any, depth int, path string) (*node.Node, error) {
	c.count++
	if c.limit > 0 && c.count > c.limit {
		return nil, fmt.Errorf("%s: %w", path, errTooManyNodes)
	}
	if depth > maxResultDepth {
		return nil, fmt.Errorf("%s: tree is nested deeper than %d levels", path, maxResultDepth)
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%s: expected an object, got %T", path, v)
	}

	n := &node.Node{ContentType: node.ContentPlain, Children: []*node.Node{}}
	for key, val := range obj {
		switch key {
		case "id", "parseInfo":
		case "title":
			n.Title = scalarString(val)
		case "content":
			switch val.(type) {
			case map[string]any, []any:
				b, err := json.Marshal(val)
				if err != nil {
					return nil, fmt.Errorf("%s.content: %w", path, err)
				}
				n.Content = string(b)
				if _, typed := obj["contentType"]; !typed {
					n.ContentType = node.ContentJSON
				}
			default:
				n.Content = scalarString(val)
			}
		case "contentType":
			if s := scalarString(val); s != "" {
				n.ContentType = s
			}
		case "sourceFormat":
			n.SourceFormat = scalarString(val)
		case "metadata":
			if val == nil {
				continue
			}
			meta, ok := val.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%s.metadata: expected an object, got %T", path, val)
			}
			for k, mv := range meta {
				n.SetMeta(k, node.CloneValue(mv))
			}
		case "children":
			if val == nil {
				continue
			}
			items, ok := val.([]any)
			if !ok {
				return nil, fmt.Errorf("%s.children: expected an array, got %T", path, val)
			}
			for i, item := range items {
				child, err := c.fromValue(item, depth+1, fmt.Sprintf("%s.children[%d]", path, i))
				if err != nil {
					return nil, err
				}
				n.Add(child)
			}
		default:
			n.SetMeta(key, node.CloneValue(val))
		}
	}
	return n, nil
}

// scalarString renders a decoded scalar the way it reads in source.
func scalarString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case json.Number:
		return val.String()
	case int64:
		return strconv.FormatInt(val, 10)
	case int:
		return strconv.Itoa(val)
	case float64:
		if math.Trunc(val) == val && math.Abs(val) < 1e15 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

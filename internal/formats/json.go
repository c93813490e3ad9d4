package formats

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/itsmostafa/normtree/internal/detect"
	"github.com/itsmostafa/normtree/internal/format"
	"github.com/itsmostafa/normtree/internal/node"
	"github.com/itsmostafa/normtree/internal/parser"
)

// JSONDocumentTitle is the title of a JSON object root.
const JSONDocumentTitle = "JSON Document"

// JSON normalizes a JSON document by key and index. Object keys keep
// their source order and numbers keep their source form.
type JSON struct {
	base
}

// NewJSON creates the JSON parser.
func NewJSON() *JSON {
	return &JSON{base{
		name:        "json",
		formats:     []string{format.JSON},
		mimeTypes:   []string{"application/json", "text/json", "application/ld+json"},
		description: "JSON objects and arrays normalized by key and index, with depth cutoff",
		caps:        parser.Capabilities{Validation: true, Metadata: true, MaxDepth: true},
	}}
}

func (p *JSON) CanParse(content string, hints format.Hints) float64 {
	score := detect.Score(format.JSON, content)
	trimmed := strings.TrimSpace(content)
	if trimmed == "" {
		if p.hinted(hints) {
			return 0.1
		}
		return 0
	}
	if json.Valid([]byte(trimmed)) {
		if trimmed[0] == '{' || trimmed[0] == '[' {
			score = max(score, 0.9)
		} else if p.hinted(hints) {
			score = max(score, 0.5)
		}
	}
	return score
}

func (p *JSON) Parse(ctx context.Context, content string, opts parser.Options) (*node.Node, error) {
	return p.run(ctx, content, opts, func() (*node.Node, error) {
		v, err := decodeJSON(content)
		if err != nil {
			return nil, err
		}
		return NormalizeValue(rootTitle(v, JSONDocumentTitle), v, NormalizeOptions{MaxDepth: opts.MaxDepth}), nil
	})
}

func (p *JSON) Validate(content string) parser.ValidationResult {
	if strings.TrimSpace(content) == "" {
		return parser.Invalid("document is empty")
	}
	if _, err := decodeJSON(content); err != nil {
		return parser.Invalid(err.Error())
	}
	return parser.Valid()
}

// decodeJSON decodes a single JSON value token by token so object key
// order survives.
func decodeJSON(content string) (*Value, error) {
	dec := json.NewDecoder(strings.NewReader(content))
	dec.UseNumber()

	v, err := decodeJSONValue(dec, 0)
	if err != nil {
		return nil, jsonError(content, dec, err)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected data after top-level value")
		}
		return nil, jsonError(content, dec, err)
	}
	return v, nil
}

func decodeJSONValue(dec *json.Decoder, depth int) (*Value, error) {
	if depth > maxNesting {
		return nil, errTooDeep
	}
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			obj := Object()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, ok := keyTok.(string)
				if !ok {
					return nil, fmt.Errorf("object key is %T, not a string", keyTok)
				}
				val, err := decodeJSONValue(dec, depth+1)
				if err != nil {
					return nil, err
				}
				obj.Set(key, val)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return obj, nil
		case '[':
			arr := Array()
			for dec.More() {
				item, err := decodeJSONValue(dec, depth+1)
				if err != nil {
					return nil, err
				}
				arr.Append(item)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return arr, nil
		default:
			return nil, fmt.Errorf("unexpected delimiter %q", t)
		}
	case string:
		return String(t), nil
	case json.Number:
		return Number(t.String()), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null(), nil
	default:
		return nil, fmt.Errorf("unexpected token %v", tok)
	}
}

// jsonError positions err at a line using the syntax error offset, or the
// decoder offset when there is none.
func jsonError(content string, dec *json.Decoder, err error) error {
	if errors.Is(err, io.EOF) {
		err = io.ErrUnexpectedEOF
	}
	offset := dec.InputOffset()
	var serr *json.SyntaxError
	if errors.As(err, &serr) {
		offset = serr.Offset
	}
	offset = min(max(offset, 0), int64(len(content)))
	line := strings.Count(content[:offset], "\n") + 1
	return lineError(line, err)
}

// Package toml is an example plugin that normalizes TOML documents by
// table and key, keeping keys in document order.
package toml

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	apperrors "github.com/itsmostafa/normtree/internal/errors"
	"github.com/itsmostafa/normtree/internal/detect"
	"github.com/itsmostafa/normtree/internal/format"
	"github.com/itsmostafa/normtree/internal/formats"
	"github.com/itsmostafa/normtree/internal/node"
	"github.com/itsmostafa/normtree/internal/parser"
	"github.com/itsmostafa/normtree/internal/plugin"
)

// DocumentTitle is the title of the root node.
const DocumentTitle = "TOML Document"

// Metadata identifies the plugin.
var Metadata = plugin.Metadata{
	Name:        "toml",
	Version:     "1.0.0",
	Author:      "normtree",
	Description: "TOML tables and keys normalized in document order",
}

// Module returns the plugin module for Manager.Register.
func Module() plugin.Module {
	return plugin.Module{
		Metadata: Metadata,
		New:      func() parser.Parser { return New() },
	}
}

// Parser parses TOML.
type Parser struct{}

// New creates a Parser.
func New() *Parser {
	return &Parser{}
}

func (p *Parser) Name() string                 { return Metadata.Name }
func (p *Parser) SupportedFormats() []string   { return []string{format.TOML} }
func (p *Parser) SupportedMIMETypes() []string { return []string{"application/toml", "text/x-toml"} }

func (p *Parser) Capabilities() parser.Capabilities {
	return parser.Capabilities{Validation: true, Metadata: true, MaxDepth: true}
}

func (p *Parser) Describe() parser.Descriptor {
	d := parser.Describe(p)
	d.Version = Metadata.Version
	d.Description = Metadata.Description
	return d
}

func (p *Parser) CanParse(content string, hints format.Hints) float64 {
	score := detect.Score(format.TOML, content)
	if hinted(hints) {
		score = max(score, 0.5)
	}
	if score > 0 && strings.TrimSpace(content) != "" {
		var v map[string]any
		if _, err := toml.Decode(content, &v); err == nil {
			score = max(score, 0.6)
		} else {
			score = min(score, 0.3)
		}
	}
	return score
}

func hinted(h format.Hints) bool {
	if strings.EqualFold(strings.TrimSpace(h.Format), format.TOML) {
		return true
	}
	if f, ok := format.FromMIME(h.MIMEType); ok && f == format.TOML {
		return true
	}
	return h.Ext() == "toml"
}

func (p *Parser) Parse(ctx context.Context, content string, opts parser.Options) (*node.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return node.NewEmpty(format.TOML), nil
	}

	doc, err := decode(content)
	if err != nil {
		perr := p.parseError(err)
		if opts.Strict {
			return nil, perr
		}
		n := node.NewError(format.TOML, perr)
		if perr.Line > 0 {
			n.SetMeta("line", perr.Line)
		}
		return n, nil
	}

	root := formats.NormalizeValue(DocumentTitle, doc, formats.NormalizeOptions{
		MaxDepth: opts.MaxDepth,
		TagKey:   "tomlType",
	})
	root.SetMeta("keys", len(doc.Fields))
	return root, nil
}

func (p *Parser) Validate(content string) parser.ValidationResult {
	if strings.TrimSpace(content) == "" {
		return parser.Valid()
	}
	if _, err := decode(content); err != nil {
		return parser.Invalid(p.parseError(err).Error())
	}
	return parser.Valid()
}

func (p *Parser) parseError(err error) *apperrors.ParseError {
	perr := apperrors.NewParse(format.TOML, Metadata.Name, err)
	var terr toml.ParseError
	if errors.As(err, &terr) {
		perr.Message = terr.Message
		perr.Line = terr.Position.Line
	}
	return perr
}

// decode parses content into an ordered value. The decoder yields maps, so
// key order is rebuilt from the metadata's key list.
func decode(content string) (*formats.Value, error) {
	var data map[string]any
	md, err := toml.Decode(content, &data)
	if err != nil {
		return nil, err
	}

	order := make(map[string]int, len(md.Keys()))
	for i, k := range md.Keys() {
		key := k.String()
		if _, seen := order[key]; !seen {
			order[key] = i
		}
	}
	return toValue(data, nil, order), nil
}

// toValue converts a decoded value. path is the key path without array
// indices, which is how the metadata names keys inside arrays of tables.
func toValue(v any, path []string, order map[string]int) *formats.Value {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.SortFunc(keys, func(a, b string) int {
			ia, oka := order[keyString(path, a)]
			ib, okb := order[keyString(path, b)]
			switch {
			case oka && okb:
				return ia - ib
			case oka:
				return -1
			case okb:
				return 1
			}
			return strings.Compare(a, b)
		})
		obj := formats.Object()
		for _, k := range keys {
			obj.Set(k, toValue(val[k], append(slices.Clone(path), k), order))
		}
		return obj
	case []map[string]any:
		arr := formats.Array()
		for _, item := range val {
			arr.Append(toValue(item, path, order))
		}
		return arr
	case []any:
		arr := formats.Array()
		for _, item := range val {
			arr.Append(toValue(item, path, order))
		}
		return arr
	case string:
		s := formats.String(val)
		s.Tag = "string"
		return s
	case bool:
		b := formats.Bool(val)
		b.Tag = "boolean"
		return b
	case int64:
		n := formats.Number(strconv.FormatInt(val, 10))
		n.Tag = "integer"
		return n
	case float64:
		n := formats.Number(floatText(val))
		n.Tag = "float"
		return n
	case time.Time:
		text, tag := timeText(val)
		s := formats.String(text)
		s.Tag = tag
		return s
	case nil:
		return formats.Null()
	default:
		return formats.String(fmt.Sprint(val))
	}
}

// keyString joins a key path the way toml.Key.String does for plain keys.
func keyString(path []string, last string) string {
	return toml.Key(append(slices.Clone(path), last)).String()
}

func floatText(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// timeText formats a datetime the way it is written in TOML. The decoder
// marks local dates and times with named zones.
func timeText(t time.Time) (string, string) {
	switch t.Location().String() {
	case "datetime-local":
		return t.Format("2006-01-02T15:04:05.999999999"), "datetime-local"
	case "date-local":
		return t.Format("2006-01-02"), "date-local"
	case "time-local":
		return t.Format("15:04:05.999999999"), "time-local"
	}
	return t.Format(time.RFC3339Nano), "datetime"
}

package plugin

import (
	"context"
	"math"

	"github.com/itsmostafa/normtree/internal/format"
	"github.com/itsmostafa/normtree/internal/node"
	"github.com/itsmostafa/normtree/internal/parser"
)

// guarded exposes a plugin to a parser.Registry. Parse goes through the
// manager; the cheap probes run on the descriptor instance and a panic in
// them counts as "cannot parse".
type guarded struct {
	m  *Manager
	id string
	p  parser.Parser
}

func (m *Manager) adapter(rec *record) parser.Parser {
	return &guarded{m: m, id: rec.id, p: rec.describe}
}

func (g *guarded) Name() string                      { return g.p.Name() }
func (g *guarded) SupportedFormats() []string        { return g.p.SupportedFormats() }
func (g *guarded) SupportedMIMETypes() []string      { return g.p.SupportedMIMETypes() }
func (g *guarded) Capabilities() parser.Capabilities { return g.p.Capabilities() }
func (g *guarded) Describe() parser.Descriptor       { return g.p.Describe() }

func (g *guarded) CanParse(content string, hints format.Hints) (score float64) {
	defer func() {
		if r := recover(); r != nil {
			g.m.logger.Warn("plugin_error", "plugin", g.id, "operation", "canParse", "error", r)
			score = 0
		}
	}()
	score = g.p.CanParse(content, hints)
	if score < 0 || math.IsNaN(score) {
		return 0
	}
	return min(score, 1)
}

func (g *guarded) Parse(ctx context.Context, content string, opts parser.Options) (*node.Node, error) {
	return g.m.Parse(ctx, g.id, content, opts)
}

func (g *guarded) Validate(content string) (res parser.ValidationResult) {
	defer func() {
		if r := recover(); r != nil {
			res = parser.Invalid("validator panicked")
		}
	}()
	return g.p.Validate(content)
}

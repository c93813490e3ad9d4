package parser

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	apperrors "github.com/itsmostafa/normtree/internal/errors"
	"github.com/itsmostafa/normtree/internal/format"
)

// AutoThreshold is the CanParse score a parser must exceed to win
// auto-detection.
const AutoThreshold = 0.5

// Route names the dispatch step that selected a parser.
type Route string

const (
	RouteFormat    Route = "format"
	RouteMIMEType  Route = "mimeType"
	RouteExtension Route = "extension"
	RouteAuto      Route = "auto"
	RouteDefault   Route = "default"
)

// Resolution is the outcome of a successful dispatch.
type Resolution struct {
	Parser Parser
	Route  Route
	Format string
	Score  float64
}

// Registry maps format ids and MIME types to parsers. It is owned by the
// caller and safe for concurrent use.
type Registry struct {
	mu            sync.RWMutex
	parsers       []Parser
	byFormat      map[string]Parser
	byMIME        map[string]Parser
	defaultFormat string
	logger        *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the registry logger.
func WithLogger(logger *slog.Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDefault sets the format whose parser is the dispatch fallback.
func WithDefault(formatID string) RegistryOption {
	return func(r *Registry) {
		r.defaultFormat = normalize(formatID)
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byFormat: make(map[string]Parser),
		byMIME:   make(map[string]Parser),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a parser to the dispatch tables. A format or MIME type
// already claimed by an earlier parser stays with that parser; the new
// claim is logged and skipped.
func (r *Registry) Register(p Parser) error {
	if p == nil {
		return apperrors.NewValidation("parser", "parser is nil")
	}
	name := strings.TrimSpace(p.Name())
	if name == "" {
		return apperrors.NewValidation("parser", "parser name is empty")
	}
	formats := p.SupportedFormats()
	if len(formats) == 0 {
		return apperrors.NewValidation("parser", fmt.Sprintf("parser %s supports no formats", name))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.parsers {
		if existing.Name() == name {
			return apperrors.NewValidation("parser", fmt.Sprintf("parser %s is already registered", name))
		}
	}

	r.parsers = append(r.parsers, p)
	r.claim(p)
	r.logger.Debug("parser registered", "parser", name, "formats", formats)
	return nil
}

// claim adds p's formats and MIME types to the tables where they are free.
// Callers hold mu.
func (r *Registry) claim(p Parser) {
	for _, f := range p.SupportedFormats() {
		f = normalize(f)
		if f == "" {
			continue
		}
		if owner, ok := r.byFormat[f]; ok {
			if owner.Name() != p.Name() {
				r.logger.Warn("format already claimed, keeping first parser",
					"format", f, "parser", p.Name(), "owner", owner.Name())
			}
			continue
		}
		r.byFormat[f] = p
	}
	for _, m := range p.SupportedMIMETypes() {
		m = normalize(m)
		if m == "" {
			continue
		}
		if owner, ok := r.byMIME[m]; ok {
			if owner.Name() != p.Name() {
				r.logger.Warn("mime type already claimed, keeping first parser",
					"mimeType", m, "parser", p.Name(), "owner", owner.Name())
			}
			continue
		}
		r.byMIME[m] = p
	}
}

// Unregister removes a parser by name. Formats it owned pass to the next
// registered parser that claims them. It reports whether a parser was removed.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx := slices.IndexFunc(r.parsers, func(p Parser) bool { return p.Name() == name })
	if idx < 0 {
		return false
	}
	r.parsers = slices.Delete(r.parsers, idx, idx+1)

	r.byFormat = make(map[string]Parser)
	r.byMIME = make(map[string]Parser)
	for _, p := range r.parsers {
		r.claim(p)
	}
	r.logger.Debug("parser unregistered", "parser", name)
	return true
}

// Get returns the parser owning a format id.
func (r *Registry) Get(formatID string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byFormat[normalize(formatID)]
	return p, ok
}

// ForMIME returns the parser owning a MIME type.
func (r *Registry) ForMIME(mime string) (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.forMIME(mime)
}

func (r *Registry) forMIME(mime string) (Parser, bool) {
	mime = normalize(mime)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = strings.TrimSpace(mime[:i])
	}
	if p, ok := r.byMIME[mime]; ok {
		return p, true
	}
	if f, ok := format.FromMIME(mime); ok {
		p, ok := r.byFormat[f]
		return p, ok
	}
	return nil, false
}

// Parsers returns the registered parsers in registration order.
func (r *Registry) Parsers() []Parser {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.parsers)
}

// Descriptors describes every registered parser.
func (r *Registry) Descriptors() []Descriptor {
	parsers := r.Parsers()
	out := make([]Descriptor, 0, len(parsers))
	for _, p := range parsers {
		out = append(out, p.Describe())
	}
	return out
}

// Formats lists the claimed format ids, sorted.
func (r *Registry) Formats() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byFormat))
	for f := range r.byFormat {
		out = append(out, f)
	}
	slices.Sort(out)
	return out
}

// SetDefault changes the fallback format.
func (r *Registry) SetDefault(formatID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.defaultFormat = normalize(formatID)
}

// Default returns the fallback parser, if one is configured and registered.
func (r *Registry) Default() (Parser, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defaultFormat == "" {
		return nil, false
	}
	p, ok := r.byFormat[r.defaultFormat]
	return p, ok
}

// GetParser selects a parser for content. See Resolve for the order.
func (r *Registry) GetParser(content string, hints format.Hints) (Parser, error) {
	res, err := r.Resolve(content, hints)
	if err != nil {
		return nil, err
	}
	return res.Parser, nil
}

// Resolve selects a parser for content, trying in order: the format hint,
// the MIME hint, the extension or filename hint, the best CanParse score
// above AutoThreshold, and the default parser. Each hint step only accepts
// a parser whose CanParse is positive. Hints are caller intent and win over
// a higher content score from another parser.
func (r *Registry) Resolve(content string, hints format.Hints) (Resolution, error) {
	r.mu.RLock()
	parsers := slices.Clone(r.parsers)
	var hinted []Resolution
	if f := normalize(hints.Format); f != "" {
		if p, ok := r.byFormat[f]; ok {
			hinted = append(hinted, Resolution{Parser: p, Route: RouteFormat, Format: f})
		}
	}
	if hints.MIMEType != "" {
		if p, ok := r.forMIME(hints.MIMEType); ok {
			f, _ := format.FromMIME(hints.MIMEType)
			hinted = append(hinted, Resolution{Parser: p, Route: RouteMIMEType, Format: f})
		}
	}
	if f, ok := format.FromHints(hints); ok {
		if p, ok := r.byFormat[f]; ok {
			hinted = append(hinted, Resolution{Parser: p, Route: RouteExtension, Format: f})
		}
	}
	var fallback Parser
	if r.defaultFormat != "" {
		fallback = r.byFormat[r.defaultFormat]
	}
	defaultFormat := r.defaultFormat
	r.mu.RUnlock()

	// Parsers run outside the lock; CanParse may be arbitrarily slow.
	for _, res := range hinted {
		if res.Score = res.Parser.CanParse(content, hints); res.Score > 0 {
			if res.Format == "" {
				res.Format = firstFormat(res.Parser)
			}
			return res, nil
		}
	}

	var best Parser
	bestScore := 0.0
	for _, p := range parsers {
		if score := p.CanParse(content, hints); score > bestScore {
			best, bestScore = p, score
		}
	}
	if best != nil && bestScore > AutoThreshold {
		return Resolution{Parser: best, Route: RouteAuto, Format: firstFormat(best), Score: bestScore}, nil
	}

	if fallback != nil {
		if score := fallback.CanParse(content, hints); score > 0 {
			return Resolution{Parser: fallback, Route: RouteDefault, Format: defaultFormat, Score: score}, nil
		}
	}

	requested := normalize(hints.Format)
	if len(parsers) == 0 {
		return Resolution{}, apperrors.NewFormat(requested, "no parsers registered")
	}
	return Resolution{}, apperrors.NewFormat(requested, "no registered parser accepted the content")
}

func firstFormat(p Parser) string {
	if formats := p.SupportedFormats(); len(formats) > 0 {
		return normalize(formats[0])
	}
	return ""
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

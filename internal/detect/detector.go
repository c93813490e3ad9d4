// Package detect classifies raw content into a format using caller hints
// and weighted signature rules.
package detect

import (
	"encoding/json"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/itsmostafa/normtree/internal/format"
)

// ReliableThreshold is the confidence at or above which a detection is
// considered reliable.
const ReliableThreshold = 0.6

// Source records what decided a detection.
type Source string

const (
	SourceHint     Source = "hint"
	SourceMIMEType Source = "mimeType"
	SourceFilename Source = "filename"
	SourceContent  Source = "content"
	SourceDefault  Source = "default"
)

// Confidence levels for the hint short-circuits and the fallback.
const (
	hintConfidence     = 1.0
	mimeConfidence     = 0.9
	filenameConfidence = 0.8
	defaultConfidence  = 0.3
	maxConfidence      = 0.95
)

// Alternative is a runner-up classification.
type Alternative struct {
	Format     string  `json:"format"`
	Confidence float64 `json:"confidence"`
}

// Result is the outcome of Detect.
type Result struct {
	Format       string        `json:"format"`
	Confidence   float64       `json:"confidence"`
	Source       Source        `json:"source"`
	Alternatives []Alternative `json:"alternatives"`
}

// Reliable reports whether the confidence reaches ReliableThreshold.
func (r Result) Reliable() bool {
	return IsReliable(r.Confidence)
}

// IsReliable reports whether a confidence reaches ReliableThreshold.
func IsReliable(confidence float64) bool {
	return confidence >= ReliableThreshold
}

var (
	openTagPattern  = regexp.MustCompile(`<[a-zA-Z][\w-]*(\s[^<>]*)?>`)
	closeTagPattern = regexp.MustCompile(`</[a-zA-Z][\w-]*\s*>`)
	headingPattern  = regexp.MustCompile(`(?m)^#{1,6}\s+\S`)
	titleKeyPattern = regexp.MustCompile(`(?m)^\s*-?\s*title:`)
	childKeyPattern = regexp.MustCompile(`(?m)^\s*-?\s*children:`)
)

// Detector scores content against every known format. It holds only its
// static rule tables and is safe for concurrent use.
type Detector struct {
	order      []string
	signatures map[string][]Signature
}

// New creates a detector over the built-in signature tables.
func New() *Detector {
	return &Detector{order: formatOrder, signatures: signatures}
}

var defaultDetector = New()

// Detect classifies content with the default detector.
func Detect(content string, hints format.Hints) Result {
	return defaultDetector.Detect(content, hints)
}

// Score returns the default detector's content confidence for one format.
func Score(f, content string) float64 {
	return defaultDetector.Score(f, content)
}

// Formats lists the formats this detector can recognize from content.
func (d *Detector) Formats() []string {
	return append([]string(nil), d.order...)
}

// Detect classifies content. Hints are consulted first in the order
// format, MIME type, filename/extension; content analysis runs only when
// none of them resolves.
func (d *Detector) Detect(content string, hints format.Hints) Result {
	if f := strings.ToLower(strings.TrimSpace(hints.Format)); f != "" {
		return Result{Format: f, Confidence: hintConfidence, Source: SourceHint, Alternatives: []Alternative{}}
	}
	if f, ok := format.FromMIME(hints.MIMEType); ok {
		return Result{Format: f, Confidence: mimeConfidence, Source: SourceMIMEType, Alternatives: []Alternative{}}
	}
	if f, ok := format.FromHints(hints); ok {
		return Result{Format: f, Confidence: filenameConfidence, Source: SourceFilename, Alternatives: []Alternative{}}
	}
	return d.analyze(content)
}

func (d *Detector) analyze(content string) Result {
	var scored []Alternative
	for _, f := range d.order {
		if c := d.Score(f, content); c > 0 {
			scored = append(scored, Alternative{Format: f, Confidence: c})
		}
	}
	if len(scored) == 0 {
		return Result{
			Format:       format.Plain,
			Confidence:   defaultConfidence,
			Source:       SourceDefault,
			Alternatives: []Alternative{},
		}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Confidence > scored[j].Confidence
	})

	alternatives := append([]Alternative{}, scored[1:min(len(scored), 3)]...)
	return Result{
		Format:       scored[0].Format,
		Confidence:   scored[0].Confidence,
		Source:       SourceContent,
		Alternatives: alternatives,
	}
}

// Score evaluates one format's signature rules against content and returns
// the adjusted confidence, or 0 when no rule matches.
func (d *Detector) Score(f, content string) float64 {
	rules := d.signatures[f]
	if len(rules) == 0 || strings.TrimSpace(content) == "" {
		return 0
	}

	var weighted, totalWeight float64
	matches := 0
	for _, rule := range rules {
		if rule.Pattern.MatchString(content) {
			weighted += rule.Confidence * rule.Weight
			totalWeight += rule.Weight
			matches++
		}
	}
	if matches == 0 || totalWeight == 0 {
		return 0
	}

	base := weighted / totalWeight
	confidence := base * math.Min(1+float64(matches-1)*0.1, 1.5)
	confidence *= formatAdjustment(f, content)

	switch {
	case len(content) < 50:
		confidence *= 0.7
	case len(content) > 10000 && base < 0.6:
		confidence *= 0.8
	}
	return math.Min(confidence, maxConfidence)
}

func formatAdjustment(f, content string) float64 {
	switch f {
	case format.JSON:
		if json.Valid([]byte(content)) {
			return 1.2
		}
		return 0.6
	case format.YAML:
		if titleKeyPattern.MatchString(content) && childKeyPattern.MatchString(content) {
			return 1.15
		}
	case format.Markdown:
		if len(headingPattern.FindAllStringIndex(content, 3)) > 2 {
			return 1.1
		}
	case format.HTML:
		if tagsBalanced(content) {
			return 1.1
		}
	}
	return 1
}

// tagsBalanced reports whether open and close tag counts differ by less
// than 30%.
func tagsBalanced(content string) bool {
	opens := len(openTagPattern.FindAllStringIndex(content, -1))
	closes := len(closeTagPattern.FindAllStringIndex(content, -1))
	if opens == 0 && closes == 0 {
		return false
	}
	larger := math.Max(float64(opens), float64(closes))
	return math.Abs(float64(opens-closes))/larger < 0.3
}

// Package csv is an example plugin that turns delimited text into one node
// per record. It is registered through the plugin manager like any
// third-party parser.
package csv

import (
	"context"
	stdcsv "encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	apperrors "github.com/itsmostafa/normtree/internal/errors"
	"github.com/itsmostafa/normtree/internal/detect"
	"github.com/itsmostafa/normtree/internal/format"
	"github.com/itsmostafa/normtree/internal/node"
	"github.com/itsmostafa/normtree/internal/parser"
	"github.com/itsmostafa/normtree/internal/plugin"
)

// DocumentTitle is the title of the root node.
const DocumentTitle = "CSV Document"

// Delimiters are tried in this order when none is configured.
var Delimiters = []rune{',', ';', '\t', '|'}

const (
	sniffLines     = 10
	maxValidateErr = 10
)

// Metadata identifies the plugin.
var Metadata = plugin.Metadata{
	Name:        "csv",
	Version:     "1.0.0",
	Author:      "normtree",
	Description: "Delimited text with one node per record, columns from the header row",
}

// Module returns the plugin module for Manager.Register.
func Module() plugin.Module {
	return plugin.Module{
		Metadata: Metadata,
		New:      func() parser.Parser { return New() },
	}
}

// Parser parses CSV and other delimited text.
//
// Options.Extra understands "header" (bool, default true) and "delimiter"
// (a single character, or "tab").
type Parser struct{}

// New creates a Parser.
func New() *Parser {
	return &Parser{}
}

func (p *Parser) Name() string { return Metadata.Name }

func (p *Parser) SupportedFormats() []string { return []string{format.CSV, "tsv"} }

func (p *Parser) SupportedMIMETypes() []string {
	return []string{"text/csv", "text/tab-separated-values", "application/csv"}
}

func (p *Parser) Capabilities() parser.Capabilities {
	return parser.Capabilities{Validation: true, Metadata: true}
}

func (p *Parser) Describe() parser.Descriptor {
	d := parser.Describe(p)
	d.Version = Metadata.Version
	d.Description = Metadata.Description
	return d
}

func (p *Parser) CanParse(content string, hints format.Hints) float64 {
	score := detect.Score(format.CSV, content)
	if hinted(hints) {
		score = max(score, 0.5)
	}
	if delim, consistent, lines := sniff(content); consistent && lines >= 2 {
		if delim == ',' || delim == '\t' {
			score = max(score, 0.7)
		} else {
			score = max(score, 0.6)
		}
	}
	return score
}

func hinted(h format.Hints) bool {
	switch strings.ToLower(strings.TrimSpace(h.Format)) {
	case format.CSV, "tsv":
		return true
	}
	if f, ok := format.FromMIME(h.MIMEType); ok && f == format.CSV {
		return true
	}
	switch h.Ext() {
	case "csv", "tsv":
		return true
	}
	return false
}

func (p *Parser) Parse(ctx context.Context, content string, opts parser.Options) (*node.Node, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(content) == "" {
		return node.NewEmpty(format.CSV), nil
	}

	delim := delimiter(content, opts)
	r := newReader(content, delim)
	r.FieldsPerRecord = -1

	records, lines, err := readAll(ctx, r)
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		perr := p.parseError(err)
		if opts.Strict {
			return nil, perr
		}
		n := node.NewError(format.CSV, perr)
		if perr.Line > 0 {
			n.SetMeta("line", perr.Line)
		}
		return n, nil
	}

	header := true
	if v, ok := opts.Extra["header"].(bool); ok {
		header = v
	}
	return build(records, lines, delim, header), nil
}

func readAll(ctx context.Context, r *stdcsv.Reader) ([][]string, []int, error) {
	var records [][]string
	var lines []int
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			return records, lines, nil
		}
		if err != nil {
			return nil, nil, err
		}
		line, _ := r.FieldPos(0)
		records = append(records, rec)
		lines = append(lines, line)
	}
}

func build(records [][]string, lines []int, delim rune, header bool) *node.Node {
	root := node.New(DocumentTitle, "", node.ContentPlain)
	root.SetMeta("delimiter", string(delim))

	width := 0
	for _, rec := range records {
		width = max(width, len(rec))
	}
	var columns []string
	if header && len(records) > 0 {
		columns = columnNames(records[0], width)
		records, lines = records[1:], lines[1:]
	} else {
		columns = columnNames(nil, width)
	}
	root.SetMeta("columns", columns)
	root.SetMeta("rows", len(records))
	root.Content = fmt.Sprintf("%d rows, %d columns", len(records), len(columns))

	for i, rec := range records {
		root.Add(rowNode(i+1, lines[i], columns, rec))
	}
	return root
}

func rowNode(index, line int, columns, rec []string) *node.Node {
	title := ""
	if len(rec) > 0 {
		title = strings.TrimSpace(rec[0])
	}
	if title == "" {
		title = "Row " + strconv.Itoa(index)
	}

	fields := make(map[string]any, len(rec))
	var sb strings.Builder
	for j, value := range rec {
		col := columns[j]
		fields[col] = value
		if sb.Len() > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(col)
		sb.WriteString(": ")
		sb.WriteString(value)
	}

	n := node.New(title, sb.String(), node.ContentPlain)
	n.SetMeta("row", index)
	n.SetMeta("fields", fields)
	if line > 0 {
		n.SetMeta("line", line)
	}
	if len(rec) != len(columns) {
		n.SetMeta("fieldCount", len(rec))
	}
	return n
}

// columnNames names width columns from a header row. Blank names become
// column_N and repeated names get a numeric suffix.
func columnNames(head []string, width int) []string {
	out := make([]string, width)
	seen := make(map[string]int, width)
	for i := range width {
		name := ""
		if i < len(head) {
			name = strings.TrimSpace(head[i])
		}
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = name + "_" + strconv.Itoa(n)
		}
		out[i] = name
	}
	return out
}

func (p *Parser) Validate(content string) parser.ValidationResult {
	if strings.TrimSpace(content) == "" {
		return parser.Valid()
	}
	r := newReader(content, delimiter(content, parser.Options{}))

	var errs []string
	for len(errs) < maxValidateErr {
		_, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			errs = append(errs, err.Error())
			if !errors.Is(err, stdcsv.ErrFieldCount) {
				break
			}
		}
	}
	if len(errs) == 0 {
		return parser.Valid()
	}
	return parser.Invalid(errs...)
}

func (p *Parser) parseError(err error) *apperrors.ParseError {
	perr := apperrors.NewParse(format.CSV, Metadata.Name, err)
	var cerr *stdcsv.ParseError
	if errors.As(err, &cerr) {
		perr.Line = cerr.Line
	}
	return perr
}

func newReader(content string, delim rune) *stdcsv.Reader {
	r := stdcsv.NewReader(strings.NewReader(content))
	r.Comma = delim
	r.TrimLeadingSpace = delim != '\t'
	return r
}

// delimiter returns the configured delimiter or sniffs one from content.
func delimiter(content string, opts parser.Options) rune {
	if s, ok := opts.Extra["delimiter"].(string); ok {
		switch {
		case strings.EqualFold(s, "tab") || s == `\t`:
			return '\t'
		case s != "":
			return []rune(s)[0]
		}
	}
	if (format.Hints{Filename: opts.Filename}).Ext() == "tsv" {
		return '\t'
	}
	delim, _, _ := sniff(content)
	return delim
}

// sniff picks the delimiter that occurs the same number of times on each of
// the first non-blank lines, preferring the one with most columns. Without a
// consistent candidate it falls back to the most frequent one, then ','.
func sniff(content string) (delim rune, consistent bool, lines int) {
	var sample []string
	for line := range strings.Lines(content) {
		line = strings.TrimRight(line, "\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}
		sample = append(sample, line)
		if len(sample) == sniffLines {
			break
		}
	}
	if len(sample) == 0 {
		return ',', false, 0
	}

	delim = ','
	bestCount, bestTotal := 0, 0
	for _, d := range Delimiters {
		count := countOutsideQuotes(sample[0], d)
		total := count
		same := count > 0
		for _, line := range sample[1:] {
			c := countOutsideQuotes(line, d)
			total += c
			if c != count {
				same = false
			}
		}
		switch {
		case same && (!consistent || count > bestCount):
			delim, consistent, bestCount = d, true, count
		case !consistent && total > bestTotal:
			delim, bestTotal = d, total
		}
	}
	return delim, consistent, len(sample)
}

func countOutsideQuotes(line string, d rune) int {
	n := 0
	quoted := false
	for _, r := range line {
		switch {
		case r == '"':
			quoted = !quoted
		case r == d && !quoted:
			n++
		}
	}
	return n
}

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/mattn/go-runewidth"

	"github.com/itsmostafa/normtree/internal/detect"
	"github.com/itsmostafa/normtree/internal/engine"
	"github.com/itsmostafa/normtree/internal/node"
	"github.com/itsmostafa/normtree/internal/parser"
	"github.com/itsmostafa/normtree/internal/plugin"
)

var (
	// titleStyle for bold headers
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("33"))

	// dimStyle for muted metadata text
	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	// successStyle for reliable results
	successStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	// warnStyle for unreliable results
	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220"))

	// errorStyle for error nodes
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))

	// boxStyle for summary boxes
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("33")).
			Padding(0, 1)
)

// writeJSON prints v as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// formatConfidence renders a confidence as a percentage, colored by
// reliability.
func formatConfidence(c float64) string {
	s := fmt.Sprintf("%.0f%%", c*100)
	if detect.IsReliable(c) {
		return successStyle.Render(s)
	}
	return warnStyle.Render(s)
}

// FormatDetection renders a detection result box.
func FormatDetection(w io.Writer, res detect.Result) {
	lines := []string{
		titleStyle.Render("Detected " + res.Format),
		fmt.Sprintf("%s %s  %s %s",
			dimStyle.Render("Confidence:"), formatConfidence(res.Confidence),
			dimStyle.Render("Source:"), string(res.Source),
		),
	}
	if len(res.Alternatives) > 0 {
		alts := make([]string, len(res.Alternatives))
		for i, alt := range res.Alternatives {
			alts[i] = fmt.Sprintf("%s %s", alt.Format, formatConfidence(alt.Confidence))
		}
		lines = append(lines, dimStyle.Render("Alternatives:")+" "+strings.Join(alts, ", "))
	}
	fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
}

// FormatOutline renders a tree as an indented outline, one node per line.
// Titles are cut to fit width display columns; width <= 0 disables it.
func FormatOutline(w io.Writer, root *node.Node, width int) {
	arena := node.Flatten(root)
	for _, e := range arena.Entries {
		indent := strings.Repeat("  ", e.Depth)
		marker := "•"
		if len(e.Children) > 0 {
			marker = "▸"
		}

		detail := e.Node.ContentType
		if size := len(e.Node.Content); size > 0 {
			detail += ", " + humanize.Bytes(uint64(size))
		}
		if n := len(e.Children); n > 0 {
			detail += ", " + humanize.Comma(int64(n)) + " children"
		}

		prefix := fmt.Sprintf("%s%s %s ", indent, dimStyle.Render(e.ID), marker)
		title := e.Title
		if width > 0 {
			room := width - runewidth.StringWidth(indent) - len(e.ID) - 3 - runewidth.StringWidth(detail) - 3
			title = runewidth.Truncate(title, max(room, 8), "…")
		}
		switch e.Node.ContentType {
		case node.ContentError:
			title = errorStyle.Render(title)
		default:
			if e.Depth == 0 {
				title = titleStyle.Render(title)
			}
		}
		fmt.Fprintf(w, "%s%s %s\n", prefix, title, dimStyle.Render("("+detail+")"))
	}
}

// FormatNode renders one node with its breadcrumb and content.
func FormatNode(w io.Writer, arena *node.Arena, idx int) {
	e := arena.Entries[idx]
	fmt.Fprintln(w, dimStyle.Render(strings.Join(arena.Path(idx), " › ")))
	fmt.Fprintln(w, titleStyle.Render(e.Title))
	if e.Node.Content != "" {
		fmt.Fprintln(w, e.Node.Content)
	}
	if len(e.Node.Metadata) > 0 {
		b, _ := json.Marshal(e.Node.Metadata)
		fmt.Fprintln(w, dimStyle.Render(string(b)))
	}
}

// FormatParseSummary renders the box shown after an outline.
func FormatParseSummary(w io.Writer, res *engine.Result) {
	line1 := fmt.Sprintf("%s %s  %s %s  %s %s",
		dimStyle.Render("Parser:"), res.Parser.Name,
		dimStyle.Render("Route:"), string(res.Route),
		dimStyle.Render("Format:"), res.Format,
	)
	line2 := fmt.Sprintf("%s %s  %s %s  %s %s",
		dimStyle.Render("Nodes:"), humanize.Comma(int64(res.Tree.Count())),
		dimStyle.Render("Detected:"), formatConfidence(res.Detection.Confidence),
		dimStyle.Render("Time:"), formatDuration(res.Duration),
	)
	content := titleStyle.Render("Parse Complete") + "\n" + line1 + "\n" + line2
	fmt.Fprintln(w, boxStyle.Render(content))
}

// FormatParsers renders one line per registered parser.
func FormatParsers(w io.Writer, descs []parser.Descriptor) {
	for _, d := range descs {
		fmt.Fprintf(w, "%s %s\n", titleStyle.Render(d.Name), dimStyle.Render(d.Version))
		fmt.Fprintf(w, "  %s %s\n", dimStyle.Render("Formats:"), strings.Join(d.Formats, ", "))
		if len(d.MIMETypes) > 0 {
			fmt.Fprintf(w, "  %s %s\n", dimStyle.Render("MIME:"), strings.Join(d.MIMETypes, ", "))
		}
		fmt.Fprintf(w, "  %s %s\n", dimStyle.Render("Capabilities:"), capabilities(d.Capabilities))
		if d.Description != "" {
			fmt.Fprintf(w, "  %s\n", d.Description)
		}
	}
}

func capabilities(c parser.Capabilities) string {
	var out []string
	for _, f := range []struct {
		on   bool
		name string
	}{
		{c.Validation, "validation"},
		{c.Metadata, "metadata"},
		{c.MaxDepth, "max-depth"},
		{c.Streaming, "streaming"},
		{c.PartialParse, "partial-parse"},
		{c.Bidirectional, "bidirectional"},
	} {
		if f.on {
			out = append(out, f.name)
		}
	}
	if len(out) == 0 {
		return "none"
	}
	return strings.Join(out, ", ")
}

// FormatPlugins renders one box per registered plugin.
func FormatPlugins(w io.Writer, infos []plugin.Info) {
	if len(infos) == 0 {
		fmt.Fprintln(w, dimStyle.Render("No plugins registered"))
		return
	}
	for _, info := range infos {
		m := info.Metrics
		lines := []string{
			fmt.Sprintf("%s %s %s", titleStyle.Render(info.FormatID), info.Metadata.Name, dimStyle.Render(info.Metadata.Version)),
			fmt.Sprintf("%s %s  %s %s", dimStyle.Render("Kind:"), string(info.Kind), dimStyle.Render("Author:"), info.Metadata.Author),
			info.Metadata.Description,
			fmt.Sprintf("%s %s, %s nodes",
				dimStyle.Render("Limits:"), formatDuration(info.Limits.MaxParseTime), humanize.Comma(int64(info.Limits.MaxNodeCount))),
			fmt.Sprintf("%s %d calls, %d errors, avg %s",
				dimStyle.Render("Metrics:"), m.Invocations, m.Errors, formatDuration(m.AverageDuration)),
		}
		if !m.LastInvoked.IsZero() {
			lines = append(lines, dimStyle.Render("Last used "+humanize.Time(m.LastInvoked)))
		}
		if m.LastError != "" {
			lines = append(lines, errorStyle.Render(m.LastError))
		}
		fmt.Fprintln(w, boxStyle.Render(strings.Join(lines, "\n")))
	}
}

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0s"
	case d < time.Millisecond:
		return d.Round(time.Microsecond).String()
	case d < time.Second:
		return d.Round(100 * time.Microsecond).String()
	}
	return d.Round(time.Millisecond).String()
}

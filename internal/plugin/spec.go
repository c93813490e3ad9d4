package plugin

import (
	"slices"
	"strings"

	"github.com/itsmostafa/normtree/internal/format"
	"github.com/itsmostafa/normtree/internal/parser"
)

// Spec describes a parser that is not written in Go: which formats it
// handles and how it identifies itself.
type Spec struct {
	Metadata
	// Format is the primary format id.
	Format string
	// Formats are additional format ids.
	Formats      []string
	MIMETypes    []string
	Extensions   []string
	Capabilities parser.Capabilities
}

func (s Spec) formats() []string {
	out := []string{}
	for _, f := range append([]string{s.Format}, s.Formats...) {
		f = strings.ToLower(strings.TrimSpace(f))
		if f != "" && !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}

func (s Spec) primary() string {
	if fs := s.formats(); len(fs) > 0 {
		return fs[0]
	}
	return ""
}

// hinted reports whether any hint names one of the spec's formats.
func (s Spec) hinted(h format.Hints) bool {
	fs := s.formats()
	if f := strings.ToLower(strings.TrimSpace(h.Format)); f != "" && slices.Contains(fs, f) {
		return true
	}
	if mime := strings.ToLower(strings.TrimSpace(h.MIMEType)); mime != "" {
		if i := strings.IndexByte(mime, ';'); i >= 0 {
			mime = strings.TrimSpace(mime[:i])
		}
		if slices.Contains(s.MIMETypes, mime) {
			return true
		}
	}
	if ext := h.Ext(); ext != "" {
		for _, e := range s.Extensions {
			if strings.TrimPrefix(strings.ToLower(e), ".") == ext {
				return true
			}
		}
		if slices.Contains(fs, ext) {
			return true
		}
	}
	return false
}

func (s Spec) describe() parser.Descriptor {
	return parser.Descriptor{
		Name:         s.Name,
		Version:      s.Version,
		Description:  s.Description,
		Formats:      s.formats(),
		MIMETypes:    slices.Clone(s.MIMETypes),
		Capabilities: s.Capabilities,
	}
}

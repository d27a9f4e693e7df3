// Package citations builds bibliographies from research sessions and checks the bibliographies of finished
// reports for fabricated entries.
package citations

import (
	"crypto/md5" //nolint:gosec // ids only need to be stable, not secure
	"encoding/hex"
	"fmt"
	"github.com/myrjola/deepresearch/internal/errors"
	"github.com/myrjola/deepresearch/internal/research"
	"log/slog"
	"strings"
	"time"
)

// Style selects how Render formats references.
type Style string

const (
	StyleAPA      Style = "apa"
	StyleMarkdown Style = "markdown"
)

var ErrUnknownStyle = errors.NewSentinel("unknown citation style")

func ParseStyle(s string) (Style, error) {
	switch style := Style(strings.ToLower(strings.TrimSpace(s))); style {
	case StyleAPA, StyleMarkdown:
		return style, nil
	default:
		return "", errors.Wrap(ErrUnknownStyle, "parse style", slog.String("style", s))
	}
}

// Reference is one bibliography entry.
type Reference struct {
	// ID is derived from the URL, see ReferenceID.
	ID              string
	Title           string
	URL             string
	Authors         []string
	PublicationDate string
	RetrievedAt     time.Time
	SourceType      research.SourceType
	DOI             string
	// Count is how many times the reference was added.
	Count int
}

// ReferenceID returns the stable identifier of the reference for url.
func ReferenceID(url string) string {
	sum := md5.Sum([]byte(url)) //nolint:gosec // see import
	return hex.EncodeToString(sum[:])[:8]
}

// APA formats the reference in APA style prefixed with its number.
func (r Reference) APA(index int) string {
	var author string
	switch len(r.Authors) {
	case 0:
	case 1:
		author = r.Authors[0] + "."
	case 2: //nolint:mnd // two authors are joined, more are abbreviated
		author = r.Authors[0] + " & " + r.Authors[1] + "."
	default:
		author = r.Authors[0] + " et al."
	}
	date := "(n.d.)"
	if r.PublicationDate != "" {
		date = "(" + r.PublicationDate + ")"
	}
	parts := []string{fmt.Sprintf("[%d]", index)}
	if author != "" {
		parts = append(parts, author)
	}
	parts = append(parts, date+".", r.Title+".",
		fmt.Sprintf("Retrieved %s, from %s", r.RetrievedAt.Format(time.DateOnly), r.URL))
	return strings.Join(parts, " ")
}

// Markdown formats the reference as a numbered markdown link.
func (r Reference) Markdown(index int) string {
	return fmt.Sprintf("[%d] [%s](%s) (Retrieved: %s)", index, r.Title, r.URL, r.RetrievedAt.Format(time.DateOnly))
}

// Inline is the marker used in report prose.
func (r Reference) Inline(index int) string {
	return fmt.Sprintf("[%d]", index)
}

// Bibliography numbers references in the order they were first added.
type Bibliography struct {
	refs  map[string]*Reference
	order []string
	now   func() time.Time
}

func NewBibliography() *Bibliography {
	return &Bibliography{
		refs:  map[string]*Reference{},
		order: nil,
		now:   time.Now,
	}
}

// FromSession adds every source of s in session order.
func FromSession(s *research.Session) *Bibliography {
	b := NewBibliography()
	for _, src := range s.Sources {
		b.Add(Reference{ //nolint:exhaustruct // sources carry no author or DOI data
			Title:       src.Title,
			URL:         src.URL,
			RetrievedAt: src.RetrievedAt,
			SourceType:  src.SourceType,
		})
	}
	return b
}

// Add records a use of ref and returns its id. Adding a URL again only increments its count.
func (b *Bibliography) Add(ref Reference) string {
	id := ReferenceID(ref.URL)
	existing, ok := b.refs[id]
	if !ok {
		ref.ID = id
		ref.Count = 0
		if ref.RetrievedAt.IsZero() {
			ref.RetrievedAt = b.now()
		}
		if ref.SourceType == "" {
			ref.SourceType = research.SourceTypeWeb
		}
		existing = &ref
		b.refs[id] = existing
		b.order = append(b.order, id)
	}
	existing.Count++
	return id
}

// Number returns the 1-based citation number of id.
func (b *Bibliography) Number(id string) (int, bool) {
	for i, candidate := range b.order {
		if candidate == id {
			return i + 1, true
		}
	}
	return 0, false
}

// Cite returns the inline marker for id.
func (b *Bibliography) Cite(id string) (string, bool) {
	n, ok := b.Number(id)
	if !ok {
		return "", false
	}
	return b.refs[id].Inline(n), true
}

// References returns copies of the references in citation order.
func (b *Bibliography) References() []Reference {
	refs := make([]Reference, 0, len(b.order))
	for _, id := range b.order {
		refs = append(refs, *b.refs[id])
	}
	return refs
}

func (b *Bibliography) Len() int {
	return len(b.order)
}

// Render returns the bibliography section of a report.
func (b *Bibliography) Render(style Style) string {
	var sb strings.Builder
	sb.WriteString("## Bibliography\n\n")
	for i, ref := range b.References() {
		if style == StyleMarkdown {
			sb.WriteString(ref.Markdown(i + 1))
		} else {
			sb.WriteString(ref.APA(i + 1))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

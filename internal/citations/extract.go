package citations

import (
	"github.com/myrjola/deepresearch/internal/errors"
	"regexp"
	"strconv"
	"strings"
)

var ErrNoBibliography = errors.NewSentinel("no Bibliography section found")

var (
	bibliographySection = regexp.MustCompile(`(?is)## Bibliography(.*?)(?:##|\z)`)
	entryStart          = regexp.MustCompile(`^\[(\d+)\]\s+(.+)$`)
	entryYear           = regexp.MustCompile(`\((\d{4})\)`)
	entryTitle          = regexp.MustCompile(`"([^"]+)"`)
	entryDOI            = regexp.MustCompile(`doi\.org/(10\.\S+)`)
	entryURL            = regexp.MustCompile(`https?://[^\s)]+`)
)

// Entry is a bibliography line parsed from a report.
type Entry struct {
	Number int
	// Raw is the entry text after the number, continuation lines joined with a space.
	Raw   string
	Year  string
	Title string
	DOI   string
	URL   string
}

// ExtractBibliography parses the "## Bibliography" section of a markdown report. Entries look like:
//
//	[N] Author (Year). "Title". Venue. URL
func ExtractBibliography(report string) ([]Entry, error) {
	match := bibliographySection.FindStringSubmatch(report)
	if match == nil {
		return nil, errors.Wrap(ErrNoBibliography, "extract bibliography")
	}

	var (
		entries []Entry
		current *Entry
	)
	for _, line := range strings.Split(strings.TrimSpace(match[1]), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := entryStart.FindStringSubmatch(line)
		if m == nil {
			if current != nil {
				// The identifiers are only parsed from the first line.
				current.Raw += " " + line
			}
			continue
		}
		if current != nil {
			entries = append(entries, *current)
		}
		n, _ := strconv.Atoi(m[1])
		current = &Entry{
			Number: n,
			Raw:    m[2],
			Year:   firstGroup(entryYear, m[2]),
			Title:  firstGroup(entryTitle, m[2]),
			DOI:    strings.TrimRight(firstGroup(entryDOI, m[2]), ".,;"),
			URL:    entryURL.FindString(m[2]),
		}
	}
	if current != nil {
		entries = append(entries, *current)
	}
	return entries, nil
}

func firstGroup(re *regexp.Regexp, s string) string {
	if m := re.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return ""
}

package research

import (
	"slices"
	"time"
)

// FormatVersion is stamped into every new session and is the only snapshot version Restore accepts.
const FormatVersion = "1.0"

// Finding is an open-ended record produced by retrieval, triangulation or refinement.
type Finding = map[string]any

// Metadata is fixed when the session is created.
type Metadata struct {
	ID        string    `json:"id"`
	StartedAt time.Time `json:"started_at"`
	Version   string    `json:"version"`
}

// Session is the complete mutable record of one research run.
//
// Phase only moves forward through ActivePhases(Mode). Once Closed is set the session is no longer mutated.
type Session struct {
	Query     string         `json:"query"`
	Mode      Mode           `json:"mode"`
	Phase     Phase          `json:"phase"`
	Scope     map[string]any `json:"scope"`
	Plan      map[string]any `json:"plan"`
	Sources   []Source       `json:"sources"`
	Findings  []Finding      `json:"findings"`
	Synthesis map[string]any `json:"synthesis"`
	Critique  map[string]any `json:"critique"`
	Report    string         `json:"report"`
	Metadata  Metadata       `json:"metadata"`
	Closed    bool           `json:"closed"`
}

// ID returns the session identifier from the metadata.
func (s *Session) ID() string {
	return s.Metadata.ID
}

// SourceByURL returns the index of the source with url or -1.
func (s *Session) SourceByURL(url string) int {
	return slices.IndexFunc(s.Sources, func(src Source) bool { return src.URL == url })
}

// Progress returns the 1-based position of the current phase and the number of active phases.
func (s *Session) Progress() (current int, total int) {
	return Position(s.Mode, s.Phase) + 1, len(activePhases[s.Mode])
}

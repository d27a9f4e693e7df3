package research

import (
	"fmt"
	"github.com/myrjola/deepresearch/internal/errors"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// SourceType classifies where a source came from.
type SourceType string

const (
	SourceTypeWeb           SourceType = "web"
	SourceTypeAcademic      SourceType = "academic"
	SourceTypeDocumentation SourceType = "documentation"
	SourceTypeCode          SourceType = "code"
)

var sourceTypes = []SourceType{SourceTypeWeb, SourceTypeAcademic, SourceTypeDocumentation, SourceTypeCode}

func (t SourceType) Valid() bool {
	return slices.Contains(sourceTypes, t)
}

// VerificationStatus tracks whether a source's claims survived triangulation.
type VerificationStatus string

const (
	StatusUnverified VerificationStatus = "unverified"
	StatusVerified   VerificationStatus = "verified"
	StatusConflicted VerificationStatus = "conflicted"
)

var verificationStatuses = []VerificationStatus{StatusUnverified, StatusVerified, StatusConflicted}

func (s VerificationStatus) Valid() bool {
	return slices.Contains(verificationStatuses, s)
}

// CanTransition reports whether a source may move from s to next. Unverified sources may become verified or
// conflicted and both of those may only be reset to unverified when a later contradiction is found.
func (s VerificationStatus) CanTransition(next VerificationStatus) bool {
	switch {
	case !next.Valid():
		return false
	case s == next:
		return true
	case s == StatusUnverified:
		return true
	default:
		return next == StatusUnverified
	}
}

// Source is a single piece of retrieved information. The URL identifies it within a session.
type Source struct {
	URL                string             `json:"url" yaml:"url"`
	Title              string             `json:"title" yaml:"title"`
	Snippet            string             `json:"snippet" yaml:"snippet"`
	RetrievedAt        time.Time          `json:"retrieved_at" yaml:"retrieved_at"`
	CredibilityScore   float64            `json:"credibility_score" yaml:"credibility_score"`
	SourceType         SourceType         `json:"source_type" yaml:"source_type"`
	VerificationStatus VerificationStatus `json:"verification_status" yaml:"verification_status"`
}

// Citation renders the source as a numbered bibliography line.
func (s Source) Citation(index int) string {
	return fmt.Sprintf("[%d] %s - %s (Retrieved: %s)", index, s.Title, s.URL, s.RetrievedAt.Format(time.DateOnly))
}

// normalize fills defaults for a newly retrieved source and validates it.
func (s Source) normalize(now time.Time) (Source, error) {
	s.URL = strings.TrimSpace(s.URL)
	if s.URL == "" {
		return Source{}, errors.Wrap(ErrInvalidSource, "url is empty", slog.String("title", s.Title))
	}
	if s.RetrievedAt.IsZero() {
		s.RetrievedAt = now
	}
	s.RetrievedAt = s.RetrievedAt.UTC()
	if s.CredibilityScore < 0 || s.CredibilityScore > 1 {
		return Source{}, errors.Wrap(ErrInvalidSource, "credibility score out of range",
			slog.String("url", s.URL), slog.Float64("credibilityScore", s.CredibilityScore))
	}
	if s.SourceType == "" {
		s.SourceType = SourceTypeWeb
	}
	if !s.SourceType.Valid() {
		return Source{}, errors.Wrap(ErrInvalidSource, "unknown source type",
			slog.String("url", s.URL), slog.String("sourceType", string(s.SourceType)))
	}
	if s.VerificationStatus == "" {
		s.VerificationStatus = StatusUnverified
	}
	if !s.VerificationStatus.Valid() {
		return Source{}, errors.Wrap(ErrInvalidSource, "unknown verification status",
			slog.String("url", s.URL), slog.String("status", string(s.VerificationStatus)))
	}
	return s, nil
}

// SourceUpdate changes the verification state of a source already in the session.
type SourceUpdate struct {
	URL    string             `json:"url" yaml:"url"`
	Status VerificationStatus `json:"verification_status" yaml:"verification_status"`
	// CredibilityScore replaces the score when set.
	CredibilityScore *float64 `json:"credibility_score,omitempty" yaml:"credibility_score,omitempty"`
}

package research

import (
	"encoding/json"
	"github.com/myrjola/deepresearch/internal/errors"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"time"
)

// PhaseOutput is what executing one phase produced. Each phase may only set the parts it owns, see ownership.
type PhaseOutput struct {
	// Fields is the structured result of scope, plan, synthesize and critique. Refine uses it to amend the synthesis.
	Fields map[string]any `json:"fields,omitempty" yaml:"fields,omitempty"`
	// Sources are appended to the session, duplicates by URL are merged into the first occurrence.
	Sources []Source `json:"sources,omitempty" yaml:"sources,omitempty"`
	// SourceUpdates change the verification status of sources already in the session.
	SourceUpdates []SourceUpdate `json:"source_updates,omitempty" yaml:"source_updates,omitempty"`
	// Findings are appended to the session.
	Findings []Finding `json:"findings,omitempty" yaml:"findings,omitempty"`
	// Report is the final report written by the package phase.
	Report string `json:"report,omitempty" yaml:"report,omitempty"`
}

type outputPart uint8

const (
	partFields outputPart = 1 << iota
	partSources
	partSourceUpdates
	partFindings
	partReport
)

var partNames = map[outputPart]string{
	partFields:        "fields",
	partSources:       "sources",
	partSourceUpdates: "source_updates",
	partFindings:      "findings",
	partReport:        "report",
}

func (o PhaseOutput) parts() outputPart {
	var p outputPart
	if len(o.Fields) > 0 {
		p |= partFields
	}
	if len(o.Sources) > 0 {
		p |= partSources
	}
	if len(o.SourceUpdates) > 0 {
		p |= partSourceUpdates
	}
	if len(o.Findings) > 0 {
		p |= partFindings
	}
	if strings.TrimSpace(o.Report) != "" {
		p |= partReport
	}
	return p
}

type mergeFunc func(s *Session, out PhaseOutput, now time.Time) error

type fieldOwnership struct {
	owns  outputPart
	merge mergeFunc
}

// ownership is the write-ownership table: the session fields each phase is allowed to write.
var ownership = map[Phase]fieldOwnership{
	PhaseScope: {owns: partFields, merge: func(s *Session, out PhaseOutput, _ time.Time) error {
		s.Scope = cloneFields(out.Fields)
		return nil
	}},
	PhasePlan: {owns: partFields, merge: func(s *Session, out PhaseOutput, _ time.Time) error {
		s.Plan = cloneFields(out.Fields)
		return nil
	}},
	PhaseRetrieve: {owns: partSources | partFindings, merge: func(s *Session, out PhaseOutput, now time.Time) error {
		if err := addSources(s, out.Sources, now); err != nil {
			return err
		}
		s.Findings = append(s.Findings, out.Findings...)
		return nil
	}},
	PhaseTriangulate: {owns: partSourceUpdates | partFindings, merge: func(s *Session, out PhaseOutput, _ time.Time) error {
		if err := updateSources(s, out.SourceUpdates); err != nil {
			return err
		}
		s.Findings = append(s.Findings, out.Findings...)
		return nil
	}},
	PhaseSynthesize: {owns: partFields, merge: func(s *Session, out PhaseOutput, _ time.Time) error {
		s.Synthesis = cloneFields(out.Fields)
		return nil
	}},
	PhaseCritique: {owns: partFields, merge: func(s *Session, out PhaseOutput, _ time.Time) error {
		s.Critique = cloneFields(out.Fields)
		return nil
	}},
	PhaseRefine: {
		owns: partFields | partSources | partSourceUpdates | partFindings,
		merge: func(s *Session, out PhaseOutput, now time.Time) error {
			if s.Synthesis == nil {
				s.Synthesis = map[string]any{}
			}
			maps.Copy(s.Synthesis, out.Fields)
			if err := addSources(s, out.Sources, now); err != nil {
				return err
			}
			if err := updateSources(s, out.SourceUpdates); err != nil {
				return err
			}
			s.Findings = append(s.Findings, out.Findings...)
			return nil
		},
	},
	PhasePackage: {owns: partReport, merge: func(s *Session, out PhaseOutput, _ time.Time) error {
		s.Report = out.Report
		return nil
	}},
}

// merge applies out to a copy of s so that a failing output leaves s untouched.
func merge(s *Session, out PhaseOutput, now time.Time) (*Session, error) {
	owner, ok := ownership[s.Phase]
	if !ok {
		return nil, errors.Wrap(ErrUnknownPhase, "no field owner", slog.String("phase", string(s.Phase)))
	}
	if extra := out.parts() &^ owner.owns; extra != 0 {
		return nil, errors.Wrap(ErrFieldNotOwned, "phase output writes foreign fields",
			slog.String("phase", string(s.Phase)), slog.Any("fields", describeParts(extra)))
	}

	out, err := normalizeOutput(out)
	if err != nil {
		return nil, err
	}

	next := *s
	next.Scope = maps.Clone(s.Scope)
	next.Plan = maps.Clone(s.Plan)
	next.Synthesis = maps.Clone(s.Synthesis)
	next.Critique = maps.Clone(s.Critique)
	next.Sources = slices.Clone(s.Sources)
	next.Findings = slices.Clone(s.Findings)
	if err := owner.merge(&next, out, now); err != nil {
		return nil, err
	}
	return &next, nil
}

// normalizeOutput round-trips the open-ended parts of out through JSON so that a merged session holds the same
// value types a restored snapshot would.
func normalizeOutput(out PhaseOutput) (PhaseOutput, error) {
	if len(out.Fields) > 0 {
		var fields map[string]any
		if err := jsonRoundTrip(out.Fields, &fields); err != nil {
			return PhaseOutput{}, errors.Wrap(err, "normalize fields")
		}
		out.Fields = fields
	}
	if len(out.Findings) > 0 {
		var findings []Finding
		if err := jsonRoundTrip(out.Findings, &findings); err != nil {
			return PhaseOutput{}, errors.Wrap(err, "normalize findings")
		}
		out.Findings = findings
	}
	return out, nil
}

func jsonRoundTrip(v any, target any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return errors.Wrap(ErrInvalidOutput, err.Error())
	}
	if err = json.Unmarshal(data, target); err != nil {
		return errors.Wrap(ErrInvalidOutput, err.Error())
	}
	return nil
}

func describeParts(p outputPart) []string {
	var names []string
	for bit := partFields; bit <= partReport; bit <<= 1 {
		if p&bit != 0 {
			names = append(names, partNames[bit])
		}
	}
	return names
}

func cloneFields(fields map[string]any) map[string]any {
	if fields == nil {
		return map[string]any{}
	}
	return maps.Clone(fields)
}

func addSources(s *Session, sources []Source, now time.Time) error {
	for _, src := range sources {
		normalized, err := src.normalize(now)
		if err != nil {
			return err
		}
		idx := s.SourceByURL(normalized.URL)
		if idx < 0 {
			s.Sources = append(s.Sources, normalized)
			continue
		}
		// Same logical source, keep the first retrieval and only fill gaps.
		existing := &s.Sources[idx]
		if existing.Title == "" {
			existing.Title = normalized.Title
		}
		if existing.Snippet == "" {
			existing.Snippet = normalized.Snippet
		}
	}
	return nil
}

func updateSources(s *Session, updates []SourceUpdate) error {
	for _, u := range updates {
		idx := s.SourceByURL(strings.TrimSpace(u.URL))
		if idx < 0 {
			return errors.Wrap(ErrUnknownSource, "update source", slog.String("url", u.URL))
		}
		src := &s.Sources[idx]
		if !src.VerificationStatus.CanTransition(u.Status) {
			return errors.Wrap(ErrInvalidTransition, "update source",
				slog.String("url", src.URL),
				slog.String("from", string(src.VerificationStatus)),
				slog.String("to", string(u.Status)))
		}
		src.VerificationStatus = u.Status
		if u.CredibilityScore != nil {
			if *u.CredibilityScore < 0 || *u.CredibilityScore > 1 {
				return errors.Wrap(ErrInvalidSource, "credibility score out of range",
					slog.String("url", src.URL), slog.Float64("credibilityScore", *u.CredibilityScore))
			}
			src.CredibilityScore = *u.CredibilityScore
		}
	}
	return nil
}

package research

import (
	"encoding/json"
	"fmt"
	"github.com/myrjola/deepresearch/internal/errors"
	"maps"
	"slices"
	"time"
)

// sessionFields are the required top-level snapshot fields in the order they are validated.
var sessionFields = []string{
	"query", "mode", "phase", "scope", "plan", "sources", "findings",
	"synthesis", "critique", "report", "metadata", "closed",
}

var sourceFields = []string{
	"url", "title", "snippet", "retrieved_at", "credibility_score", "source_type", "verification_status",
}

var metadataFields = []string{"id", "started_at", "version"}

// Encode serialises s into its snapshot representation.
func Encode(s *Session) ([]byte, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "marshal session")
	}
	return data, nil
}

// Decode parses a snapshot produced by Encode. Missing fields and unrecognised values fail with a *SnapshotError
// naming the field; nothing is defaulted.
func Decode(data []byte) (*Session, error) {
	var (
		s   Session
		raw map[string]json.RawMessage
		err error
	)
	if err = json.Unmarshal(data, &raw); err != nil {
		return nil, invalidField("", err)
	}
	if raw == nil {
		return nil, invalidField("", errors.NewSentinel("snapshot is not an object"))
	}
	if err = requireFields(raw, "", sessionFields); err != nil {
		return nil, err
	}

	var mode, phase string
	decoders := []struct {
		field  string
		target any
	}{
		{"query", &s.Query},
		{"mode", &mode},
		{"phase", &phase},
		{"scope", &s.Scope},
		{"plan", &s.Plan},
		{"findings", &s.Findings},
		{"synthesis", &s.Synthesis},
		{"critique", &s.Critique},
		{"report", &s.Report},
		{"closed", &s.Closed},
	}
	for _, d := range decoders {
		if err = decodeField(raw, d.field, d.target); err != nil {
			return nil, err
		}
	}

	if s.Query == "" {
		return nil, invalidField("query", ErrEmptyQuery)
	}
	if s.Mode, err = ParseMode(mode); err != nil {
		return nil, corruptField("mode", fmt.Sprintf("unrecognised mode %q", mode))
	}
	if s.Phase, err = ParsePhase(phase); err != nil {
		return nil, corruptField("phase", fmt.Sprintf("unrecognised phase %q", phase))
	}
	if Position(s.Mode, s.Phase) < 0 {
		return nil, corruptField("phase", fmt.Sprintf("phase %q is not active in mode %q", s.Phase, s.Mode))
	}
	if s.Closed && !IsTerminal(s.Mode, s.Phase) {
		return nil, corruptField("closed", fmt.Sprintf("session closed in non-terminal phase %q", s.Phase))
	}

	for _, field := range []struct {
		name  string
		value map[string]any
	}{{"scope", s.Scope}, {"plan", s.Plan}, {"synthesis", s.Synthesis}, {"critique", s.Critique}} {
		if field.value == nil {
			return nil, invalidField(field.name, errors.NewSentinel("must be an object"))
		}
	}
	if s.Findings == nil {
		return nil, invalidField("findings", errors.NewSentinel("must be an array"))
	}

	if s.Sources, err = decodeSources(raw["sources"]); err != nil {
		return nil, err
	}
	if s.Metadata, err = decodeMetadata(raw["metadata"]); err != nil {
		return nil, err
	}
	return &s, nil
}

// requireFields checks that raw holds exactly fields.
func requireFields(raw map[string]json.RawMessage, prefix string, fields []string) error {
	for _, field := range fields {
		if _, ok := raw[field]; !ok {
			return missingField(prefix + field)
		}
	}
	if len(raw) == len(fields) {
		return nil
	}
	for _, key := range slices.Sorted(maps.Keys(raw)) {
		if !slices.Contains(fields, key) {
			return unknownField(prefix + key)
		}
	}
	return nil
}

func decodeField(raw map[string]json.RawMessage, field string, target any) error {
	if err := json.Unmarshal(raw[field], target); err != nil {
		return invalidField(field, err)
	}
	return nil
}

func decodeSources(data json.RawMessage) ([]Source, error) {
	var items []map[string]json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, invalidField("sources", err)
	}
	if items == nil {
		return nil, invalidField("sources", errors.NewSentinel("must be an array"))
	}

	sources := make([]Source, 0, len(items))
	for i, raw := range items {
		prefix := fmt.Sprintf("sources[%d].", i)
		if raw == nil {
			return nil, invalidField(fmt.Sprintf("sources[%d]", i), errors.NewSentinel("must be an object"))
		}
		if err := requireFields(raw, prefix, sourceFields); err != nil {
			return nil, err
		}
		var (
			src                       Source
			sourceType, verification string
		)
		for _, d := range []struct {
			field  string
			target any
		}{
			{"url", &src.URL},
			{"title", &src.Title},
			{"snippet", &src.Snippet},
			{"retrieved_at", &src.RetrievedAt},
			{"credibility_score", &src.CredibilityScore},
			{"source_type", &sourceType},
			{"verification_status", &verification},
		} {
			if err := json.Unmarshal(raw[d.field], d.target); err != nil {
				return nil, invalidField(prefix+d.field, err)
			}
		}
		src.SourceType = SourceType(sourceType)
		if !src.SourceType.Valid() {
			return nil, corruptField(prefix+"source_type", fmt.Sprintf("unrecognised source type %q", sourceType))
		}
		src.VerificationStatus = VerificationStatus(verification)
		if !src.VerificationStatus.Valid() {
			return nil, corruptField(prefix+"verification_status",
				fmt.Sprintf("unrecognised verification status %q", verification))
		}
		if src.CredibilityScore < 0 || src.CredibilityScore > 1 {
			return nil, invalidField(prefix+"credibility_score", errors.NewSentinel("must be within [0, 1]"))
		}
		sources = append(sources, src)
	}
	return sources, nil
}

func decodeMetadata(data json.RawMessage) (Metadata, error) {
	var (
		md  Metadata
		raw map[string]json.RawMessage
	)
	if err := json.Unmarshal(data, &raw); err != nil {
		return Metadata{}, invalidField("metadata", err)
	}
	if raw == nil {
		return Metadata{}, invalidField("metadata", errors.NewSentinel("must be an object"))
	}
	if err := requireFields(raw, "metadata.", metadataFields); err != nil {
		return Metadata{}, err
	}
	if err := json.Unmarshal(raw["id"], &md.ID); err != nil {
		return Metadata{}, invalidField("metadata.id", err)
	}
	if md.ID == "" {
		return Metadata{}, invalidField("metadata.id", errors.NewSentinel("must not be empty"))
	}
	var startedAt time.Time
	if err := json.Unmarshal(raw["started_at"], &startedAt); err != nil {
		return Metadata{}, invalidField("metadata.started_at", err)
	}
	if startedAt.IsZero() {
		return Metadata{}, invalidField("metadata.started_at", errors.NewSentinel("must be a timestamp"))
	}
	md.StartedAt = startedAt
	if err := json.Unmarshal(raw["version"], &md.Version); err != nil {
		return Metadata{}, invalidField("metadata.version", err)
	}
	if md.Version != FormatVersion {
		return Metadata{}, invalidField("metadata.version",
			fmt.Errorf("unsupported version %q, want %q", md.Version, FormatVersion))
	}
	return md, nil
}

package research_test

import (
	"context"
	"encoding/json"
	"github.com/google/go-cmp/cmp"
	"github.com/myrjola/deepresearch/internal/errors"
	"github.com/myrjola/deepresearch/internal/research"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func populatedSession() *research.Session {
	return &research.Session{
		Query: "How do heat pumps perform in cold climates?",
		Mode:  research.ModeDeep,
		Phase: research.PhaseCritique,
		Scope: map[string]any{
			"core_components": []any{"efficiency", "cost"},
			"in_scope":        []any{"residential"},
		},
		Plan: map[string]any{
			"search_queries":         []any{"heat pump COP -20C"},
			"knowledge_dependencies": map[string]any{"COP": []any{"thermodynamics"}},
		},
		Sources: []research.Source{
			{
				URL:                "https://example.org/field-study",
				Title:              "Field study",
				Snippet:            "Measured COP of 2.1 at -15C",
				RetrievedAt:        time.Date(2026, time.March, 14, 10, 0, 0, 123000000, time.UTC),
				CredibilityScore:   0.85,
				SourceType:         research.SourceTypeAcademic,
				VerificationStatus: research.StatusVerified,
			},
			{
				URL:                "https://example.com/blog",
				Title:              "Blog post",
				Snippet:            "Heat pumps stop working below zero",
				RetrievedAt:        time.Date(2026, time.March, 14, 10, 5, 0, 0, time.UTC),
				CredibilityScore:   0.2,
				SourceType:         research.SourceTypeWeb,
				VerificationStatus: research.StatusConflicted,
			},
		},
		Findings: []research.Finding{
			{"claim": "COP stays above 2 at -15C", "sources": []any{"https://example.org/field-study"}},
		},
		Synthesis: map[string]any{"patterns": []any{"performance degrades gradually"}, "confidence": 0.7},
		Critique:  map[string]any{},
		Report:    "",
		Metadata: research.Metadata{
			ID:        "0b7c6f1e-9a57-4d2e-8c1b-3b6f0f7d1e2a",
			StartedAt: time.Date(2026, time.March, 14, 9, 30, 0, 0, time.UTC),
			Version:   research.FormatVersion,
		},
		Closed: false,
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	fresh := mustCreate(t, store, "topic X", research.ModeQuick)
	closed := populatedSession()
	closed.Phase = research.PhasePackage
	closed.Report = "# Research Report"
	closed.Closed = true

	tests := []struct {
		name    string
		session *research.Session
	}{
		{name: "fresh session", session: fresh},
		{name: "populated session", session: populatedSession()},
		{name: "closed session", session: closed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dst := &flakyDestination{}
			require.NoError(t, store.Persist(context.Background(), tt.session, dst))

			restored, err := store.Restore(context.Background(), dst)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.session, restored); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAdvancedSessionRoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	s := mustCreate(t, store, "topic X", research.ModeQuick)

	s, err := store.Advance(ctx, s, research.PhaseOutput{Fields: map[string]any{
		"depth":  3,
		"tags":   []string{"a", "b"},
		"limits": map[string]any{"sources": int64(10)},
	}})
	require.NoError(t, err)
	s, err = store.Advance(ctx, s, research.PhaseOutput{
		Sources:  []research.Source{{URL: "https://example.com/a", Title: "A"}},
		Findings: []research.Finding{{"claim": "c", "support": 2}},
	})
	require.NoError(t, err)
	require.Equal(t, float64(3), s.Scope["depth"])
	require.Equal(t, []any{"a", "b"}, s.Scope["tags"])

	dst := &flakyDestination{}
	require.NoError(t, store.Persist(ctx, s, dst))
	restored, err := store.Restore(ctx, dst)
	require.NoError(t, err)
	if diff := cmp.Diff(s, restored); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestAdvanceRejectsUnrepresentableOutput(t *testing.T) {
	store, _ := newTestStore(t)
	s := mustCreate(t, store, "topic X", research.ModeQuick)

	_, err := store.Advance(context.Background(), s, research.PhaseOutput{Fields: map[string]any{
		"callback": func() {},
	}})
	require.ErrorIs(t, err, research.ErrInvalidOutput)
	require.Equal(t, research.PhaseScope, s.Phase)
	require.Empty(t, s.Scope)
}

func TestSnapshotUsesEnumerationStrings(t *testing.T) {
	data, err := research.Encode(populatedSession())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Equal(t, "deep", raw["mode"])
	require.Equal(t, "critique", raw["phase"])
	sources := raw["sources"].([]any)
	require.Equal(t, "academic", sources[0].(map[string]any)["source_type"])
	require.Equal(t, "verified", sources[0].(map[string]any)["verification_status"])
}

// mutateSnapshot encodes a valid session and lets fn tamper with the generic representation.
func mutateSnapshot(t *testing.T, fn func(raw map[string]any)) []byte {
	t.Helper()
	data, err := research.Encode(populatedSession())
	require.NoError(t, err)
	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	fn(raw)
	data, err = json.Marshal(raw)
	require.NoError(t, err)
	return data
}

func TestRestoreRejectsInvalidSnapshots(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(raw map[string]any)
		wantField   string
		wantCorrupt bool
	}{
		{
			name:        "bogus mode",
			mutate:      func(raw map[string]any) { raw["mode"] = "bogus" },
			wantField:   "mode",
			wantCorrupt: true,
		},
		{
			name:        "bogus phase",
			mutate:      func(raw map[string]any) { raw["phase"] = "daydream" },
			wantField:   "phase",
			wantCorrupt: true,
		},
		{
			name: "phase outside mode",
			mutate: func(raw map[string]any) {
				raw["mode"] = "quick"
				raw["phase"] = "critique"
			},
			wantField:   "phase",
			wantCorrupt: true,
		},
		{
			name:        "closed before terminal phase",
			mutate:      func(raw map[string]any) { raw["closed"] = true },
			wantField:   "closed",
			wantCorrupt: true,
		},
		{
			name:      "missing mode",
			mutate:    func(raw map[string]any) { delete(raw, "mode") },
			wantField: "mode",
		},
		{
			name:      "missing sources",
			mutate:    func(raw map[string]any) { delete(raw, "sources") },
			wantField: "sources",
		},
		{
			name:      "null scope",
			mutate:    func(raw map[string]any) { raw["scope"] = nil },
			wantField: "scope",
		},
		{
			name:      "query has wrong type",
			mutate:    func(raw map[string]any) { raw["query"] = 42 },
			wantField: "query",
		},
		{
			name: "source without url",
			mutate: func(raw map[string]any) {
				delete(raw["sources"].([]any)[1].(map[string]any), "url")
			},
			wantField: "sources[1].url",
		},
		{
			name: "source with unknown type",
			mutate: func(raw map[string]any) {
				raw["sources"].([]any)[0].(map[string]any)["source_type"] = "podcast"
			},
			wantField:   "sources[0].source_type",
			wantCorrupt: true,
		},
		{
			name: "metadata without version",
			mutate: func(raw map[string]any) {
				delete(raw["metadata"].(map[string]any), "version")
			},
			wantField: "metadata.version",
		},
		{
			name:      "unknown top-level field",
			mutate:    func(raw map[string]any) { raw["notes"] = "extra" },
			wantField: "notes",
		},
		{
			name: "unknown source field",
			mutate: func(raw map[string]any) {
				raw["sources"].([]any)[0].(map[string]any)["rank"] = 1
			},
			wantField: "sources[0].rank",
		},
		{
			name: "unsupported version",
			mutate: func(raw map[string]any) {
				raw["metadata"].(map[string]any)["version"] = "2.0"
			},
			wantField: "metadata.version",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, _ := newTestStore(t)
			_, err := store.Restore(context.Background(), bytesOrigin(mutateSnapshot(t, tt.mutate)))
			require.ErrorIs(t, err, research.ErrMalformedSnapshot)

			var snapErr *research.SnapshotError
			require.True(t, errors.As(err, &snapErr), "expected SnapshotError, got %v", err)
			require.Equal(t, tt.wantField, snapErr.Field)
			require.ErrorContains(t, err, tt.wantField)
			if tt.wantCorrupt {
				require.ErrorIs(t, err, research.ErrStateCorruption)
			} else {
				require.NotErrorIs(t, err, research.ErrStateCorruption)
			}
		})
	}
}

func TestRestoreRejectsGarbage(t *testing.T) {
	store, _ := newTestStore(t)
	for _, data := range []string{"", "{", "[]", "null", `{"query": "half"}`} {
		_, err := store.Restore(context.Background(), bytesOrigin(data))
		require.ErrorIs(t, err, research.ErrMalformedSnapshot, "input %q", data)
	}
}

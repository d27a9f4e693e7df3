// Package driver runs a research session to completion by executing one phase at a time.
package driver

import (
	"context"
	"github.com/myrjola/deepresearch/internal/errors"
	"github.com/myrjola/deepresearch/internal/logging"
	"github.com/myrjola/deepresearch/internal/research"
	"log/slog"
	"maps"
	"slices"
	"strings"
)

// Executor carries out the work of one phase.
type Executor interface {
	Execute(ctx context.Context, s *research.Session, phase research.Phase, instructions string) (
		research.PhaseOutput, error)
}

// extraPassPhases are re-run inside refine for every extra pass in ultradeep mode.
var extraPassPhases = []research.Phase{
	research.PhaseRetrieve,
	research.PhaseTriangulate,
	research.PhaseSynthesize,
	research.PhaseCritique,
}

// Runner advances sessions through Instructions, Execute, Advance and Persist until they close.
type Runner struct {
	store       *research.Store
	executor    Executor
	extraPasses int
	logger      *slog.Logger
	// OnAdvance is called after every persisted step, if set.
	OnAdvance func(s *research.Session, completed research.Phase)
}

// NewRunner creates a Runner. extraPasses only applies to ultradeep sessions.
func NewRunner(logger *slog.Logger, store *research.Store, executor Executor, extraPasses int) *Runner {
	return &Runner{
		store:       store,
		executor:    executor,
		extraPasses: max(extraPasses, 0),
		logger:      logger.With("source", "driver.Runner"),
		OnAdvance:   nil,
	}
}

// Run executes phases until s is closed. The session is persisted to dst after every phase so that an
// interrupted run resumes at the phase that did not finish.
func (r *Runner) Run(ctx context.Context, s *research.Session, dst research.Destination) (*research.Session, error) {
	ctx = logging.WithSession(ctx, s.ID())
	var err error
	for !s.Closed {
		if err = ctx.Err(); err != nil {
			return s, errors.Wrap(err, "run session", slog.String("phase", string(s.Phase)))
		}
		if s, err = r.Step(ctx, s, dst); err != nil {
			return s, err
		}
	}
	r.logger.InfoContext(ctx, "research session finished", slog.Int("sources", len(s.Sources)))
	return s, nil
}

// Step executes the current phase of s, advances and persists it.
func (r *Runner) Step(ctx context.Context, s *research.Session, dst research.Destination) (*research.Session, error) {
	phase := s.Phase
	out, err := r.execute(ctx, s, phase)
	if err != nil {
		return s, errors.Wrap(err, "execute phase", slog.String("phase", string(phase)))
	}
	if s, err = r.store.Advance(ctx, s, out); err != nil {
		return s, errors.Wrap(err, "advance session")
	}
	if err = r.store.Persist(ctx, s, dst); err != nil {
		return s, errors.Wrap(err, "persist session")
	}
	if r.OnAdvance != nil {
		r.OnAdvance(s, phase)
	}
	return s, nil
}

func (r *Runner) execute(ctx context.Context, s *research.Session, phase research.Phase) (research.PhaseOutput, error) {
	if phase != research.PhaseRefine || s.Mode != research.ModeUltraDeep || r.extraPasses == 0 {
		return r.executePhase(ctx, s, phase)
	}

	var (
		folded  research.PhaseOutput
		scratch = scratchCopy(s)
	)
	for pass := 1; pass <= r.extraPasses; pass++ {
		r.logger.InfoContext(ctx, "starting extra research pass", slog.Int("pass", pass))
		for _, p := range extraPassPhases {
			scratch.Phase = p
			out, err := r.executePhase(ctx, scratch, p)
			if err != nil {
				return research.PhaseOutput{}, errors.Wrap(err, "extra pass", slog.Int("pass", pass))
			}
			fold(&folded, scratch, p, pass, out)
		}
	}

	scratch.Phase = research.PhaseRefine
	out, err := r.executePhase(ctx, scratch, research.PhaseRefine)
	if err != nil {
		return research.PhaseOutput{}, err
	}
	fold(&folded, scratch, research.PhaseRefine, 0, out)
	return folded, nil
}

func (r *Runner) executePhase(ctx context.Context, s *research.Session, phase research.Phase) (
	research.PhaseOutput, error) {
	instructions, err := research.Instructions(phase)
	if err != nil {
		return research.PhaseOutput{}, err
	}
	r.logger.DebugContext(ctx, "executing phase", slog.String("phase", string(phase)))
	out, err := r.executor.Execute(ctx, s, phase, instructions)
	if err != nil {
		return research.PhaseOutput{}, errors.Wrap(err, "executor", slog.String("phase", string(phase)))
	}
	return out, nil
}

// fold merges the output of phase p into the refine output being accumulated in dst. scratch is updated too so
// that later phases of the pass see what earlier ones produced.
func fold(dst *research.PhaseOutput, scratch *research.Session, p research.Phase, pass int, out research.PhaseOutput) {
	dst.Sources = append(dst.Sources, out.Sources...)
	dst.Findings = append(dst.Findings, out.Findings...)
	for _, src := range out.Sources {
		src.URL = strings.TrimSpace(src.URL)
		if scratch.SourceByURL(src.URL) >= 0 {
			continue
		}
		if src.VerificationStatus == "" {
			src.VerificationStatus = research.StatusUnverified
		}
		scratch.Sources = append(scratch.Sources, src)
	}
	foldUpdates(dst, scratch, out.SourceUpdates)
	scratch.Findings = append(scratch.Findings, out.Findings...)

	switch p { //nolint:exhaustive // only phases that produce fields
	case research.PhaseSynthesize, research.PhaseRefine:
		if len(out.Fields) == 0 {
			return
		}
		if dst.Fields == nil {
			dst.Fields = map[string]any{}
		}
		maps.Copy(dst.Fields, out.Fields)
		maps.Copy(scratch.Synthesis, out.Fields)
	case research.PhaseCritique:
		if len(out.Fields) == 0 {
			return
		}
		// Refine does not own the critique, intermediate critiques are kept as findings.
		dst.Findings = append(dst.Findings, research.Finding{"pass": pass, "critique": maps.Clone(out.Fields)})
		scratch.Critique = maps.Clone(out.Fields)
	}
}

// foldUpdates applies updates to scratch and appends them to dst. When a later pass overturns an earlier verdict
// the source is reset to unverified first, so the accumulated chain is a legal sequence of transitions.
func foldUpdates(dst *research.PhaseOutput, scratch *research.Session, updates []research.SourceUpdate) {
	for _, u := range updates {
		idx := scratch.SourceByURL(strings.TrimSpace(u.URL))
		if idx < 0 {
			// Left for Advance to reject.
			dst.SourceUpdates = append(dst.SourceUpdates, u)
			continue
		}
		src := &scratch.Sources[idx]
		if !src.VerificationStatus.CanTransition(u.Status) && research.StatusUnverified.CanTransition(u.Status) {
			dst.SourceUpdates = append(dst.SourceUpdates, research.SourceUpdate{
				URL:              src.URL,
				Status:           research.StatusUnverified,
				CredibilityScore: nil,
			})
			src.VerificationStatus = research.StatusUnverified
		}
		dst.SourceUpdates = append(dst.SourceUpdates, u)
		if !src.VerificationStatus.CanTransition(u.Status) {
			continue
		}
		src.VerificationStatus = u.Status
		if u.CredibilityScore != nil {
			src.CredibilityScore = *u.CredibilityScore
		}
	}
}

func scratchCopy(s *research.Session) *research.Session {
	c := *s
	c.Sources = slices.Clone(s.Sources)
	c.Findings = slices.Clone(s.Findings)
	c.Synthesis = maps.Clone(s.Synthesis)
	if c.Synthesis == nil {
		c.Synthesis = map[string]any{}
	}
	c.Critique = maps.Clone(s.Critique)
	return &c
}

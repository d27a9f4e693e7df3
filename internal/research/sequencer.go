package research

import (
	"github.com/myrjola/deepresearch/internal/errors"
	"log/slog"
	"slices"
)

var activePhases = map[Mode][]Phase{
	ModeQuick: {PhaseScope, PhaseRetrieve, PhasePackage},
	ModeStandard: {
		PhaseScope, PhasePlan, PhaseRetrieve, PhaseTriangulate, PhaseSynthesize, PhasePackage,
	},
	ModeDeep: Phases,
	// Extra passes over retrieve..refine are a caller policy, the sequence itself matches deep.
	ModeUltraDeep: Phases,
}

// ActivePhases returns the ordered phase subsequence for mode or nil for an unknown mode.
func ActivePhases(mode Mode) []Phase {
	return slices.Clone(activePhases[mode])
}

// Position returns the index of phase within the active phases of mode or -1 when it is not active.
func Position(mode Mode, phase Phase) int {
	return slices.Index(activePhases[mode], phase)
}

// FirstPhase is the phase a new session of mode starts in.
func FirstPhase(mode Mode) (Phase, error) {
	phases, ok := activePhases[mode]
	if !ok {
		return "", errors.Wrap(ErrUnknownMode, "first phase", slog.String("mode", string(mode)))
	}
	return phases[0], nil
}

// NextPhase returns the phase immediately following current in the active phases of mode.
//
// ok is false when current is the terminal phase. current not being active for mode means the caller's state is
// corrupt and ErrStateCorruption is returned.
func NextPhase(mode Mode, current Phase) (next Phase, ok bool, err error) {
	phases, known := activePhases[mode]
	if !known {
		return "", false, errors.Wrap(ErrStateCorruption, "unknown mode", slog.String("mode", string(mode)))
	}
	idx := slices.Index(phases, current)
	if idx < 0 {
		return "", false, errors.Wrap(ErrStateCorruption, "phase is not active for mode",
			slog.String("mode", string(mode)), slog.String("phase", string(current)))
	}
	if idx == len(phases)-1 {
		return "", false, nil
	}
	return phases[idx+1], true, nil
}

// IsTerminal reports whether phase is the last active phase of mode.
func IsTerminal(mode Mode, phase Phase) bool {
	phases := activePhases[mode]
	return len(phases) > 0 && phases[len(phases)-1] == phase
}

package research

import (
	"github.com/myrjola/deepresearch/internal/errors"
	"log/slog"
	"slices"
)

// Phase is a named stage of the research workflow.
type Phase string

const (
	PhaseScope       Phase = "scope"
	PhasePlan        Phase = "plan"
	PhaseRetrieve    Phase = "retrieve"
	PhaseTriangulate Phase = "triangulate"
	PhaseSynthesize  Phase = "synthesize"
	PhaseCritique    Phase = "critique"
	PhaseRefine      Phase = "refine"
	PhasePackage     Phase = "package"
)

// Phases lists every phase in workflow order.
var Phases = []Phase{
	PhaseScope,
	PhasePlan,
	PhaseRetrieve,
	PhaseTriangulate,
	PhaseSynthesize,
	PhaseCritique,
	PhaseRefine,
	PhasePackage,
}

// Valid reports whether p is a member of the phase enumeration.
func (p Phase) Valid() bool {
	return slices.Contains(Phases, p)
}

// ParsePhase converts the snapshot representation of a phase.
func ParsePhase(s string) (Phase, error) {
	p := Phase(s)
	if !p.Valid() {
		return "", errors.Wrap(ErrUnknownPhase, "parse phase", slog.String("phase", s))
	}
	return p, nil
}

// Mode is a research depth setting selecting the active phases.
type Mode string

const (
	ModeQuick     Mode = "quick"
	ModeStandard  Mode = "standard"
	ModeDeep      Mode = "deep"
	ModeUltraDeep Mode = "ultradeep"
)

// Modes lists every depth mode from shallowest to deepest.
var Modes = []Mode{ModeQuick, ModeStandard, ModeDeep, ModeUltraDeep}

// Valid reports whether m is a member of the mode enumeration.
func (m Mode) Valid() bool {
	return slices.Contains(Modes, m)
}

// ParseMode converts the snapshot or command line representation of a mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", errors.Wrap(ErrUnknownMode, "parse mode", slog.String("mode", s))
	}
	return m, nil
}

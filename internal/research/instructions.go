package research

import (
	"embed"
	"github.com/myrjola/deepresearch/internal/errors"
	"log/slog"
	"strings"
)

//go:embed instructions/*.md
var instructionFiles embed.FS

var instructions = loadInstructions()

func loadInstructions() map[Phase]string {
	texts := make(map[Phase]string, len(Phases))
	for _, phase := range Phases {
		data, err := instructionFiles.ReadFile("instructions/" + string(phase) + ".md")
		if err != nil {
			// The files are embedded at build time, a missing one is a packaging bug.
			panic(err)
		}
		texts[phase] = strings.TrimSpace(string(data))
	}
	return texts
}

// Instructions returns the fixed instruction block the agent follows while executing phase.
func Instructions(phase Phase) (string, error) {
	text, ok := instructions[phase]
	if !ok {
		return "", errors.Wrap(ErrUnknownPhase, "instructions", slog.String("phase", string(phase)))
	}
	return text, nil
}

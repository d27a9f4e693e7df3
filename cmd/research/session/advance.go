package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"github.com/myrjola/deepresearch/internal/app"
	"github.com/myrjola/deepresearch/internal/errors"
	"github.com/myrjola/deepresearch/internal/research"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

func init() {
	Advance.Flags().String("output", "", "phase output file (.json, .yaml or .yml), - reads JSON from stdin")
}

var Advance = &cobra.Command{
	Use:     "advance [session id]",
	GroupID: "session",
	Short:   "Record the output of the current phase and move to the next",
	Long: `Merges the phase output into the fields owned by the current phase, persists the session and prints the
instructions of the next phase. Without --output the phase is completed with an empty output.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := cmd.Flags().GetString("output")
		if err != nil {
			return err
		}
		out, err := readOutput(path, cmd.InOrStdin())
		if err != nil {
			return err
		}
		return app.With(cmd.Context(), cmd.ErrOrStderr(), func(ctx context.Context, a *app.App) error {
			s, err := a.Load(ctx, args[0])
			if err != nil {
				return err
			}
			completed := s.Phase
			if s, err = a.Store.Advance(ctx, s, out); err != nil {
				return err
			}
			if err = a.Save(ctx, s); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			if _, err = fmt.Fprintf(w, "Completed %s\n", completed); err != nil {
				return err
			}
			return printPhase(w, s)
		})
	},
}

// readOutput decodes a phase output. The format follows the file extension, JSON is the default.
func readOutput(path string, stdin io.Reader) (research.PhaseOutput, error) {
	var (
		out  research.PhaseOutput
		data []byte
		err  error
	)
	switch path {
	case "":
		return out, nil
	case "-":
		data, err = io.ReadAll(stdin)
	default:
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return out, errors.Wrap(err, "read phase output", slog.String("path", path))
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err = dec.Decode(&out); err != nil && !errors.Is(err, io.EOF) {
			return out, errors.Wrap(err, "decode YAML phase output", slog.String("path", path))
		}
	default:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err = dec.Decode(&out); err != nil {
			return out, errors.Wrap(err, "decode JSON phase output", slog.String("path", path))
		}
	}
	return out, nil
}

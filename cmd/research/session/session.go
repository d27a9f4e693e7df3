package session

import (
	"context"
	"fmt"
	"github.com/myrjola/deepresearch/internal/app"
	"github.com/myrjola/deepresearch/internal/research"
	"github.com/spf13/cobra"
	"io"
	"strings"
)

var Group = &cobra.Group{
	ID:    "session",
	Title: "Research sessions",
}

// printPhase writes the current phase and its instructions.
func printPhase(w io.Writer, s *research.Session) error {
	if s.Closed {
		_, err := fmt.Fprintf(w, "Session %s is complete.\n", s.ID())
		return err
	}
	instructions, err := research.Instructions(s.Phase)
	if err != nil {
		return err
	}
	current, total := s.Progress()
	_, err = fmt.Fprintf(w, "Phase: %s (%d/%d)\n\n%s\n", s.Phase, current, total, instructions)
	return err
}

func init() {
	Start.Flags().String("mode", string(research.ModeStandard),
		"research depth: "+strings.Join(modeNames(), ", "))
}

func modeNames() []string {
	names := make([]string, 0, len(research.Modes))
	for _, m := range research.Modes {
		names = append(names, string(m))
	}
	return names
}

var Start = &cobra.Command{
	Use:     "start [query]",
	GroupID: "session",
	Short:   "Start a research session",
	Long:    `Creates a session for the query, persists it and prints the instructions of the first phase.`,
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		modeFlag, err := cmd.Flags().GetString("mode")
		if err != nil {
			return err
		}
		mode, err := research.ParseMode(modeFlag)
		if err != nil {
			return err
		}
		return app.With(cmd.Context(), cmd.ErrOrStderr(), func(ctx context.Context, a *app.App) error {
			s, err := a.Store.Create(strings.Join(args, " "), mode)
			if err != nil {
				return err
			}
			if err = a.Save(ctx, s); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if _, err = fmt.Fprintf(out, "Created session %s (mode %s)\n", s.ID(), s.Mode); err != nil {
				return err
			}
			return printPhase(out, s)
		})
	},
}

var Next = &cobra.Command{
	Use:     "next [session id]",
	GroupID: "session",
	Short:   "Print the current phase and its instructions",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.With(cmd.Context(), cmd.ErrOrStderr(), func(ctx context.Context, a *app.App) error {
			s, err := a.Load(ctx, args[0])
			if err != nil {
				return err
			}
			return printPhase(cmd.OutOrStdout(), s)
		})
	},
}

var Instructions = &cobra.Command{
	Use:     "instructions [phase]",
	GroupID: "session",
	Short:   "Print the instructions of a phase",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		phase, err := research.ParsePhase(args[0])
		if err != nil {
			return err
		}
		text, err := research.Instructions(phase)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), text)
		return err
	},
}

var Show = &cobra.Command{
	Use:     "show [session id]",
	GroupID: "session",
	Short:   "Print the stored snapshot of a session",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return app.With(cmd.Context(), cmd.ErrOrStderr(), func(ctx context.Context, a *app.App) error {
			s, err := a.Load(ctx, args[0])
			if err != nil {
				return err
			}
			data, err := research.Encode(s)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return err
		})
	},
}

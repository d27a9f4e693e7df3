package session

import (
	"context"
	"fmt"
	"github.com/myrjola/deepresearch/internal/app"
	"github.com/myrjola/deepresearch/internal/research"
	"github.com/spf13/cobra"
)

func init() {
	Run.Flags().Int("extra-passes", 0, "additional retrieve..critique passes inside refine (ultradeep only)")
}

var Run = &cobra.Command{
	Use:     "run [session id]",
	GroupID: "session",
	Short:   "Execute the remaining phases with the configured language model",
	Long: `Executes every remaining phase of the session, persisting after each one. An interrupted run can be
resumed with the same command.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		extraPasses, err := cmd.Flags().GetInt("extra-passes")
		if err != nil {
			return err
		}
		return app.With(cmd.Context(), cmd.ErrOrStderr(), func(ctx context.Context, a *app.App) error {
			s, err := a.Load(ctx, args[0])
			if err != nil {
				return err
			}
			runner := a.Runner(extraPasses)
			w := cmd.OutOrStdout()
			runner.OnAdvance = func(s *research.Session, completed research.Phase) {
				current, total := s.Progress()
				if !s.Closed {
					// Progress points at the phase that comes next.
					current--
				}
				_, _ = fmt.Fprintf(w, "[%d/%d] completed %s\n", current, total, completed)
			}
			if s, err = runner.Run(ctx, s, a.Backend.Snapshot(s.ID())); err != nil {
				return err
			}
			_, err = fmt.Fprintf(w, "\n%s\n", s.Report)
			return err
		})
	},
}

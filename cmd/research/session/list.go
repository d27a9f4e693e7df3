package session

import (
	"context"
	"fmt"
	"github.com/myrjola/deepresearch/internal/app"
	"github.com/spf13/cobra"
	"text/tabwriter"
	"time"
)

var List = &cobra.Command{
	Use:     "list",
	GroupID: "session",
	Short:   "List stored sessions, most recently updated first",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		return app.With(cmd.Context(), cmd.ErrOrStderr(), func(ctx context.Context, a *app.App) error {
			summaries, err := a.Backend.List(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0) //nolint:mnd // column padding
			_, _ = fmt.Fprintln(tw, "ID\tMODE\tPHASE\tUPDATED\tQUERY")
			for _, s := range summaries {
				phase := s.Phase
				if s.Closed {
					phase += " (done)"
				}
				_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					s.ID, s.Mode, phase, s.UpdatedAt.Local().Format(time.DateTime), s.Query)
			}
			return tw.Flush()
		})
	},
}

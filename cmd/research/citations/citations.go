package citations

import (
	"context"
	"fmt"
	"github.com/fatih/color"
	"github.com/myrjola/deepresearch/internal/app"
	"github.com/myrjola/deepresearch/internal/citations"
	"github.com/myrjola/deepresearch/internal/errors"
	"github.com/spf13/cobra"
	"io"
	"log/slog"
	"os"
)

var Group = &cobra.Group{
	ID:    "citations",
	Title: "Citations",
}

var ErrVerificationFailed = errors.NewSentinel("citation verification failed")

func init() {
	Verify.Flags().Bool("strict", false, "fail unless every entry is verified")
	Bibliography.Flags().String("style", string(citations.StyleAPA), "citation style: apa or markdown")
}

var Verify = &cobra.Command{
	Use:     "verify [report.md]",
	GroupID: "citations",
	Short:   "Check the bibliography of a report for fabricated citations",
	Long: `Resolves every DOI in the "## Bibliography" section through doi.org, compares titles and years, checks
URLs and flags generic or templated titles. Exits non-zero when suspicious entries are found, or with --strict
when any entry could not be verified.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		strict, err := cmd.Flags().GetBool("strict")
		if err != nil {
			return err
		}
		report, err := os.ReadFile(args[0])
		if err != nil {
			return errors.Wrap(err, "read report", slog.String("path", args[0]))
		}
		return app.With(cmd.Context(), cmd.ErrOrStderr(), func(ctx context.Context, a *app.App) error {
			result, err := a.Verifier(strict).Verify(ctx, string(report))
			if err != nil {
				return err
			}
			printReport(cmd.OutOrStdout(), result)
			if !result.Passed() {
				return ErrVerificationFailed
			}
			return nil
		})
	},
}

var Bibliography = &cobra.Command{
	Use:     "bibliography [session id]",
	GroupID: "citations",
	Short:   "Print the bibliography of a session's sources",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		styleFlag, err := cmd.Flags().GetString("style")
		if err != nil {
			return err
		}
		style, err := citations.ParseStyle(styleFlag)
		if err != nil {
			return err
		}
		return app.With(cmd.Context(), cmd.ErrOrStderr(), func(ctx context.Context, a *app.App) error {
			s, err := a.Load(ctx, args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), citations.FromSession(s).Render(style))
			return err
		})
	},
}

func printReport(w io.Writer, report citations.Report) {
	var (
		green  = color.New(color.FgGreen).SprintFunc()
		yellow = color.New(color.FgYellow).SprintFunc()
		red    = color.New(color.FgRed, color.Bold).SprintFunc()
	)
	for _, res := range report.Results {
		var label string
		switch res.Status {
		case citations.StatusVerified:
			label = green("VERIFIED  ")
		case citations.StatusUnverified:
			label = yellow("UNVERIFIED")
		case citations.StatusSuspicious:
			label = red("SUSPICIOUS")
		}
		title := res.Entry.Title
		if title == "" {
			title = res.Entry.Raw
		}
		_, _ = fmt.Fprintf(w, "%s [%d] %s\n", label, res.Entry.Number, title)
		for _, reason := range res.Reasons {
			_, _ = fmt.Fprintf(w, "           - %s\n", reason)
		}
	}
	counts := report.Counts()
	_, _ = fmt.Fprintf(w, "\n%d entries: %s verified, %s unverified, %s suspicious\n", len(report.Results),
		green(counts[citations.StatusVerified]),
		yellow(counts[citations.StatusUnverified]),
		red(counts[citations.StatusSuspicious]))
}

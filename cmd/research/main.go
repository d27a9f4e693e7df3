package main

import (
	"context"
	"fmt"
	"github.com/myrjola/deepresearch/cmd/research/citations"
	"github.com/myrjola/deepresearch/cmd/research/session"
	"github.com/myrjola/deepresearch/internal/config"
	"github.com/spf13/cobra"
	"os"
	"os/signal"
	"syscall"
)

func init() {
	if err := config.LoadEnvFiles(".env"); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	rootCmd.AddGroup(session.Group)
	rootCmd.AddCommand(session.Start, session.Next, session.Instructions, session.Advance, session.Show,
		session.List, session.Run)
	rootCmd.AddGroup(citations.Group)
	rootCmd.AddCommand(citations.Verify, citations.Bibliography)
}

var rootCmd = &cobra.Command{
	Use:           "research",
	Short:         "Run phased research sessions",
	Long:          `Drives a research question through scope, plan, retrieve, triangulate, synthesize, critique, refine and package phases and checks the citations of the final report.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	// An interrupted run keeps the last persisted phase and can be resumed.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}

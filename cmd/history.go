package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/legal-assistant/wordkit/internal/format"
	"github.com/legal-assistant/wordkit/internal/history"
	"github.com/legal-assistant/wordkit/internal/logging"
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := rt.app.History.List(cmd.Context(), limit)
		if err != nil {
			return err
		}
		out, err := format.FormatRuns(runs, rt.output)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show one run and the log records it wrote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		run, err := rt.app.History.Get(ctx, args[0])
		if err != nil {
			return err
		}
		logs, err := logging.ListByRun(ctx, run.ID)
		if err != nil {
			return err
		}
		out, err := format.FormatRun(run, logs, rt.output)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), out)
		return nil
	},
}

var historyPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete runs older than a duration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		age, _ := cmd.Flags().GetDuration("older-than")
		if age <= 0 {
			return fmt.Errorf("--older-than must be positive, got %s", age)
		}
		n, err := rt.app.History.Prune(cmd.Context(), time.Now().Add(-age))
		if err != nil {
			return err
		}
		return printOutput(cmd, fmt.Sprintf("Deleted %d runs", n))
	},
}

func init() {
	historyCmd.Flags().IntP("limit", "n", history.DefaultListLimit, "Number of runs to list")
	historyPruneCmd.Flags().Duration("older-than", 30*24*time.Hour, "Delete runs older than this")
	historyCmd.AddCommand(historyShowCmd, historyPruneCmd)
}

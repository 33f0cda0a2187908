package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/paperllm/internal/storage"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the journal of past runs",
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer store.Close()

		runs, err := store.ListRuns(limit)
		if err != nil {
			return fmt.Errorf("listing runs: %w", err)
		}
		writeRuns(cmd.OutOrStdout(), runs)
		return nil
	},
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Show every document outcome of a run, including previous titles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return fmt.Errorf("opening journal: %w", err)
		}
		defer store.Close()

		run, err := store.GetRun(args[0])
		if errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("run %s not found", args[0])
		}
		if err != nil {
			return err
		}
		outcomes, err := store.Outcomes(run.ID)
		if err != nil {
			return fmt.Errorf("listing outcomes: %w", err)
		}
		writeRun(cmd.OutOrStdout(), run, outcomes)
		return nil
	},
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "maximum number of runs to list")
	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}

func runMode(r storage.Run) string {
	if r.Apply {
		return "apply"
	}
	return "dry-run"
}

func writeRuns(w io.Writer, runs []storage.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No runs found.")
		return
	}
	for _, r := range runs {
		state := colorize(colorYellow, "unfinished")
		if r.Finished() {
			state = fmt.Sprintf("%d docs, %d failed", r.Total, r.Failed)
		}
		fmt.Fprintf(w, "%s  %s  %-7s  %s  %s\n",
			colorize(colorCyan, r.ID[:min(8, len(r.ID))]),
			r.StartedAt.Local().Format(time.DateTime),
			runMode(r),
			r.Model,
			state,
		)
	}
}

func writeRun(w io.Writer, r storage.Run, outcomes []storage.Outcome) {
	fmt.Fprintf(w, "%s %s\n", colorize(colorBold, "Run"), r.ID)
	fmt.Fprintf(w, "  started  %s\n", r.StartedAt.Local().Format(time.DateTime))
	if r.Finished() {
		fmt.Fprintf(w, "  finished %s (%s)\n", r.FinishedAt.Local().Format(time.DateTime), r.FinishedAt.Sub(r.StartedAt).Round(time.Second))
	}
	fmt.Fprintf(w, "  mode     %s\n", runMode(r))
	fmt.Fprintf(w, "  model    %s (n_ctx %d)\n", r.Model, r.ContextSize)
	if r.Tag != "" {
		fmt.Fprintf(w, "  tag      %s\n", r.Tag)
	}
	fmt.Fprintln(w)

	for _, o := range outcomes {
		if o.Stage == "failed" {
			fmt.Fprintf(w, "%s %5d  failed after %s: %s\n", colorize(colorRed, "✗"), o.DocID, o.FailedStage, o.Error)
			continue
		}
		mark := colorize(colorGreen, "✓")
		if !o.Applied {
			mark = colorize(colorYellow, "·")
		}
		fmt.Fprintf(w, "%s %5d  %q -> %q\n", mark, o.DocID, truncateText(o.OldTitle, 60), truncateText(o.NewTitle, 60))
	}
}

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/paperllm/internal/api"
	"github.com/kalambet/paperllm/internal/config"
	"github.com/kalambet/paperllm/internal/pipeline"
	"github.com/kalambet/paperllm/internal/storage"
)

const dryRunWarning = "Not applying changes, use the --apply flag"

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Suggest a title and amount for every tagged document",
	Long: `Suggest a title and amount for every document carrying the processing tag.

Without --apply nothing is written to paperless; the suggested changes are
logged and journaled only.

Examples:
  paperllm process
  paperllm process --apply --currency EUR
  paperllm process --apply --yes --status-addr 127.0.0.1:4100`,
	RunE: runProcess,
}

func init() {
	addServiceFlags(processCmd)
	processCmd.Flags().Bool("apply", false, "write the suggested changes to paperless")
	processCmd.Flags().Bool("yes", false, "skip the confirmation prompt for --apply")
	processCmd.Flags().Bool("process-all", false, "process every document instead of the tagged ones")
	processCmd.Flags().String("currency", "", "currency prefix of the amount field (overrides processing.currency)")
	processCmd.Flags().Int("concurrency", 0, "documents processed at once (overrides processing.concurrency)")
	processCmd.Flags().String("status-addr", "", "serve run progress over HTTP on this address (overrides status.addr)")
}

// processConfig returns cfg with the process flags applied.
func processConfig(cmd *cobra.Command, c config.Config) config.Config {
	applyServiceFlags(cmd, &c)
	overrideString(cmd, "currency", &c.Processing.Currency)
	overrideString(cmd, "status-addr", &c.Status.Addr)
	if cmd.Flags().Changed("concurrency") {
		c.Processing.Concurrency, _ = cmd.Flags().GetInt("concurrency")
	}
	return c
}

func runProcess(cmd *cobra.Command, args []string) error {
	c := processConfig(cmd, cfg)
	apply, _ := cmd.Flags().GetBool("apply")
	yes, _ := cmd.Flags().GetBool("yes")
	processAll, _ := cmd.Flags().GetBool("process-all")

	if err := c.RequireToken(); err != nil {
		return err
	}

	if apply && !yes {
		ok, err := confirm(cmd.InOrStdin(), cmd.ErrOrStderr(), applyQuestion)
		if err != nil {
			return err
		}
		if !ok {
			return errUserAborted
		}
	}
	if !apply {
		printWarning(dryRunWarning)
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	svc, err := connect(ctx, c)
	if err != nil {
		return err
	}
	slog.Info("using model", "model", svc.server.Model, "context_size", svc.server.ContextSize)
	printStatus("Model", "%s (n_ctx %d)", svc.server.Model, svc.server.ContextSize)

	tag := c.Processing.Tag
	if processAll {
		tag = ""
	}
	ids, err := svc.paperless.ListIDs(ctx, tag)
	if err != nil {
		return err
	}
	slices.Sort(ids)

	store, err := storage.Open(c.Storage.DataDir)
	if err != nil {
		return fmt.Errorf("opening journal: %w", err)
	}
	defer store.Close()

	runID := uuid.NewString()
	started := time.Now()
	if err := store.CreateRun(storage.Run{
		ID:          runID,
		StartedAt:   started,
		Apply:       apply,
		Model:       svc.server.Model,
		ContextSize: svc.server.ContextSize,
		Tag:         tag,
	}); err != nil {
		return fmt.Errorf("journaling run: %w", err)
	}
	printStep("Processing %d documents (run %s)", len(ids), runID)

	prog := api.NewProgress(runID, apply, len(ids))
	bar := newProgressBar(os.Stderr)
	onProgress := func(processed, total int) {
		prog.Update(processed, total)
		bar.Update(processed, total)
	}

	statusCtx, stopStatus := context.WithCancel(ctx)
	var g errgroup.Group
	if c.Status.Addr != "" {
		h := api.NewStatusHandler(api.StatusDeps{Store: store, Progress: prog, Token: c.Status.Token})
		g.Go(func() error { return api.Serve(statusCtx, c.Status.Addr, h) })
	}

	orch := svc.orchestrator(c, apply, pipeline.NewJournal(store, runID), pipeline.WithProgress(onProgress))
	res := orch.ProcessAll(ctx, ids)
	bar.Finish()
	prog.Finish(res.Failed)

	stopStatus()
	if err := g.Wait(); err != nil {
		slog.Error("status server failed", "error", err)
	}

	elapsed := time.Since(started)
	if err := store.FinishRun(runID, time.Now(), res.Total, len(res.Failed)); err != nil {
		slog.Error("journaling run result", "run_id", runID, "error", err)
	}

	writeSummary(cmd.OutOrStdout(), res, elapsed)
	if !apply {
		printWarning(dryRunWarning)
	}
	return nil
}

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kalambet/paperllm/internal/composer"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check paperless and llama.cpp and show the resolved ids",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := cfg
		applyServiceFlags(cmd, &c)

		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		svc, err := connect(ctx, c)
		if err != nil {
			return err
		}
		printSuccess("llama.cpp reachable at %s", c.LlamaCpp.URL)
		printStatus("Model", "%s", svc.server.Model)
		printStatus("Context size", "%d tokens", svc.server.ContextSize)
		printSuccess("paperless reachable at %s", c.Paperless.URL)
		printStatus("Tag", "%s (id %d)", c.Processing.Tag, svc.tagID)
		printStatus("Amount field", "%s (id %d)", c.Processing.AmountField, svc.fieldID)

		ids, err := svc.paperless.ListIDs(ctx, c.Processing.Tag)
		if err != nil {
			return err
		}
		printStatus("Pending documents", "%d", len(ids))

		sample, _ := cmd.Flags().GetString("tokenize-sample")
		if sample == "" {
			return nil
		}
		tokens, err := svc.llm.Tokenize(ctx, sample)
		if err != nil {
			return fmt.Errorf("tokenizing sample: %w", err)
		}
		printTokenRatio(sample, len(tokens))
		return nil
	},
}

func init() {
	addServiceFlags(statusCmd)
	statusCmd.Flags().String("tokenize-sample", "", "compare the real token count of this text with the estimate used for budgeting")
}

func printTokenRatio(sample string, actual int) {
	estimated := composer.EstimateTokens(sample)
	printStatus("Tokens", "%d actual, %d estimated", actual, estimated)
	if actual > 0 {
		printStatus("Chars per token", "%.2f (estimate assumes %.1f)", float64(len(sample))/float64(actual), composer.CharsPerToken)
	}
}

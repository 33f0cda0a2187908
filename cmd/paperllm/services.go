package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kalambet/paperllm/internal/config"
	"github.com/kalambet/paperllm/internal/content"
	"github.com/kalambet/paperllm/internal/llamacpp"
	"github.com/kalambet/paperllm/internal/paperless"
	"github.com/kalambet/paperllm/internal/pipeline"
)

// services are the clients and ids resolved once before any document is
// touched.
type services struct {
	paperless *paperless.Client
	llm       *llamacpp.Client
	server    llamacpp.Server
	tagID     int
	fieldID   int
}

// addServiceFlags registers the flags that override connection settings.
func addServiceFlags(cmd *cobra.Command) {
	cmd.Flags().String("paperless-url", "", "paperless-ngx base URL (overrides paperless.url)")
	cmd.Flags().String("paperless-token", "", "paperless-ngx API token (overrides PAPERLLM_PAPERLESS_TOKEN)")
	cmd.Flags().String("openai-url", "", "llama.cpp server base URL (overrides llamacpp.url)")
}

// applyServiceFlags copies explicitly set flags over c.
func applyServiceFlags(cmd *cobra.Command, c *config.Config) {
	overrideString(cmd, "paperless-url", &c.Paperless.URL)
	overrideString(cmd, "paperless-token", &c.Paperless.Token)
	overrideString(cmd, "openai-url", &c.LlamaCpp.URL)
}

func overrideString(cmd *cobra.Command, name string, dst *string) {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		*dst = f.Value.String()
	}
}

// connect queries llama.cpp for its model and context size and resolves the
// processing tag and amount field ids in paperless. Any failure is fatal.
func connect(ctx context.Context, c config.Config) (*services, error) {
	if err := c.RequireToken(); err != nil {
		return nil, err
	}

	s := &services{
		paperless: paperless.NewClient(c.Paperless.URL, c.Paperless.Token, c.Paperless.RateLimit),
		llm:       llamacpp.New(c.LlamaCpp.URL),
	}

	var err error
	s.server, err = llamacpp.Discover(ctx, s.llm)
	if err != nil {
		return nil, fmt.Errorf("querying llama.cpp at %s: %w", c.LlamaCpp.URL, err)
	}

	s.tagID, err = s.paperless.LookupID(ctx, paperless.CategoryTags, c.Processing.Tag)
	if err != nil {
		return nil, fmt.Errorf("resolving processing tag: %w", err)
	}
	s.fieldID, err = s.paperless.LookupID(ctx, paperless.CategoryCustomFields, c.Processing.AmountField)
	if err != nil {
		return nil, fmt.Errorf("resolving amount field: %w", err)
	}
	return s, nil
}

// orchestrator builds the pipeline for one run. rec may be nil.
func (s *services) orchestrator(c config.Config, apply bool, rec pipeline.Recorder, opts ...pipeline.Option) *pipeline.Orchestrator {
	deps := pipeline.Deps{
		Store:    s.paperless,
		LLM:      s.llm,
		Text:     content.NewExtractor(s.paperless, c.Processing.PDFFallback),
		Recorder: rec,
	}
	rt := pipeline.Runtime{
		Currency:    c.Processing.Currency,
		Apply:       apply,
		Model:       s.server.Model,
		ContextSize: s.server.ContextSize,
		TagID:       s.tagID,
		FieldID:     s.fieldID,
	}
	opts = append([]pipeline.Option{pipeline.WithConcurrency(c.Processing.Concurrency)}, opts...)
	return pipeline.New(deps, rt, opts...)
}

// Package pipeline runs documents through fetch, prompt, completion, parse
// and patch with a bounded number of documents in flight.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/paperllm/internal/composer"
	"github.com/kalambet/paperllm/internal/extract"
	"github.com/kalambet/paperllm/internal/llamacpp"
	"github.com/kalambet/paperllm/internal/paperless"
	"github.com/kalambet/paperllm/internal/patch"
)

const (
	// DefaultConcurrency is the number of documents processed at once.
	DefaultConcurrency = 10

	temperature = 0
	nPredict    = 100
)

// DocumentStore reads and updates documents.
type DocumentStore interface {
	Document(ctx context.Context, id int) (paperless.Document, error)
	PatchDocument(ctx context.Context, id int, p paperless.DocumentPatch) error
}

// InferenceService runs chat completions.
type InferenceService interface {
	Complete(ctx context.Context, q llamacpp.Query) (*llamacpp.Response, error)
}

// TextSource resolves the model input for a fetched document.
type TextSource interface {
	Text(ctx context.Context, doc paperless.Document) (string, error)
}

// Recorder persists per-document outcomes as they complete.
type Recorder interface {
	RecordOutcome(ctx context.Context, o Outcome) error
}

// Deps are the collaborators of an Orchestrator. Text and Recorder are
// optional: without Text the document content is used verbatim.
type Deps struct {
	Store    DocumentStore
	LLM      InferenceService
	Text     TextSource
	Recorder Recorder
}

// Runtime is the run configuration resolved once at startup.
type Runtime struct {
	Currency    string
	Apply       bool
	Model       string
	ContextSize int
	TagID       int
	FieldID     int

	// Template overrides composer.DefaultTemplate when set.
	Template string
}

// ProgressFunc is called after each document with the number of documents
// finished so far. It may be called from several goroutines at once.
type ProgressFunc func(processed, total int)

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithConcurrency sets the number of documents processed at once.
// Values <= 0 select DefaultConcurrency.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

// WithProgress registers a progress callback.
func WithProgress(fn ProgressFunc) Option {
	return func(o *Orchestrator) { o.progress = fn }
}

// WithLogger replaces slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// Orchestrator fans documents out over a bounded worker pool.
type Orchestrator struct {
	deps        Deps
	rt          Runtime
	concurrency int
	progress    ProgressFunc
	logger      *slog.Logger
}

// New creates an Orchestrator.
func New(deps Deps, rt Runtime, opts ...Option) *Orchestrator {
	if rt.Template == "" {
		rt.Template = composer.DefaultTemplate
	}
	o := &Orchestrator{
		deps:        deps,
		rt:          rt,
		concurrency: DefaultConcurrency,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Result is the aggregate of a run.
type Result struct {
	Total int
	// Failed holds the ids of every document that did not reach StageDone,
	// ascending and without duplicates.
	Failed []int
	// Outcomes holds one entry per processed id, ordered by document id.
	Outcomes []Outcome
}

// ProcessAll runs every id to completion or failure and returns when all are
// finished. A failing document never stops the others and is not retried.
func (o *Orchestrator) ProcessAll(ctx context.Context, ids []int) Result {
	total := len(ids)
	var (
		mu        sync.Mutex
		outcomes  = make([]Outcome, 0, total)
		processed atomic.Int64
	)

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for _, id := range ids {
		g.Go(func() error {
			out := o.process(ctx, id, o.rt.Apply)
			o.record(ctx, out)

			mu.Lock()
			outcomes = append(outcomes, out)
			mu.Unlock()

			n := processed.Add(1)
			if o.progress != nil {
				o.progress(int(n), total)
			}
			return nil
		})
	}
	g.Wait()

	slices.SortStableFunc(outcomes, func(a, b Outcome) int { return a.DocID - b.DocID })

	res := Result{Total: total, Outcomes: outcomes}
	for _, out := range outcomes {
		if out.Stage != StageDone {
			res.Failed = append(res.Failed, out.DocID)
		}
	}
	res.Failed = slices.Compact(res.Failed)
	return res
}

// Preview runs one document through the pipeline without writing the patch,
// regardless of Runtime.Apply. The outcome is not recorded.
func (o *Orchestrator) Preview(ctx context.Context, id int) Outcome {
	return o.process(ctx, id, false)
}

func (o *Orchestrator) record(ctx context.Context, out Outcome) {
	if o.deps.Recorder == nil {
		return
	}
	if err := o.deps.Recorder.RecordOutcome(ctx, out); err != nil {
		o.logger.Warn("failed to record outcome", "doc_id", out.DocID, "error", err)
	}
}

func (o *Orchestrator) process(ctx context.Context, id int, apply bool) Outcome {
	start := time.Now()
	log := o.logger.With("doc_id", id)
	out := Outcome{DocID: id, Stage: StageQueued}

	fail := func(err error) Outcome {
		reached := out.Stage
		out.Stage = StageFailed
		out.Err = &StageError{DocID: id, Stage: reached, Err: err}
		out.Elapsed = time.Since(start)
		log.Error("document failed", "stage", reached, "error", err)
		return out
	}
	advance := func(s Stage) {
		out.Stage = s
		log.Debug("stage reached", "stage", s)
	}

	doc, err := o.deps.Store.Document(ctx, id)
	if err != nil {
		return fail(err)
	}
	text := doc.Content
	if o.deps.Text != nil {
		if text, err = o.deps.Text.Text(ctx, doc); err != nil {
			return fail(err)
		}
	}
	out.OldTitle = doc.Title
	out.OldCustomFields = doc.CustomFields
	advance(StageFetched)

	prompt := composer.Assemble(o.rt.Template, o.rt.Currency, o.rt.ContextSize, text)
	if prompt.Truncated {
		out.Truncated = true
		log.Warn("document truncated to fit context",
			"original_len", prompt.OriginalLen,
			"truncated_len", prompt.TruncatedLen,
		)
	}
	advance(StagePrompted)

	resp, err := o.deps.LLM.Complete(ctx, llamacpp.Query{
		Model: o.rt.Model,
		Messages: []llamacpp.Message{
			{Role: llamacpp.RoleSystem, Content: prompt.System},
			{Role: llamacpp.RoleUser, Content: prompt.User},
		},
		Grammar:     composer.Grammar,
		Temperature: temperature,
		NPredict:    nPredict,
	})
	if err != nil {
		return fail(err)
	}
	raw, err := resp.Content()
	if err != nil {
		return fail(err)
	}
	out.Raw = raw
	advance(StageCompleted)

	res, err := extract.Parse(raw)
	if err != nil {
		return fail(err)
	}
	advance(StageParsed)

	p := patch.Build(doc, res, patch.Options{
		TagID:    o.rt.TagID,
		FieldID:  o.rt.FieldID,
		Currency: o.rt.Currency,
	})
	out.NewTitle = p.Title
	out.Patch = &p
	if patch.TitleChanged(doc, p) {
		log.Info("title changed", "old", doc.Title, "new", p.Title)
	}
	advance(StagePatched)

	if apply {
		if err := o.deps.Store.PatchDocument(ctx, id, p); err != nil {
			return fail(err)
		}
		out.Applied = true
	} else {
		amount := extract.NoAmount
		if res.Amount != nil {
			amount = patch.FormatAmount(o.rt.Currency, *res.Amount)
		}
		fields, _ := json.Marshal(p.CustomFields)
		log.Info("dry run, patch not applied",
			"title", p.Title,
			"tags", p.Tags,
			"amount", amount,
			"custom_fields", string(fields),
		)
	}

	out.Stage = StageDone
	out.Elapsed = time.Since(start)
	log.Debug("document done", "elapsed", out.Elapsed)
	return out
}

// Package tracker runs one batch of the pipeline: fetch candidate mail,
// normalize, filter, classify, extract and merge the resulting records into
// the store.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hiretrack-ai/hiretrack/internal/extract"
	"github.com/hiretrack-ai/hiretrack/internal/history"
	"github.com/hiretrack-ai/hiretrack/internal/inbox"
	"github.com/hiretrack-ai/hiretrack/internal/ledger"
	"github.com/hiretrack-ai/hiretrack/internal/metrics"
)

// Outcome is what happened to one message
type Outcome string

const (
	OutcomeRecorded  Outcome = "recorded"  // Classified and extracted into a record
	OutcomeFiltered  Outcome = "filtered"  // Rejected by a noise rule or the window
	OutcomeDiscarded Outcome = "discarded" // Classifier found no application event
	OutcomeSkipped   Outcome = "skipped"   // Already processed by an earlier run
	OutcomeFailed    Outcome = "failed"
)

// MessageResult is the per-message result of a run
type MessageResult struct {
	MessageID      string
	Outcome        Outcome
	Rule           string // Filter rule, when filtered
	Classification inbox.Classification
	Record         history.Record // Set when recorded
	Err            error
}

// Report summarizes a run
type Report struct {
	RunID      string
	Mode       inbox.LookbackMode
	Threshold  time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Fetched    int
	Filtered   int
	Skipped    int
	Failed     int
	Summary    inbox.Summary    // Classifications, filtered messages count as discarded
	Added      []history.Record // Records new to the store
	Total      int              // Store size after the merge
	DryRun     bool
	Archive    bool            // Read from an mbox archive, not the mailbox
	Results    []MessageResult // In fetch order
}

// Empty reports whether the run found nothing to record
func (r *Report) Empty() bool {
	for _, res := range r.Results {
		if res.Outcome == OutcomeRecorded {
			return false
		}
	}
	return true
}

// Options tune a Runner. Zero values select the defaults.
type Options struct {
	Window   inbox.Window
	Location *time.Location
	Workers  int
	Ledger   ledger.Ledger
	Logger   *zap.Logger
	DryRun   bool             // Merge in memory without saving
	Archive  bool             // The source is an mbox archive
	Now      func() time.Time // Clock, for tests
}

// Runner executes tracker runs against one source and store
type Runner struct {
	source    inbox.Source
	store     history.Store
	extractor *extract.Extractor
	window    inbox.Window
	loc       *time.Location
	workers   int
	ledger    ledger.Ledger
	logger    *zap.Logger
	dryRun    bool
	archive   bool
	now       func() time.Time
}

func NewRunner(source inbox.Source, store history.Store, extractor *extract.Extractor, opts Options) *Runner {
	r := &Runner{
		source:    source,
		store:     store,
		extractor: extractor,
		window:    opts.Window,
		loc:       opts.Location,
		workers:   opts.Workers,
		ledger:    opts.Ledger,
		logger:    opts.Logger,
		dryRun:    opts.DryRun,
		archive:   opts.Archive,
		now:       opts.Now,
	}
	if r.window == (inbox.Window{}) {
		r.window = inbox.DefaultWindow
	}
	if r.loc == nil {
		r.loc = time.UTC
	}
	if r.workers <= 0 {
		r.workers = 4
	}
	if r.ledger == nil {
		r.ledger = ledger.Nop{}
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// Run processes one batch in the given lookback mode. Fetch and store
// failures abort the run; failures of single messages are logged, counted
// and skipped.
func (r *Runner) Run(ctx context.Context, mode inbox.LookbackMode) (*Report, error) {
	now := r.now().In(r.loc)
	report := &Report{
		RunID:     uuid.New().String(),
		Mode:      mode,
		Threshold: r.window.Threshold(mode, now),
		StartedAt: now,
		DryRun:    r.dryRun,
		Archive:   r.archive,
	}
	logger := r.logger.With(zap.String("run_id", report.RunID), zap.String("mode", mode.String()))

	raws, err := r.source.Fetch(ctx, mode, now)
	if err != nil {
		r.finish(report, "error")
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	report.Fetched = len(raws)
	logger.Info("Fetched candidate messages", zap.Int("count", len(raws)))

	results, err := r.processAll(ctx, raws, inbox.NewFilter(report.Threshold))
	if err != nil {
		r.finish(report, "cancelled")
		return nil, err
	}
	report.Results = results

	var (
		batch           []history.Record
		classifications []inbox.Classification
		processedIDs    []string
	)
	for _, res := range results {
		metrics.RecordMessage(string(res.Outcome))
		switch res.Outcome {
		case OutcomeRecorded:
			batch = append(batch, res.Record)
			classifications = append(classifications, res.Classification)
			processedIDs = append(processedIDs, res.MessageID)
		case OutcomeDiscarded:
			classifications = append(classifications, res.Classification)
			processedIDs = append(processedIDs, res.MessageID)
		case OutcomeFiltered:
			report.Filtered++
			metrics.RecordFiltered(res.Rule)
			classifications = append(classifications, inbox.Classification{Status: inbox.StatusDiscarded, Phrase: res.Rule})
		case OutcomeSkipped:
			report.Skipped++
		case OutcomeFailed:
			report.Failed++
			logger.Warn("Failed to process message", zap.String("message_id", res.MessageID), zap.Error(res.Err))
		}
	}
	report.Summary = inbox.Summarize(classifications)

	if len(batch) == 0 {
		logger.Info("No relevant job application emails found")
		r.finish(report, "empty")
		return report, nil
	}

	existing, err := r.store.Load(ctx)
	if err != nil {
		r.finish(report, "error")
		return nil, fmt.Errorf("failed to load records: %w", err)
	}
	merged, _ := history.Merge(existing, batch)
	report.Added = newRecords(existing, merged)
	report.Total = len(merged)

	if r.dryRun {
		logger.Info("Dry run, store left unchanged", zap.Int("would_add", len(report.Added)))
		r.finish(report, "dry_run")
		return report, nil
	}

	if len(report.Added) > 0 {
		if err := r.store.Save(ctx, merged); err != nil {
			r.finish(report, "error")
			return nil, fmt.Errorf("failed to save records: %w", err)
		}
	}
	if err := r.ledger.Mark(ctx, processedIDs); err != nil {
		logger.Warn("Failed to update ledger", zap.Error(err))
	}

	metrics.RecordAdded(len(report.Added))
	logger.Info("Run complete",
		zap.Int("candidates", len(batch)),
		zap.Int("added", len(report.Added)),
		zap.Int("total", report.Total),
	)
	r.finish(report, "ok")
	return report, nil
}

func (r *Runner) finish(report *Report, status string) {
	report.FinishedAt = r.now().In(r.loc)
	metrics.RecordRun(report.Mode.String(), status, report.FinishedAt.Sub(report.StartedAt), report.FinishedAt)
}

// processAll runs process over raws on a bounded pool. Results keep the
// input order. Only cancellation stops the batch.
func (r *Runner) processAll(ctx context.Context, raws []inbox.RawMessage, filter *inbox.Filter) ([]MessageResult, error) {
	results := make([]MessageResult, len(raws))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.workers)
	for i := range raws {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = r.process(gctx, raws[i], filter)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// process takes one message through the pipeline. A panic in any stage is
// turned into a failed result.
func (r *Runner) process(ctx context.Context, raw inbox.RawMessage, filter *inbox.Filter) (res MessageResult) {
	res.MessageID = raw.ID
	defer func() {
		if p := recover(); p != nil {
			res = MessageResult{MessageID: raw.ID, Outcome: OutcomeFailed, Err: fmt.Errorf("panic: %v", p)}
		}
	}()

	if raw.ID != "" && r.ledger.Seen(ctx, raw.ID) {
		res.Outcome = OutcomeSkipped
		return res
	}

	msg := inbox.Normalize(raw, r.loc)
	if verdict := filter.Check(msg); verdict.Rejected {
		res.Outcome = OutcomeFiltered
		res.Rule = verdict.Rule
		return res
	}

	res.Classification = inbox.ClassifyMessage(msg)
	if !res.Classification.Accepted() {
		res.Outcome = OutcomeDiscarded
		return res
	}

	fields := r.extractor.Extract(ctx, msg)
	if err := ctx.Err(); err != nil {
		res.Outcome = OutcomeFailed
		res.Err = err
		return res
	}

	res.Outcome = OutcomeRecorded
	res.Record = history.Record{
		Company:      fields.Company,
		Role:         fields.Role,
		Status:       history.Status(res.Classification.Status),
		Phrase:       res.Classification.Phrase,
		DateApplied:  msg.DateApplied(),
		TimeReceived: msg.TimeReceived(),
	}
	return res
}

// newRecords returns the merged records whose key the store did not hold
func newRecords(existing, merged []history.Record) []history.Record {
	known := make(map[history.Key]bool, len(existing))
	for _, r := range existing {
		known[r.Key()] = true
	}
	var added []history.Record
	for _, r := range merged {
		if !known[r.Key()] {
			added = append(added, r)
		}
	}
	return added
}

// IsCancelled reports whether err came from context cancellation
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/hiretrack-ai/hiretrack/internal/config"
	"github.com/hiretrack-ai/hiretrack/internal/extract"
	"github.com/hiretrack-ai/hiretrack/internal/history"
	"github.com/hiretrack-ai/hiretrack/internal/inbox"
	"github.com/hiretrack-ai/hiretrack/internal/ledger"
	"github.com/hiretrack-ai/hiretrack/internal/ner"
	"github.com/hiretrack-ai/hiretrack/internal/notify"
	"github.com/hiretrack-ai/hiretrack/internal/tracker"
)

// app holds the collaborators shared by every command
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	loc       *time.Location
	store     history.Store
	state     *tracker.StatePersistence
	extractor *extract.Extractor
	ledger    ledger.Ledger
	sender    notify.Sender // nil unless digests are enabled
}

func newApp(cfg *config.Config, logger *zap.Logger) (*app, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	recognizer, err := ner.New(cfg.NER)
	if err != nil {
		return nil, err
	}
	if cfg.NER.Provider == "heuristic" {
		logger.Info("Using built-in entity rules; set ner.provider to http for a statistical model")
	}

	var sender notify.Sender
	if cfg.Notify.Enabled {
		sender, err = notify.NewSender(cfg.Notify)
		if err != nil {
			return nil, err
		}
	}

	store, err := history.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}

	led, err := ledger.New(cfg.Ledger, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	return &app{
		cfg:       cfg,
		logger:    logger,
		loc:       loc,
		store:     store,
		state:     tracker.NewStatePersistence(cfg.Tracker.StateDir),
		extractor: extract.New(tracker.Instrument(recognizer, cfg.NER.Provider), logger),
		ledger:    led,
		sender:    sender,
	}, nil
}

func (a *app) Close() error {
	a.ledger.Close()
	return a.store.Close()
}

func (a *app) window() inbox.Window {
	return inbox.Window{Wide: a.cfg.Tracker.WideWindow, Narrow: a.cfg.Tracker.NarrowWindow}
}

// openSource returns the mbox source when a path is given, else a connected
// IMAP monitor. The returned func releases the source.
func (a *app) openSource(ctx context.Context, mboxPath string) (inbox.Source, func(), error) {
	if mboxPath != "" {
		if _, err := os.Stat(mboxPath); err != nil {
			return nil, nil, fmt.Errorf("mbox: %w", err)
		}
		return inbox.NewMboxSource(mboxPath, a.logger), func() {}, nil
	}

	if err := a.cfg.ValidateInbox(); err != nil {
		return nil, nil, err
	}
	monitor := inbox.NewMonitor(a.cfg.Inbox, a.window(), a.logger)
	if err := monitor.Connect(ctx); err != nil {
		return nil, nil, err
	}
	return monitor, func() { monitor.Disconnect() }, nil
}

// runOnce performs one tracker run. requested is "auto", "wide" or
// "narrow"; auto follows the saved run state. Dry runs leave the state
// alone and send no digest.
func (a *app) runOnce(ctx context.Context, requested, mboxPath string, dryRun bool) (*tracker.Report, error) {
	state, err := a.state.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load run state: %w", err)
	}
	mode, err := tracker.ResolveMode(requested, state)
	if err != nil {
		return nil, err
	}

	source, release, err := a.openSource(ctx, mboxPath)
	if err != nil {
		return nil, err
	}
	defer release()

	runner := tracker.NewRunner(source, a.store, a.extractor, tracker.Options{
		Window:   a.window(),
		Location: a.loc,
		Workers:  a.cfg.Tracker.Workers,
		Ledger:   a.ledger,
		Logger:   a.logger,
		DryRun:   dryRun,
		Archive:  mboxPath != "",
	})
	report, err := runner.Run(ctx, mode)
	if err != nil {
		return nil, err
	}
	if dryRun {
		return report, nil
	}

	state.Record(report)
	if err := a.state.Save(state); err != nil {
		a.logger.Warn("Failed to save run state", zap.Error(err))
	}
	a.sendDigest(ctx, report)
	return report, nil
}

func (a *app) sendDigest(ctx context.Context, report *tracker.Report) {
	if a.sender == nil {
		return
	}
	msg, err := notify.Digest(a.cfg.Notify.From, a.cfg.Notify.To, notify.DigestData{
		RunID:    report.RunID,
		Mode:     report.Mode.String(),
		Finished: report.FinishedAt,
		Fetched:  report.Fetched,
		Failed:   report.Failed,
		Summary:  report.Summary,
		Added:    report.Added,
	})
	if err != nil {
		a.logger.Warn("Failed to render digest", zap.Error(err))
		return
	}

	result := a.sender.Send(ctx, msg)
	if !result.Success {
		a.logger.Warn("Failed to send digest", zap.String("provider", a.sender.Name()), zap.Error(result.Error))
		return
	}
	a.logger.Info("Digest sent", zap.String("provider", a.sender.Name()), zap.String("message_id", result.MessageID))
}

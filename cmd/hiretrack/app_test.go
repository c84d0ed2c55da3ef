package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/hiretrack-ai/hiretrack/internal/config"
	"github.com/hiretrack-ai/hiretrack/internal/history"
	"github.com/hiretrack-ai/hiretrack/internal/inbox"
	"github.com/hiretrack-ai/hiretrack/internal/tracker"
)

func testApp(t *testing.T) (*app, string) {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Store.Backend = "sqlite"
	cfg.Store.Path = filepath.Join(dir, "applications.db")
	cfg.Tracker.StateDir = dir

	a, err := newApp(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("newApp: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a, dir
}

// writeMbox stores one application email received an hour ago
func writeMbox(t *testing.T, dir string) string {
	t.Helper()
	received := time.Now().Add(-time.Hour)
	archive := fmt.Sprintf("From careers@acme.com %s\n"+
		"From: Acme Careers <careers@acme.com>\n"+
		"Subject: Thank you for your application\n"+
		"Date: %s\n"+
		"\n"+
		"We have received your application and will be in touch.\n",
		received.UTC().Format(time.ANSIC), received.Format(time.RFC1123Z))

	path := filepath.Join(dir, "inbox.mbox")
	if err := os.WriteFile(path, []byte(archive), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunOnceFollowsRunState(t *testing.T) {
	a, dir := testApp(t)
	mbox := writeMbox(t, dir)
	ctx := context.Background()

	first, err := a.runOnce(ctx, "auto", mbox, false)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Mode != inbox.LookbackWide {
		t.Errorf("first auto run mode = %s, want wide", first.Mode)
	}
	if len(first.Added) != 1 || first.Added[0].Status != history.StatusApplied {
		t.Fatalf("first run added %+v", first.Added)
	}

	state, err := a.state.Load()
	if err != nil {
		t.Fatalf("Load state: %v", err)
	}
	if state.Runs != 1 || state.LastRunID != first.RunID {
		t.Errorf("state = %+v", state)
	}
	// An archive import does not stand in for the mailbox backfill
	if state.FirstRunDone {
		t.Error("mbox run marked the first run done")
	}

	second, err := a.runOnce(ctx, "auto", mbox, false)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Mode != inbox.LookbackWide || len(second.Added) != 0 {
		t.Errorf("second auto run mode %s, added %d", second.Mode, len(second.Added))
	}

	// The message is older than the narrow window
	third, err := a.runOnce(ctx, "narrow", mbox, false)
	if err != nil {
		t.Fatalf("narrow run: %v", err)
	}
	if third.Filtered != 1 || len(third.Added) != 0 {
		t.Errorf("narrow run filtered %d, added %d", third.Filtered, len(third.Added))
	}

	records, err := a.store.Load(ctx)
	if err != nil {
		t.Fatalf("Load records: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("store has %d records, want 1", len(records))
	}
}

func TestMailboxRunSetsFirstRun(t *testing.T) {
	a, _ := testApp(t)
	state, _ := a.state.Load()
	state.Record(&tracker.Report{RunID: "wide", Mode: inbox.LookbackWide})
	if err := a.state.Save(state); err != nil {
		t.Fatal(err)
	}

	loaded, err := a.state.Load()
	if err != nil {
		t.Fatal(err)
	}
	mode, err := tracker.ResolveMode("auto", loaded)
	if err != nil || mode != inbox.LookbackNarrow {
		t.Errorf("auto after a mailbox run = %s, %v; want narrow", mode, err)
	}
}

func TestRunOnceDryRunKeepsState(t *testing.T) {
	a, dir := testApp(t)
	mbox := writeMbox(t, dir)

	report, err := a.runOnce(context.Background(), "wide", mbox, true)
	if err != nil {
		t.Fatalf("runOnce: %v", err)
	}
	if len(report.Added) != 1 {
		t.Errorf("dry run would add %d, want 1", len(report.Added))
	}

	state, err := a.state.Load()
	if err != nil {
		t.Fatalf("Load state: %v", err)
	}
	if state.Runs != 0 || state.FirstRunDone {
		t.Errorf("dry run changed state: %+v", state)
	}
	records, _ := a.store.Load(context.Background())
	if len(records) != 0 {
		t.Errorf("dry run saved %d records", len(records))
	}
}

func TestRunOnceErrors(t *testing.T) {
	a, dir := testApp(t)
	ctx := context.Background()

	if _, err := a.runOnce(ctx, "auto", "", false); !errors.Is(err, config.ErrInboxDisabled) {
		t.Errorf("no inbox: got %v, want ErrInboxDisabled", err)
	}
	if _, err := a.runOnce(ctx, "auto", filepath.Join(dir, "missing.mbox"), false); err == nil {
		t.Error("expected error for a missing mbox")
	}
	if _, err := a.runOnce(ctx, "sideways", writeMbox(t, dir), false); err == nil {
		t.Error("expected error for an unknown mode")
	}
}

func TestNewAppRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Store.Backend = "csv"
	if _, err := newApp(cfg, zap.NewNop()); err == nil {
		t.Error("expected error for unknown store backend")
	}
}

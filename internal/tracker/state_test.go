package tracker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hiretrack-ai/hiretrack/internal/history"
	"github.com/hiretrack-ai/hiretrack/internal/inbox"
)

func TestResolveMode(t *testing.T) {
	fresh := &RunState{}
	done := &RunState{FirstRunDone: true}

	tests := []struct {
		name      string
		requested string
		state     *RunState
		want      inbox.LookbackMode
		wantErr   bool
	}{
		{"auto on first run", "auto", fresh, inbox.LookbackWide, false},
		{"empty means auto", "", done, inbox.LookbackNarrow, false},
		{"auto after first run", "auto", done, inbox.LookbackNarrow, false},
		{"nil state", "auto", nil, inbox.LookbackWide, false},
		{"forced wide", "wide", done, inbox.LookbackWide, false},
		{"forced narrow", "Narrow", fresh, inbox.LookbackNarrow, false},
		{"unknown", "sideways", fresh, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveMode(tt.requested, tt.state)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRunStateRecord(t *testing.T) {
	var state RunState
	finished := time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC)

	state.Record(&Report{RunID: "a", Mode: inbox.LookbackNarrow, FinishedAt: finished})
	if state.FirstRunDone {
		t.Error("narrow run marked the first run done")
	}

	state.Record(&Report{RunID: "archive", Mode: inbox.LookbackWide, FinishedAt: finished, Archive: true})
	if state.FirstRunDone {
		t.Error("wide archive run marked the first run done")
	}

	state.Record(&Report{
		RunID:      "b",
		Mode:       inbox.LookbackWide,
		FinishedAt: finished,
		Fetched:    7,
		Added:      []history.Record{{Company: "Acme"}},
	})
	if !state.FirstRunDone || state.LastRunID != "b" || state.LastAdded != 1 || state.LastFetched != 7 || state.Runs != 3 {
		t.Errorf("state = %+v", state)
	}
	if state.LastMode != "wide" {
		t.Errorf("LastMode = %q", state.LastMode)
	}
}

func TestStatePersistence(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	sp := NewStatePersistence(dir)

	state, err := sp.Load()
	if err != nil {
		t.Fatalf("Load missing: %v", err)
	}
	if state.FirstRunDone || state.Runs != 0 {
		t.Errorf("fresh state = %+v", state)
	}

	saved := &RunState{
		FirstRunDone: true,
		LastRunID:    "run-1",
		LastRunAt:    time.Date(2024, 6, 3, 10, 0, 0, 0, time.UTC),
		LastMode:     "wide",
		LastAdded:    3,
		Runs:         1,
	}
	if err := sp.Save(saved); err != nil {
		t.Fatalf("Save: %v", err)
	}

	info, err := os.Stat(filepath.Join(dir, "state.json"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("state file mode = %04o, want 0600", perm)
	}

	loaded, err := sp.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.LastRunAt.Equal(saved.LastRunAt) {
		t.Errorf("LastRunAt = %v", loaded.LastRunAt)
	}
	loaded.LastRunAt = saved.LastRunAt
	if *loaded != *saved {
		t.Errorf("got %+v, want %+v", loaded, saved)
	}

	if err := sp.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if err := sp.Clear(); err != nil {
		t.Errorf("second Clear: %v", err)
	}
}

func TestStatePersistenceCorrupt(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "state.json"), []byte("{not json"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewStatePersistence(dir).Load(); err == nil {
		t.Error("expected error for corrupt state")
	}
}

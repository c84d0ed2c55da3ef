package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hiretrack-ai/hiretrack/internal/inbox"
)

// RunState is what the orchestrator remembers between runs
type RunState struct {
	FirstRunDone bool      `json:"first_run_done"` // A wide mailbox run has completed
	LastRunID    string    `json:"last_run_id,omitempty"`
	LastRunAt    time.Time `json:"last_run_at,omitempty"`
	LastMode     string    `json:"last_mode,omitempty"`
	LastFetched  int       `json:"last_fetched"`
	LastAdded    int       `json:"last_added"`
	Runs         int       `json:"runs"`
}

// Record folds a completed run into the state. A completed wide run over
// the mailbox moves later auto runs to narrow; archive runs never do.
func (s *RunState) Record(report *Report) {
	if report.Mode == inbox.LookbackWide && !report.Archive {
		s.FirstRunDone = true
	}
	s.LastRunID = report.RunID
	s.LastRunAt = report.FinishedAt
	s.LastMode = report.Mode.String()
	s.LastFetched = report.Fetched
	s.LastAdded = len(report.Added)
	s.Runs++
}

// ResolveMode turns a requested mode ("auto", "wide" or "narrow") into a
// lookback mode. Auto is wide until a wide run has completed.
func ResolveMode(requested string, state *RunState) (inbox.LookbackMode, error) {
	switch strings.ToLower(strings.TrimSpace(requested)) {
	case "", "auto":
		if state != nil && state.FirstRunDone {
			return inbox.LookbackNarrow, nil
		}
		return inbox.LookbackWide, nil
	}
	return inbox.ParseLookbackMode(requested)
}

// StatePersistence handles saving/loading run state
type StatePersistence struct {
	dataDir string
}

func NewStatePersistence(dataDir string) *StatePersistence {
	return &StatePersistence{dataDir: dataDir}
}

func (sp *StatePersistence) filePath() string {
	return filepath.Join(sp.dataDir, "state.json")
}

// Save writes the state atomically
func (sp *StatePersistence) Save(state *RunState) error {
	if err := os.MkdirAll(sp.dataDir, 0700); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmp := sp.filePath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write state: %w", err)
	}
	return os.Rename(tmp, sp.filePath())
}

// Load reads the state. A missing file is a fresh state.
func (sp *StatePersistence) Load() (*RunState, error) {
	data, err := os.ReadFile(sp.filePath())
	if os.IsNotExist(err) {
		return &RunState{}, nil
	}
	if err != nil {
		return nil, err
	}

	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", sp.filePath(), err)
	}
	return &state, nil
}

// Clear removes the saved state, so the next auto run is wide again
func (sp *StatePersistence) Clear() error {
	err := os.Remove(sp.filePath())
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
inbox:
  enabled: true
  provider: gmail
  email: me@example.com
  password: secret
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Inbox.Server != "imap.gmail.com" || cfg.Inbox.Port != 993 {
		t.Errorf("got server %s:%d, want imap.gmail.com:993", cfg.Inbox.Server, cfg.Inbox.Port)
	}
	if cfg.Inbox.Folder != "INBOX" {
		t.Errorf("got folder %q, want INBOX", cfg.Inbox.Folder)
	}
	if cfg.Store.Backend != "xlsx" {
		t.Errorf("got backend %q, want xlsx", cfg.Store.Backend)
	}
	if !strings.HasSuffix(cfg.Store.Path, "job_applications.xlsx") {
		t.Errorf("got store path %q", cfg.Store.Path)
	}
	if cfg.Tracker.Timezone != "America/New_York" {
		t.Errorf("got timezone %q", cfg.Tracker.Timezone)
	}
	if cfg.Tracker.WideWindow != 730*24*time.Hour || cfg.Tracker.NarrowWindow != 30*time.Minute {
		t.Errorf("got windows %v/%v", cfg.Tracker.WideWindow, cfg.Tracker.NarrowWindow)
	}
	if cfg.Tracker.Workers != 4 {
		t.Errorf("got workers %d, want 4", cfg.Tracker.Workers)
	}
	if cfg.NER.Provider != "heuristic" {
		t.Errorf("got ner provider %q", cfg.NER.Provider)
	}
	if err := cfg.ValidateInbox(); err != nil {
		t.Errorf("ValidateInbox: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadParsesDurations(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: sqlite
tracker:
  timezone: Europe/Berlin
  narrow_window: 45m
  interval: 1h
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Tracker.NarrowWindow != 45*time.Minute {
		t.Errorf("got narrow window %v, want 45m", cfg.Tracker.NarrowWindow)
	}
	if cfg.Tracker.Interval != time.Hour {
		t.Errorf("got interval %v, want 1h", cfg.Tracker.Interval)
	}
	if !strings.HasSuffix(cfg.Store.Path, "applications.db") {
		t.Errorf("got store path %q", cfg.Store.Path)
	}
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("Location: %v", err)
	}
	if loc.String() != "Europe/Berlin" {
		t.Errorf("got location %s", loc)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("HIRETRACK_IMAP_PASSWORD", "from-env")
	t.Setenv("HIRETRACK_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("HIRETRACK_NER_ENDPOINT", "http://localhost:9000/ents")

	path := writeConfig(t, "inbox:\n  password: from-file\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Inbox.Password != "from-env" {
		t.Errorf("got password %q, want from-env", cfg.Inbox.Password)
	}
	if cfg.Ledger.RedisURL != "redis://localhost:6379/0" {
		t.Errorf("got redis url %q", cfg.Ledger.RedisURL)
	}
	if cfg.NER.Provider != "http" || cfg.NER.Endpoint != "http://localhost:9000/ents" {
		t.Errorf("got ner %+v", cfg.NER)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:   "defaults are valid",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Store.Backend = "csv" },
			wantErr: "unknown backend",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Tracker.Timezone = "Mars/Olympus" },
			wantErr: "invalid timezone",
		},
		{
			name:    "http ner without endpoint",
			mutate:  func(c *Config) { c.NER.Provider = "http" },
			wantErr: "endpoint is required",
		},
		{
			name: "resend without key",
			mutate: func(c *Config) {
				c.Notify = NotifyConfig{Enabled: true, Provider: "resend", From: "a@example.com", To: "b@example.com"}
			},
			wantErr: "api_key is required",
		},
		{
			name: "smtp notify complete",
			mutate: func(c *Config) {
				c.Notify = NotifyConfig{
					Enabled: true, Provider: "smtp", From: "a@example.com", To: "b@example.com",
					SMTP: SMTPConfig{Host: "smtp.example.com", Port: 587},
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got error %v, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidateInboxDisabled(t *testing.T) {
	cfg := Default()
	if err := cfg.ValidateInbox(); !errors.Is(err, ErrInboxDisabled) {
		t.Errorf("got %v, want ErrInboxDisabled", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Default()
	cfg.Inbox.Email = "me@example.com"
	cfg.Tracker.Interval = 15 * time.Minute

	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("got mode %04o, want 0600", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.Inbox.Email != "me@example.com" || loaded.Tracker.Interval != 15*time.Minute {
		t.Errorf("round trip lost fields: %+v", loaded.Tracker)
	}
}

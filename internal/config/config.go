package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "America/New_York"
	defaultWorkers    = 4
	defaultInterval   = 30 * time.Minute
	defaultWideWindow = 730 * 24 * time.Hour
	defaultNarrow     = 30 * time.Minute
	defaultLedgerTTL  = 90 * 24 * time.Hour
	defaultNERTimeout = 5 * time.Second
)

var ErrInboxDisabled = errors.New("inbox: monitoring is not enabled in config")

func checkFilePermissions(path string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %04o; should be 0600", path, perm)
	}
	return nil
}

type Config struct {
	Inbox   InboxConfig   `yaml:"inbox"`
	Store   StoreConfig   `yaml:"store"`
	Tracker TrackerConfig `yaml:"tracker"`
	NER     NERConfig     `yaml:"ner,omitempty"`
	Ledger  LedgerConfig  `yaml:"ledger,omitempty"`
	Notify  NotifyConfig  `yaml:"notify,omitempty"`
	Server  ServerConfig  `yaml:"server,omitempty"`
	Log     LogConfig     `yaml:"log,omitempty"`
}

// InboxConfig holds IMAP settings for the mailbox being tracked
type InboxConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Provider string `yaml:"provider"` // "gmail", "outlook", "imap"
	Server   string `yaml:"server"`   // e.g., "imap.gmail.com"
	Port     int    `yaml:"port"`     // e.g., 993
	Email    string `yaml:"email"`    // Mailbox address
	Password string `yaml:"password"` // App password (not main password)
	Folder   string `yaml:"folder"`   // Folder to search (default: "INBOX")
}

// StoreConfig selects where application records are kept
type StoreConfig struct {
	Backend string `yaml:"backend"` // "xlsx" or "sqlite"
	Path    string `yaml:"path"`
}

// TrackerConfig controls how runs classify and window messages
type TrackerConfig struct {
	Timezone     string        `yaml:"timezone"`      // IANA zone for dates and the window (default America/New_York)
	WideWindow   time.Duration `yaml:"wide_window"`   // Lookback on the first run
	NarrowWindow time.Duration `yaml:"narrow_window"` // Lookback on later runs
	Workers      int           `yaml:"workers"`       // Messages processed in parallel
	Interval     time.Duration `yaml:"interval"`      // Delay between runs in watch mode
	StateDir     string        `yaml:"state_dir"`     // Run state directory (default ~/.hiretrack)
}

// NERConfig selects the named-entity recognizer. "http" sends text to a
// statistical model (a spaCy-compatible entity service at Endpoint) and is
// the intended setup. "heuristic", the default, needs no service but only
// matches capitalized phrases next to cue words.
type NERConfig struct {
	Provider string        `yaml:"provider"` // "heuristic" or "http"
	Endpoint string        `yaml:"endpoint"` // Entity service URL for the http provider
	Timeout  time.Duration `yaml:"timeout"`
}

// LedgerConfig enables the processed-message ledger
type LedgerConfig struct {
	RedisURL string        `yaml:"redis_url"` // Empty disables the ledger
	TTL      time.Duration `yaml:"ttl"`
}

// NotifyConfig configures the optional run digest email
type NotifyConfig struct {
	Enabled  bool       `yaml:"enabled"`
	Provider string     `yaml:"provider"` // "smtp", "resend", "sendgrid"
	From     string     `yaml:"from"`
	To       string     `yaml:"to"`
	APIKey   string     `yaml:"api_key,omitempty"`
	SMTP     SMTPConfig `yaml:"smtp,omitempty"`
}

type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	UseTLS   bool   `yaml:"use_tls"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type LogConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// DataDir is the directory holding config, state and the default store
func DataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hiretrack"
	}
	return filepath.Join(home, ".hiretrack")
}

func DefaultConfigPath() string {
	return filepath.Join(DataDir(), "config.yaml")
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func Load(path string) (*Config, error) {
	if err := checkFilePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "WARNING: %v\n", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideFromEnv()
	cfg.ApplyDefaults()
	return &cfg, nil
}

// ApplyDefaults fills unset fields, including provider IMAP hosts
func (c *Config) ApplyDefaults() {
	// Inbox defaults
	if c.Inbox.Folder == "" {
		c.Inbox.Folder = "INBOX"
	}
	if c.Inbox.Provider == "gmail" && c.Inbox.Server == "" {
		c.Inbox.Server = "imap.gmail.com"
		c.Inbox.Port = 993
	}
	if c.Inbox.Provider == "outlook" && c.Inbox.Server == "" {
		c.Inbox.Server = "outlook.office365.com"
		c.Inbox.Port = 993
	}

	if c.Store.Backend == "" {
		c.Store.Backend = "xlsx"
	}
	if c.Store.Path == "" {
		name := "job_applications.xlsx"
		if c.Store.Backend == "sqlite" {
			name = "applications.db"
		}
		c.Store.Path = filepath.Join(DataDir(), name)
	}

	if c.Tracker.Timezone == "" {
		c.Tracker.Timezone = defaultTimezone
	}
	if c.Tracker.WideWindow == 0 {
		c.Tracker.WideWindow = defaultWideWindow
	}
	if c.Tracker.NarrowWindow == 0 {
		c.Tracker.NarrowWindow = defaultNarrow
	}
	if c.Tracker.Workers <= 0 {
		c.Tracker.Workers = defaultWorkers
	}
	if c.Tracker.Interval == 0 {
		c.Tracker.Interval = defaultInterval
	}
	if c.Tracker.StateDir == "" {
		c.Tracker.StateDir = DataDir()
	}

	if c.NER.Provider == "" {
		c.NER.Provider = "heuristic"
	}
	if c.NER.Timeout == 0 {
		c.NER.Timeout = defaultNERTimeout
	}
	if c.Ledger.TTL == 0 {
		c.Ledger.TTL = defaultLedgerTTL
	}
	if c.Notify.Provider == "" {
		c.Notify.Provider = "smtp"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// overrideFromEnv lets secrets live outside the config file
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("HIRETRACK_IMAP_PASSWORD"); v != "" {
		c.Inbox.Password = v
	}
	if v := os.Getenv("HIRETRACK_IMAP_EMAIL"); v != "" {
		c.Inbox.Email = v
	}
	if v := os.Getenv("HIRETRACK_REDIS_URL"); v != "" {
		c.Ledger.RedisURL = v
	}
	if v := os.Getenv("HIRETRACK_NOTIFY_API_KEY"); v != "" {
		c.Notify.APIKey = v
	}
	if v := os.Getenv("HIRETRACK_SMTP_PASSWORD"); v != "" {
		c.Notify.SMTP.Password = v
	}
	if v := os.Getenv("HIRETRACK_NER_ENDPOINT"); v != "" {
		c.NER.Endpoint = v
		c.NER.Provider = "http"
	}
	if v := os.Getenv("HIRETRACK_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Tracker.Workers = n
		}
	}
}

func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Location loads the tracker's time zone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Tracker.Timezone)
	if err != nil {
		return nil, fmt.Errorf("tracker: invalid timezone %q: %w", c.Tracker.Timezone, err)
	}
	return loc, nil
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "xlsx", "sqlite":
	default:
		return fmt.Errorf("store: unknown backend %q (want xlsx or sqlite)", c.Store.Backend)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Tracker.WideWindow < c.Tracker.NarrowWindow {
		return fmt.Errorf("tracker: wide_window must not be shorter than narrow_window")
	}

	switch c.NER.Provider {
	case "heuristic":
	case "http":
		if c.NER.Endpoint == "" {
			return fmt.Errorf("ner: endpoint is required for the http provider")
		}
	default:
		return fmt.Errorf("ner: unknown provider %q", c.NER.Provider)
	}

	if c.Notify.Enabled {
		if err := c.validateNotify(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateNotify() error {
	if c.Notify.From == "" || c.Notify.To == "" {
		return fmt.Errorf("notify: from and to addresses are required")
	}
	switch c.Notify.Provider {
	case "smtp":
		if c.Notify.SMTP.Host == "" {
			return fmt.Errorf("notify.smtp: host is required")
		}
		if c.Notify.SMTP.Port == 0 {
			return fmt.Errorf("notify.smtp: port is required")
		}
	case "resend", "sendgrid":
		if c.Notify.APIKey == "" {
			return fmt.Errorf("notify: api_key is required for %s", c.Notify.Provider)
		}
	default:
		return fmt.Errorf("notify: unknown provider %q", c.Notify.Provider)
	}
	return nil
}

// ValidateInbox validates inbox configuration (only called when the IMAP source is used)
func (c *Config) ValidateInbox() error {
	if !c.Inbox.Enabled {
		return ErrInboxDisabled
	}
	if c.Inbox.Email == "" {
		return fmt.Errorf("inbox: email address is required")
	}
	if c.Inbox.Password == "" {
		return fmt.Errorf("inbox: password (app password) is required")
	}
	if c.Inbox.Server == "" {
		return fmt.Errorf("inbox: IMAP server is required")
	}
	if c.Inbox.Port == 0 {
		return fmt.Errorf("inbox: IMAP port is required")
	}
	return nil
}

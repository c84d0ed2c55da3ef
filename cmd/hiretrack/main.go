package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hiretrack-ai/hiretrack/internal/config"
	"github.com/hiretrack-ai/hiretrack/internal/history"
	"github.com/hiretrack-ai/hiretrack/internal/logging"
	"github.com/hiretrack-ai/hiretrack/internal/tracker"
	"github.com/hiretrack-ai/hiretrack/internal/web"
)

var cfgFile string

func resolveConfigPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	return config.DefaultConfigPath()
}

func main() {
	rootCmd := &cobra.Command{
		Use:   "hiretrack",
		Short: "Hiretrack - Job application tracking from your inbox",
		Long: `Hiretrack reads job application emails from your mailbox, classifies
them as applied, interview or rejected, extracts the company and role, and
keeps a deduplicated record of every application in a spreadsheet or a
SQLite database.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.hiretrack/config.yaml)")

	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(runCmd())
	rootCmd.AddCommand(watchCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(serveCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration interactively",
		Long:  "Create a new configuration file with your mailbox and record store settings.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit()
		},
	}
}

func runCmd() *cobra.Command {
	var (
		mode     string
		mboxPath string
		dryRun   bool
		reset    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process one batch of application emails",
		Long: `Fetch candidate emails, classify and extract them, and merge the new
records into the store.

The first run looks back two years (wide); later runs only look at the
last 30 minutes (narrow). Use --mode to force either.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(mode, mboxPath, dryRun, reset)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "auto", "Lookback mode: auto, wide or narrow")
	cmd.Flags().StringVar(&mboxPath, "mbox", "", "Read messages from an mbox file instead of IMAP")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Show what would be recorded without saving")
	cmd.Flags().BoolVar(&reset, "reset", false, "Forget earlier runs, so an auto run looks back the full wide window")

	return cmd
}

func watchCmd() *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run continuously on an interval",
		Long:  "Run a batch now and then every --interval until interrupted. The first run is wide, later runs are narrow.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(interval)
		},
	}

	cmd.Flags().DurationVar(&interval, "interval", 0, "Delay between runs (default from config, 30m)")

	return cmd
}

func statusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show recorded applications and statistics",
		Long:  "Display the most recent application records, counts per status and the last run.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(limit)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Number of recent records to show")

	return cmd
}

func exportCmd() *cobra.Command {
	var (
		backend string
		path    string
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy all records to another store",
		Long:  "Copy the configured record store into a spreadsheet or SQLite database. Records already in the target are kept.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExport(backend, path)
		},
	}

	cmd.Flags().StringVar(&backend, "backend", "xlsx", "Target backend: xlsx or sqlite")
	cmd.Flags().StringVar(&path, "path", "", "Target file")
	cmd.MarkFlagRequired("path")

	return cmd
}

func serveCmd() *cobra.Command {
	var (
		port      int
		noBrowser bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the local web dashboard",
		Long: `Start a local web server with a dashboard of your applications.

From the dashboard you can:
- Browse and filter records by status
- Change a record's status, including marking offers
- Start a run and follow its progress

Prometheus metrics are served on /metrics. The server only listens on
localhost.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(port, !noBrowser)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "Port to listen on (default from config, 8080)")
	cmd.Flags().BoolVar(&noBrowser, "no-browser", false, "Do not open the dashboard in a browser")

	return cmd
}

// loadConfig reads the config file, falling back to defaults when none exists
func loadConfig() (*config.Config, error) {
	configPath := resolveConfigPath()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return config.Default(), nil
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

func setup() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		return nil, err
	}
	a, err := newApp(cfg, logger)
	if err != nil {
		logger.Sync()
		return nil, err
	}
	return a, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()

	return ctx, cancel
}

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("💼 Hiretrack Configuration Setup")
	fmt.Println("================================")
	fmt.Println()

	cfg := config.Default()

	fmt.Println("📧 Mailbox (IMAP)")
	fmt.Println()

	provider := strings.ToLower(prompt(reader, "Provider (gmail/outlook/imap) [gmail]: "))
	if provider == "" {
		provider = "gmail"
	}
	cfg.Inbox.Enabled = true
	cfg.Inbox.Provider = provider
	cfg.Inbox.Server = ""
	if provider == "imap" {
		cfg.Inbox.Server = prompt(reader, "  IMAP server: ")
		cfg.Inbox.Port = 993
	}
	cfg.Inbox.Email = prompt(reader, "  Email address: ")
	fmt.Println("  (Use an app password; Gmail: https://support.google.com/accounts/answer/185833)")
	cfg.Inbox.Password = prompt(reader, "  App password: ")

	fmt.Println()
	fmt.Println("📊 Record store")
	fmt.Println()

	backend := strings.ToLower(prompt(reader, "Backend (xlsx/sqlite) [xlsx]: "))
	if backend != "" && backend != cfg.Store.Backend {
		cfg.Store.Backend = backend
		cfg.Store.Path = ""
	}
	if path := prompt(reader, "File path (blank for default): "); path != "" {
		cfg.Store.Path = path
	}
	if tz := prompt(reader, fmt.Sprintf("Time zone [%s]: ", cfg.Tracker.Timezone)); tz != "" {
		cfg.Tracker.Timezone = tz
	}

	fmt.Println()
	fmt.Println("🏷️  Entity recognition")
	fmt.Println()
	fmt.Println("  Company and role names come from a statistical NER service (spaCy-compatible).")
	fmt.Println("  Without one, built-in capitalization rules are used and miss more names.")
	if endpoint := prompt(reader, "  Entity service URL (blank for built-in rules): "); endpoint != "" {
		cfg.NER.Provider = "http"
		cfg.NER.Endpoint = endpoint
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid settings: %w", err)
	}

	configPath := resolveConfigPath()
	if err := config.Save(configPath, cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Println()
	fmt.Printf("✅ Configuration saved to: %s\n", configPath)
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Println("  1. Review and edit the config file if needed")
	fmt.Println("  2. Run 'hiretrack run --dry-run' to preview the first batch")
	fmt.Println("  3. Run 'hiretrack watch' to keep the records up to date")
	fmt.Println("  4. Run 'hiretrack serve' to open the dashboard")

	return nil
}

func runRun(mode, mboxPath string, dryRun, reset bool) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.logger.Sync()
	defer a.Close()

	if reset {
		if err := a.state.Clear(); err != nil {
			return fmt.Errorf("failed to reset run state: %w", err)
		}
		fmt.Println("🔄 Run state cleared")
	}

	ctx, cancel := signalContext()
	defer cancel()

	if dryRun {
		fmt.Println("🔍 DRY RUN MODE - No records will be saved")
		fmt.Println()
	}

	report, err := a.runOnce(ctx, mode, mboxPath, dryRun)
	if err != nil {
		if errors.Is(err, config.ErrInboxDisabled) {
			fmt.Println("📧 Inbox is not configured.")
			fmt.Println("Run 'hiretrack init' or pass --mbox FILE to read an mbox archive.")
			return nil
		}
		if tracker.IsCancelled(err) {
			return nil
		}
		return err
	}

	printReport(report)
	return nil
}

func runWatch(interval time.Duration) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.logger.Sync()
	defer a.Close()

	if interval <= 0 {
		interval = a.cfg.Tracker.Interval
	}
	if err := a.cfg.ValidateInbox(); err != nil {
		return fmt.Errorf("watch needs a configured inbox: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	fmt.Printf("👀 Watching inbox every %s (Ctrl+C to stop)\n", interval)
	fmt.Println()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		report, err := a.runOnce(ctx, "auto", "", false)
		switch {
		case tracker.IsCancelled(err):
			return nil
		case err != nil:
			fmt.Printf("❌ Run failed: %v\n", err)
			a.logger.Error("Run failed", zap.Error(err))
		default:
			printReport(report)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func runStatus(limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := history.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer store.Close()

	records, err := store.Load(context.Background())
	if err != nil {
		return fmt.Errorf("failed to load records: %w", err)
	}

	fmt.Println("📊 Hiretrack Status")
	fmt.Println("===================")
	fmt.Println()
	fmt.Printf("Store: %s (%s)\n", cfg.Store.Path, cfg.Store.Backend)
	fmt.Printf("Total applications: %d\n", len(records))

	counts := history.Counts(records)
	for _, status := range history.Statuses {
		fmt.Printf("  %s %-10s %d\n", statusIcon(status), status+":", counts[status])
	}

	state, err := tracker.NewStatePersistence(cfg.Tracker.StateDir).Load()
	if err != nil {
		fmt.Printf("\n⚠️  Could not read run state: %v\n", err)
	} else if state.Runs > 0 {
		fmt.Println()
		fmt.Printf("Last run: %s (%s, %d fetched, %d added)\n",
			state.LastRunAt.Format("2006-01-02 15:04"), state.LastMode, state.LastFetched, state.LastAdded)
		fmt.Printf("Runs so far: %d\n", state.Runs)
	} else {
		fmt.Println()
		fmt.Println("No runs yet. The first run will look back two years.")
	}

	if len(records) == 0 {
		return nil
	}

	fmt.Println()
	fmt.Println("Recent applications:")
	fmt.Println()

	shown := records
	if limit > 0 && len(shown) > limit {
		shown = shown[:limit]
	}
	for _, r := range shown {
		fmt.Printf("  %s %s %s  %-24s %s\n", statusIcon(r.Status), r.DateApplied, r.TimeReceived, truncate(r.Company, 24), r.Role)
	}
	if len(records) > len(shown) {
		fmt.Printf("  ... and %d more\n", len(records)-len(shown))
	}

	return nil
}

func runExport(backend, path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	src, err := history.Open(cfg.Store.Backend, cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open record store: %w", err)
	}
	defer src.Close()

	dst, err := history.Open(backend, path)
	if err != nil {
		return fmt.Errorf("failed to open export target: %w", err)
	}
	defer dst.Close()

	n, err := history.Copy(context.Background(), dst, src)
	if err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	fmt.Printf("✅ Exported %d records to %s\n", n, path)
	return nil
}

func runServe(port int, openBrowser bool) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.logger.Sync()
	defer a.Close()

	if port == 0 {
		port = a.cfg.Server.Port
	}

	opts := web.Options{
		Port:        port,
		Store:       a.store,
		State:       a.state,
		Logger:      a.logger,
		OpenBrowser: openBrowser,
	}
	if a.cfg.ValidateInbox() == nil {
		opts.Run = func(ctx context.Context, mode string) (*tracker.Report, error) {
			return a.runOnce(ctx, mode, "", false)
		}
	} else {
		fmt.Println("📧 Inbox is not configured, runs are disabled in the dashboard.")
	}

	server, err := web.NewServer(opts)
	if err != nil {
		return fmt.Errorf("failed to create web server: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}()

	fmt.Printf("🌐 Dashboard: http://localhost:%d\n", port)
	return server.Start()
}

func printReport(report *tracker.Report) {
	fmt.Printf("Run %s (%s, since %s)\n", report.RunID, report.Mode, report.Threshold.Format("2006-01-02 15:04 MST"))
	fmt.Printf("  📬 Fetched:    %d\n", report.Fetched)
	fmt.Printf("  ✅ Applied:    %d", report.Summary.Applied)
	if report.Summary.Inferred > 0 {
		fmt.Printf(" (%d inferred)", report.Summary.Inferred)
	}
	fmt.Println()
	fmt.Printf("  📅 Interview:  %d\n", report.Summary.Interview)
	fmt.Printf("  ❌ Rejected:   %d\n", report.Summary.Rejected)
	fmt.Printf("  🗑️  Discarded:  %d\n", report.Summary.Discarded)
	if report.Skipped > 0 {
		fmt.Printf("  ⏭️  Skipped:    %d (already processed)\n", report.Skipped)
	}
	if report.Failed > 0 {
		fmt.Printf("  ⚠️  Failed:     %d\n", report.Failed)
	}
	fmt.Println()

	if report.Empty() {
		fmt.Println("No relevant job application emails found.")
		fmt.Println()
		return
	}

	verb := "Added"
	if report.DryRun {
		verb = "Would add"
	}
	fmt.Printf("%s %d new records (%d total)\n", verb, len(report.Added), report.Total)
	for _, r := range report.Added {
		fmt.Printf("  %s %s %s  %s | %s\n", statusIcon(r.Status), r.DateApplied, r.TimeReceived, r.Company, r.Role)
	}
	fmt.Println()
}

func statusIcon(s history.Status) string {
	switch s {
	case history.StatusApplied:
		return "📨"
	case history.StatusInterview:
		return "📅"
	case history.StatusRejected:
		return "❌"
	case history.StatusOffer:
		return "🎉"
	}
	return "•"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

func prompt(reader *bufio.Reader, message string) string {
	fmt.Print(message)
	input, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(input)
}

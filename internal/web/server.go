// Package web serves the local dashboard: the application records with
// their status colours, manual status edits (the only way to record an
// Offer), on-demand runs and the Prometheus endpoint.
package web

import (
	"context"
	"crypto/rand"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"os/exec"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hiretrack-ai/hiretrack/internal/history"
	"github.com/hiretrack-ai/hiretrack/internal/tracker"
)

//go:embed static/*
var staticFS embed.FS

//go:embed templates/*
var templatesFS embed.FS

const (
	defaultRateLimit  = 30
	defaultRateWindow = time.Minute
	jobRetention      = time.Hour
)

type RateLimiter struct {
	mu       sync.Mutex
	requests map[string][]time.Time
	limit    int
	window   time.Duration
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		limit:    limit,
		window:   window,
	}
}

func (rl *RateLimiter) filterRecent(times []time.Time, windowStart time.Time) []time.Time {
	n := 0
	for _, t := range times {
		if t.After(windowStart) {
			times[n] = t
			n++
		}
	}
	return times[:n]
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	recent := rl.filterRecent(rl.requests[key], now.Add(-rl.window))

	if len(recent) >= rl.limit {
		rl.requests[key] = recent
		return false
	}
	rl.requests[key] = append(recent, now)
	return true
}

// Cleanup drops keys with no requests inside the window
func (rl *RateLimiter) Cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	windowStart := time.Now().Add(-rl.window)
	for key, times := range rl.requests {
		recent := rl.filterRecent(times, windowStart)
		if len(recent) == 0 {
			delete(rl.requests, key)
		} else {
			rl.requests[key] = recent
		}
	}
}

// middleware rejects clients above the rate limit with 429
func (rl *RateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !rl.Allow(host) {
			http.Error(w, "Too many requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RunFunc performs one tracker run in the requested mode ("auto", "wide"
// or "narrow").
type RunFunc func(ctx context.Context, mode string) (*tracker.Report, error)

// Options configures a Server
type Options struct {
	Port        int
	Store       history.Store
	State       *tracker.StatePersistence // Optional, shows the last run
	Run         RunFunc                   // Optional, enables on-demand runs
	Logger      *zap.Logger
	OpenBrowser bool
}

type Server struct {
	store       history.Store
	state       *tracker.StatePersistence
	run         RunFunc
	logger      *zap.Logger
	templates   map[string]*template.Template
	httpServer  *http.Server
	port        int
	openBrowser bool
	csrfKey     []byte
	rateLimiter *RateLimiter
	jobManager  *JobManager
	storeMu     sync.Mutex // Serializes read-modify-write of the store
}

func NewServer(opts Options) (*Server, error) {
	csrfKey := make([]byte, 32)
	if _, err := rand.Read(csrfKey); err != nil {
		return nil, fmt.Errorf("failed to generate CSRF key: %w", err)
	}

	s := &Server{
		store:       opts.Store,
		state:       opts.State,
		run:         opts.Run,
		logger:      opts.Logger,
		port:        opts.Port,
		openBrowser: opts.OpenBrowser,
		csrfKey:     csrfKey,
		rateLimiter: NewRateLimiter(defaultRateLimit, defaultRateWindow),
		jobManager:  NewJobManager(),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	s.templates = tmpl
	return s, nil
}

// parseTemplates loads the HTML templates. Each page gets its own set with
// the layout and the partials (named by path), so "content" blocks do not
// collide. Partials are also registered standalone for fragment responses.
func parseTemplates() (map[string]*template.Template, error) {
	funcs := template.FuncMap{
		"fillColor": history.FillColor,
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "never"
			}
			return t.Format("Jan 2, 2006 3:04 PM")
		},
	}

	layoutContent, err := templatesFS.ReadFile("templates/layout.html")
	if err != nil {
		return nil, fmt.Errorf("failed to read layout template: %w", err)
	}

	partials := make(map[string]string)
	err = fs.WalkDir(templatesFS, "templates/partials", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".html") {
			return err
		}
		content, err := templatesFS.ReadFile(path)
		if err != nil {
			return err
		}
		partials[path[len("templates/"):]] = string(content)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read partials: %w", err)
	}

	templates := make(map[string]*template.Template)
	err = fs.WalkDir(templatesFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.Contains(path, "/partials/") || path == "templates/layout.html" || !strings.HasSuffix(path, ".html") {
			return nil
		}

		content, err := templatesFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read template %s: %w", path, err)
		}

		name := path[len("templates/"):]
		pageTmpl := template.New(name).Funcs(funcs)
		if _, err := pageTmpl.Parse(string(layoutContent)); err != nil {
			return fmt.Errorf("failed to parse layout for %s: %w", name, err)
		}
		for pname, partial := range partials {
			if _, err := pageTmpl.New(pname).Parse(partial); err != nil {
				return fmt.Errorf("failed to parse partial for %s: %w", name, err)
			}
		}
		if _, err := pageTmpl.Parse(string(content)); err != nil {
			return fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		templates[name] = pageTmpl
		return nil
	})
	if err != nil {
		return nil, err
	}

	for name, content := range partials {
		partialTmpl, err := template.New(name).Funcs(funcs).Parse(content)
		if err != nil {
			return nil, fmt.Errorf("failed to parse partial %s: %w", name, err)
		}
		templates[name] = partialTmpl
	}

	return templates, nil
}

// Start serves the dashboard on localhost until Shutdown
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("127.0.0.1:%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go s.maintenanceLoop()

	if s.openBrowser {
		go func() {
			time.Sleep(500 * time.Millisecond)
			openBrowser(fmt.Sprintf("http://localhost:%d", s.port))
		}()
	}

	s.logger.Info("Dashboard listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server and cancels a running job
func (s *Server) Shutdown(ctx context.Context) error {
	if job := s.jobManager.GetActive(); job != nil {
		job.Cancel()
	}
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) maintenanceLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		s.rateLimiter.Cleanup()
		s.jobManager.Cleanup(jobRetention)
	}
}

// Handler returns the dashboard's routes
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(securityHeaders)

	// The dashboard is plain HTTP on localhost
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, csrf.PlaintextHTTPRequest(r))
		})
	})
	r.Use(csrf.Protect(
		s.csrfKey,
		csrf.Secure(false),
		csrf.Path("/"),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.RequestHeader("X-CSRF-Token"),
		csrf.TrustedOrigins([]string{"localhost", "127.0.0.1", fmt.Sprintf("localhost:%d", s.port), fmt.Sprintf("127.0.0.1:%d", s.port)}),
	))

	staticSub, _ := fs.Sub(staticFS, "static")
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	r.Get("/", s.handleDashboard)
	r.Get("/records/rows", s.handleRecordRows)
	r.With(s.rateLimiter.middleware).Post("/records/status", s.handleSetStatus)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/records", s.handleAPIRecords)
		r.Get("/stats", s.handleAPIStats)
		r.With(s.rateLimiter.middleware).Post("/run", s.handleAPIRun)
		r.Get("/run/active", s.handleAPIRunActive)
		r.Get("/run/{jobID}", s.handleAPIRunStatus)
		r.Post("/run/{jobID}/cancel", s.handleAPIRunCancel)
	})

	return r
}

// securityHeaders adds security headers to all responses
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		csp := "default-src 'self'; " +
			"script-src 'self'; " +
			"style-src 'self'; " +
			"img-src 'self' data:; " +
			"connect-src 'self'; " +
			"frame-ancestors 'none'; " +
			"form-action 'self'; " +
			"base-uri 'self'"
		w.Header().Set("Content-Security-Policy", csp)

		if !strings.HasPrefix(r.URL.Path, "/static/") {
			w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate, private")
			w.Header().Set("Pragma", "no-cache")
			w.Header().Set("Expires", "0")
		}

		next.ServeHTTP(w, r)
	})
}

// openBrowser opens the default browser to the specified URL
func openBrowser(url string) {
	var cmd string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		cmd = "open"
		args = []string{url}
	case "linux":
		cmd = "xdg-open"
		args = []string{url}
	case "windows":
		cmd = "cmd"
		args = []string{"/c", "start", url}
	default:
		return
	}

	exec.Command(cmd, args...).Start()
}

// recordView is a record as the table shows it
type recordView struct {
	history.Record
	Color string
}

// Stats summarizes the store for the dashboard and /api/stats
type Stats struct {
	Total     int                    `json:"total"`
	ByStatus  map[history.Status]int `json:"by_status"`
	LastRun   *tracker.RunState      `json:"last_run,omitempty"`
	RunActive bool                   `json:"run_active"`
}

func (s *Server) loadRecords(ctx context.Context, status string) ([]recordView, []history.Record, error) {
	records, err := s.store.Load(ctx)
	if err != nil {
		return nil, nil, err
	}

	var views []recordView
	for _, r := range records {
		if status != "" && !strings.EqualFold(string(r.Status), status) {
			continue
		}
		views = append(views, recordView{Record: r, Color: history.FillColor(string(r.Status))})
	}
	return views, records, nil
}

func (s *Server) getStats(records []history.Record) Stats {
	stats := Stats{
		Total:     len(records),
		ByStatus:  history.Counts(records),
		RunActive: s.jobManager.GetActive() != nil,
	}
	if s.state != nil {
		state, err := s.state.Load()
		if err != nil {
			s.logger.Warn("Failed to load run state", zap.Error(err))
		} else if state.Runs > 0 {
			stats.LastRun = state
		}
	}
	return stats
}

// Handler implementations

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	filter := r.URL.Query().Get("status")
	views, records, err := s.loadRecords(r.Context(), filter)
	if err != nil {
		s.logger.Error("Failed to load records", zap.Error(err))
		http.Error(w, "Failed to load records", http.StatusInternalServerError)
		return
	}

	data := map[string]interface{}{
		"Title":    "Applications",
		"Records":  views,
		"Stats":    s.getStats(records),
		"Statuses": history.Statuses,
		"Filter":   filter,
		"CanRun":   s.run != nil,
		"Message":  r.URL.Query().Get("msg"),
	}
	s.renderWithCSRF(w, r, "dashboard.html", data)
}

func (s *Server) handleRecordRows(w http.ResponseWriter, r *http.Request) {
	views, _, err := s.loadRecords(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		http.Error(w, "Failed to load records", http.StatusInternalServerError)
		return
	}
	s.renderPartial(w, "partials/record-rows.html", map[string]interface{}{
		"Records":   views,
		"Statuses":  history.Statuses,
		"CSRFField": csrfField(r),
	})
}

// handleSetStatus changes one record's status from the table form
func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Invalid form data", http.StatusBadRequest)
		return
	}

	status, err := history.ParseStatus(r.FormValue("status"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	key := history.Key{
		Company:      r.FormValue("company"),
		Role:         r.FormValue("role"),
		DateApplied:  r.FormValue("date_applied"),
		TimeReceived: r.FormValue("time_received"),
	}

	s.storeMu.Lock()
	err = history.SetStatus(r.Context(), s.store, key, status)
	s.storeMu.Unlock()

	switch {
	case errors.Is(err, history.ErrRecordNotFound):
		http.Error(w, "Record not found", http.StatusNotFound)
		return
	case err != nil:
		s.logger.Error("Failed to update status", zap.Error(err))
		http.Error(w, "Failed to update status", http.StatusInternalServerError)
		return
	}

	s.logger.Info("Status updated",
		zap.String("company", key.Company),
		zap.String("role", key.Role),
		zap.String("status", string(status)),
	)
	http.Redirect(w, r, "/?msg=Status+updated", http.StatusSeeOther)
}

// API handlers

func (s *Server) handleAPIRecords(w http.ResponseWriter, r *http.Request) {
	views, _, err := s.loadRecords(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load records"})
		return
	}
	records := make([]history.Record, 0, len(views))
	for _, v := range views {
		records = append(records, v.Record)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": records})
}

func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	records, err := s.store.Load(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load records"})
		return
	}
	writeJSON(w, http.StatusOK, s.getStats(records))
}

// handleAPIRun starts a run in the background; one at a time
func (s *Server) handleAPIRun(w http.ResponseWriter, r *http.Request) {
	if s.run == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "runs are not enabled"})
		return
	}
	mode := r.FormValue("mode")
	if mode == "" {
		mode = "auto"
	}
	if _, err := tracker.ResolveMode(mode, nil); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	job, created := s.jobManager.Create(mode)
	if !created {
		writeJSON(w, http.StatusConflict, map[string]interface{}{"error": "a run is already in progress", "job": job.ToJSON()})
		return
	}
	go s.processRunJob(job)

	// The dashboard form posts here directly
	if strings.Contains(r.Header.Get("Accept"), "text/html") {
		http.Redirect(w, r, "/?msg=Run+started", http.StatusSeeOther)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"job": job.ToJSON()})
}

func (s *Server) processRunJob(job *Job) {
	s.storeMu.Lock()
	defer s.storeMu.Unlock()

	report, err := s.run(job.Context(), job.Mode)
	if err != nil {
		if tracker.IsCancelled(err) {
			s.logger.Info("Run cancelled", zap.String("job_id", job.ID))
			return
		}
		s.logger.Error("Run failed", zap.String("job_id", job.ID), zap.Error(err))
		job.StopWithError(err.Error())
		return
	}
	job.Complete(report)
}

func (s *Server) handleAPIRunActive(w http.ResponseWriter, r *http.Request) {
	job := s.jobManager.GetActive()
	if job == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"job": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"job": job.ToJSON()})
}

func (s *Server) handleAPIRunStatus(w http.ResponseWriter, r *http.Request) {
	job := s.jobManager.Get(chi.URLParam(r, "jobID"))
	if job == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	writeJSON(w, http.StatusOK, job.ToJSON())
}

func (s *Server) handleAPIRunCancel(w http.ResponseWriter, r *http.Request) {
	job := s.jobManager.Get(chi.URLParam(r, "jobID"))
	if job == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "job not found"})
		return
	}
	job.Cancel()
	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) renderPartial(w http.ResponseWriter, name string, data interface{}) {
	tmpl, ok := s.templates[name]
	if !ok {
		http.Error(w, "Template not found: "+name, http.StatusInternalServerError)
		return
	}
	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Template error: "+err.Error(), http.StatusInternalServerError)
	}
}

func csrfField(r *http.Request) template.HTML {
	return template.HTML(fmt.Sprintf(`<input type="hidden" name="gorilla.csrf.Token" value="%s">`, csrf.Token(r)))
}

func (s *Server) renderWithCSRF(w http.ResponseWriter, r *http.Request, name string, data map[string]interface{}) {
	data["CSRFToken"] = csrf.Token(r)
	data["CSRFField"] = csrfField(r)

	tmpl, ok := s.templates[name]
	if !ok {
		http.Error(w, "Template not found: "+name, http.StatusInternalServerError)
		return
	}
	if err := tmpl.ExecuteTemplate(w, "layout", data); err != nil {
		http.Error(w, "Template error: "+err.Error(), http.StatusInternalServerError)
	}
}

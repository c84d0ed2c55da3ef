package web

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hiretrack-ai/hiretrack/internal/tracker"
)

// JobStatus represents the status of a background run
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusCancelled JobStatus = "cancelled"
	JobStatusError     JobStatus = "error"
)

// Job is a tracker run started from the dashboard
type Job struct {
	ID          string    `json:"id"`
	Mode        string    `json:"mode"`
	Status      JobStatus `json:"status"`
	RunID       string    `json:"run_id,omitempty"`
	Fetched     int       `json:"fetched"`
	Added       int       `json:"added"`
	Failed      int       `json:"failed"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	Error       string    `json:"error,omitempty"`

	ctx        context.Context
	cancelFunc context.CancelFunc
	mu         sync.Mutex
}

// Complete marks the job as completed with the run's report
func (j *Job) Complete(report *tracker.Report) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.Status != JobStatusRunning {
		return
	}
	j.Status = JobStatusCompleted
	j.CompletedAt = time.Now()
	if report != nil {
		j.RunID = report.RunID
		j.Fetched = report.Fetched
		j.Added = len(report.Added)
		j.Failed = report.Failed
	}
}

// StopWithError stops the job due to an error
func (j *Job) StopWithError(errorMsg string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.Status = JobStatusError
	j.CompletedAt = time.Now()
	j.Error = errorMsg
}

// Cancel cancels the job
func (j *Job) Cancel() {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.Status == JobStatusRunning {
		j.Status = JobStatusCancelled
		j.CompletedAt = time.Now()
		if j.cancelFunc != nil {
			j.cancelFunc()
		}
	}
}

// Context returns the job's context
func (j *Job) Context() context.Context {
	return j.ctx
}

func (j *Job) status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.Status
}

// ToJSON returns the job data for JSON serialization
func (j *Job) ToJSON() map[string]interface{} {
	j.mu.Lock()
	defer j.mu.Unlock()

	return map[string]interface{}{
		"id":           j.ID,
		"mode":         j.Mode,
		"status":       j.Status,
		"run_id":       j.RunID,
		"fetched":      j.Fetched,
		"added":        j.Added,
		"failed":       j.Failed,
		"started_at":   j.StartedAt,
		"completed_at": j.CompletedAt,
		"error":        j.Error,
	}
}

// JobManager tracks dashboard runs
type JobManager struct {
	jobs map[string]*Job
	mu   sync.RWMutex
}

func NewJobManager() *JobManager {
	return &JobManager{
		jobs: make(map[string]*Job),
	}
}

// Create registers a new running job unless one is already running, in
// which case it returns the running job and false.
func (jm *JobManager) Create(mode string) (*Job, bool) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	for _, job := range jm.jobs {
		if job.status() == JobStatusRunning {
			return job, false
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	job := &Job{
		ID:         uuid.New().String(),
		Mode:       mode,
		Status:     JobStatusRunning,
		StartedAt:  time.Now(),
		ctx:        ctx,
		cancelFunc: cancel,
	}

	jm.jobs[job.ID] = job
	return job, true
}

// Get returns a job by ID, or nil if not found
func (jm *JobManager) Get(id string) *Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	return jm.jobs[id]
}

// GetActive returns the currently running job, or nil if none
func (jm *JobManager) GetActive() *Job {
	jm.mu.RLock()
	defer jm.mu.RUnlock()

	for _, job := range jm.jobs {
		if job.status() == JobStatusRunning {
			return job
		}
	}
	return nil
}

// Cleanup removes finished jobs older than maxAge
func (jm *JobManager) Cleanup(maxAge time.Duration) {
	jm.mu.Lock()
	defer jm.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	for id, job := range jm.jobs {
		job.mu.Lock()
		expired := job.Status != JobStatusRunning && job.CompletedAt.Before(cutoff)
		job.mu.Unlock()
		if expired {
			if job.cancelFunc != nil {
				job.cancelFunc()
			}
			delete(jm.jobs, id)
		}
	}
}

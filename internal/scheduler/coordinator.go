package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"imovel-monitor/internal/database"
	"imovel-monitor/internal/logging"
	"imovel-monitor/internal/models"
	"imovel-monitor/internal/orchestrator"
	"imovel-monitor/internal/reconcile"
)

var logger = logging.New("Scheduler")

// ErrAlreadyRunning is returned when a run is requested while one is in flight
var ErrAlreadyRunning = errors.New("monitoring run already in progress")

// Runner collects listing records from every source
type Runner interface {
	RunAll(ctx context.Context) orchestrator.Result
}

// Indexer receives newly inserted listings; failures never fail a run
type Indexer interface {
	IndexListings(listings []models.Listing) error
}

// RunSettings is copied into every run when it starts
type RunSettings struct {
	// Timeout bounds a whole run; zero means no deadline
	Timeout time.Duration
}

// Outcome is the summary of a finished run
type Outcome struct {
	RunID           uint                `json:"run_id"`
	RunUUID         string              `json:"run_uuid"`
	Status          models.RunStatus    `json:"status"`
	StartedAt       time.Time           `json:"started_at"`
	FinishedAt      time.Time           `json:"finished_at"`
	DurationSeconds float64             `json:"duration_seconds"`
	CollectedCount  int                 `json:"collected_count"`
	NewCount        int                 `json:"new_count"`
	Error           string              `json:"error,omitempty"`
	Stats           *orchestrator.Stats `json:"stats,omitempty"`
}

// RunStatus is a point-in-time view of the coordinator
type RunStatus struct {
	Running     bool       `json:"running"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	LastOutcome *Outcome   `json:"last_outcome,omitempty"`
}

// Coordinator guarantees at most one run at a time, whether triggered by the
// API, cron or the CLI.
type Coordinator struct {
	runner   Runner
	repo     database.Repository
	indexer  Indexer
	settings RunSettings
	worker   *RunWorker

	running atomic.Bool

	mu        sync.RWMutex
	startedAt *time.Time
	last      *Outcome

	now func() time.Time
}

// NewCoordinator creates a coordinator; indexer may be nil
func NewCoordinator(runner Runner, repo database.Repository, indexer Indexer, settings RunSettings) *Coordinator {
	return &Coordinator{
		runner:   runner,
		repo:     repo,
		indexer:  indexer,
		settings: settings,
		worker:   NewRunWorker(),
		now:      time.Now,
	}
}

// Start starts the background worker used by TriggerRun
func (c *Coordinator) Start(ctx context.Context) {
	c.worker.Start(ctx)
}

// Stop cancels any in-flight run and stops the worker
func (c *Coordinator) Stop() {
	c.worker.Stop()
}

// TriggerRun starts a run in the background and returns immediately
func (c *Coordinator) TriggerRun() (bool, error) {
	if !c.running.CompareAndSwap(false, true) {
		return false, ErrAlreadyRunning
	}
	c.markStarted()

	settings := c.settings
	err := c.worker.Submit(func(ctx context.Context) {
		c.execute(ctx, settings)
	})
	if err != nil {
		c.clearStarted()
		c.running.Store(false)
		return false, fmt.Errorf("failed to schedule run: %w", err)
	}
	return true, nil
}

// RunNow runs synchronously on the caller's goroutine
func (c *Coordinator) RunNow(ctx context.Context) (Outcome, error) {
	if !c.running.CompareAndSwap(false, true) {
		return Outcome{}, ErrAlreadyRunning
	}
	c.markStarted()

	out := c.execute(ctx, c.settings)
	if out.Status == models.RunStatusFailed {
		return out, errors.New(out.Error)
	}
	return out, nil
}

// GetRunStatus never blocks on a run in progress
func (c *Coordinator) GetRunStatus() RunStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := RunStatus{Running: c.running.Load()}
	if c.startedAt != nil && status.Running {
		t := *c.startedAt
		status.StartedAt = &t
	}
	if c.last != nil {
		out := *c.last
		status.LastOutcome = &out
	}
	return status
}

func (c *Coordinator) markStarted() {
	c.mu.Lock()
	t := c.now()
	c.startedAt = &t
	c.mu.Unlock()
}

func (c *Coordinator) clearStarted() {
	c.mu.Lock()
	c.startedAt = nil
	c.mu.Unlock()
}

// execute is the run pipeline. The running flag is cleared on every path,
// including panics.
func (c *Coordinator) execute(ctx context.Context, settings RunSettings) (out Outcome) {
	start := c.now()
	out = Outcome{
		RunUUID:   uuid.NewString(),
		Status:    models.RunStatusRunning,
		StartedAt: start,
	}
	recorded := false

	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("run %s panicked: %v", out.RunUUID, r)
			out.Status = models.RunStatusFailed
			out.Error = fmt.Sprintf("panic: %v", r)
		}
		out.FinishedAt = c.now()
		out.DurationSeconds = out.FinishedAt.Sub(start).Seconds()

		if recorded {
			// the run context may already be cancelled
			finalizeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			err := c.repo.UpdateRunRecord(finalizeCtx, out.RunID, models.RunUpdate{
				Status:          out.Status,
				CollectedCount:  out.CollectedCount,
				NewCount:        out.NewCount,
				DurationSeconds: out.DurationSeconds,
				ErrorMessage:    out.Error,
			})
			cancel()
			if err != nil {
				logger.Errorf("failed to finalize run record %d: %v", out.RunID, err)
			}
		}

		c.mu.Lock()
		result := out
		c.last = &result
		c.startedAt = nil
		c.mu.Unlock()
		c.running.Store(false)

		logger.Infof("run %s finished: status=%s collected=%d new=%d duration=%.1fs",
			out.RunUUID, out.Status, out.CollectedCount, out.NewCount, out.DurationSeconds)
	}()

	fail := func(format string, args ...any) {
		out.Status = models.RunStatusFailed
		out.Error = fmt.Sprintf(format, args...)
		logger.Errorf("run %s failed: %s", out.RunUUID, out.Error)
	}

	rec := &models.RunRecord{
		RunUUID:   out.RunUUID,
		StartedAt: start,
		Status:    models.RunStatusRunning,
	}
	if err := c.repo.AppendRunRecord(ctx, rec); err != nil {
		fail("failed to record run start: %v", err)
		return out
	}
	recorded = true
	out.RunID = rec.ID
	logger.Infof("run %s started (record %d)", out.RunUUID, rec.ID)

	// the timeout bounds collection only; what was collected is still stored
	collectCtx := ctx
	if settings.Timeout > 0 {
		var cancel context.CancelFunc
		collectCtx, cancel = context.WithTimeout(ctx, settings.Timeout)
		defer cancel()
	}

	result := c.runner.RunAll(collectCtx)
	out.CollectedCount = len(result.Records)
	out.Stats = &result.Stats

	fresh, err := reconcile.Reconcile(ctx, result.Records, c.repo, start)
	if err != nil {
		fail("reconcile: %v", err)
		return out
	}

	inserted := make([]models.Listing, 0, len(fresh))
	for i := range fresh {
		ok, err := c.repo.Insert(ctx, &fresh[i])
		if err != nil {
			out.NewCount = len(inserted)
			fail("insert %s: %v", fresh[i].Key(), err)
			return out
		}
		if ok {
			inserted = append(inserted, fresh[i])
		}
	}
	out.NewCount = len(inserted)

	if c.indexer != nil && len(inserted) > 0 {
		if err := c.indexer.IndexListings(inserted); err != nil {
			logger.Warnf("run %s: search indexing failed: %v", out.RunUUID, err)
		}
	}

	out.Status = models.RunStatusSuccess
	return out
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/database"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/metrics"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
)

const (
	defaultLockTTL   = 6 * time.Hour
	maxUnmatchedKept = 50
)

// Pipeline is one ingestion or repair job. Run returns the counters it
// accumulated even when it fails part way.
type Pipeline interface {
	Name() string
	Run(ctx context.Context, log *RunLogger) (RunStats, error)
}

// RunStats are the counters a pipeline reports. Unmatched lists rows the
// matcher could not place.
type RunStats struct {
	Processed  int
	Updated    int
	Rejected   int
	Skipped    int
	Errors     int
	Unmatched  []string
	ReportPath string
}

// statsCollector accumulates RunStats from concurrent workers.
type statsCollector struct {
	mu    sync.Mutex
	stats RunStats
}

func (c *statsCollector) add(fn func(s *RunStats)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.stats)
}

func (c *statsCollector) snapshot() RunStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// RunTracker persists pipeline runs and enforces one running instance per
// pipeline. A running row older than the lock TTL is treated as abandoned.
type RunTracker struct {
	db      *gorm.DB
	lockTTL time.Duration
	now     func() time.Time
}

func NewRunTracker(db *gorm.DB, lockTTL time.Duration) *RunTracker {
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &RunTracker{db: db, lockTTL: lockTTL, now: time.Now}
}

// Start records a new running row for pipeline. It returns
// ErrPipelineLocked while another run of the same pipeline is in progress.
func (t *RunTracker) Start(ctx context.Context, pipeline string) (*models.PipelineRun, error) {
	now := t.now().UTC()
	run := &models.PipelineRun{
		ID:        uuid.NewString(),
		Pipeline:  pipeline,
		Status:    models.RunRunning,
		StartedAt: now,
	}

	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		abandoned := tx.Model(&models.PipelineRun{}).
			Where("pipeline = ? AND status = ? AND started_at < ?", pipeline, models.RunRunning, now.Add(-t.lockTTL)).
			Updates(map[string]any{"status": models.RunFailed, "message": "abandoned: lock expired", "finished_at": now})
		if abandoned.Error != nil {
			return fmt.Errorf("failed to expire stale runs: %w", abandoned.Error)
		}
		if abandoned.RowsAffected > 0 {
			log.Printf("Pipeline %s: expired %d abandoned run(s)", pipeline, abandoned.RowsAffected)
		}

		var running int64
		if err := tx.Model(&models.PipelineRun{}).
			Where("pipeline = ? AND status = ?", pipeline, models.RunRunning).
			Count(&running).Error; err != nil {
			return fmt.Errorf("failed to check running pipelines: %w", err)
		}
		if running > 0 {
			return fmt.Errorf("%w: %s", ErrPipelineLocked, pipeline)
		}

		if err := tx.Create(run).Error; err != nil {
			return fmt.Errorf("failed to record run: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return run, nil
}

// Finish stores the final counters and status. runErr decides the status:
// nil is succeeded, ErrCompletedWithErrors is completed_with_errors and
// anything else is failed.
func (t *RunTracker) Finish(ctx context.Context, run *models.PipelineRun, stats RunStats, runErr error) error {
	finished := t.now().UTC()
	run.FinishedAt = &finished
	run.Processed = stats.Processed
	run.Updated = stats.Updated
	run.Rejected = stats.Rejected
	run.Skipped = stats.Skipped
	run.Errors = stats.Errors
	run.ReportPath = stats.ReportPath
	run.Status = runStatus(runErr)
	run.Message = runMessage(stats, runErr)

	// The run context may already be cancelled; the final state is still
	// written.
	if err := t.db.WithContext(context.WithoutCancel(ctx)).Save(run).Error; err != nil {
		return fmt.Errorf("failed to finish run %s: %w", run.ID, err)
	}
	return nil
}

// Get returns one run, or nil when the id is unknown.
func (t *RunTracker) Get(ctx context.Context, id string) (*models.PipelineRun, error) {
	var run models.PipelineRun
	err := t.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return &run, nil
}

const listRunsQuery = `
SELECT id, pipeline, status, processed, updated, rejected, skipped, errors,
       report_path, message, started_at, finished_at
FROM pipeline_runs
WHERE (? = '' OR pipeline = ?)
ORDER BY started_at DESC
LIMIT ?`

// List returns the newest runs first, optionally for one pipeline.
func (t *RunTracker) List(ctx context.Context, pipeline string, limit int) ([]models.PipelineRun, error) {
	if limit <= 0 {
		limit = 50
	}
	sqlDB, err := database.SQLX(t.db)
	if err != nil {
		return nil, err
	}
	runs := []models.PipelineRun{}
	err = sqlDB.SelectContext(ctx, &runs, listRunsQuery, pipeline, pipeline, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

func runStatus(err error) models.RunStatus {
	switch {
	case err == nil:
		return models.RunSucceeded
	case errors.Is(err, ErrCompletedWithErrors):
		return models.RunCompletedWithErrors
	default:
		return models.RunFailed
	}
}

func runMessage(stats RunStats, err error) string {
	var parts []string
	if err != nil && !errors.Is(err, ErrCompletedWithErrors) {
		parts = append(parts, err.Error())
	}
	if n := len(stats.Unmatched); n > 0 {
		shown := stats.Unmatched
		if n > maxUnmatchedKept {
			shown = shown[:maxUnmatchedKept]
		}
		parts = append(parts, fmt.Sprintf("%d unmatched: %s", n, strings.Join(shown, "; ")))
	}
	return strings.Join(parts, " | ")
}

// Runner executes pipelines under the run lock with a dated run log and
// metrics.
type Runner struct {
	tracker *RunTracker
	logDir  string
}

func NewRunner(tracker *RunTracker, logDir string) *Runner {
	return &Runner{tracker: tracker, logDir: logDir}
}

func (r *Runner) Tracker() *RunTracker {
	return r.tracker
}

// Run executes p and records the outcome. When p finishes without a fatal
// error but counted record errors, the returned error wraps
// ErrCompletedWithErrors.
func (r *Runner) Run(ctx context.Context, p Pipeline) (*models.PipelineRun, error) {
	name := p.Name()
	run, err := r.tracker.Start(ctx, name)
	if err != nil {
		return nil, err
	}

	runLog, err := NewRunLogger(r.logDir, name)
	if err != nil {
		log.Printf("Pipeline %s: run log unavailable, using process log: %v", name, err)
		runLog = NewRunLoggerTo(nil, name)
	}
	defer runLog.Close()

	runLog.Infof("run %s started", run.ID)
	start := time.Now()

	stats, runErr := p.Run(ctx, runLog)
	if runErr == nil && stats.Errors > 0 {
		runErr = fmt.Errorf("%s: %d record errors: %w", name, stats.Errors, ErrCompletedWithErrors)
	}

	status := runStatus(runErr)
	metrics.PipelineRunsTotal.WithLabelValues(name, string(status)).Inc()
	metrics.PipelineRunDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if stats.Errors > 0 {
		metrics.RecordErrorsTotal.WithLabelValues(name).Add(float64(stats.Errors))
	}
	if status != models.RunFailed {
		metrics.PipelineLastSuccess.WithLabelValues(name).SetToCurrentTime()
	}

	if runErr != nil && status == models.RunFailed {
		runLog.Errorf("run %s failed: %v", run.ID, runErr)
	}
	runLog.Infof("run %s %s: processed=%d updated=%d rejected=%d skipped=%d errors=%d unmatched=%d (%v)",
		run.ID, status, stats.Processed, stats.Updated, stats.Rejected, stats.Skipped, stats.Errors,
		len(stats.Unmatched), time.Since(start).Round(time.Millisecond))

	if err := r.tracker.Finish(ctx, run, stats, runErr); err != nil {
		log.Printf("Pipeline %s: %v", name, err)
	}
	return run, runErr
}

package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/metrics"
	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
)

// ErrUnknownPipeline is returned when a run is requested for a pipeline the
// worker does not know.
var ErrUnknownPipeline = errors.New("unknown pipeline")

// PriceWorker runs the scheduled pipelines on an interval and any pipeline
// queued through QueueRun as soon as possible.
type PriceWorker struct {
	runner         *Runner
	pipelines      map[string]Pipeline
	schedule       []string
	updateInterval time.Duration
	mu             sync.RWMutex

	// Runs requested through the API, in request order
	urgentQueue []string
	urgentMu    sync.Mutex
	wake        chan struct{}

	// Stats (reset at midnight)
	runsToday      int
	lastUpdateTime time.Time
	lastStatsDay   time.Time

	lastRuns map[string]*models.PipelineRun
}

// WorkerStatus is the scheduler state reported by the status API.
type WorkerStatus struct {
	LastUpdateTime time.Time                      `json:"last_update_time"`
	NextUpdateTime time.Time                      `json:"next_update_time"`
	Interval       string                         `json:"interval"`
	RunsToday      int                            `json:"runs_today"`
	QueueSize      int                            `json:"queue_size"`
	Scheduled      []string                       `json:"scheduled"`
	Available      []string                       `json:"available"`
	LastRuns       map[string]*models.PipelineRun `json:"last_runs,omitempty"`
}

// NewPriceWorker registers pipelines. schedule names the pipelines run on
// every tick, in order; names that are not registered are dropped with a
// log line.
func NewPriceWorker(runner *Runner, interval time.Duration, schedule []string, pipelines ...Pipeline) *PriceWorker {
	w := &PriceWorker{
		runner:         runner,
		pipelines:      make(map[string]Pipeline, len(pipelines)),
		updateInterval: interval,
		wake:           make(chan struct{}, 1),
		lastRuns:       make(map[string]*models.PipelineRun),
	}
	for _, p := range pipelines {
		w.pipelines[p.Name()] = p
	}
	for _, name := range schedule {
		if _, ok := w.pipelines[name]; !ok {
			log.Printf("Price worker: scheduled pipeline %q is not available, ignoring", name)
			continue
		}
		w.schedule = append(w.schedule, name)
	}
	return w
}

// QueueRun asks the worker to run a pipeline and returns its 1-indexed queue
// position. A pipeline already queued keeps its position.
func (w *PriceWorker) QueueRun(name string) (int, error) {
	if _, ok := w.pipelines[name]; !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownPipeline, name)
	}

	w.urgentMu.Lock()
	pos := 0
	for i, queued := range w.urgentQueue {
		if queued == name {
			pos = i + 1
			break
		}
	}
	if pos == 0 {
		w.urgentQueue = append(w.urgentQueue, name)
		pos = len(w.urgentQueue)
		log.Printf("Price worker: queued run of %s (queue size: %d)", name, pos)
	}
	size := len(w.urgentQueue)
	w.urgentMu.Unlock()

	metrics.SchedulerQueueSize.Set(float64(size))
	select {
	case w.wake <- struct{}{}:
	default:
	}
	return pos, nil
}

// GetQueueSize returns current urgent queue size
func (w *PriceWorker) GetQueueSize() int {
	w.urgentMu.Lock()
	defer w.urgentMu.Unlock()
	return len(w.urgentQueue)
}

// resetDailyStatsIfNeeded resets runsToday at midnight
func (w *PriceWorker) resetDailyStatsIfNeeded() {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	if w.lastStatsDay.Before(today) {
		if !w.lastStatsDay.IsZero() {
			log.Printf("Price worker: daily stats reset (previous day: %d runs)", w.runsToday)
		}
		w.runsToday = 0
		w.lastStatsDay = today
	}
}

// Start runs the schedule immediately and then on every tick until ctx is
// cancelled. Queued runs are picked up between ticks.
func (w *PriceWorker) Start(ctx context.Context) {
	log.Printf("Price worker started: will run %v every %v", w.schedule, w.updateInterval)

	w.RunScheduled(ctx)

	ticker := time.NewTicker(w.updateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("Price worker stopping...")
			return
		case <-ticker.C:
			w.RunScheduled(ctx)
		case <-w.wake:
			w.RunQueued(ctx)
		}
	}
}

// RunScheduled drains the queue and then runs every scheduled pipeline. It
// returns the number of runs that finished without a fatal error.
func (w *PriceWorker) RunScheduled(ctx context.Context) int {
	ok := w.RunQueued(ctx)
	for _, name := range w.schedule {
		if ctx.Err() != nil {
			break
		}
		if w.run(ctx, name) {
			ok++
		}
	}
	return ok
}

// RunQueued runs every queued pipeline in request order.
func (w *PriceWorker) RunQueued(ctx context.Context) int {
	ok := 0
	for ctx.Err() == nil {
		w.urgentMu.Lock()
		if len(w.urgentQueue) == 0 {
			w.urgentMu.Unlock()
			break
		}
		name := w.urgentQueue[0]
		w.urgentQueue = w.urgentQueue[1:]
		size := len(w.urgentQueue)
		w.urgentMu.Unlock()

		metrics.SchedulerQueueSize.Set(float64(size))
		if w.run(ctx, name) {
			ok++
		}
	}
	return ok
}

func (w *PriceWorker) run(ctx context.Context, name string) bool {
	w.resetDailyStatsIfNeeded()

	p := w.pipelines[name]
	run, err := w.runner.Run(ctx, p)
	switch {
	case errors.Is(err, ErrPipelineLocked):
		log.Printf("Price worker: %s is already running, skipping", name)
		return false
	case errors.Is(err, ErrCompletedWithErrors):
		log.Printf("Price worker: %s completed with errors: %s", name, run.Message)
	case err != nil:
		log.Printf("Price worker: %s failed: %v", name, err)
	default:
		log.Printf("Price worker: %s finished: %s", name, run.Message)
	}

	w.mu.Lock()
	w.runsToday++
	w.lastUpdateTime = time.Now()
	if run != nil {
		w.lastRuns[name] = run
	}
	w.mu.Unlock()

	return err == nil || errors.Is(err, ErrCompletedWithErrors)
}

// GetStatus returns the current status
func (w *PriceWorker) GetStatus() WorkerStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()

	available := make([]string, 0, len(w.pipelines))
	for name := range w.pipelines {
		available = append(available, name)
	}
	sort.Strings(available)

	lastRuns := make(map[string]*models.PipelineRun, len(w.lastRuns))
	for name, run := range w.lastRuns {
		lastRuns[name] = run
	}

	return WorkerStatus{
		LastUpdateTime: w.lastUpdateTime,
		NextUpdateTime: w.lastUpdateTime.Add(w.updateInterval),
		Interval:       w.updateInterval.String(),
		RunsToday:      w.runsToday,
		QueueSize:      w.GetQueueSize(),
		Scheduled:      append([]string(nil), w.schedule...),
		Available:      available,
		LastRuns:       lastRuns,
	}
}

package services

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
)

type fakePipeline struct {
	name  string
	stats RunStats
	err   error
}

func (p fakePipeline) Name() string { return p.name }

func (p fakePipeline) Run(ctx context.Context, runLog *RunLogger) (RunStats, error) {
	runLog.Infof("fake run")
	return p.stats, p.err
}

func TestRunTrackerLock(t *testing.T) {
	db := newTestDB(t)
	tracker := NewRunTracker(db, time.Hour)
	ctx := context.Background()

	first, err := tracker.Start(ctx, "tcgcsv")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := tracker.Start(ctx, "tcgcsv"); !errors.Is(err, ErrPipelineLocked) {
		t.Errorf("second Start() error = %v, want ErrPipelineLocked", err)
	}
	if _, err := tracker.Start(ctx, "tcgdex"); err != nil {
		t.Errorf("Start() of another pipeline error = %v", err)
	}

	if err := tracker.Finish(ctx, first, RunStats{Processed: 3}, nil); err != nil {
		t.Fatalf("Finish() error = %v", err)
	}
	if _, err := tracker.Start(ctx, "tcgcsv"); err != nil {
		t.Errorf("Start() after Finish() error = %v", err)
	}
}

func TestRunTrackerExpiresAbandonedRuns(t *testing.T) {
	db := newTestDB(t)
	tracker := NewRunTracker(db, time.Hour)
	ctx := context.Background()

	stale, err := tracker.Start(ctx, "tcgcsv")
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	tracker.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if _, err := tracker.Start(ctx, "tcgcsv"); err != nil {
		t.Fatalf("Start() after lock expiry error = %v", err)
	}
	got, err := tracker.Get(ctx, stale.ID)
	if err != nil || got == nil {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if got.Status != models.RunFailed {
		t.Errorf("abandoned run status = %s, want failed", got.Status)
	}
}

func TestRunnerStatuses(t *testing.T) {
	tests := []struct {
		name       string
		pipeline   fakePipeline
		wantStatus models.RunStatus
		wantErr    error
	}{
		{"clean", fakePipeline{name: "a", stats: RunStats{Processed: 2, Updated: 2}}, models.RunSucceeded, nil},
		{"record errors", fakePipeline{name: "b", stats: RunStats{Processed: 2, Errors: 1}}, models.RunCompletedWithErrors, ErrCompletedWithErrors},
		{"fatal", fakePipeline{name: "c", err: errors.New("boom")}, models.RunFailed, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			runner := NewRunner(NewRunTracker(db, time.Hour), "")

			run, err := runner.Run(context.Background(), tt.pipeline)
			if tt.wantStatus == models.RunSucceeded && err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Run() error = %v, want %v", err, tt.wantErr)
			}
			if tt.wantStatus == models.RunFailed && err == nil {
				t.Error("Run() should return the pipeline error")
			}

			stored, _ := runner.Tracker().Get(context.Background(), run.ID)
			if stored == nil || stored.Status != tt.wantStatus {
				t.Fatalf("stored run = %+v, want status %s", stored, tt.wantStatus)
			}
			if stored.FinishedAt == nil {
				t.Error("FinishedAt not set")
			}
		})
	}
}

func TestRunnerRecordsUnmatched(t *testing.T) {
	db := newTestDB(t)
	runner := NewRunner(NewRunTracker(db, time.Hour), "")

	run, err := runner.Run(context.Background(), fakePipeline{name: "fix-artists", stats: RunStats{Unmatched: []string{"Mew (Mystery Set)"}}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !strings.Contains(run.Message, "1 unmatched: Mew (Mystery Set)") {
		t.Errorf("Message = %q", run.Message)
	}

	runs, err := runner.Tracker().List(context.Background(), "fix-artists", 10)
	if err != nil || len(runs) != 1 {
		t.Errorf("List() = %v, %v", runs, err)
	}
}

func TestRunLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewRunLoggerTo(&buf, "test")
	l.now = func() time.Time { return time.Date(2025, 10, 15, 8, 30, 0, 0, time.UTC) }

	l.Warnf("price %d rejected", 5)
	want := "[2025-10-15T08:30:00Z] [WARN] price 5 rejected\n"
	if got := buf.String(); got != want {
		t.Errorf("run log line = %q, want %q", got, want)
	}
}

func TestRunLoggerFile(t *testing.T) {
	dir := t.TempDir()
	l, err := NewRunLogger(dir, "test")
	if err != nil {
		t.Fatalf("NewRunLogger() error = %v", err)
	}
	defer l.Close()

	if !strings.HasPrefix(l.Path(), dir) || !strings.Contains(l.Path(), "pricing-update-") {
		t.Errorf("Path() = %q", l.Path())
	}
}

package services

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/nikfox3/Card-Collecting-app-sub007/internal/models"
)

// RunLogger writes pipeline progress to the process log and appends the
// same lines to a dated run-log file (pricing-update-YYYY-MM-DD.log).
type RunLogger struct {
	mu        sync.Mutex
	component string
	out       io.Writer
	file      *os.File
	now       func() time.Time
}

// NewRunLogger opens (or creates) today's log file in dir. An empty dir
// logs to the process log only.
func NewRunLogger(dir, component string) (*RunLogger, error) {
	l := &RunLogger{component: component, now: time.Now}
	if dir == "" {
		return l, nil
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("pricing-update-%s.log", models.Today(time.Now())))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	l.file = f
	l.out = f
	return l, nil
}

// NewRunLoggerTo writes run-log lines to w. Used by tests and the API.
func NewRunLoggerTo(w io.Writer, component string) *RunLogger {
	return &RunLogger{component: component, out: w, now: time.Now}
}

func (l *RunLogger) Infof(format string, args ...any) { l.write("INFO", format, args...) }
func (l *RunLogger) Warnf(format string, args ...any) { l.write("WARN", format, args...) }
func (l *RunLogger) Errorf(format string, args ...any) { l.write("ERROR", format, args...) }

func (l *RunLogger) write(level, format string, args ...any) {
	if l == nil {
		log.Printf(format, args...)
		return
	}
	msg := fmt.Sprintf(format, args...)
	log.Printf("%s: %s", l.component, msg)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.out != nil {
		fmt.Fprintf(l.out, "[%s] [%s] %s\n", l.now().UTC().Format(time.RFC3339), level, msg)
	}
}

// Path returns the log file path, or "" when logging to a writer.
func (l *RunLogger) Path() string {
	if l == nil || l.file == nil {
		return ""
	}
	return l.file.Name()
}

func (l *RunLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	return l.file.Close()
}

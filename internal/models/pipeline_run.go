package models

import (
	"time"
)

// RunStatus is the lifecycle state of a pipeline run.
type RunStatus string

const (
	RunRunning             RunStatus = "running"
	RunSucceeded           RunStatus = "succeeded"
	RunCompletedWithErrors RunStatus = "completed_with_errors"
	RunFailed              RunStatus = "failed"
)

// PipelineRun records one execution of an ingestion or repair pipeline.
type PipelineRun struct {
	ID         string     `json:"id" gorm:"primaryKey" db:"id"`
	Pipeline   string     `json:"pipeline" gorm:"not null;index" db:"pipeline"`
	Status     RunStatus  `json:"status" gorm:"not null;index" db:"status"`
	Processed  int        `json:"processed" db:"processed"`
	Updated    int        `json:"updated" db:"updated"`
	Rejected   int        `json:"rejected" db:"rejected"`
	Skipped    int        `json:"skipped" db:"skipped"`
	Errors     int        `json:"errors" db:"errors"`
	ReportPath string     `json:"report_path,omitempty" db:"report_path"`
	Message    string     `json:"message,omitempty" db:"message"`
	StartedAt  time.Time  `json:"started_at" gorm:"not null" db:"started_at"`
	FinishedAt *time.Time `json:"finished_at" db:"finished_at"`
}

// RunHistoryResponse is the API response for the run listing.
type RunHistoryResponse struct {
	Runs  []PipelineRun `json:"runs"`
	Total int           `json:"total"`
}

// AllModels lists every table the database package migrates.
func AllModels() []any {
	return []any{
		&Card{},
		&Set{},
		&Product{},
		&Group{},
		&PriceHistory{},
		&PipelineRun{},
	}
}

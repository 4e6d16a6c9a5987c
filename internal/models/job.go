package models

import (
	"fmt"
	"time"
)

// ETLJob is one execution attempt of the pipeline against one dataset.
// Jobs are created Pending, driven by the orchestrator, and retained
// indefinitely for audit.
type ETLJob struct {
	ID               int        `json:"-"`
	JobID            string     `json:"job_id"`
	Source           string     `json:"source"` // dataset identifier or source label
	Status           JobStatus  `json:"status"`
	RecordsProcessed int        `json:"records_processed"`
	Errors           int        `json:"errors"`
	TierUsed         *Tier      `json:"tier_used,omitempty"` // tier that ultimately succeeded
	Warnings         []string   `json:"warnings,omitempty"`  // ordered per-tier failure notes
	Reason           string     `json:"reason,omitempty"`    // human-readable terminal reason
	StartTime        time.Time  `json:"start_time"`
	EndTime          *time.Time `json:"end_time,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// JobStatus is the lifecycle state of an ETL job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "Pending"
	JobStatusProcessing JobStatus = "Processing"
	JobStatusCompleted  JobStatus = "Completed"
	JobStatusFailed     JobStatus = "Failed"
)

// Valid reports whether the status is a known lifecycle state.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether the status admits no further transitions.
func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// CanTransition reports whether the monotonic state machine permits moving
// from s to next: Pending -> Processing -> {Completed, Failed}.
func (s JobStatus) CanTransition(next JobStatus) bool {
	switch s {
	case JobStatusPending:
		return next == JobStatusProcessing
	case JobStatusProcessing:
		return next == JobStatusCompleted || next == JobStatusFailed
	default:
		return false
	}
}

// Transition validates and applies a status change, stamping the end time on
// terminal states.
func (j *ETLJob) Transition(next JobStatus) error {
	if !j.Status.CanTransition(next) {
		return fmt.Errorf("invalid job transition %s -> %s", j.Status, next)
	}
	j.Status = next
	if next.Terminal() {
		now := time.Now().UTC()
		j.EndTime = &now
	}
	return nil
}

// AddWarning appends a diagnostic note preserving insertion order.
func (j *ETLJob) AddWarning(w string) {
	j.Warnings = append(j.Warnings, w)
}

package models

import "testing"

func TestJobStatusTransitions(t *testing.T) {
	tests := []struct {
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{JobStatusPending, JobStatusProcessing, true},
		{JobStatusPending, JobStatusCompleted, false},
		{JobStatusPending, JobStatusFailed, false},
		{JobStatusProcessing, JobStatusCompleted, true},
		{JobStatusProcessing, JobStatusFailed, true},
		{JobStatusProcessing, JobStatusPending, false},
		{JobStatusCompleted, JobStatusProcessing, false},
		{JobStatusFailed, JobStatusPending, false},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.allowed {
			t.Errorf("CanTransition(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
		}
	}
}

func TestJobTransitionStampsEndTime(t *testing.T) {
	job := ETLJob{Status: JobStatusPending}

	if err := job.Transition(JobStatusProcessing); err != nil {
		t.Fatal(err)
	}
	if job.EndTime != nil {
		t.Error("non-terminal transition should not stamp end time")
	}

	if err := job.Transition(JobStatusCompleted); err != nil {
		t.Fatal(err)
	}
	if job.EndTime == nil {
		t.Error("terminal transition should stamp end time")
	}

	if err := job.Transition(JobStatusFailed); err == nil {
		t.Error("expected error on transition from terminal state")
	}
}

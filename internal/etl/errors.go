package etl

import (
	"errors"
	"fmt"
)

// ErrDatasetNotFound reports a scrape request against an unknown dataset.
var ErrDatasetNotFound = errors.New("dataset not found")

// ErrJobInProgress reports that the dataset already has a non-terminal job.
// The caller should retry after the in-flight job reaches a terminal state.
type ErrJobInProgress struct {
	DatasetID string
	JobID     string
}

func (e *ErrJobInProgress) Error() string {
	return fmt.Sprintf("job %s already in progress for dataset %s", e.JobID, e.DatasetID)
}

package models

import "context"

// DatasetRepository stores and retrieves registered datasets.
type DatasetRepository interface {
	// Create persists a new dataset. Fails if the dataset_id already exists.
	Create(ctx context.Context, ds *Dataset) error

	// GetByDatasetID retrieves a dataset by its stable external key.
	// Returns (nil, nil) when not found.
	GetByDatasetID(ctx context.Context, datasetID string) (*Dataset, error)

	// List retrieves datasets, optionally filtered by active state.
	List(ctx context.Context, isActive *bool, limit, offset int) ([]Dataset, error)

	// Update persists mutable dataset fields.
	Update(ctx context.Context, ds *Dataset) error

	// UpdateTierEstimate applies a compare-and-set tier update: the stored
	// estimate moves to tier only while the stored value still equals
	// expected. Returns true when the update was applied.
	UpdateTierEstimate(ctx context.Context, datasetID string, expected, tier Tier) (bool, error)
}

// VersionRepository stores the append-only version history of datasets and
// the records belonging to each version.
type VersionRepository interface {
	// Latest returns the most recent version for a dataset, or (nil, nil)
	// when the dataset has no versions yet.
	Latest(ctx context.Context, datasetID string) (*DatasetVersion, error)

	// AppendVersion persists a new version together with its records in a
	// single all-or-nothing write and fills in the assigned version IDs.
	AppendVersion(ctx context.Context, version *DatasetVersion, records []ScrapeRecord) error

	// ListVersions returns version history for a dataset, most recent first.
	ListVersions(ctx context.Context, datasetID string, limit int) ([]DatasetVersion, error)
}

// JobRepository stores ETL job lifecycle state.
type JobRepository interface {
	// Create persists a new job.
	Create(ctx context.Context, job *ETLJob) error

	// Update persists job state changes.
	Update(ctx context.Context, job *ETLJob) error

	// GetByJobID retrieves a job by ID. Returns (nil, nil) when not found.
	GetByJobID(ctx context.Context, jobID string) (*ETLJob, error)

	// List returns jobs ordered by creation time descending.
	List(ctx context.Context, limit, offset int) ([]ETLJob, error)
}

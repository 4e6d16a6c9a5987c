package database

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/healthpulse/registry/internal/models"
)

// MemoryDatasetRepository implements an in-memory dataset repository for
// testing/development.
type MemoryDatasetRepository struct {
	mu       sync.RWMutex
	datasets map[string]models.Dataset
	nextID   int
}

// NewMemoryDatasetRepository creates a new in-memory dataset repository.
func NewMemoryDatasetRepository() *MemoryDatasetRepository {
	return &MemoryDatasetRepository{
		datasets: make(map[string]models.Dataset),
		nextID:   1,
	}
}

// Create persists a new dataset.
func (r *MemoryDatasetRepository) Create(ctx context.Context, ds *models.Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.datasets[ds.DatasetID]; exists {
		return fmt.Errorf("dataset %s already exists", ds.DatasetID)
	}
	ds.ID = r.nextID
	r.nextID++
	now := time.Now().UTC()
	ds.CreatedAt = now
	ds.UpdatedAt = now
	r.datasets[ds.DatasetID] = *ds
	return nil
}

// GetByDatasetID retrieves a dataset. Returns (nil, nil) when not found.
func (r *MemoryDatasetRepository) GetByDatasetID(ctx context.Context, datasetID string) (*models.Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ds, ok := r.datasets[datasetID]
	if !ok {
		return nil, nil
	}
	return &ds, nil
}

// List retrieves datasets, optionally filtered by active state.
func (r *MemoryDatasetRepository) List(ctx context.Context, isActive *bool, limit, offset int) ([]models.Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]models.Dataset, 0, len(r.datasets))
	for _, ds := range r.datasets {
		if isActive != nil && ds.IsActive != *isActive {
			continue
		}
		all = append(all, ds)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })

	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

// Update persists mutable dataset fields.
func (r *MemoryDatasetRepository) Update(ctx context.Context, ds *models.Dataset) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.datasets[ds.DatasetID]
	if !ok {
		return fmt.Errorf("dataset %s not found", ds.DatasetID)
	}
	ds.ID = existing.ID
	ds.CreatedAt = existing.CreatedAt
	ds.UpdatedAt = time.Now().UTC()
	r.datasets[ds.DatasetID] = *ds
	return nil
}

// UpdateTierEstimate applies a compare-and-set tier update.
func (r *MemoryDatasetRepository) UpdateTierEstimate(ctx context.Context, datasetID string, expected, tier models.Tier) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ds, ok := r.datasets[datasetID]
	if !ok {
		return false, fmt.Errorf("dataset %s not found", datasetID)
	}
	if ds.ScrapingTier != expected {
		return false, nil
	}
	ds.ScrapingTier = tier
	ds.UpdatedAt = time.Now().UTC()
	r.datasets[datasetID] = ds
	return true, nil
}

// MemoryVersionRepository implements an in-memory version repository for
// testing/development.
type MemoryVersionRepository struct {
	mu       sync.RWMutex
	versions map[string][]models.DatasetVersion
	records  map[int][]models.ScrapeRecord
	nextID   int

	// FailAppend forces AppendVersion to fail, for exercising storage
	// error paths in tests.
	FailAppend error
}

// NewMemoryVersionRepository creates a new in-memory version repository.
func NewMemoryVersionRepository() *MemoryVersionRepository {
	return &MemoryVersionRepository{
		versions: make(map[string][]models.DatasetVersion),
		records:  make(map[int][]models.ScrapeRecord),
		nextID:   1,
	}
}

// Latest returns the most recent version, or (nil, nil) when none exist.
func (r *MemoryVersionRepository) Latest(ctx context.Context, datasetID string) (*models.DatasetVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.versions[datasetID]
	if len(history) == 0 {
		return nil, nil
	}
	latest := history[len(history)-1]
	return &latest, nil
}

// AppendVersion persists a version with its records atomically.
func (r *MemoryVersionRepository) AppendVersion(ctx context.Context, version *models.DatasetVersion, records []models.ScrapeRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailAppend != nil {
		return r.FailAppend
	}

	version.ID = r.nextID
	r.nextID++

	stored := make([]models.ScrapeRecord, len(records))
	for i, rec := range records {
		rec.ID = r.nextID
		r.nextID++
		rec.VersionID = version.ID
		stored[i] = rec
	}

	r.versions[version.DatasetID] = append(r.versions[version.DatasetID], *version)
	r.records[version.ID] = stored
	return nil
}

// ListVersions returns version history, most recent first.
func (r *MemoryVersionRepository) ListVersions(ctx context.Context, datasetID string, limit int) ([]models.DatasetVersion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := r.versions[datasetID]
	out := make([]models.DatasetVersion, len(history))
	for i, v := range history {
		out[len(history)-1-i] = v
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

// RecordsForVersion returns the records stored with a version.
func (r *MemoryVersionRepository) RecordsForVersion(versionID int) []models.ScrapeRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records[versionID]
}

// MemoryJobRepository implements an in-memory job repository for
// testing/development.
type MemoryJobRepository struct {
	mu     sync.RWMutex
	jobs   map[string]models.ETLJob
	order  []string
	nextID int
}

// NewMemoryJobRepository creates a new in-memory job repository.
func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{
		jobs:   make(map[string]models.ETLJob),
		nextID: 1,
	}
}

// Create persists a new job.
func (r *MemoryJobRepository) Create(ctx context.Context, job *models.ETLJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[job.JobID]; exists {
		return fmt.Errorf("job %s already exists", job.JobID)
	}
	job.ID = r.nextID
	r.nextID++
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	r.jobs[job.JobID] = *job
	r.order = append(r.order, job.JobID)
	return nil
}

// Update persists job state changes.
func (r *MemoryJobRepository) Update(ctx context.Context, job *models.ETLJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.jobs[job.JobID]
	if !ok {
		return fmt.Errorf("job %s not found", job.JobID)
	}
	job.ID = existing.ID
	job.CreatedAt = existing.CreatedAt
	job.UpdatedAt = time.Now().UTC()
	r.jobs[job.JobID] = *job
	return nil
}

// GetByJobID retrieves a job. Returns (nil, nil) when not found.
func (r *MemoryJobRepository) GetByJobID(ctx context.Context, jobID string) (*models.ETLJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return nil, nil
	}
	return &job, nil
}

// List returns jobs, most recently created first.
func (r *MemoryJobRepository) List(ctx context.Context, limit, offset int) ([]models.ETLJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ETLJob, 0, len(r.order))
	for i := len(r.order) - 1; i >= 0; i-- {
		out = append(out, r.jobs[r.order[i]])
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/healthpulse/registry/internal/models"
)

// PostgresDatasetRepository implements models.DatasetRepository on Postgres.
type PostgresDatasetRepository struct {
	db *sql.DB
}

func NewPostgresDatasetRepository(db *sql.DB) *PostgresDatasetRepository {
	return &PostgresDatasetRepository{db: db}
}

func (r *PostgresDatasetRepository) Create(ctx context.Context, ds *models.Dataset) error {
	query := `
		INSERT INTO datasets
		(dataset_id, title, description, category, source_url, scraping_tier,
		 update_frequency, confidence, is_active, consecutive_failures)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	return r.db.QueryRowContext(ctx, query,
		ds.DatasetID,
		ds.Title,
		ds.Description,
		ds.Category,
		ds.SourceURL,
		int(ds.ScrapingTier),
		ds.UpdateFrequency,
		ds.Confidence,
		ds.IsActive,
		ds.ConsecutiveFailures,
	).Scan(&ds.ID, &ds.CreatedAt, &ds.UpdatedAt)
}

func (r *PostgresDatasetRepository) GetByDatasetID(ctx context.Context, datasetID string) (*models.Dataset, error) {
	query := `
		SELECT id, dataset_id, title, description, category, source_url,
		       scraping_tier, update_frequency, confidence, is_active,
		       consecutive_failures, last_checked, last_successful_scrape,
		       created_at, updated_at
		FROM datasets
		WHERE dataset_id = $1
	`

	ds, err := scanDataset(r.db.QueryRowContext(ctx, query, datasetID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ds, err
}

func (r *PostgresDatasetRepository) List(ctx context.Context, isActive *bool, limit, offset int) ([]models.Dataset, error) {
	query := `
		SELECT id, dataset_id, title, description, category, source_url,
		       scraping_tier, update_frequency, confidence, is_active,
		       consecutive_failures, last_checked, last_successful_scrape,
		       created_at, updated_at
		FROM datasets
		WHERE ($1::boolean IS NULL OR is_active = $1)
		ORDER BY id
		LIMIT CASE WHEN $2 > 0 THEN $2 ELSE NULL END
		OFFSET $3
	`

	rows, err := r.db.QueryContext(ctx, query, isActive, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var datasets []models.Dataset
	for rows.Next() {
		ds, err := scanDataset(rows)
		if err != nil {
			return nil, err
		}
		datasets = append(datasets, *ds)
	}
	return datasets, rows.Err()
}

func (r *PostgresDatasetRepository) Update(ctx context.Context, ds *models.Dataset) error {
	query := `
		UPDATE datasets SET
			title = $2,
			description = $3,
			category = $4,
			source_url = $5,
			scraping_tier = $6,
			update_frequency = $7,
			confidence = $8,
			is_active = $9,
			consecutive_failures = $10,
			last_checked = $11,
			last_successful_scrape = $12,
			updated_at = NOW()
		WHERE dataset_id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		ds.DatasetID,
		ds.Title,
		ds.Description,
		ds.Category,
		ds.SourceURL,
		int(ds.ScrapingTier),
		ds.UpdateFrequency,
		ds.Confidence,
		ds.IsActive,
		ds.ConsecutiveFailures,
		ds.LastChecked,
		ds.LastSuccessfulScrape,
	).Scan(&ds.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("dataset %s not found", ds.DatasetID)
	}
	return err
}

// UpdateTierEstimate moves the tier estimate only while the stored value
// still equals expected, so concurrent feedback cannot clobber a safer
// estimate written in between.
func (r *PostgresDatasetRepository) UpdateTierEstimate(ctx context.Context, datasetID string, expected, tier models.Tier) (bool, error) {
	query := `
		UPDATE datasets SET
			scraping_tier = $3,
			confidence = $4,
			updated_at = NOW()
		WHERE dataset_id = $1 AND scraping_tier = $2
	`

	result, err := r.db.ExecContext(ctx, query, datasetID, int(expected), int(tier), tier.Confidence())
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanDataset(row scanner) (*models.Dataset, error) {
	var ds models.Dataset
	var tier int

	err := row.Scan(
		&ds.ID,
		&ds.DatasetID,
		&ds.Title,
		&ds.Description,
		&ds.Category,
		&ds.SourceURL,
		&tier,
		&ds.UpdateFrequency,
		&ds.Confidence,
		&ds.IsActive,
		&ds.ConsecutiveFailures,
		&ds.LastChecked,
		&ds.LastSuccessfulScrape,
		&ds.CreatedAt,
		&ds.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	ds.ScrapingTier = models.Tier(tier)
	return &ds, nil
}

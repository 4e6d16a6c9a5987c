package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/healthpulse/registry/internal/models"
)

// PostgresVersionRepository implements models.VersionRepository on Postgres.
// Version history is append-only: rows are inserted, never updated.
type PostgresVersionRepository struct {
	db *sql.DB
}

func NewPostgresVersionRepository(db *sql.DB) *PostgresVersionRepository {
	return &PostgresVersionRepository{db: db}
}

func (r *PostgresVersionRepository) Latest(ctx context.Context, datasetID string) (*models.DatasetVersion, error) {
	query := `
		SELECT id, dataset_id, version_number, content_hash, schema_fingerprint,
		       record_count, content_size, created_at
		FROM dataset_versions
		WHERE dataset_id = $1
		ORDER BY version_number DESC
		LIMIT 1
	`

	var v models.DatasetVersion
	err := r.db.QueryRowContext(ctx, query, datasetID).Scan(
		&v.ID,
		&v.DatasetID,
		&v.VersionNumber,
		&v.ContentHash,
		&v.SchemaFingerprint,
		&v.RecordCount,
		&v.ContentSize,
		&v.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// AppendVersion writes the version row and all its records inside one
// transaction. Either everything commits or nothing does.
func (r *PostgresVersionRepository) AppendVersion(ctx context.Context, version *models.DatasetVersion, records []models.ScrapeRecord) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin version write: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO dataset_versions
		(dataset_id, version_number, content_hash, schema_fingerprint,
		 record_count, content_size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`,
		version.DatasetID,
		version.VersionNumber,
		version.ContentHash,
		version.SchemaFingerprint,
		version.RecordCount,
		version.ContentSize,
		version.CreatedAt,
	).Scan(&version.ID)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scrape_records (dataset_id, version_id, data, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`)
	if err != nil {
		return fmt.Errorf("prepare record insert: %w", err)
	}
	defer stmt.Close()

	for i := range records {
		records[i].VersionID = version.ID

		dataJSON, err := json.Marshal(records[i].Data)
		if err != nil {
			return fmt.Errorf("marshal record data: %w", err)
		}
		metaJSON, err := json.Marshal(records[i].Metadata)
		if err != nil {
			return fmt.Errorf("marshal record metadata: %w", err)
		}

		err = stmt.QueryRowContext(ctx,
			records[i].DatasetID,
			records[i].VersionID,
			dataJSON,
			metaJSON,
			records[i].CreatedAt,
		).Scan(&records[i].ID)
		if err != nil {
			return fmt.Errorf("insert record: %w", err)
		}
	}

	return tx.Commit()
}

func (r *PostgresVersionRepository) ListVersions(ctx context.Context, datasetID string, limit int) ([]models.DatasetVersion, error) {
	query := `
		SELECT id, dataset_id, version_number, content_hash, schema_fingerprint,
		       record_count, content_size, created_at
		FROM dataset_versions
		WHERE dataset_id = $1
		ORDER BY version_number DESC
		LIMIT CASE WHEN $2 > 0 THEN $2 ELSE NULL END
	`

	rows, err := r.db.QueryContext(ctx, query, datasetID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []models.DatasetVersion
	for rows.Next() {
		var v models.DatasetVersion
		err := rows.Scan(
			&v.ID,
			&v.DatasetID,
			&v.VersionNumber,
			&v.ContentHash,
			&v.SchemaFingerprint,
			&v.RecordCount,
			&v.ContentSize,
			&v.CreatedAt,
		)
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

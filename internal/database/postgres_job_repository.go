package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/healthpulse/registry/internal/models"
)

// PostgresJobRepository implements models.JobRepository on Postgres.
type PostgresJobRepository struct {
	db *sql.DB
}

func NewPostgresJobRepository(db *sql.DB) *PostgresJobRepository {
	return &PostgresJobRepository{db: db}
}

func (r *PostgresJobRepository) Create(ctx context.Context, job *models.ETLJob) error {
	query := `
		INSERT INTO etl_jobs
		(job_id, source, status, records_processed, errors, tier_used,
		 warnings, reason, start_time, end_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at
	`

	return r.db.QueryRowContext(ctx, query,
		job.JobID,
		job.Source,
		string(job.Status),
		job.RecordsProcessed,
		job.Errors,
		tierValue(job.TierUsed),
		pq.Array(job.Warnings),
		job.Reason,
		job.StartTime,
		job.EndTime,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)
}

func (r *PostgresJobRepository) Update(ctx context.Context, job *models.ETLJob) error {
	query := `
		UPDATE etl_jobs SET
			status = $2,
			records_processed = $3,
			errors = $4,
			tier_used = $5,
			warnings = $6,
			reason = $7,
			end_time = $8,
			updated_at = NOW()
		WHERE job_id = $1
		RETURNING updated_at
	`

	err := r.db.QueryRowContext(ctx, query,
		job.JobID,
		string(job.Status),
		job.RecordsProcessed,
		job.Errors,
		tierValue(job.TierUsed),
		pq.Array(job.Warnings),
		job.Reason,
		job.EndTime,
	).Scan(&job.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("job %s not found", job.JobID)
	}
	return err
}

func (r *PostgresJobRepository) GetByJobID(ctx context.Context, jobID string) (*models.ETLJob, error) {
	query := `
		SELECT id, job_id, source, status, records_processed, errors, tier_used,
		       warnings, reason, start_time, end_time, created_at, updated_at
		FROM etl_jobs
		WHERE job_id = $1
	`

	job, err := scanJob(r.db.QueryRowContext(ctx, query, jobID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return job, err
}

func (r *PostgresJobRepository) List(ctx context.Context, limit, offset int) ([]models.ETLJob, error) {
	query := `
		SELECT id, job_id, source, status, records_processed, errors, tier_used,
		       warnings, reason, start_time, end_time, created_at, updated_at
		FROM etl_jobs
		ORDER BY created_at DESC
		LIMIT CASE WHEN $1 > 0 THEN $1 ELSE NULL END
		OFFSET $2
	`

	rows, err := r.db.QueryContext(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []models.ETLJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(row scanner) (*models.ETLJob, error) {
	var job models.ETLJob
	var status string
	var tierUsed sql.NullInt64
	var warnings pq.StringArray

	err := row.Scan(
		&job.ID,
		&job.JobID,
		&job.Source,
		&status,
		&job.RecordsProcessed,
		&job.Errors,
		&tierUsed,
		&warnings,
		&job.Reason,
		&job.StartTime,
		&job.EndTime,
		&job.CreatedAt,
		&job.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Status = models.JobStatus(status)
	job.Warnings = []string(warnings)
	if tierUsed.Valid {
		tier := models.Tier(tierUsed.Int64)
		job.TierUsed = &tier
	}
	return &job, nil
}

func tierValue(tier *models.Tier) any {
	if tier == nil {
		return nil
	}
	return int(*tier)
}

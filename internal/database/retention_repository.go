package database

import (
	"database/sql"
	"fmt"

	"github.com/videoforge/videoforge/internal/models"
)

type RetentionRepository struct {
	db *sql.DB
}

func NewRetentionRepository(db *sql.DB) *RetentionRepository {
	return &RetentionRepository{db: db}
}

func (r *RetentionRepository) Create(rec *models.RetentionRecord) error {
	_, err := r.db.Exec(`
		INSERT INTO retention_records (task_id, file_name, file_size, downloaded_at, scheduled_cleanup_at, client_id)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (task_id) DO UPDATE SET scheduled_cleanup_at = EXCLUDED.scheduled_cleanup_at`,
		rec.TaskID, rec.FileName, rec.FileSize, rec.DownloadedAt, rec.ScheduledCleanupAt, rec.ClientID)
	if err != nil {
		return fmt.Errorf("insert retention record: %w", err)
	}
	return nil
}

func (r *RetentionRepository) MarkCleanedUp(taskID string) error {
	_, err := r.db.Exec(`UPDATE retention_records SET cleaned_up=TRUE, cleaned_up_at=NOW() WHERE task_id=$1`, taskID)
	return err
}

func (r *RetentionRepository) ExtendRetention(taskID string, hours int) error {
	_, err := r.db.Exec(`
		UPDATE retention_records SET scheduled_cleanup_at = scheduled_cleanup_at + ($2 || ' hours')::interval
		WHERE task_id=$1`, taskID, hours)
	return err
}

// DueForCleanup returns not-yet-cleaned-up records past their
// scheduled cleanup time (or all of them, if ignoreRetention).
func (r *RetentionRepository) DueForCleanup(ignoreRetention bool) ([]*models.RetentionRecord, error) {
	query := `SELECT task_id, file_name, file_size, downloaded_at, scheduled_cleanup_at, cleaned_up, cleaned_up_at, client_id
		FROM retention_records WHERE NOT cleaned_up`
	if !ignoreRetention {
		query += ` AND scheduled_cleanup_at <= NOW()`
	}

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("query due retention records: %w", err)
	}
	defer rows.Close()

	var out []*models.RetentionRecord
	for rows.Next() {
		var rec models.RetentionRecord
		var cleanedAt sql.NullTime
		if err := rows.Scan(&rec.TaskID, &rec.FileName, &rec.FileSize, &rec.DownloadedAt,
			&rec.ScheduledCleanupAt, &rec.CleanedUp, &cleanedAt, &rec.ClientID); err != nil {
			return nil, err
		}
		if cleanedAt.Valid {
			rec.CleanedUpAt = &cleanedAt.Time
		}
		out = append(out, &rec)
	}
	return out, nil
}

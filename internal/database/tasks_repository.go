package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/videoforge/videoforge/internal/models"
)

// TaskRepository persists Task entities as a thin repository over
// *sql.DB.
type TaskRepository struct {
	db *sql.DB
}

func NewTaskRepository(db *sql.DB) *TaskRepository {
	return &TaskRepository{db: db}
}

func (r *TaskRepository) Create(t *models.Task) error {
	params, err := json.Marshal(t.Params)
	if err != nil {
		return fmt.Errorf("marshal task params: %w", err)
	}

	_, err = r.db.Exec(`
		INSERT INTO tasks (id, name, original_file_name, original_size, original_format,
			params, status, progress, created_at, artifact_path)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		t.ID, t.Name, t.OriginalFileName, t.OriginalSize, t.OriginalFormat,
		params, string(t.Status), t.Progress, t.CreatedAt, t.ArtifactPath)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (r *TaskRepository) UpdateProgress(id string, status models.TaskStatus, progress int, speed float64, eta int64, duration, position float64) error {
	_, err := r.db.Exec(`
		UPDATE tasks SET status=$2, progress=$3, speed_multiplier=$4, eta_seconds=$5,
			duration_seconds=$6, current_position=$7, updated_at=NOW()
		WHERE id=$1`, id, string(status), progress, speed, eta, duration, position)
	if err != nil {
		return fmt.Errorf("update task progress: %w", err)
	}
	return nil
}

func (r *TaskRepository) MarkStarted(id string) error {
	_, err := r.db.Exec(`UPDATE tasks SET status=$2, started_at=NOW(), updated_at=NOW() WHERE id=$1`,
		id, string(models.TaskConverting))
	return err
}

func (r *TaskRepository) MarkTerminal(id string, status models.TaskStatus, failureReason, outputFileName, outputPath string, outputSize int64) error {
	_, err := r.db.Exec(`
		UPDATE tasks SET status=$2, completed_at=NOW(), failure_reason=$3,
			output_file_name=$4, output_path=$5, output_size=$6, updated_at=NOW()
		WHERE id=$1`, id, string(status), failureReason, outputFileName, outputPath, outputSize)
	return err
}

func (r *TaskRepository) Get(id string) (*models.Task, error) {
	row := r.db.QueryRow(`
		SELECT id, name, original_file_name, original_size, original_format,
			output_file_name, output_size, output_format, params, status, progress,
			created_at, started_at, completed_at, speed_multiplier, eta_seconds,
			duration_seconds, current_position, failure_reason, artifact_path, output_path
		FROM tasks WHERE id=$1`, id)
	return scanTask(row)
}

func scanTask(row *sql.Row) (*models.Task, error) {
	var t models.Task
	var paramsRaw []byte
	var status string
	var started, completed sql.NullTime

	err := row.Scan(&t.ID, &t.Name, &t.OriginalFileName, &t.OriginalSize, &t.OriginalFormat,
		&t.OutputFileName, &t.OutputSize, &t.OutputFormat, &paramsRaw, &status, &t.Progress,
		&t.CreatedAt, &started, &completed, &t.SpeedMultiplier, &t.ETASeconds,
		&t.DurationSeconds, &t.CurrentPosition, &t.FailureReason, &t.ArtifactPath, &t.OutputPath)
	if err != nil {
		return nil, err
	}
	t.Status = models.TaskStatus(status)
	if started.Valid {
		t.StartedAt = &started.Time
	}
	if completed.Valid {
		t.CompletedAt = &completed.Time
	}
	_ = json.Unmarshal(paramsRaw, &t.Params)
	return &t, nil
}

type ListFilter struct {
	Status   string
	Search   string
	Page     int
	PageSize int
}

func (r *TaskRepository) List(f ListFilter) ([]*models.Task, int, error) {
	where := "WHERE 1=1"
	args := []interface{}{}
	argN := 1

	if f.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", argN)
		args = append(args, f.Status)
		argN++
	}
	if f.Search != "" {
		where += fmt.Sprintf(" AND (original_file_name ILIKE $%d OR name ILIKE $%d)", argN, argN)
		args = append(args, "%"+f.Search+"%")
		argN++
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM tasks " + where
	if err := r.db.QueryRow(countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tasks: %w", err)
	}

	if f.PageSize <= 0 {
		f.PageSize = 20
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	offset := (f.Page - 1) * f.PageSize

	query := fmt.Sprintf(`
		SELECT id, name, original_file_name, original_size, original_format,
			output_file_name, output_size, output_format, params, status, progress,
			created_at, started_at, completed_at, speed_multiplier, eta_seconds,
			duration_seconds, current_position, failure_reason, artifact_path, output_path
		FROM tasks %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, where, argN, argN+1)
	args = append(args, f.PageSize, offset)

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		var t models.Task
		var paramsRaw []byte
		var status string
		var started, completed sql.NullTime

		if err := rows.Scan(&t.ID, &t.Name, &t.OriginalFileName, &t.OriginalSize, &t.OriginalFormat,
			&t.OutputFileName, &t.OutputSize, &t.OutputFormat, &paramsRaw, &status, &t.Progress,
			&t.CreatedAt, &started, &completed, &t.SpeedMultiplier, &t.ETASeconds,
			&t.DurationSeconds, &t.CurrentPosition, &t.FailureReason, &t.ArtifactPath, &t.OutputPath); err != nil {
			return nil, 0, err
		}
		t.Status = models.TaskStatus(status)
		if started.Valid {
			t.StartedAt = &started.Time
		}
		if completed.Valid {
			t.CompletedAt = &completed.Time
		}
		_ = json.Unmarshal(paramsRaw, &t.Params)
		tasks = append(tasks, &t)
	}

	return tasks, total, nil
}

func (r *TaskRepository) Delete(id string) error {
	_, err := r.db.Exec(`DELETE FROM tasks WHERE id=$1`, id)
	return err
}

// ListTerminalBefore returns the id, artifact/output paths and status
// of tasks in a terminal state that completed before the given time.
func (r *TaskRepository) ListTerminalBefore(before time.Time) ([]*models.Task, error) {
	rows, err := r.db.Query(`
		SELECT id, artifact_path, output_path, status
		FROM tasks WHERE status IN ('Completed','Failed','Cancelled') AND completed_at < $1`, before)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		var t models.Task
		var status string
		if err := rows.Scan(&t.ID, &t.ArtifactPath, &t.OutputPath, &status); err != nil {
			return nil, err
		}
		t.Status = models.TaskStatus(status)
		tasks = append(tasks, &t)
	}
	return tasks, nil
}

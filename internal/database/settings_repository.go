package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// SettingsRepository is a JSON key/value store in the same Postgres
// database as the rest of the ambient stack. Its only user is the
// disk-space config endpoint, which stores and returns the quota; the
// stored value is not applied to the running disk-budget controller,
// and governor pool sizes are not stored here.
type SettingsRepository struct {
	db *sql.DB
}

func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

func (r *SettingsRepository) Get(key string, dest interface{}) (bool, error) {
	var raw []byte
	err := r.db.QueryRow(`SELECT value FROM settings WHERE key=$1`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get setting %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return false, fmt.Errorf("unmarshal setting %s: %w", key, err)
	}
	return true, nil
}

func (r *SettingsRepository) Set(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal setting %s: %w", key, err)
	}
	_, err = r.db.Exec(`
		INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, key, raw)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

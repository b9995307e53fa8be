package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"cms-browser/internal/provider"
)

// SQLite keeps last opened states in a single table.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens or creates the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create state dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open state db: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA busy_timeout = 5000;
		CREATE TABLE IF NOT EXISTS last_opened_state (
			asset_type TEXT PRIMARY KEY,
			state      TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);
	`); err != nil {
		db.Close()
		return nil, fmt.Errorf("init state db: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Load(assetType string) (provider.LastOpenedState, bool, error) {
	var raw string
	err := s.db.QueryRow(`SELECT state FROM last_opened_state WHERE asset_type = ?`, assetType).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return provider.LastOpenedState{}, false, nil
	}
	if err != nil {
		return provider.LastOpenedState{}, false, fmt.Errorf("load state %s: %w", assetType, err)
	}
	var st provider.LastOpenedState
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		return provider.LastOpenedState{}, false, fmt.Errorf("decode state %s: %w", assetType, err)
	}
	return st, true, nil
}

func (s *SQLite) Save(assetType string, state provider.LastOpenedState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode state %s: %w", assetType, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO last_opened_state (asset_type, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(asset_type) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		assetType, string(raw), time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("save state %s: %w", assetType, err)
	}
	return nil
}

// Close releases the database handle.
func (s *SQLite) Close() error { return s.db.Close() }

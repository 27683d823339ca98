package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"

	_ "modernc.org/sqlite"

	"rxsync/internal"
	"rxsync/internal/connectors"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}
	// modernc sqlite serializes writers; one connection avoids SQLITE_BUSY
	// when entity workers record runs concurrently.
	conn.SetMaxOpenConns(1)

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS file_log (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  entityId INTEGER NOT NULL,
  fileName TEXT NOT NULL,
  fileInfo TEXT NOT NULL,
  loggedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_file_log_entity ON file_log(entityId);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId TEXT NOT NULL,
  entityId INTEGER NOT NULL,
  entityName TEXT NOT NULL,
  state TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  timingsJson TEXT NOT NULL,
  error TEXT NOT NULL DEFAULT '',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_runs_entity ON runs(entityId);

CREATE TABLE IF NOT EXISTS fetched_files (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  runId TEXT NOT NULL,
  entityId INTEGER NOT NULL,
  location TEXT NOT NULL,
  hash TEXT NOT NULL DEFAULT '',
  rowCount INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  error TEXT NOT NULL DEFAULT '',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_fetched_files_run ON fetched_files(runId);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) AddFileLog(entityID int, fileName, fileInfo string) (int64, error) {
	result, err := d.conn.Exec(`INSERT INTO file_log (entityId, fileName, fileInfo) VALUES (?, ?, ?)`, entityID, fileName, fileInfo)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// ListFileLog returns up to limit rows for the entity whose file name matches
// the LIKE pattern, newest first.
func (d *DB) ListFileLog(ctx context.Context, entityID int, pattern string, limit int) ([]internal.FileLogRow, error) {
	rows, err := d.conn.QueryContext(ctx, `
SELECT id, entityId, fileName, fileInfo, loggedAt
FROM file_log WHERE entityId = ? AND fileName LIKE ?
ORDER BY id DESC LIMIT ?
`, entityID, pattern, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.FileLogRow
	for rows.Next() {
		var row internal.FileLogRow
		if err := rows.Scan(&row.ID, &row.EntityID, &row.FileName, &row.FileInfo, &row.LoggedAt); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// FileLogLocator serves source locations from the local file_log table, with
// the same pattern and limit semantics as the FileProcessLog lookup.
type FileLogLocator struct {
	DB      *DB
	Pattern string
	Top     int
}

func (l FileLogLocator) Locate(ctx context.Context, entity internal.Entity) ([]internal.SourceLocation, error) {
	rows, err := l.DB.ListFileLog(ctx, entity.ID, l.Pattern, l.Top)
	if err != nil {
		return nil, err
	}
	out := make([]internal.SourceLocation, 0, len(rows))
	for _, row := range rows {
		url, ok := connectors.URLFromFileInfo(row.FileInfo)
		if !ok {
			continue
		}
		out = append(out, internal.SourceLocation{
			EntityID: row.EntityID,
			LogID:    strconv.Itoa(row.ID),
			FileName: row.FileName,
			URL:      url,
		})
	}
	return out, nil
}

func (d *DB) InsertRun(row internal.RunRow) error {
	timingsJSON, _ := json.Marshal(row.Timings)
	countsJSON, _ := json.Marshal(row.Counts)
	_, err := d.conn.Exec(`
INSERT INTO runs (runId, entityId, entityName, state, countsJson, timingsJson, error)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, row.RunID, row.EntityID, row.EntityName, row.State, string(countsJSON), string(timingsJSON), row.Error)
	return err
}

// ListRuns returns the latest runs, newest first. entityID 0 means all entities.
func (d *DB) ListRuns(entityID, limit int) ([]internal.RunRow, error) {
	query := `SELECT id, runId, entityId, entityName, state, countsJson, timingsJson, error, createdAt FROM runs`
	args := []any{}
	if entityID != 0 {
		query += ` WHERE entityId = ?`
		args = append(args, entityID)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RunRow
	for rows.Next() {
		var row internal.RunRow
		var countsJSON, timingsJSON string
		if err := rows.Scan(&row.ID, &row.RunID, &row.EntityID, &row.EntityName, &row.State, &countsJSON, &timingsJSON, &row.Error, &row.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(countsJSON), &row.Counts)
		_ = json.Unmarshal([]byte(timingsJSON), &row.Timings)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) InsertFetchedFile(row internal.FetchedFileRow) error {
	_, err := d.conn.Exec(`
INSERT INTO fetched_files (runId, entityId, location, hash, rowCount, status, error)
VALUES (?, ?, ?, ?, ?, ?, ?)
`, row.RunID, row.EntityID, row.Location, row.Hash, row.Rows, string(row.Status), row.Error)
	return err
}

func (d *DB) ListFetchedFiles(runID string) ([]internal.FetchedFileRow, error) {
	rows, err := d.conn.Query(`
SELECT runId, entityId, location, hash, rowCount, status, error
FROM fetched_files WHERE runId = ? ORDER BY id ASC
`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.FetchedFileRow
	for rows.Next() {
		var row internal.FetchedFileRow
		var status string
		if err := rows.Scan(&row.RunID, &row.EntityID, &row.Location, &row.Hash, &row.Rows, &status, &row.Error); err != nil {
			return nil, err
		}
		row.Status = internal.FileStatus(status)
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

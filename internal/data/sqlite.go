package data

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	stdErrors "errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	apperrors "assetsync/internal/errors"
	"assetsync/internal/manifest"
)

const module = "data"

//go:embed schema.sql
var schema string

// SQLiteRepository persists history using a SQLite database file.
type SQLiteRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteRepository wires a SQLite-backed implementation of Repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{
		db:  db,
		now: time.Now,
	}
}

// Open opens (creating if needed) the database at path and bootstraps it.
func Open(ctx context.Context, path string) (*SQLiteRepository, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, dbError("failed to create database directory", err, "Open").WithField("path", dir)
		}
	}
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, dbError("failed to open database", err, "Open").WithField("path", path)
	}
	db.SetMaxOpenConns(1)

	repo := NewSQLiteRepository(db)
	if err := repo.Bootstrap(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return repo, nil
}

// Bootstrap creates the schema and prepares the store for use.
func (r *SQLiteRepository) Bootstrap(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return dbError("failed to create schema", err, "Bootstrap")
	}
	return nil
}

func (r *SQLiteRepository) StartRun(ctx context.Context, run *Run) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = r.now()
	}
	run.Status = StatusRunning

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO runs (id, operation, root, manifest_url, host, status, started_at, total_assets, total_bytes)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Operation, run.Root, run.ManifestURL, run.Host, run.Status,
		run.StartedAt.UnixNano(), run.TotalAssets, run.TotalBytes)
	if err != nil {
		return dbError("failed to record run", err, "StartRun").WithField("run_id", run.ID)
	}
	return nil
}

func (r *SQLiteRepository) FinishRun(ctx context.Context, id string, result RunResult) error {
	status, msg := StatusSucceeded, ""
	if result.Err != nil {
		status, msg = StatusFailed, result.Err.Error()
	}

	res, err := r.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ?, total_assets = ?, mismatched_assets = ?,
		 total_bytes = ?, transferred_bytes = ?, error = ?
		 WHERE id = ?`,
		status, r.now().UnixNano(), result.TotalAssets, result.MismatchedAssets,
		result.TotalBytes, result.TransferredBytes, msg, id)
	if err != nil {
		return dbError("failed to finish run", err, "FinishRun").WithField("run_id", id)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return dbError("run not found", sql.ErrNoRows, "FinishRun").WithField("run_id", id)
	}
	return nil
}

const runColumns = `id, operation, root, manifest_url, host, status, started_at, finished_at,
	total_assets, mismatched_assets, total_bytes, transferred_bytes, error`

func (r *SQLiteRepository) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, dbError("failed to list runs", err, "ListRuns")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, dbError("failed to read run", err, "ListRuns")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, dbError("failed to list runs", err, "ListRuns")
	}
	return runs, nil
}

func (r *SQLiteRepository) LastRun(ctx context.Context, root string) (*Run, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs WHERE root = ? ORDER BY started_at DESC, rowid DESC LIMIT 1`, root)
	run, err := scanRun(row)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError("failed to read last run", err, "LastRun").WithField("root", root)
	}
	return &run, nil
}

func (r *SQLiteRepository) SaveSnapshot(ctx context.Context, root string, s *manifest.Snapshot) error {
	body, err := s.Marshal()
	if err != nil {
		return dbError("failed to encode snapshot", err, "SaveSnapshot")
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO snapshots (root, name, version, signature, files, body, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (root) DO UPDATE SET
			name = excluded.name,
			version = excluded.version,
			signature = excluded.signature,
			files = excluded.files,
			body = excluded.body,
			updated_at = excluded.updated_at`,
		root, s.Name, s.Version, s.Signature, len(s.Files), body, r.now().UnixNano())
	if err != nil {
		return dbError("failed to save snapshot", err, "SaveSnapshot").WithField("root", root)
	}
	return nil
}

func (r *SQLiteRepository) LoadSnapshot(ctx context.Context, root string) (*manifest.Snapshot, error) {
	var body []byte
	err := r.db.QueryRowContext(ctx, `SELECT body FROM snapshots WHERE root = ?`, root).Scan(&body)
	if stdErrors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, dbError("failed to load snapshot", err, "LoadSnapshot").WithField("root", root)
	}
	var s manifest.Snapshot
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, dbError("failed to decode snapshot", err, "LoadSnapshot").WithField("root", root)
	}
	return &s, nil
}

func (r *SQLiteRepository) Close() error {
	return r.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var run Run
	var started, finished int64
	err := s.Scan(&run.ID, &run.Operation, &run.Root, &run.ManifestURL, &run.Host, &run.Status,
		&started, &finished, &run.TotalAssets, &run.MismatchedAssets, &run.TotalBytes,
		&run.TransferredBytes, &run.Error)
	if err != nil {
		return Run{}, err
	}
	run.StartedAt = time.Unix(0, started)
	if finished > 0 {
		run.FinishedAt = time.Unix(0, finished)
	}
	return run, nil
}

func dbError(msg string, err error, operation string) *apperrors.AppError {
	return apperrors.DatabaseError(apperrors.CodeDatabaseGeneric, msg, err).
		WithModule(module).
		WithOperation(operation)
}

var _ Repository = (*SQLiteRepository)(nil)

// Package journal records the outcome of every upload run in a local SQLite
// database so "vidtools history" can show what was sent, where, and how many
// requests and retries it took.
package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	// Pure-Go SQLite driver (no CGO).
	_ "modernc.org/sqlite"

	"github.com/andrew-hossack/vidtools/internal/upload"
)

// DBFileName is the journal's file name inside the data directory.
const DBFileName = "journal.db"

// DefaultLimit is the number of entries Recent returns when limit <= 0.
const DefaultLimit = 20

const dirPerms = 0o700

// ErrNotFound is returned by Finish when the entry id is unknown.
var ErrNotFound = errors.New("journal: entry not found")

const (
	sqlInsertUpload = `INSERT INTO uploads
		(id, path, endpoint, size, chunk_size, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	sqlFinishUpload = `UPDATE uploads SET
		status = ?, remote_id = ?, retries = ?, calls = ?, error = ?, finished_at = ?
		WHERE id = ?`

	sqlRecentUploads = `SELECT id, path, endpoint, size, chunk_size, status,
		remote_id, retries, calls, error, started_at, finished_at
		FROM uploads ORDER BY started_at DESC, rowid DESC LIMIT ?`
)

// Entry is one upload run.
type Entry struct {
	ID         string
	Path       string
	Endpoint   string
	Size       int64
	ChunkSize  int64
	Status     string
	RemoteID   string
	Retries    int
	Calls      int
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running or if the process died
}

// Journal is the sole writer to the journal database.
type Journal struct {
	db      *sql.DB
	logger  *slog.Logger
	nowFunc func() time.Time // injectable for deterministic tests
}

// Open opens (creating if needed) the journal at dbPath and runs migrations.
// The database uses WAL mode with synchronous=FULL.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Journal, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), dirPerms); err != nil {
		return nil, fmt.Errorf("journal: creating directory for %s: %w", dbPath, err)
	}

	// DSN parameters ensure pragmas apply to every connection from the pool.
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)"+
			"&_pragma=busy_timeout(5000)",
		dbPath,
	)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("journal: opening database %s: %w", dbPath, err)
	}

	// Sole-writer pattern: only one connection writes at a time.
	db.SetMaxOpenConns(1)

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	logger.Debug("upload journal opened", slog.String("db_path", dbPath))

	return &Journal{db: db, logger: logger, nowFunc: time.Now}, nil
}

// Begin records the start of an upload and returns the entry id.
func (j *Journal) Begin(ctx context.Context, req upload.Request, endpoint string) (string, error) {
	id := uuid.NewString()

	_, err := j.db.ExecContext(ctx, sqlInsertUpload,
		id, req.Path, endpoint, req.Size, req.ChunkSize,
		upload.StatusRunning.String(), j.nowFunc().UnixNano(),
	)
	if err != nil {
		return "", fmt.Errorf("journal: recording upload start: %w", err)
	}

	return id, nil
}

// Finish stores the terminal outcome for entry id.
func (j *Journal) Finish(ctx context.Context, id string, out upload.Outcome) error {
	var remoteID, errText sql.NullString

	if out.RemoteID != "" {
		remoteID = sql.NullString{String: out.RemoteID, Valid: true}
	}

	if !out.Succeeded() {
		errText = sql.NullString{String: out.Reason, Valid: true}
	}

	res, err := j.db.ExecContext(ctx, sqlFinishUpload,
		out.Status.String(), remoteID, out.Retries, out.Calls, errText,
		j.nowFunc().UnixNano(), id,
	)
	if err != nil {
		return fmt.Errorf("journal: recording upload outcome: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("journal: recording upload outcome: %w", err)
	}

	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	j.logger.Debug("upload outcome journaled",
		slog.String("id", id),
		slog.String("status", out.Status.String()),
	)

	return nil
}

// Recent returns up to limit entries, newest first.
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = DefaultLimit
	}

	rows, err := j.db.QueryContext(ctx, sqlRecentUploads, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: listing uploads: %w", err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: iterating uploads: %w", err)
	}

	return entries, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

func scanEntry(rows *sql.Rows) (Entry, error) {
	var (
		e                 Entry
		remoteID, errText sql.NullString
		startedAt         int64
		finishedAt        sql.NullInt64
	)

	err := rows.Scan(&e.ID, &e.Path, &e.Endpoint, &e.Size, &e.ChunkSize, &e.Status,
		&remoteID, &e.Retries, &e.Calls, &errText, &startedAt, &finishedAt)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: scanning upload row: %w", err)
	}

	e.RemoteID = remoteID.String
	e.Error = errText.String
	e.StartedAt = time.Unix(0, startedAt)

	if finishedAt.Valid {
		e.FinishedAt = time.Unix(0, finishedAt.Int64)
	}

	return e, nil
}

package resumable

import (
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrCorruptSession is returned when a session file cannot be parsed as JSON.
// The corrupt file is deleted automatically.
var ErrCorruptSession = errors.New("resumable: corrupt session file")

// sessionSubdir is the subdirectory within the data dir for session files.
const sessionSubdir = "upload-sessions"

// Session files hold pre-authenticated upload URLs: owner-only.
const (
	sessionFilePerms = 0o600
	sessionDirPerms  = 0o700
)

// DefaultSessionMaxAge is the default TTL for persisted session records.
const DefaultSessionMaxAge = 7 * 24 * time.Hour

// cleanThrottle limits lazy cleanup to one directory scan per interval.
const cleanThrottle = 1 * time.Hour

// SessionRecord is the on-disk JSON form of a persisted upload session.
// A record is only reused when the file's size and mtime still match.
type SessionRecord struct {
	Endpoint   string    `json:"endpoint"`
	LocalPath  string    `json:"local_path"`
	SessionURL string    `json:"session_url"`
	FileSize   int64     `json:"file_size"`
	FileMtime  time.Time `json:"file_mtime"`
	CreatedAt  time.Time `json:"created_at"`
}

// Matches reports whether the record describes a file with this size and
// modification time.
func (r *SessionRecord) Matches(size int64, mtime time.Time) bool {
	return r.FileSize == size && r.FileMtime.Equal(mtime)
}

// SessionStore persists upload sessions so an interrupted upload resumes in
// a later process. Files are keyed by sha256(len(endpoint):endpoint:path).
// Safe for concurrent use.
type SessionStore struct {
	dir    string
	logger *slog.Logger
	maxAge time.Duration

	cleanMu   sync.Mutex
	lastClean time.Time
}

// NewSessionStore creates a store rooted at dataDir/upload-sessions.
// maxAge <= 0 uses DefaultSessionMaxAge.
func NewSessionStore(dataDir string, maxAge time.Duration, logger *slog.Logger) *SessionStore {
	if logger == nil {
		logger = slog.Default()
	}

	if maxAge <= 0 {
		maxAge = DefaultSessionMaxAge
	}

	return &SessionStore{
		dir:    filepath.Join(dataDir, sessionSubdir),
		logger: logger,
		maxAge: maxAge,
	}
}

// Load reads the record for endpoint and localPath.
// Returns nil, nil if none exists.
func (s *SessionStore) Load(endpoint, localPath string) (*SessionRecord, error) {
	path := s.filePath(endpoint, localPath)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil //nolint:nilnil // absent record is not an error
		}

		return nil, fmt.Errorf("resumable: reading session file: %w", err)
	}

	var rec SessionRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("corrupt session file, deleting",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)

		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			s.logger.Warn("failed to remove corrupt session file",
				slog.String("path", path),
				slog.String("error", rmErr.Error()),
			)
		}

		return nil, fmt.Errorf("%w: %w", ErrCorruptSession, err)
	}

	return &rec, nil
}

// Save persists rec atomically (temp file + rename) and triggers a
// throttled background cleanup of stale records.
func (s *SessionStore) Save(endpoint, localPath string, rec *SessionRecord) error {
	if err := os.MkdirAll(s.dir, sessionDirPerms); err != nil {
		return fmt.Errorf("resumable: creating session dir: %w", err)
	}

	rec.Endpoint = endpoint
	rec.LocalPath = localPath

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("resumable: marshaling session record: %w", err)
	}

	path := s.filePath(endpoint, localPath)
	tmpPath := path + ".tmp"

	if err := os.WriteFile(tmpPath, data, sessionFilePerms); err != nil {
		return fmt.Errorf("resumable: writing session temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("resumable: renaming session temp file: %w", err)
	}

	s.cleanMu.Lock()
	due := time.Since(s.lastClean) >= cleanThrottle
	s.cleanMu.Unlock()

	if due {
		go s.cleanIfDue()
	}

	return nil
}

// Delete removes the record. No error if it doesn't exist.
func (s *SessionStore) Delete(endpoint, localPath string) error {
	path := s.filePath(endpoint, localPath)

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("resumable: deleting session file: %w", err)
	}

	return nil
}

// List returns every readable record. Corrupt files are skipped.
func (s *SessionStore) List() ([]*SessionRecord, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}

		return nil, fmt.Errorf("resumable: reading session dir: %w", err)
	}

	var recs []*SessionRecord

	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			continue
		}

		var rec SessionRecord
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}

		recs = append(recs, &rec)
	}

	return recs, nil
}

// CleanStale removes session files older than maxAge and returns how many
// were deleted.
func (s *SessionStore) CleanStale(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}

		return 0, fmt.Errorf("resumable: reading session dir: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	deleted := 0

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		path := filepath.Join(s.dir, e.Name())
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to clean stale session",
				slog.String("file", e.Name()),
				slog.String("error", err.Error()),
			)

			continue
		}

		s.logger.Info("deleted stale upload session",
			slog.String("file", e.Name()),
			slog.Duration("age", time.Since(info.ModTime())),
		)

		deleted++
	}

	return deleted, nil
}

// cleanIfDue runs CleanStale unless it ran within cleanThrottle. It runs in
// its own goroutine, so a panic is recovered and logged.
func (s *SessionStore) cleanIfDue() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic in session cleanup", slog.Any("panic", r))
		}
	}()

	s.cleanMu.Lock()
	if time.Since(s.lastClean) < cleanThrottle {
		s.cleanMu.Unlock()
		return
	}

	s.lastClean = time.Now()
	s.cleanMu.Unlock()

	n, err := s.CleanStale(s.maxAge)
	if err != nil {
		s.logger.Warn("stale session cleanup failed", slog.String("error", err.Error()))
		return
	}

	if n > 0 {
		s.logger.Info("cleaned stale upload sessions", slog.Int("count", n))
	}
}

// sessionKey produces a deterministic file name for (endpoint, localPath).
// The length prefix prevents collisions from delimiter ambiguity.
func sessionKey(endpoint, localPath string) string {
	h := sha256.Sum256(fmt.Appendf(nil, "%d:%s:%s", len(endpoint), endpoint, localPath))
	return fmt.Sprintf("%x.json", h)
}

func (s *SessionStore) filePath(endpoint, localPath string) string {
	return filepath.Join(s.dir, sessionKey(endpoint, localPath))
}

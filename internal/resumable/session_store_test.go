package resumable

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

const testEndpoint = "https://upload.example.com/sessions"

func TestSessionStore_SaveLoadDelete(t *testing.T) {
	t.Parallel()

	store := NewSessionStore(t.TempDir(), 0, slog.Default())
	localPath := "/videos/clip.mp4"

	rec, err := store.Load(testEndpoint, localPath)
	if err != nil {
		t.Fatalf("Load empty: %v", err)
	}

	if rec != nil {
		t.Fatal("expected nil record from empty store")
	}

	mtime := time.Date(2024, 5, 1, 10, 0, 0, 123, time.UTC)
	now := time.Now().UTC().Truncate(time.Second)

	err = store.Save(testEndpoint, localPath, &SessionRecord{
		SessionURL: "https://upload.example.com/u/abc",
		FileSize:   1024,
		FileMtime:  mtime,
		CreatedAt:  now,
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	rec, err = store.Load(testEndpoint, localPath)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if rec == nil {
		t.Fatal("expected non-nil record")
	}

	if rec.Endpoint != testEndpoint {
		t.Errorf("Endpoint = %q, want %q", rec.Endpoint, testEndpoint)
	}

	if rec.LocalPath != localPath {
		t.Errorf("LocalPath = %q, want %q", rec.LocalPath, localPath)
	}

	if rec.SessionURL != "https://upload.example.com/u/abc" {
		t.Errorf("SessionURL = %q", rec.SessionURL)
	}

	if !rec.Matches(1024, mtime) {
		t.Errorf("record should match size 1024 and mtime %v", mtime)
	}

	if rec.Matches(1024, mtime.Add(time.Second)) {
		t.Error("record must not match a different mtime")
	}

	if !rec.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", rec.CreatedAt, now)
	}

	if err := store.Delete(testEndpoint, localPath); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	rec, err = store.Load(testEndpoint, localPath)
	if err != nil {
		t.Fatalf("Load after delete: %v", err)
	}

	if rec != nil {
		t.Fatal("expected nil record after delete")
	}
}

func TestSessionStore_DeleteNonexistent(t *testing.T) {
	t.Parallel()

	store := NewSessionStore(t.TempDir(), 0, slog.Default())
	if err := store.Delete(testEndpoint, "/nope"); err != nil {
		t.Fatalf("Delete nonexistent: %v", err)
	}
}

func TestSessionStore_CorruptFile(t *testing.T) {
	t.Parallel()

	store := NewSessionStore(t.TempDir(), 0, slog.Default())
	path := store.filePath(testEndpoint, "/corrupt")

	if err := os.MkdirAll(filepath.Dir(path), sessionDirPerms); err != nil {
		t.Fatal(err)
	}

	if err := os.WriteFile(path, []byte("{not json"), sessionFilePerms); err != nil {
		t.Fatal(err)
	}

	_, err := store.Load(testEndpoint, "/corrupt")
	if !errors.Is(err, ErrCorruptSession) {
		t.Fatalf("expected ErrCorruptSession, got %v", err)
	}

	if _, statErr := os.Stat(path); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("corrupt file should have been deleted")
	}
}

func TestSessionStore_List(t *testing.T) {
	t.Parallel()

	store := NewSessionStore(t.TempDir(), 0, slog.Default())

	recs, err := store.List()
	if err != nil || len(recs) != 0 {
		t.Fatalf("List empty: %v, %d records", err, len(recs))
	}

	for i := range 3 {
		if err := store.Save(testEndpoint, fmt.Sprintf("/f%d", i), &SessionRecord{SessionURL: "u"}); err != nil {
			t.Fatal(err)
		}
	}

	recs, err = store.List()
	if err != nil {
		t.Fatal(err)
	}

	if len(recs) != 3 {
		t.Errorf("List returned %d records, want 3", len(recs))
	}
}

func TestSessionStore_CleanStale(t *testing.T) {
	t.Parallel()

	store := NewSessionStore(t.TempDir(), 0, slog.Default())
	// Keep the lazy background cleanup from racing the explicit call.
	store.lastClean = time.Now()

	if err := store.Save(testEndpoint, "/old", &SessionRecord{SessionURL: "old"}); err != nil {
		t.Fatal(err)
	}

	if err := store.Save(testEndpoint, "/new", &SessionRecord{SessionURL: "new"}); err != nil {
		t.Fatal(err)
	}

	oldTime := time.Now().Add(-8 * 24 * time.Hour)
	if err := os.Chtimes(store.filePath(testEndpoint, "/old"), oldTime, oldTime); err != nil {
		t.Fatal(err)
	}

	n, err := store.CleanStale(DefaultSessionMaxAge)
	if err != nil {
		t.Fatalf("CleanStale: %v", err)
	}

	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}

	if rec, _ := store.Load(testEndpoint, "/new"); rec == nil {
		t.Error("fresh record should survive cleanup")
	}
}

func TestSessionStore_CleanStale_MissingDir(t *testing.T) {
	t.Parallel()

	store := NewSessionStore(filepath.Join(t.TempDir(), "nothing"), 0, slog.Default())

	n, err := store.CleanStale(time.Hour)
	if err != nil || n != 0 {
		t.Fatalf("CleanStale on missing dir = %d, %v", n, err)
	}
}

func TestSessionStore_FilePermissions(t *testing.T) {
	t.Parallel()

	store := NewSessionStore(t.TempDir(), 0, slog.Default())
	if err := store.Save(testEndpoint, "/p", &SessionRecord{SessionURL: "u"}); err != nil {
		t.Fatal(err)
	}

	info, err := os.Stat(store.filePath(testEndpoint, "/p"))
	if err != nil {
		t.Fatal(err)
	}

	if perm := info.Mode().Perm(); perm != sessionFilePerms {
		t.Errorf("perm = %o, want %o", perm, sessionFilePerms)
	}
}

func TestSessionKey_NoDelimiterCollision(t *testing.T) {
	t.Parallel()

	if sessionKey("a:", "b") == sessionKey("a", ":b") {
		t.Error("keys collide on delimiter ambiguity")
	}

	if sessionKey("e", "/x") != sessionKey("e", "/x") {
		t.Error("key not deterministic")
	}
}

func TestSessionStore_ConcurrentSaveLoadDelete(t *testing.T) {
	t.Parallel()

	store := NewSessionStore(t.TempDir(), 0, slog.Default())

	var wg sync.WaitGroup

	for i := range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			p := fmt.Sprintf("/file-%d", i)
			if err := store.Save(testEndpoint, p, &SessionRecord{SessionURL: p}); err != nil {
				t.Errorf("Save %s: %v", p, err)
				return
			}

			if _, err := store.Load(testEndpoint, p); err != nil {
				t.Errorf("Load %s: %v", p, err)
			}

			if err := store.Delete(testEndpoint, p); err != nil {
				t.Errorf("Delete %s: %v", p, err)
			}
		}()
	}

	wg.Wait()
}

package main

import (
	"crypto/sha256"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

const (
	lockSubdir    = "locks"
	lockFilePerms = 0o600
	lockDirPerms  = 0o700
)

// acquireUploadLock takes an exclusive flock keyed on the absolute path of
// the file being uploaded, so two processes never drive the same saved
// session. The lock file holds the owner's PID. The returned release func
// removes the file and drops the lock.
func acquireUploadLock(dataDir, localPath string) (release func(), err error) {
	if dataDir == "" {
		return nil, fmt.Errorf("data directory is empty, cannot place upload lock")
	}

	absPath, err := filepath.Abs(localPath)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", localPath, err)
	}

	dir := filepath.Join(dataDir, lockSubdir)
	if mkdirErr := os.MkdirAll(dir, lockDirPerms); mkdirErr != nil {
		return nil, fmt.Errorf("creating lock directory: %w", mkdirErr)
	}

	path := filepath.Join(dir, fmt.Sprintf("%x.lock", sha256.Sum256([]byte(absPath))))

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, lockFilePerms)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	// Non-blocking: fail immediately if another process holds it.
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		f.Close()

		return nil, fmt.Errorf("another upload of %s is already running", localPath)
	}

	if err := f.Truncate(0); err != nil {
		f.Close()

		return nil, fmt.Errorf("truncating lock file: %w", err)
	}

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		f.Close()

		return nil, fmt.Errorf("writing lock file: %w", err)
	}

	return func() {
		os.Remove(path)
		f.Close()
	}, nil
}

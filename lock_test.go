package main

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lockFiles(t *testing.T, dataDir string) []string {
	t.Helper()

	matches, err := filepath.Glob(filepath.Join(dataDir, lockSubdir, "*.lock"))
	require.NoError(t, err)

	return matches
}

func TestAcquireUploadLock_WritesPID(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()

	release, err := acquireUploadLock(dataDir, "/videos/a.mp4")
	require.NoError(t, err)

	defer release()

	files := lockFiles(t, dataDir)
	require.Len(t, files, 1)

	data, err := os.ReadFile(files[0])
	require.NoError(t, err)

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestAcquireUploadLock_SecondAcquisitionFails(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()

	release, err := acquireUploadLock(dataDir, "/videos/a.mp4")
	require.NoError(t, err)

	defer release()

	release2, err := acquireUploadLock(dataDir, "/videos/a.mp4")
	require.Error(t, err)
	assert.Nil(t, release2)
	assert.Contains(t, err.Error(), "already running")
}

func TestAcquireUploadLock_DifferentFilesDoNotConflict(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()

	releaseA, err := acquireUploadLock(dataDir, "/videos/a.mp4")
	require.NoError(t, err)

	defer releaseA()

	releaseB, err := acquireUploadLock(dataDir, "/videos/b.mp4")
	require.NoError(t, err)

	defer releaseB()

	assert.Len(t, lockFiles(t, dataDir), 2)
}

func TestAcquireUploadLock_ReleaseAllowsReacquire(t *testing.T) {
	t.Parallel()

	dataDir := t.TempDir()

	release, err := acquireUploadLock(dataDir, "/videos/a.mp4")
	require.NoError(t, err)
	release()

	assert.Empty(t, lockFiles(t, dataDir))

	release, err = acquireUploadLock(dataDir, "/videos/a.mp4")
	require.NoError(t, err)
	release()
}

func TestAcquireUploadLock_EmptyDataDir(t *testing.T) {
	t.Parallel()

	_, err := acquireUploadLock("", "/videos/a.mp4")
	require.Error(t, err)
}

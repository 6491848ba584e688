package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRetryPolicy(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.Equal(t, 10, p.MaxAttempts)
	assert.Equal(t, time.Second, p.BackoffBase)
	assert.Equal(t, []int{500, 502, 503, 504}, p.RetriableStatuses)
	require.NoError(t, p.Validate())
}

func TestRetryPolicy_Validate(t *testing.T) {
	assert.Error(t, RetryPolicy{MaxAttempts: -2}.Validate())
	assert.NoError(t, RetryPolicy{MaxAttempts: NoRetries}.Validate())
	assert.Error(t, RetryPolicy{BackoffBase: -time.Second}.Validate())
	assert.Error(t, RetryPolicy{RetriableStatuses: []int{42}}.Validate())
	assert.NoError(t, RetryPolicy{}.Validate())
}

func TestBackoff_Range(t *testing.T) {
	p := RetryPolicy{BackoffBase: time.Second}
	rng := rand.New(rand.NewPCG(9, 9))

	for attempt := 1; attempt <= 10; attempt++ {
		ceiling := time.Duration(1<<attempt) * time.Second

		for range 200 {
			d := p.Backoff(attempt, rng)
			require.GreaterOrEqual(t, d, time.Duration(0))
			require.Less(t, d, ceiling)
		}
	}
}

func TestBackoff_CustomBase(t *testing.T) {
	p := RetryPolicy{BackoffBase: 10 * time.Millisecond}
	rng := rand.New(rand.NewPCG(1, 1))

	for range 100 {
		assert.Less(t, p.Backoff(3, rng), 80*time.Millisecond)
	}
}

func TestBackoff_HugeAttemptDoesNotOverflow(t *testing.T) {
	p := RetryPolicy{BackoffBase: time.Hour}
	rng := rand.New(rand.NewPCG(5, 6))

	d := p.Backoff(1000, rng)
	assert.GreaterOrEqual(t, d, time.Duration(0))
}

func TestClassifyStatus(t *testing.T) {
	p := DefaultRetryPolicy()

	for _, code := range []int{500, 502, 503, 504, 429} {
		assert.Equal(t, Retriable, p.ClassifyStatus(code), "status %d", code)
	}

	for _, code := range []int{400, 401, 403, 404, 409, 501} {
		assert.Equal(t, Fatal, p.ClassifyStatus(code), "status %d", code)
	}

	custom := RetryPolicy{RetriableStatuses: []int{408}}
	assert.Equal(t, Retriable, custom.ClassifyStatus(408))
	assert.Equal(t, Fatal, custom.ClassifyStatus(500))
}

func TestClassifyError(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		err  error
		want Class
	}{
		{"nil", nil, Fatal},
		{"unexpected EOF", io.ErrUnexpectedEOF, Retriable},
		{"connection reset", &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)}, Retriable},
		{"wrapped refused", fmt.Errorf("dial: %w", syscall.ECONNREFUSED), Retriable},
		{"url timeout", &url.Error{Op: "Put", URL: "http://x", Err: context.DeadlineExceeded}, Retriable},
		{"dns", &net.DNSError{Err: "no such host", Name: "x"}, Retriable},
		{"path error", &os.PathError{Op: "open", Path: "/x", Err: os.ErrNotExist}, Fatal},
		{"canceled", context.Canceled, Fatal},
		{"plain", errors.New("malformed response"), Fatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyError(ctx, tt.err))
		})
	}
}

func TestClassifyError_CanceledContextIsFatal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.Equal(t, Fatal, ClassifyError(ctx, io.ErrUnexpectedEOF))
}

func TestNewRequest(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "clip.mp4")
	require.NoError(t, os.WriteFile(path, make([]byte, 1000), 0o600))

	req, err := NewRequest(path, 256)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), req.Size)

	assert.Equal(t, int64(256), req.ChunkLen(0))
	assert.Equal(t, int64(232), req.ChunkLen(768))
	assert.Equal(t, int64(0), req.ChunkLen(1000))

	single, err := NewRequest(path, SingleRequest)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), single.ChunkLen(0))
	assert.Equal(t, int64(400), single.ChunkLen(600))
}

func TestNewRequest_Errors(t *testing.T) {
	_, err := NewRequest(filepath.Join(t.TempDir(), "missing.mp4"), SingleRequest)
	assert.ErrorIs(t, err, ErrFileMissing)

	_, err = NewRequest(t.TempDir(), SingleRequest)
	assert.ErrorIs(t, err, ErrInvalidRequest)

	path := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	_, err = NewRequest(path, 0)
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestOutcomeError(t *testing.T) {
	out := Outcome{
		Status:  StatusFailedBudgetExhausted,
		Reason:  "retry budget exhausted",
		LastErr: io.ErrUnexpectedEOF,
		Retries: 10,
		Calls:   11,
	}

	err := out.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBudgetExhausted)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.NotErrorIs(t, err, ErrFatal)
	assert.Equal(t, "upload failed: retry budget exhausted: unexpected EOF (10 retries, 11 requests)", err.Error())

	var oe *OutcomeError
	require.ErrorAs(t, err, &oe)
	assert.Equal(t, 11, oe.Outcome.Calls)
}

func TestStatus_String(t *testing.T) {
	assert.Equal(t, "succeeded", StatusSucceeded.String())
	assert.Equal(t, "budget_exhausted", StatusFailedBudgetExhausted.String())
	assert.True(t, StatusCancelled.Terminal())
	assert.False(t, StatusRunning.Terminal())
}

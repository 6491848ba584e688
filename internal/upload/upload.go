// Package upload drives a resumable, chunked upload to completion. A Driver
// repeatedly asks a Transport to send the next unsent byte range of a file,
// retrying transient failures with jittered exponential backoff until the
// server acknowledges the whole file, a fatal error occurs, the retry budget
// is exhausted, or the caller cancels.
//
// The driver never inspects error content. Each failed exchange is tagged
// Retriable or Fatal exactly once by the Transport, which keeps the retry
// state machine independent of the wire protocol.
package upload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// SingleRequest is the Request.ChunkSize sentinel meaning "send the whole
// remaining file in one exchange".
const SingleRequest int64 = -1

// Sentinel errors for terminal outcomes. An *OutcomeError matches the
// sentinel for its status, so errors.Is(err, upload.ErrBudgetExhausted)
// works on errors returned by Outcome.Err.
var (
	ErrFileMissing     = errors.New("upload: file missing")
	ErrBudgetExhausted = errors.New("upload: retry budget exhausted")
	ErrFatal           = errors.New("upload: fatal transport error")
	ErrCancelled       = errors.New("upload: cancelled")
	ErrInvalidRequest  = errors.New("upload: invalid request")
)

// Request describes one file to upload. It is immutable once built; the size
// is captured before the first chunk is sent.
type Request struct {
	Path      string
	Size      int64
	ChunkSize int64 // bytes per exchange, or SingleRequest
}

// NewRequest stats path to capture its size and returns a validated Request.
// A missing file yields an error wrapping ErrFileMissing.
func NewRequest(path string, chunkSize int64) (Request, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Request{}, fmt.Errorf("%w: %s", ErrFileMissing, path)
		}

		return Request{}, fmt.Errorf("upload: stat %s: %w", path, err)
	}

	if info.IsDir() {
		return Request{}, fmt.Errorf("%w: %s is a directory", ErrInvalidRequest, path)
	}

	req := Request{Path: path, Size: info.Size(), ChunkSize: chunkSize}
	if err := req.Validate(); err != nil {
		return Request{}, err
	}

	return req, nil
}

// Validate checks the request's invariants.
func (r Request) Validate() error {
	if r.Path == "" {
		return fmt.Errorf("%w: path must not be empty", ErrInvalidRequest)
	}

	if r.Size < 0 {
		return fmt.Errorf("%w: size must be non-negative, got %d", ErrInvalidRequest, r.Size)
	}

	if r.ChunkSize != SingleRequest && r.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive or SingleRequest, got %d", ErrInvalidRequest, r.ChunkSize)
	}

	return nil
}

// ChunkLen returns the length of the byte range starting at offset. The last
// chunk may be shorter than ChunkSize. Returns 0 at or past the end.
func (r Request) ChunkLen(offset int64) int64 {
	remaining := r.Size - offset
	if remaining <= 0 {
		return 0
	}

	if r.ChunkSize == SingleRequest || r.ChunkSize >= remaining {
		return remaining
	}

	return r.ChunkSize
}

// Transport performs one network exchange per call: send the next unsent
// byte range of the file. Implementations must not sleep or retry; all
// timing policy lives in the Driver. After a Retriable failure the next call
// must not duplicate bytes the server already committed. A transport that
// cannot guarantee that reports Fatal instead.
type Transport interface {
	SendNextChunk(ctx context.Context) ChunkResult
}

// TransportFunc adapts a function to the Transport interface.
type TransportFunc func(ctx context.Context) ChunkResult

// SendNextChunk calls f(ctx).
func (f TransportFunc) SendNextChunk(ctx context.Context) ChunkResult {
	return f(ctx)
}

// Class tags a failed exchange.
type Class int

const (
	// Retriable failures are reattempted with backoff until the budget runs out.
	Retriable Class = iota + 1
	// Fatal failures end the upload immediately.
	Fatal
)

func (c Class) String() string {
	switch c {
	case Retriable:
		return "retriable"
	case Fatal:
		return "fatal"
	default:
		return fmt.Sprintf("Class(%d)", int(c))
	}
}

// ResultKind discriminates ChunkResult variants.
type ResultKind int

const (
	KindProgress ResultKind = iota + 1
	KindCompleted
	KindFailed
)

// ChunkResult is the outcome of one Transport exchange. Build values with
// Progress, Completed or Failed.
type ChunkResult struct {
	Kind      ResultKind
	BytesSent int64  // KindProgress: bytes acknowledged so far
	RemoteID  string // KindCompleted: server-assigned identifier
	Class     Class  // KindFailed
	Err       error  // KindFailed
}

// Progress reports that more chunks remain.
func Progress(bytesSent int64) ChunkResult {
	return ChunkResult{Kind: KindProgress, BytesSent: bytesSent}
}

// Completed reports that the server acknowledged the full file.
func Completed(remoteID string) ChunkResult {
	return ChunkResult{Kind: KindCompleted, RemoteID: remoteID}
}

// Failed reports a classified failure. A nil err is replaced by a generic
// error so Detail is never empty.
func Failed(class Class, err error) ChunkResult {
	if err == nil {
		err = errors.New("unspecified transport failure")
	}

	return ChunkResult{Kind: KindFailed, Class: class, Err: err}
}

// Detail returns the failure text, or "" for non-failures.
func (r ChunkResult) Detail() string {
	if r.Err == nil {
		return ""
	}

	return r.Err.Error()
}

package resumable

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/andrew-hossack/vidtools/internal/upload"
)

// Transport uploads one file through a resumable session. Each
// SendNextChunk call issues exactly one HTTP request:
//
//   - no session yet: create one (or load a persisted one and resync)
//   - cursor unknown after a transient failure: query the session
//   - otherwise: PUT the next chunk
//
// Resyncing before resending guarantees bytes the server already committed
// are never sent twice. Not safe for concurrent use.
type Transport struct {
	client  *Client
	req     upload.Request
	policy  upload.RetryPolicy
	store   *SessionStore // nil = no persistence
	limiter *BandwidthLimiter
	logger  *slog.Logger

	absPath string
	name    string

	file    *os.File
	mtime   time.Time
	session *Session
	offset  int64

	// resync is set after any failure that leaves the server's cursor
	// unknown; the next call queries the session instead of sending bytes.
	resync bool

	// restored marks a session loaded from the store that has not yet been
	// confirmed by the server.
	restored bool

	// finalSent is set while the last sent PUT carried the end of the file.
	finalSent bool
}

// TransportOptions holds optional collaborators for NewTransport.
type TransportOptions struct {
	Store   *SessionStore
	Limiter *BandwidthLimiter
	Name    string // remote file name; defaults to the path's base name
}

// NewTransport creates a Transport for req. The file is opened lazily on
// the first SendNextChunk so a missing file is reported through the
// transport contract.
func NewTransport(
	client *Client, req upload.Request, policy upload.RetryPolicy, opts TransportOptions, logger *slog.Logger,
) *Transport {
	if logger == nil {
		logger = slog.Default()
	}

	absPath, err := filepath.Abs(req.Path)
	if err != nil {
		absPath = req.Path
	}

	name := opts.Name
	if name == "" {
		name = filepath.Base(req.Path)
	}

	return &Transport{
		client:  client,
		req:     req,
		policy:  policy,
		store:   opts.Store,
		limiter: opts.Limiter,
		logger:  logger,
		absPath: absPath,
		name:    name,
	}
}

// SendNextChunk implements upload.Transport.
func (t *Transport) SendNextChunk(ctx context.Context) upload.ChunkResult {
	if err := t.openSource(); err != nil {
		return upload.Failed(upload.Fatal, err)
	}

	if err := t.checkUnchanged(); err != nil {
		return upload.Failed(upload.Fatal, err)
	}

	switch {
	case t.session == nil:
		return t.startSession(ctx)
	case t.resync:
		return t.syncCursor(ctx)
	default:
		return t.sendChunk(ctx)
	}
}

// Offset returns the first byte the server is believed to expect next.
func (t *Transport) Offset() int64 {
	return t.offset
}

// Close releases the source file. The persisted session record (if any) is
// kept so a later run can resume.
func (t *Transport) Close() error {
	if t.file == nil {
		return nil
	}

	err := t.file.Close()
	t.file = nil

	return err
}

func (t *Transport) openSource() error {
	if t.file != nil {
		return nil
	}

	f, err := os.Open(t.req.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrFileNotFound, t.req.Path)
		}

		return fmt.Errorf("resumable: opening %s: %w", t.req.Path, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("resumable: stat %s: %w", t.req.Path, err)
	}

	t.file = f
	t.mtime = info.ModTime()

	return nil
}

// checkUnchanged fails when the file no longer matches the size captured in
// the request (or its mtime moved): committed bytes may no longer match.
func (t *Transport) checkUnchanged() error {
	info, err := t.file.Stat()
	if err != nil {
		return fmt.Errorf("resumable: stat %s: %w", t.req.Path, err)
	}

	if info.Size() < t.req.Size {
		return fmt.Errorf("%w: %s shrank from %d to %d bytes", ErrFileChanged, t.req.Path, t.req.Size, info.Size())
	}

	if info.Size() != t.req.Size || !info.ModTime().Equal(t.mtime) {
		return fmt.Errorf("%w: %s was modified", ErrFileChanged, t.req.Path)
	}

	return nil
}

// startSession restores a persisted session (resyncing with the server in
// the same exchange) or creates a new one.
func (t *Transport) startSession(ctx context.Context) upload.ChunkResult {
	if rec := t.loadRecord(); rec != nil {
		t.logger.Info("resuming persisted upload session",
			slog.String("path", t.req.Path),
			slog.Time("created_at", rec.CreatedAt),
		)

		t.session = &Session{UploadURL: rec.SessionURL}
		t.restored = true
		t.resync = true

		return t.syncCursor(ctx)
	}

	session, err := t.client.CreateSession(ctx, t.name, t.req.Size, t.mtime)
	if err != nil {
		return upload.Failed(t.classify(ctx, err), err)
	}

	t.session = session
	t.offset = 0
	t.resync = false
	t.saveRecord()

	return upload.Progress(0)
}

// syncCursor asks the server where to continue.
func (t *Transport) syncCursor(ctx context.Context) upload.ChunkResult {
	status, err := t.client.QuerySession(ctx, t.session)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return t.sessionGone(err)
		}

		return upload.Failed(t.classify(ctx, err), err)
	}

	if len(status.NextExpectedRanges) == 0 {
		return upload.Failed(upload.Fatal,
			fmt.Errorf("%w: session reports no pending ranges", ErrUnexpectedResponse))
	}

	start, err := parseRangeStart(status.NextExpectedRanges[0])
	if err != nil {
		return upload.Failed(upload.Fatal, err)
	}

	if start > t.req.Size {
		return upload.Failed(upload.Fatal,
			fmt.Errorf("%w: server expects offset %d past end of %d-byte file", ErrUnexpectedResponse, start, t.req.Size))
	}

	t.logger.Debug("upload cursor resynced",
		slog.String("path", t.req.Path),
		slog.Int64("local_offset", t.offset),
		slog.Int64("server_offset", start),
	)

	t.offset = start
	t.resync = false
	t.restored = false

	return upload.Progress(start)
}

func (t *Transport) sendChunk(ctx context.Context) upload.ChunkResult {
	length := t.req.ChunkLen(t.offset)
	if length == 0 && t.req.Size > 0 {
		return upload.Failed(upload.Fatal,
			fmt.Errorf("%w: server has not completed the upload at end of file", ErrUnexpectedResponse))
	}

	body := t.limiter.WrapReader(ctx, io.NewSectionReader(t.file, t.offset, length))
	t.finalSent = t.offset+length == t.req.Size

	resp, err := t.client.PutChunk(ctx, t.session, body, t.offset, length, t.req.Size)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return t.sessionGone(err)
		}

		class := t.classify(ctx, err)
		if class == upload.Retriable {
			t.resync = true
		}

		return upload.Failed(class, err)
	}

	if resp.Done {
		t.deleteRecord()
		t.offset = t.req.Size

		return upload.Completed(resp.ItemID)
	}

	next := t.offset + length
	if resp.NextOffset >= 0 {
		next = resp.NextOffset
	}

	// An accepted chunk that does not move the cursor is not progress. It
	// counts against the retry budget so a stalled server cannot loop us
	// forever.
	if next <= t.offset {
		t.resync = true

		return upload.Failed(upload.Retriable,
			fmt.Errorf("%w: server did not advance past offset %d", ErrUnexpectedResponse, t.offset))
	}

	if next > t.req.Size {
		return upload.Failed(upload.Fatal,
			fmt.Errorf("%w: server expects offset %d past end of %d-byte file", ErrUnexpectedResponse, next, t.req.Size))
	}

	t.offset = next

	return upload.Progress(next)
}

// sessionGone handles a 404 on the session URL. A restored session that
// the server no longer knows is silently replaced by a fresh one on the
// next call; a session that disappears mid-upload is fatal.
func (t *Transport) sessionGone(err error) upload.ChunkResult {
	finalSent := t.finalSent

	t.deleteRecord()
	t.session = nil
	t.resync = false
	t.finalSent = false

	if t.restored {
		t.restored = false
		t.logger.Info("persisted upload session expired, starting fresh",
			slog.String("path", t.req.Path),
		)

		t.offset = 0

		return upload.Progress(0)
	}

	if finalSent {
		return upload.Failed(upload.Fatal, fmt.Errorf(
			"%w: session ended after the final chunk, the upload may have completed: %w", ErrSessionExpired, err))
	}

	return upload.Failed(upload.Fatal, fmt.Errorf("%w: %w", ErrSessionExpired, err))
}

// classify tags err exactly once. Malformed server responses are fatal,
// HTTP statuses follow the retry policy, 416 means our cursor is stale and
// is retried after a resync, and everything else is decided by the
// network-error classifier.
func (t *Transport) classify(ctx context.Context, err error) upload.Class {
	if errors.Is(err, ErrUnexpectedResponse) {
		return upload.Fatal
	}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		if httpErr.StatusCode == http.StatusRequestedRangeNotSatisfiable {
			return upload.Retriable
		}

		return t.policy.ClassifyStatus(httpErr.StatusCode)
	}

	return upload.ClassifyError(ctx, err)
}

func (t *Transport) loadRecord() *SessionRecord {
	if t.store == nil {
		return nil
	}

	rec, err := t.store.Load(t.client.Endpoint(), t.absPath)
	if err != nil {
		t.logger.Warn("failed to load upload session",
			slog.String("path", t.req.Path),
			slog.String("error", err.Error()),
		)

		return nil
	}

	if rec == nil {
		return nil
	}

	if !rec.Matches(t.req.Size, t.mtime) {
		t.logger.Info("file changed since session was saved, discarding it",
			slog.String("path", t.req.Path),
		)
		t.deleteRecord()

		return nil
	}

	return rec
}

func (t *Transport) saveRecord() {
	if t.store == nil {
		return
	}

	err := t.store.Save(t.client.Endpoint(), t.absPath, &SessionRecord{
		SessionURL: t.session.UploadURL,
		FileSize:   t.req.Size,
		FileMtime:  t.mtime,
	})
	if err != nil {
		t.logger.Warn("failed to save upload session, resume after restart will not work for this file",
			slog.String("path", t.req.Path),
			slog.String("error", err.Error()),
		)
	}
}

func (t *Transport) deleteRecord() {
	if t.store == nil {
		return
	}

	if err := t.store.Delete(t.client.Endpoint(), t.absPath); err != nil {
		t.logger.Warn("failed to delete session file",
			slog.String("path", t.req.Path),
			slog.String("error", err.Error()),
		)
	}
}

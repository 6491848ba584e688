package resumable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/text/unicode/norm"
)

// ChunkAlignment is the required alignment for chunk sizes (320 KiB).
// All chunks except the final one must be a multiple of this value.
const ChunkAlignment = 320 * 1024

// DefaultUserAgent is sent when the caller does not configure one.
const DefaultUserAgent = "vidtools/0.1"

// Wire types for the session protocol's JSON payloads.
type createSessionRequest struct {
	Item sessionItem `json:"item"`
}

type sessionItem struct {
	Name           string          `json:"name"`
	Size           int64           `json:"size"`
	FileSystemInfo *fileSystemInfo `json:"fileSystemInfo,omitempty"`
}

// fileSystemInfo carries the local modification time so the server keeps
// it instead of stamping the receipt time.
type fileSystemInfo struct {
	LastModifiedDateTime string `json:"lastModifiedDateTime"`
}

type sessionResponse struct {
	UploadURL          string   `json:"uploadUrl"`
	ExpirationDateTime string   `json:"expirationDateTime"`
	NextExpectedRanges []string `json:"nextExpectedRanges"`
}

type completedItemResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Session is a server-side upload session. UploadURL is pre-authenticated.
type Session struct {
	UploadURL      string
	ExpirationTime time.Time
}

// SessionStatus is the server's view of a session: which byte ranges it
// still expects.
type SessionStatus struct {
	UploadURL          string
	ExpirationTime     time.Time
	NextExpectedRanges []string
}

// ChunkResponse is the decoded reply to one chunk PUT.
type ChunkResponse struct {
	Done       bool
	ItemID     string // set when Done
	NextOffset int64  // first byte the server expects next; -1 when not reported
}

// Client speaks the resumable session protocol. It performs exactly one HTTP
// request per method call and never retries.
type Client struct {
	endpoint   string
	httpClient *http.Client
	token      oauth2.TokenSource // nil = send no Authorization header
	logger     *slog.Logger
	userAgent  string
}

// NewClient creates a session client. endpoint is the URL sessions are
// created against.
func NewClient(
	endpoint string, httpClient *http.Client, token oauth2.TokenSource, logger *slog.Logger, userAgent string,
) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	return &Client{
		endpoint:   endpoint,
		httpClient: httpClient,
		token:      token,
		logger:     logger,
		userAgent:  userAgent,
	}
}

// Endpoint returns the session creation URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// CreateSession opens an upload session for a file of the given size.
// name is normalized to NFC so macOS (NFD) and Linux uploads of the same
// file name agree on the server.
func (c *Client) CreateSession(ctx context.Context, name string, size int64, mtime time.Time) (*Session, error) {
	name = norm.NFC.String(name)

	c.logger.Info("creating upload session",
		slog.String("name", name),
		slog.Int64("size", size),
	)

	item := sessionItem{Name: name, Size: size}
	if !mtime.IsZero() {
		item.FileSystemInfo = &fileSystemInfo{
			LastModifiedDateTime: mtime.UTC().Format(time.RFC3339),
		}
	}

	bodyBytes, err := json.Marshal(createSessionRequest{Item: item})
	if err != nil {
		return nil, fmt.Errorf("resumable: marshaling session request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("resumable: creating session request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	if err := c.authorize(req); err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("resumable: create session request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, c.readHTTPError(resp)
	}

	sr, err := decodeSessionResponse(resp.Body)
	if err != nil {
		return nil, err
	}

	if sr.UploadURL == "" {
		return nil, fmt.Errorf("%w: session response has no uploadUrl", ErrUnexpectedResponse)
	}

	session := &Session{
		UploadURL:      sr.UploadURL,
		ExpirationTime: c.parseExpiration(sr.ExpirationDateTime),
	}

	c.logger.Debug("upload session created",
		slog.Time("expires", session.ExpirationTime),
	)

	return session, nil
}

// PutChunk uploads the byte range [offset, offset+length) of a total-byte
// file. 202 Accepted means more chunks remain; 200/201 means the file is
// complete and the body carries the created item. Any other status is
// returned as an *HTTPError.
func (c *Client) PutChunk(
	ctx context.Context, session *Session, chunk io.Reader, offset, length, total int64,
) (*ChunkResponse, error) {
	c.logger.Debug("uploading chunk",
		slog.Int64("offset", offset),
		slog.Int64("length", length),
		slog.Int64("total", total),
	)

	if length <= 0 {
		chunk = http.NoBody
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, session.UploadURL, chunk)
	if err != nil {
		return nil, fmt.Errorf("resumable: creating chunk request: %w", err)
	}

	req.Header.Set("Content-Range", contentRange(offset, length, total))
	req.Header.Set("Content-Type", "application/octet-stream")
	req.ContentLength = length

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("resumable: chunk upload request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		sr, decErr := decodeSessionResponse(resp.Body)
		if decErr != nil {
			return nil, decErr
		}

		next := int64(-1)
		if len(sr.NextExpectedRanges) > 0 {
			start, parseErr := parseRangeStart(sr.NextExpectedRanges[0])
			if parseErr != nil {
				return nil, parseErr
			}

			next = start
		}

		return &ChunkResponse{NextOffset: next}, nil

	case http.StatusOK, http.StatusCreated:
		var item completedItemResponse
		if decErr := json.NewDecoder(resp.Body).Decode(&item); decErr != nil {
			return nil, fmt.Errorf("%w: decoding final chunk response: %w", ErrUnexpectedResponse, decErr)
		}

		if item.ID == "" {
			return nil, fmt.Errorf("%w: final chunk response has no id", ErrUnexpectedResponse)
		}

		c.logger.Debug("upload session complete",
			slog.String("item_id", item.ID),
			slog.String("item_name", item.Name),
		)

		return &ChunkResponse{Done: true, ItemID: item.ID, NextOffset: total}, nil

	default:
		return nil, c.readHTTPError(resp)
	}
}

// QuerySession asks the server which byte ranges it still expects. Used to
// resync the cursor after an interrupted chunk or on resume.
func (c *Client) QuerySession(ctx context.Context, session *Session) (*SessionStatus, error) {
	c.logger.Debug("querying upload session status")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, session.UploadURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("resumable: creating query session request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("resumable: query session request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.readHTTPError(resp)
	}

	sr, err := decodeSessionResponse(resp.Body)
	if err != nil {
		return nil, err
	}

	status := &SessionStatus{
		UploadURL:          sr.UploadURL,
		ExpirationTime:     c.parseExpiration(sr.ExpirationDateTime),
		NextExpectedRanges: sr.NextExpectedRanges,
	}

	c.logger.Debug("upload session status",
		slog.Int("pending_ranges", len(status.NextExpectedRanges)),
	)

	return status, nil
}

// CancelSession deletes an in-progress session on the server.
func (c *Client) CancelSession(ctx context.Context, session *Session) error {
	c.logger.Info("canceling upload session")

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, session.UploadURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("resumable: creating cancel session request: %w", err)
	}

	resp, err := c.do(req)
	if err != nil {
		return fmt.Errorf("resumable: cancel session request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return c.readHTTPError(resp)
	}

	// Drain body to reuse connection.
	if _, drainErr := io.Copy(io.Discard, resp.Body); drainErr != nil {
		return fmt.Errorf("resumable: draining cancel session response body: %w", drainErr)
	}

	return nil
}

// do stamps the common headers and sends one request.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("client-request-id", uuid.NewString())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed",
			slog.String("method", req.Method),
			slog.String("error", err.Error()),
		)

		return nil, err
	}

	return resp, nil
}

// authorize attaches a bearer token when a TokenSource is configured. Only
// session creation is authorized; session URLs are pre-authenticated.
func (c *Client) authorize(req *http.Request) error {
	if c.token == nil {
		return nil
	}

	tok, err := c.token.Token()
	if err != nil {
		return fmt.Errorf("resumable: obtaining token: %w", err)
	}

	tok.SetAuthHeader(req)

	return nil
}

func (c *Client) readHTTPError(resp *http.Response) *HTTPError {
	body, _ := io.ReadAll(resp.Body) //nolint:errcheck // best-effort read for error message

	c.logger.Debug("request returned error status",
		slog.Int("status", resp.StatusCode),
		slog.String("request_id", resp.Header.Get("request-id")),
	)

	return newHTTPError(resp, body)
}

func (c *Client) parseExpiration(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		c.logger.Warn("invalid session expiration, using zero time",
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Time{}
	}

	return t
}

// decodeSessionResponse decodes a session JSON body. An empty body decodes
// to the zero value.
func decodeSessionResponse(r io.Reader) (*sessionResponse, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("resumable: reading session response: %w", err)
	}

	var sr sessionResponse
	if len(bytes.TrimSpace(data)) == 0 {
		return &sr, nil
	}

	if err := json.Unmarshal(data, &sr); err != nil {
		return nil, fmt.Errorf("%w: decoding session response: %w", ErrUnexpectedResponse, err)
	}

	return &sr, nil
}

// contentRange formats the Content-Range header for a chunk. A zero-length
// body (empty file) uses the unsatisfied-range form "bytes */total".
func contentRange(offset, length, total int64) string {
	if length <= 0 {
		return fmt.Sprintf("bytes */%d", total)
	}

	return fmt.Sprintf("bytes %d-%d/%d", offset, offset+length-1, total)
}

// parseRangeStart returns the first byte of a "start-" or "start-end" range.
func parseRangeStart(r string) (int64, error) {
	startStr, _, ok := strings.Cut(r, "-")
	if !ok {
		return 0, fmt.Errorf("%w: malformed range %q", ErrUnexpectedResponse, r)
	}

	start, err := strconv.ParseInt(strings.TrimSpace(startStr), 10, 64)
	if err != nil || start < 0 {
		return 0, fmt.Errorf("%w: malformed range %q", ErrUnexpectedResponse, r)
	}

	return start, nil
}

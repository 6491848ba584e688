package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/andrew-hossack/vidtools/internal/journal"
	"github.com/andrew-hossack/vidtools/internal/resumable"
	"github.com/andrew-hossack/vidtools/internal/upload"
)

// Upload flags, bound in newUploadCmd() and read by loadConfig().
var (
	flagEndpoint    string
	flagChunkSize   string
	flagMaxAttempts int
	flagNoResume    bool
)

func newUploadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "upload <file>",
		Short: "Upload a file through a resumable session",
		Long: `Upload a file in chunks through a resumable upload session.

Transient failures (network errors and retriable server statuses) are retried
with jittered exponential backoff until the retry budget is spent. The session
is saved so an interrupted upload resumes when the same command is re-run.`,
		Args: cobra.ExactArgs(1),
		RunE: runUpload,
	}

	cmd.Flags().StringVar(&flagEndpoint, "endpoint", "", "session creation URL")
	cmd.Flags().StringVar(&flagChunkSize, "chunk-size", "", `chunk size (multiple of 320KiB, or "whole")`)
	cmd.Flags().IntVar(&flagMaxAttempts, "max-attempts", 0, "retry budget for transient failures")
	cmd.Flags().BoolVar(&flagNoResume, "no-resume", false, "do not save or reuse upload sessions")

	return cmd
}

// uploadResult is the --json form of an upload outcome.
type uploadResult struct {
	Path     string `json:"path"`
	Size     int64  `json:"size"`
	Status   string `json:"status"`
	RemoteID string `json:"remote_id,omitempty"`
	Retries  int    `json:"retries"`
	Requests int    `json:"requests"`
	Error    string `json:"error,omitempty"`
}

func runUpload(cmd *cobra.Command, args []string) error {
	logger := buildLogger(cmd.ErrOrStderr())
	path := args[0]

	ctx, cancel := shutdownContext(cmd.Context(), logger)
	defer cancel()

	client, err := newSessionClient(resolvedCfg, logger)
	if err != nil {
		return err
	}

	req, err := upload.NewRequest(path, resolvedCfg.ChunkBytes)
	if err != nil {
		if !errors.Is(err, upload.ErrFileMissing) {
			return err
		}

		// The driver reports a missing file as an outcome without sending
		// anything, so the attempt is still journaled.
		req = upload.Request{Path: path, ChunkSize: resolvedCfg.ChunkBytes}
	}

	release, err := acquireUploadLock(resolvedCfg.State.DataDir, path)
	if err != nil {
		return err
	}
	defer release()

	policy := resolvedCfg.RetryPolicy()

	opts := resumable.TransportOptions{
		Limiter: resumable.NewBandwidthLimiter(resolvedCfg.BandwidthBytes, logger),
	}

	if !flagNoResume {
		opts.Store = newSessionStore(resolvedCfg, logger)
	}

	transport := resumable.NewTransport(client, req, policy, opts, logger)
	defer transport.Close()

	jr, entryID := beginJournal(ctx, req, client.Endpoint(), logger)
	if jr != nil {
		defer jr.Close()
	}

	out := upload.NewDriver(req, policy, transport, logger).Run(ctx)

	if jr != nil {
		// Record the outcome even when the run was cancelled.
		if err := jr.Finish(context.WithoutCancel(ctx), entryID, out); err != nil {
			logger.Warn("failed to journal upload outcome", slog.String("error", err.Error()))
		}
	}

	if err := printUploadResult(cmd, req, out); err != nil {
		return err
	}

	if out.Status == upload.StatusCancelled && opts.Store != nil {
		statusf(flagQuiet, "Upload session saved. Re-run the same command to resume.\n")
	}

	return out.Err()
}

// beginJournal opens the journal and records the start of the run. The
// journal is best-effort: a failure is logged and the upload proceeds.
func beginJournal(
	ctx context.Context, req upload.Request, endpoint string, logger *slog.Logger,
) (*journal.Journal, string) {
	jr, err := journal.Open(ctx, journalPath(resolvedCfg), logger)
	if err != nil {
		logger.Warn("upload journal unavailable", slog.String("error", err.Error()))
		return nil, ""
	}

	id, err := jr.Begin(ctx, req, endpoint)
	if err != nil {
		logger.Warn("failed to journal upload start", slog.String("error", err.Error()))
		jr.Close()

		return nil, ""
	}

	return jr, id
}

func printUploadResult(cmd *cobra.Command, req upload.Request, out upload.Outcome) error {
	if flagJSON {
		res := uploadResult{
			Path:     req.Path,
			Size:     req.Size,
			Status:   out.Status.String(),
			RemoteID: out.RemoteID,
			Retries:  out.Retries,
			Requests: out.Calls,
		}

		if !out.Succeeded() {
			res.Error = out.Reason
		}

		return printJSON(cmd.OutOrStdout(), res)
	}

	if out.Succeeded() {
		fmt.Fprintf(cmd.OutOrStdout(), "Uploaded %s (%s) as %s\n", req.Path, formatSize(req.Size), out.RemoteID)
		statusf(flagQuiet, "%d requests, %d retries\n", out.Calls, out.Retries)
	}

	return nil
}

package upload

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"os"
	"time"
)

// Driver owns the retry/backoff state machine for one file. Each Run is
// independent: retry state is created per call and never shared, so
// concurrent uploads use separate Drivers with separate Transports. A single
// Driver must not be Run concurrently with itself.
type Driver struct {
	req       Request
	policy    RetryPolicy
	transport Transport
	logger    *slog.Logger

	// Rand supplies backoff jitter. Exported for test injection; a seeded
	// source makes the sleep sequence reproducible.
	Rand *rand.Rand

	// SleepFunc waits between retries and must return early with an error
	// when ctx is canceled. Defaults to TimerSleep.
	SleepFunc func(ctx context.Context, d time.Duration) error

	// StatFunc checks that the source file exists before any exchange.
	// Defaults to os.Stat.
	StatFunc func(name string) (os.FileInfo, error)
}

// retryState is the per-Run counter. It counts retriable failures across
// the whole transfer and is never reset between chunks, so a connection
// that flakes on every chunk still exhausts the budget.
type retryState struct {
	retries int
	max     int
	calls   int
}

// NewDriver creates a Driver. A nil logger uses slog.Default().
func NewDriver(req Request, policy RetryPolicy, transport Transport, logger *slog.Logger) *Driver {
	if logger == nil {
		logger = slog.Default()
	}

	return &Driver{
		req:       req,
		policy:    policy,
		transport: transport,
		logger:    logger,
		Rand:      rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // jitter does not need crypto rand
		SleepFunc: TimerSleep,
		StatFunc:  os.Stat,
	}
}

// Run uploads the file and returns the terminal Outcome. It never panics
// out: a panicking transport is reported as a fatal outcome.
func (d *Driver) Run(ctx context.Context) (out Outcome) {
	state := retryState{max: d.policy.maxAttempts()}

	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("panic in upload transport",
				slog.String("path", d.req.Path),
				slog.Any("panic", r),
			)

			out = d.fatal(&state, fmt.Errorf("transport panic: %v", r))
		}
	}()

	if _, err := d.StatFunc(d.req.Path); errors.Is(err, fs.ErrNotExist) {
		d.logger.Error("upload failed: file missing",
			slog.String("path", d.req.Path),
		)

		return Outcome{
			Status:  StatusFailedFileMissing,
			Reason:  "file missing",
			LastErr: err,
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return d.cancelled(&state, err)
		}

		state.calls++

		d.logger.Info("uploading file",
			slog.String("path", d.req.Path),
			slog.Int("attempt", state.calls),
			slog.Int("retries", state.retries),
		)

		res := d.transport.SendNextChunk(ctx)

		switch res.Kind {
		case KindCompleted:
			if res.RemoteID == "" {
				return d.fatal(&state, errors.New("transport completed without a remote identifier"))
			}

			d.logger.Info("upload complete",
				slog.String("path", d.req.Path),
				slog.String("remote_id", res.RemoteID),
				slog.Int("attempts", state.calls),
			)

			return Outcome{
				Status:   StatusSucceeded,
				RemoteID: res.RemoteID,
				Retries:  state.retries,
				Calls:    state.calls,
			}

		case KindProgress:
			d.logger.Debug("chunk accepted",
				slog.String("path", d.req.Path),
				slog.Int64("bytes_sent", res.BytesSent),
				slog.Int64("size", d.req.Size),
			)

			continue

		case KindFailed:
			// A transport error caused by our own cancellation is not a
			// transport verdict.
			if err := ctx.Err(); err != nil {
				return d.cancelled(&state, err)
			}

			if res.Class != Retriable {
				return d.fatal(&state, res.Err)
			}

			state.retries++
			if state.retries > state.max {
				d.logger.Error("upload failed: retry budget exhausted",
					slog.String("path", d.req.Path),
					slog.Int("retries", state.retries-1),
					slog.String("error", res.Detail()),
				)

				return Outcome{
					Status:  StatusFailedBudgetExhausted,
					Reason:  "retry budget exhausted",
					LastErr: res.Err,
					Retries: state.retries - 1,
					Calls:   state.calls,
				}
			}

			backoff := d.policy.Backoff(state.retries, d.Rand)
			d.logger.Warn("retriable upload error, sleeping before retry",
				slog.String("path", d.req.Path),
				slog.Int("retry", state.retries),
				slog.Int("max_retries", state.max),
				slog.Duration("backoff", backoff),
				slog.String("error", res.Detail()),
			)

			if err := d.SleepFunc(ctx, backoff); err != nil {
				return d.cancelled(&state, err)
			}

		default:
			return d.fatal(&state, fmt.Errorf("transport returned unknown result kind %d", res.Kind))
		}
	}
}

func (d *Driver) fatal(state *retryState, err error) Outcome {
	if err == nil {
		err = errors.New("unspecified transport failure")
	}

	d.logger.Error("upload failed: fatal transport error",
		slog.String("path", d.req.Path),
		slog.String("error", err.Error()),
	)

	return Outcome{
		Status:  StatusFailedFatal,
		Reason:  "fatal transport error: " + err.Error(),
		LastErr: err,
		Retries: state.retries,
		Calls:   state.calls,
	}
}

func (d *Driver) cancelled(state *retryState, err error) Outcome {
	d.logger.Warn("upload cancelled",
		slog.String("path", d.req.Path),
		slog.Int("attempts", state.calls),
	)

	return Outcome{
		Status:  StatusCancelled,
		Reason:  "cancelled",
		LastErr: err,
		Retries: state.retries,
		Calls:   state.calls,
	}
}

// TimerSleep waits for d or until ctx is canceled, whichever comes first.
func TimerSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

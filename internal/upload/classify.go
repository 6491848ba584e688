package upload

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"syscall"
)

// retriableErrnos are connection-level failures worth another attempt.
var retriableErrnos = []syscall.Errno{
	syscall.ECONNRESET,
	syscall.ECONNREFUSED,
	syscall.ECONNABORTED,
	syscall.EPIPE,
	syscall.ETIMEDOUT,
	syscall.ENETUNREACH,
	syscall.EHOSTUNREACH,
}

// ClassifyError tags an error from a network exchange. Transports call it
// once per failure; the driver never looks past the returned Class.
//
// Caller cancellation and local filesystem errors are Fatal. Network-layer
// errors (timeouts, resets, truncated responses, DNS) are Retriable. Anything
// unrecognized is Fatal.
func ClassifyError(ctx context.Context, err error) Class {
	if err == nil {
		return Fatal
	}

	if ctx.Err() != nil || errors.Is(err, context.Canceled) {
		return Fatal
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return Fatal
	}

	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return Retriable
	}

	for _, errno := range retriableErrnos {
		if errors.Is(err, errno) {
			return Retriable
		}
	}

	// *url.Error, *net.OpError and *net.DNSError all implement net.Error;
	// deadline overruns inside the HTTP client surface here as well.
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Retriable
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Retriable
	}

	return Fatal
}

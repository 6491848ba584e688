package upload

import (
	"fmt"
	"math"
	"math/rand/v2"
	"net/http"
	"slices"
	"time"
)

// Retry defaults.
const (
	DefaultMaxAttempts = 10
	DefaultBackoffBase = 1 * time.Second

	// NoRetries as RetryPolicy.MaxAttempts fails on the first retriable error.
	NoRetries = -1

	// maxBackoffExponent keeps base*2^attempt inside float64 range that still
	// converts to a valid time.Duration for any realistic base.
	maxBackoffExponent = 32
)

// DefaultRetriableStatuses are the server errors retried by default.
var DefaultRetriableStatuses = []int{
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// RetryPolicy configures the Driver's retry budget and backoff, plus the
// status set HTTP-shaped transports treat as Retriable. The zero value is
// usable: zero fields take the defaults.
type RetryPolicy struct {
	// MaxAttempts is the number of retriable failures tolerated per run.
	// Zero means DefaultMaxAttempts; use NoRetries to disable retrying.
	MaxAttempts       int
	BackoffBase       time.Duration
	RetriableStatuses []int
}

// DefaultRetryPolicy returns a policy populated with all defaults.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       DefaultMaxAttempts,
		BackoffBase:       DefaultBackoffBase,
		RetriableStatuses: slices.Clone(DefaultRetriableStatuses),
	}
}

// Validate rejects negative settings and out-of-range status codes.
func (p RetryPolicy) Validate() error {
	if p.MaxAttempts < NoRetries {
		return fmt.Errorf("upload: max attempts must be non-negative or NoRetries, got %d", p.MaxAttempts)
	}

	if p.BackoffBase < 0 {
		return fmt.Errorf("upload: backoff base must be non-negative, got %s", p.BackoffBase)
	}

	for _, code := range p.RetriableStatuses {
		if code < 100 || code > 599 {
			return fmt.Errorf("upload: invalid retriable status %d", code)
		}
	}

	return nil
}

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts == NoRetries {
		return 0
	}

	if p.MaxAttempts <= 0 {
		return DefaultMaxAttempts
	}

	return p.MaxAttempts
}

func (p RetryPolicy) backoffBase() time.Duration {
	if p.BackoffBase <= 0 {
		return DefaultBackoffBase
	}

	return p.BackoffBase
}

// Backoff returns the sleep before retry number attempt (1-based): a uniform
// random fraction of base*2^attempt, so the result lies in [0, base*2^attempt).
func (p RetryPolicy) Backoff(attempt int, rng *rand.Rand) time.Duration {
	exp := min(max(attempt, 0), maxBackoffExponent)

	ceiling := float64(p.backoffBase()) * math.Pow(2, float64(exp))
	if ceiling > math.MaxInt64 {
		ceiling = math.MaxInt64
	}

	return time.Duration(rng.Float64() * ceiling)
}

// IsRetriableStatus reports whether an HTTP status should be retried.
// An empty RetriableStatuses falls back to DefaultRetriableStatuses.
func (p RetryPolicy) IsRetriableStatus(code int) bool {
	statuses := p.RetriableStatuses
	if len(statuses) == 0 {
		statuses = DefaultRetriableStatuses
	}

	return slices.Contains(statuses, code)
}

// ClassifyStatus maps a failed HTTP status to Retriable or Fatal.
// 429 Too Many Requests is always Retriable.
func (p RetryPolicy) ClassifyStatus(code int) Class {
	if code == http.StatusTooManyRequests || p.IsRetriableStatus(code) {
		return Retriable
	}

	return Fatal
}

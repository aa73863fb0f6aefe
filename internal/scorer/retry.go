package scorer

import (
	"context"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// #region policy
// RetryPolicy bounds retries of transient transport failures. Errors the
// service reports about the request itself are never retried.
type RetryPolicy struct {
	MaxRetries int           // retries after the first attempt
	Backoff    time.Duration // multiplied by the attempt number
	Timeout    time.Duration // per attempt; zero means no extra deadline
}

// DefaultRetryPolicy allows 2 retries = 3 total attempts.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		Backoff:    500 * time.Millisecond,
		Timeout:    30 * time.Second,
	}
}

// #endregion policy

// #region decisions
func (p RetryPolicy) retryable(err error, attempt int) bool {
	if attempt >= p.MaxRetries {
		return false
	}
	switch status.Code(err) {
	case codes.Unavailable, codes.ResourceExhausted, codes.Aborted:
		return true
	}
	return false
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	return p.Backoff * time.Duration(attempt+1)
}

func (p RetryPolicy) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if p.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, p.Timeout)
}

// #endregion decisions

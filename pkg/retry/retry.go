package retry

import (
	"context"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

// RetryPolicy defines how to retry an operation
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultPolicy is a sensible default retry policy
var DefaultPolicy = RetryPolicy{
	MaxAttempts:    3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     2 * time.Second,
}

// IsTransientFunc defines if an error is transient and should be retried
type IsTransientFunc func(error) bool

// Do executes fn until it succeeds, returns a non-transient error, or the
// policy runs out of attempts. The last error is returned unwrapped.
func Do(ctx context.Context, policy RetryPolicy, isTransient IsTransientFunc, fn func() error) error {
	if policy.MaxAttempts <= 1 {
		return fn()
	}
	maxBackoff := policy.MaxBackoff
	if maxBackoff < policy.InitialBackoff {
		maxBackoff = policy.InitialBackoff
	}

	builder := retrypolicy.NewBuilder[any]().
		HandleIf(func(_ any, err error) bool {
			return err != nil && isTransient(err)
		}).
		WithMaxAttempts(policy.MaxAttempts).
		ReturnLastFailure()
	switch {
	case policy.InitialBackoff > 0 && maxBackoff > policy.InitialBackoff:
		builder = builder.WithBackoff(policy.InitialBackoff, maxBackoff).WithJitterFactor(0.25)
	case policy.InitialBackoff > 0:
		builder = builder.WithDelay(policy.InitialBackoff)
	}

	return failsafe.With[any](builder.Build()).WithContext(ctx).Run(fn)
}

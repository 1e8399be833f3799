package sheets

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 2 * time.Second
	DefaultMaxBackoff     = 10 * time.Second
)

// RetryPolicy bounds how rate limited calls are repeated.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Retryable      func(error) bool
	Sleep          func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:    DefaultMaxAttempts,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
		Retryable:      IsRateLimited,
		Sleep:          sleepContext,
	}
}

// Backoff is the wait after the given failed attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	d := p.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= p.MaxBackoff {
			return p.MaxBackoff
		}
	}
	if d > p.MaxBackoff {
		return p.MaxBackoff
	}
	return d
}

// Do runs fn until it succeeds, fails with a non-retryable error, or the
// attempts run out. Failures come back as *GatewayError.
func (p RetryPolicy) Do(ctx context.Context, op, table string, fn func() error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = IsRateLimited
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !retryable(err) {
			log.WithFields(log.Fields{"op": op, "table": table}).Errorf("sheets call failed: %v", err)
			return &GatewayError{Op: op, Table: table, Attempts: attempt, Err: err}
		}
		if attempt == attempts {
			break
		}
		backoff := p.Backoff(attempt)
		log.WithFields(log.Fields{"op": op, "table": table, "attempt": attempt}).Warnf("Rate limited by Google Sheets API, retrying in %v...", backoff)
		if serr := sleep(ctx, backoff); serr != nil {
			return &GatewayError{Op: op, Table: table, Attempts: attempt, Err: serr}
		}
	}
	log.WithFields(log.Fields{"op": op, "table": table}).Warnf("Failed after %d attempts: %v", attempts, err)
	return &GatewayError{Op: op, Table: table, Attempts: attempts, Err: err}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

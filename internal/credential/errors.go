package credential

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNoCredentials is returned by NewPool when no usable token is supplied.
	ErrNoCredentials = errors.New("no credentials configured")

	// ErrCredentialsExhausted is the sentinel behind ExhaustedError.
	// Every non-banned credential is rate limited or cooling down.
	ErrCredentialsExhausted = errors.New("all credentials are rate limited")

	// ErrAuthExhausted is returned when every credential has been banned
	// after an authentication failure. It is fatal for a crawl run.
	ErrAuthExhausted = errors.New("all credentials failed authentication")

	// ErrAcquireTimeout is returned by AcquireBlocking when its timeout
	// elapses before a credential becomes available.
	ErrAcquireTimeout = errors.New("timed out waiting for an available credential")
)

// ExhaustedError reports when the pool will next have a usable credential.
type ExhaustedError struct {
	// ResetAt is the earliest reset time across all non-banned credentials.
	ResetAt time.Time
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all credentials are rate limited until %s", e.ResetAt.Format(time.RFC3339))
}

func (e *ExhaustedError) Unwrap() error {
	return ErrCredentialsExhausted
}

// Wait blocks until ResetAt passes or ctx is cancelled.
func (e *ExhaustedError) Wait(ctx context.Context) error {
	delay := time.Until(e.ResetAt)
	if delay <= 0 {
		return nil
	}
	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

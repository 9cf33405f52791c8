package upstream

import (
	"errors"
	"fmt"

	"github.com/nao1215/xspider/internal/credential"
)

var (
	// ErrRateLimited is returned when every attempt of a fetch was rate limited.
	ErrRateLimited = errors.New("rate limited")

	// ErrNetworkError is returned when every attempt of a fetch failed with a
	// network error, a timeout, or a server error.
	ErrNetworkError = errors.New("network error")

	// ErrAuthFailed is returned when a fetch was rejected for authentication
	// twice in a row while other credentials remain usable.
	ErrAuthFailed = errors.New("authentication failed")

	// ErrAuthExhausted is returned when every credential has been banned.
	// It is the same value as credential.ErrAuthExhausted.
	ErrAuthExhausted = credential.ErrAuthExhausted

	// ErrUnexpectedStatus is returned for client errors that retrying
	// cannot fix.
	ErrUnexpectedStatus = errors.New("unexpected HTTP status")

	// ErrNodeUnavailable is returned when upstream reports the account as
	// missing, suspended, or otherwise unavailable.
	ErrNodeUnavailable = errors.New("account unavailable")

	// ErrMalformedResponse is returned when a successful payload does not
	// have the expected shape.
	ErrMalformedResponse = errors.New("malformed response")
)

// FetchError describes a failed upstream operation.
type FetchError struct {
	// Op is the GraphQL operation name, e.g. "Following".
	Op string

	// Subject is the node id or handle the operation was about.
	Subject string

	// Attempts is the number of requests sent.
	Attempts int

	// Status is the last HTTP status received, 0 if none.
	Status int

	// Err is the cause. It wraps one of the package sentinels.
	Err error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s(%s): %d attempt(s), last status %d: %v", e.Op, e.Subject, e.Attempts, e.Status, e.Err)
	}
	return fmt.Sprintf("%s(%s): %d attempt(s): %v", e.Op, e.Subject, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

package credential

import "time"

// OutcomeKind tags the result of one request made with a credential.
type OutcomeKind int

const (
	// OutcomeSuccess means the request succeeded.
	OutcomeSuccess OutcomeKind = iota

	// OutcomeRateLimited means upstream rejected the request for quota.
	OutcomeRateLimited

	// OutcomeAuthFailed means upstream rejected the credential itself.
	OutcomeAuthFailed

	// OutcomeTransient means a network or server error unrelated to quota.
	OutcomeTransient
)

// String returns the outcome label used in logs and metrics.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeAuthFailed:
		return "auth_failed"
	case OutcomeTransient:
		return "transient"
	default:
		return "unknown"
	}
}

// Quota is the rate-limit state reported alongside a successful response.
type Quota struct {
	// Remaining is the number of requests left in the current window.
	Remaining int

	// ResetAt is when the window resets.
	ResetAt time.Time

	// Known is false when the response carried no rate-limit headers.
	Known bool
}

// Outcome is the tagged result reported back to the pool.
type Outcome struct {
	Kind OutcomeKind

	// Quota is set for OutcomeSuccess.
	Quota Quota

	// ResetAt is set for OutcomeRateLimited. Zero means unknown.
	ResetAt time.Time
}

// Success builds a success outcome.
func Success(q Quota) Outcome {
	return Outcome{Kind: OutcomeSuccess, Quota: q}
}

// RateLimited builds a rate-limited outcome.
func RateLimited(resetAt time.Time) Outcome {
	return Outcome{Kind: OutcomeRateLimited, ResetAt: resetAt}
}

// AuthFailed builds an authentication-failure outcome.
func AuthFailed() Outcome {
	return Outcome{Kind: OutcomeAuthFailed}
}

// Transient builds a transient-failure outcome.
func Transient() Outcome {
	return Outcome{Kind: OutcomeTransient}
}

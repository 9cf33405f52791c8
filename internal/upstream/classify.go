package upstream

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/nao1215/xspider/internal/credential"
)

// OutcomeKind tags a classified response.
type OutcomeKind int

const (
	// OutcomeSuccess is a usable payload.
	OutcomeSuccess OutcomeKind = iota

	// OutcomeRateLimited means the credential's quota is spent.
	OutcomeRateLimited

	// OutcomeAuthFailed means the credential was rejected.
	OutcomeAuthFailed

	// OutcomeTransient is a server-side failure worth retrying.
	OutcomeTransient

	// OutcomeUnavailable means the requested account cannot be served.
	OutcomeUnavailable

	// OutcomePermanent is a client error that retrying will not fix.
	OutcomePermanent
)

// String returns the label used in logs and metrics.
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
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomePermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one response.
type Outcome struct {
	Kind OutcomeKind

	// Status is the HTTP status code.
	Status int

	// Quota is the rate-limit state read from the headers.
	Quota credential.Quota

	// ResetAt is when a rate limit lifts. Zero means unknown.
	ResetAt time.Time

	// Code is the GraphQL error code that decided the outcome, if any.
	Code int
}

// Credential converts the outcome into the report for the credential pool.
// Outcomes that say nothing bad about the credential count as success.
func (o Outcome) Credential() credential.Outcome {
	switch o.Kind {
	case OutcomeRateLimited:
		return credential.RateLimited(o.ResetAt)
	case OutcomeAuthFailed:
		return credential.AuthFailed()
	case OutcomeTransient:
		return credential.Transient()
	default:
		return credential.Success(o.Quota)
	}
}

// Rate-limit header names.
const (
	headerRemaining  = "x-rate-limit-remaining"
	headerReset      = "x-rate-limit-reset"
	headerRetryAfter = "retry-after"
)

type statusRule struct {
	min, max int
	kind     OutcomeKind
}

// statusTable maps HTTP status ranges to outcomes. The first matching rule
// wins; anything unmatched is permanent.
var statusTable = []statusRule{
	{200, 299, OutcomeSuccess},
	{429, 429, OutcomeRateLimited},
	{401, 401, OutcomeAuthFailed},
	{403, 403, OutcomeAuthFailed},
	{408, 408, OutcomeTransient},
	{500, 599, OutcomeTransient},
	{400, 499, OutcomePermanent},
}

// graphQLCodeTable maps error codes found in a 2xx body to outcomes.
var graphQLCodeTable = map[int]OutcomeKind{
	32: OutcomeAuthFailed,  // could not authenticate
	88: OutcomeRateLimited, // rate limit exceeded
	34: OutcomeUnavailable, // resource not found
	50: OutcomeUnavailable, // user not found
	63: OutcomeUnavailable, // user suspended
}

type graphQLError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type graphQLErrors struct {
	Errors []graphQLError `json:"errors"`
}

// Classify maps a response to an Outcome.
//
// Quota headers are read on every response. On a rate limit the reset time
// comes from x-rate-limit-reset (epoch seconds), then retry-after (seconds
// from now); when neither is present ResetAt stays zero and the credential
// pool applies its default window. A 2xx body carrying a known GraphQL
// error code is classified by that code instead of the status.
func Classify(status int, header http.Header, body []byte, now time.Time) Outcome {
	out := Outcome{Kind: OutcomePermanent, Status: status}
	for _, rule := range statusTable {
		if status >= rule.min && status <= rule.max {
			out.Kind = rule.kind
			break
		}
	}

	remaining, hasRemaining := parseInt64(header.Get(headerRemaining))
	resetEpoch, hasReset := parseInt64(header.Get(headerReset))
	if hasRemaining && hasReset {
		out.Quota = credential.Quota{
			Remaining: int(remaining),
			ResetAt:   time.Unix(resetEpoch, 0),
			Known:     true,
		}
	}

	if out.Kind == OutcomeSuccess {
		var gql graphQLErrors
		if err := json.Unmarshal(body, &gql); err == nil {
			for _, e := range gql.Errors {
				if kind, ok := graphQLCodeTable[e.Code]; ok {
					out.Kind = kind
					out.Code = e.Code
					break
				}
			}
		}
	}

	if out.Kind == OutcomeRateLimited {
		switch {
		case hasReset:
			out.ResetAt = time.Unix(resetEpoch, 0)
		default:
			if secs, err := strconv.Atoi(header.Get(headerRetryAfter)); err == nil && secs >= 0 {
				out.ResetAt = now.Add(time.Duration(secs) * time.Second)
			}
		}
	}
	return out
}

package config

import "errors"

// Configuration validation errors.
//
// Design decision: We use package-level sentinel errors rather than
// creating new error instances in Validate(). This allows callers to use
// errors.Is() while still giving the user a readable message.
var (
	// ErrNoSeeds is returned when a crawl has no seed to start from.
	ErrNoSeeds = errors.New("no seeds specified: pass handles or ids as arguments or use --seeds-file")

	// ErrNoCredentials is returned when a crawl has no upstream credential.
	ErrNoCredentials = errors.New("no credentials configured: set XSPIDER_CREDENTIALS or the credentials section of the config file")

	// ErrIncompleteCredential is returned when a credential lacks one of
	// bearer_token, ct0 or auth_token.
	ErrIncompleteCredential = errors.New("incomplete credential: bearer_token, ct0 and auth_token are all required")

	// ErrNoEgress is returned when proxies are empty and direct egress is disabled.
	ErrNoEgress = errors.New("no egress route: configure proxies, enable direct egress, or use --tor")

	// ErrInvalidMaxDepth is returned when the depth is negative.
	ErrInvalidMaxDepth = errors.New("invalid max depth: must be non-negative")

	// ErrInvalidConcurrency is returned when the worker count is not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidFanOut is returned when the per-user cap is not positive.
	ErrInvalidFanOut = errors.New("invalid max following per user: must be positive")

	// ErrInvalidPageSize is returned when the page size is outside 1..100.
	ErrInvalidPageSize = errors.New("invalid page size: must be between 1 and 100")

	// ErrInvalidTimeout is returned when the request timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRequestInterval is returned when the pacing interval is negative.
	ErrInvalidRequestInterval = errors.New("invalid request interval: must be non-negative")

	// ErrInvalidMaxAttempts is returned when the attempt cap is not positive.
	ErrInvalidMaxAttempts = errors.New("invalid max attempts: must be positive")

	// ErrInvalidBackoff is returned when the backoff base is not positive or
	// larger than the cap.
	ErrInvalidBackoff = errors.New("invalid backoff: base must be positive and not exceed the cap")

	// ErrInvalidFailureThreshold is returned when the egress threshold is not positive.
	ErrInvalidFailureThreshold = errors.New("invalid egress failure threshold: must be positive")

	// ErrInvalidLatencyAlpha is returned when the EWMA weight is outside (0, 1].
	ErrInvalidLatencyAlpha = errors.New("invalid egress latency alpha: must be in (0, 1]")

	// ErrInvalidDampingFactor is returned when damping is outside (0, 1).
	ErrInvalidDampingFactor = errors.New("invalid damping factor: must be in (0, 1)")

	// ErrInvalidMaxIterations is returned when the iteration cap is not positive.
	ErrInvalidMaxIterations = errors.New("invalid max iterations: must be positive")

	// ErrInvalidTolerance is returned when the tolerance is not positive.
	ErrInvalidTolerance = errors.New("invalid tolerance: must be positive")

	// ErrInvalidTopK is returned when top-k is not positive.
	ErrInvalidTopK = errors.New("invalid top k: must be positive")

	// ErrInvalidThresholds is returned when a categorization ceiling is not positive.
	ErrInvalidThresholds = errors.New("invalid category thresholds: ceilings must be positive and min seed followers at least 1")
)

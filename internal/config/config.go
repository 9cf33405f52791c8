package config

import (
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
// Crawl values follow the upstream API's practical limits: the following
// endpoint returns at most a few dozen accounts per page and each credential
// gets a 15 minute quota window.
const (
	// AppName is the application name used for XDG directory paths.
	AppName = "xspider"

	// DefaultMaxDepth of 2 covers seeds, the accounts they follow, and the
	// accounts those follow. Each extra level multiplies the request count by
	// roughly the fan-out, so deeper crawls must be asked for explicitly.
	DefaultMaxDepth = 2

	// DefaultConcurrency is the number of traversal workers.
	// Five keeps a small credential pool from being drained in seconds.
	DefaultConcurrency = 5

	// DefaultMaxFanOutPerUser caps how many followed accounts are read per node.
	DefaultMaxFanOutPerUser = 500

	// DefaultPageSize is the "count" variable sent with each following request.
	DefaultPageSize = 20

	// DefaultRequestTimeout bounds a single HTTP attempt.
	DefaultRequestTimeout = 30 * time.Second

	// DefaultRequestInterval is the minimum spacing between upstream requests.
	DefaultRequestInterval = 1 * time.Second

	// DefaultMaxAttempts is the attempt cap of the retry loop.
	DefaultMaxAttempts = 5

	// DefaultBackoffBase is the first retry delay; it doubles per attempt.
	DefaultBackoffBase = 1 * time.Second

	// DefaultBackoffMax caps a single retry delay.
	DefaultBackoffMax = 60 * time.Second

	// DefaultRateLimitReset is assumed when a 429 carries no reset metadata.
	DefaultRateLimitReset = 15 * time.Minute

	// DefaultAcquireTimeout bounds how long a fetch waits for any credential.
	DefaultAcquireTimeout = 15 * time.Minute

	// DefaultCredentialMaxErrors parks a credential after this many
	// consecutive transient errors.
	DefaultCredentialMaxErrors = 5

	// DefaultCredentialErrorCooldown is how long a parked credential rests.
	DefaultCredentialErrorCooldown = 1 * time.Minute

	// DefaultEgressFailureThreshold marks a route unhealthy after this many
	// consecutive failures.
	DefaultEgressFailureThreshold = 3

	// DefaultEgressCooldown is the minimum time a route stays unhealthy.
	DefaultEgressCooldown = 5 * time.Minute

	// DefaultEgressLatencyAlpha weights the newest sample in the latency EWMA.
	DefaultEgressLatencyAlpha = 0.3

	// DefaultDampingFactor is the probability of following a link.
	DefaultDampingFactor = 0.85

	// DefaultMaxIterations caps power iteration.
	DefaultMaxIterations = 100

	// DefaultTolerance is the L1 convergence threshold.
	DefaultTolerance = 1e-6

	// DefaultTopK is how many ranked accounts commands print by default.
	DefaultTopK = 100

	// Categorization ceilings. See ranking.Thresholds for the rule order.
	DefaultHiddenGemFollowerCeiling   = 5000
	DefaultHiddenGemMinSeedFollowers  = 3
	DefaultRisingStarFollowerCeiling  = 20000
	DefaultEstablishedFollowerCeiling = 50000

	// DefaultTorStartupTimeout bounds embedded Tor bootstrap.
	DefaultTorStartupTimeout = 3 * time.Minute
)

// Credential is one upstream identity as it appears in configuration.
type Credential struct {
	BearerToken string `yaml:"bearer_token" json:"bearer_token"`
	CSRFToken   string `yaml:"ct0" json:"ct0"`
	AuthToken   string `yaml:"auth_token" json:"auth_token"`
}

// Config holds all configuration options for xspider.
// It is populated from defaults, then the YAML file, then .env, then CLI
// flags, and passed down explicitly rather than kept in global state.
//
// Design decision: We keep one flat struct like the CLI flag set it mirrors.
// Each component receives only the handful of fields it needs through its own
// functional options, so nesting here would buy nothing.
type Config struct {
	// Seeds are seed references: numeric ids or handles.
	Seeds []string

	// MaxDepth is the deepest level whose nodes are expanded.
	// Nodes discovered one level deeper are stored but not expanded.
	MaxDepth int

	// Concurrency is the traversal worker count.
	Concurrency int

	// MaxFanOutPerUser caps the following list read per node.
	MaxFanOutPerUser int

	// PageSize is the per-request page size.
	PageSize int

	// RequestTimeout bounds a single HTTP attempt.
	RequestTimeout time.Duration

	// RequestInterval is the minimum spacing between upstream requests.
	// Zero disables pacing.
	RequestInterval time.Duration

	// MaxAttempts caps attempts per page fetch.
	MaxAttempts int

	// BackoffBase and BackoffMax shape the exponential retry delay.
	BackoffBase time.Duration
	BackoffMax  time.Duration

	// DefaultRateLimitReset is used when a 429 has no reset metadata.
	DefaultRateLimitReset time.Duration

	// AcquireTimeout bounds the wait for an available credential.
	// Zero waits as long as the run's context allows.
	AcquireTimeout time.Duration

	// CredentialMaxErrors and CredentialErrorCooldown park flaky credentials.
	CredentialMaxErrors     int
	CredentialErrorCooldown time.Duration

	// Credentials are the upstream identities in the pool.
	Credentials []Credential

	// ProxyURLs are egress routes (http, https, socks5, socks5h).
	ProxyURLs []string

	// AllowDirectEgress adds a direct (no proxy) route to the pool.
	AllowDirectEgress bool

	// UseEmbeddedTor starts an embedded Tor daemon and adds it as a route.
	UseEmbeddedTor bool

	// TorStartupTimeout bounds embedded Tor bootstrap.
	TorStartupTimeout time.Duration

	// EgressFailureThreshold, EgressCooldown and EgressLatencyAlpha tune
	// route health tracking.
	EgressFailureThreshold int
	EgressCooldown         time.Duration
	EgressLatencyAlpha     float64

	// Ranking parameters.
	DampingFactor float64
	MaxIterations int
	Tolerance     float64
	TopK          int

	// Categorization ceilings.
	HiddenGemFollowerCeiling   int64
	HiddenGemMinSeedFollowers  int
	RisingStarFollowerCeiling  int64
	EstablishedFollowerCeiling int64

	// DBDir is the directory of the SQLite database.
	// Defaults to the XDG data directory (~/.local/share/xspider on Linux).
	DBDir string

	// ConfigFilePath is an explicit YAML config path; empty means search.
	ConfigFilePath string

	// EnvFilePath is the dotenv file to load credentials from.
	EnvFilePath string

	// Verbose enables debug logging.
	Verbose bool

	// JSONLog switches log output to JSON.
	JSONLog bool

	// MetricsAddr serves Prometheus metrics during a crawl when non-empty.
	MetricsAddr string
}

// NewConfig creates a new Config with default values.
//
// Design decision: We use a constructor function instead of relying on
// zero values because nearly every default is non-zero, and this is the one
// place that documents what they are.
func NewConfig() *Config {
	return &Config{
		MaxDepth:                   DefaultMaxDepth,
		Concurrency:                DefaultConcurrency,
		MaxFanOutPerUser:           DefaultMaxFanOutPerUser,
		PageSize:                   DefaultPageSize,
		RequestTimeout:             DefaultRequestTimeout,
		RequestInterval:            DefaultRequestInterval,
		MaxAttempts:                DefaultMaxAttempts,
		BackoffBase:                DefaultBackoffBase,
		BackoffMax:                 DefaultBackoffMax,
		DefaultRateLimitReset:      DefaultRateLimitReset,
		AcquireTimeout:             DefaultAcquireTimeout,
		CredentialMaxErrors:        DefaultCredentialMaxErrors,
		CredentialErrorCooldown:    DefaultCredentialErrorCooldown,
		AllowDirectEgress:          true,
		TorStartupTimeout:          DefaultTorStartupTimeout,
		EgressFailureThreshold:     DefaultEgressFailureThreshold,
		EgressCooldown:             DefaultEgressCooldown,
		EgressLatencyAlpha:         DefaultEgressLatencyAlpha,
		DampingFactor:              DefaultDampingFactor,
		MaxIterations:              DefaultMaxIterations,
		Tolerance:                  DefaultTolerance,
		TopK:                       DefaultTopK,
		HiddenGemFollowerCeiling:   DefaultHiddenGemFollowerCeiling,
		HiddenGemMinSeedFollowers:  DefaultHiddenGemMinSeedFollowers,
		RisingStarFollowerCeiling:  DefaultRisingStarFollowerCeiling,
		EstablishedFollowerCeiling: DefaultEstablishedFollowerCeiling,
		DBDir:                      XDGDataDir(),
		EnvFilePath:                DefaultEnvFile,
	}
}

// XDGDataDir returns the XDG data directory for xspider.
// On Linux: ~/.local/share/xspider
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for xspider.
// On Linux: ~/.config/xspider
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// Validate checks the crawl-independent parts of the configuration and
// returns the first problem found.
//
// Seeds and credentials are checked separately (ValidateCrawl) because rank
// and export run without either.
func (c *Config) Validate() error {
	if c.MaxDepth < 0 {
		return ErrInvalidMaxDepth
	}
	if c.Concurrency <= 0 {
		return ErrInvalidConcurrency
	}
	if c.MaxFanOutPerUser <= 0 {
		return ErrInvalidFanOut
	}
	if c.PageSize <= 0 || c.PageSize > 100 {
		return ErrInvalidPageSize
	}
	if c.RequestTimeout <= 0 {
		return ErrInvalidTimeout
	}
	if c.RequestInterval < 0 {
		return ErrInvalidRequestInterval
	}
	if c.MaxAttempts <= 0 {
		return ErrInvalidMaxAttempts
	}
	if c.BackoffBase <= 0 || c.BackoffMax < c.BackoffBase {
		return ErrInvalidBackoff
	}
	if c.EgressFailureThreshold <= 0 {
		return ErrInvalidFailureThreshold
	}
	if c.EgressLatencyAlpha <= 0 || c.EgressLatencyAlpha > 1 {
		return ErrInvalidLatencyAlpha
	}
	if c.DampingFactor <= 0 || c.DampingFactor >= 1 {
		return ErrInvalidDampingFactor
	}
	if c.MaxIterations <= 0 {
		return ErrInvalidMaxIterations
	}
	if c.Tolerance <= 0 {
		return ErrInvalidTolerance
	}
	if c.TopK <= 0 {
		return ErrInvalidTopK
	}
	if c.HiddenGemFollowerCeiling <= 0 ||
		c.RisingStarFollowerCeiling <= 0 ||
		c.EstablishedFollowerCeiling <= 0 ||
		c.HiddenGemMinSeedFollowers < 1 {
		return ErrInvalidThresholds
	}
	return nil
}

// ValidateCrawl additionally checks what a crawl needs: seeds, credentials
// and at least one egress route.
func (c *Config) ValidateCrawl() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if len(c.Seeds) == 0 {
		return ErrNoSeeds
	}
	if len(c.Credentials) == 0 {
		return ErrNoCredentials
	}
	for _, cred := range c.Credentials {
		if cred.BearerToken == "" || cred.CSRFToken == "" || cred.AuthToken == "" {
			return ErrIncompleteCredential
		}
	}
	if len(c.ProxyURLs) == 0 && !c.AllowDirectEgress && !c.UseEmbeddedTor {
		return ErrNoEgress
	}
	return nil
}

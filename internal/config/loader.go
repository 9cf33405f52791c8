package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the configuration file name searched for in the
// current and home directories.
const DefaultConfigFile = ".xspider.yaml"

// xdgConfigFile is the file name inside the XDG config directory.
const xdgConfigFile = "config.yaml"

// ErrConfigNotFound is returned when the configuration file does not exist.
var ErrConfigNotFound = errors.New("configuration file not found")

// File is the on-disk YAML configuration.
// Pointer fields distinguish "absent" from an explicit zero so that only
// keys present in the file override defaults.
type File struct {
	Seeds       []string       `yaml:"seeds,omitempty"`
	DBDir       string         `yaml:"db_dir,omitempty"`
	Credentials []Credential   `yaml:"credentials,omitempty"`
	Crawl       CrawlSection   `yaml:"crawl,omitempty"`
	Egress      EgressSection  `yaml:"egress,omitempty"`
	Ranking     RankingSection `yaml:"ranking,omitempty"`
}

// CrawlSection configures traversal and the upstream client.
type CrawlSection struct {
	MaxDepth            *int           `yaml:"max_depth,omitempty"`
	Concurrency         *int           `yaml:"concurrency,omitempty"`
	MaxFollowingPerUser *int           `yaml:"max_following_per_user,omitempty"`
	PageSize            *int           `yaml:"page_size,omitempty"`
	RequestTimeout      *time.Duration `yaml:"request_timeout,omitempty"`
	RequestInterval     *time.Duration `yaml:"request_interval,omitempty"`
	MaxAttempts         *int           `yaml:"max_attempts,omitempty"`
	BackoffBase         *time.Duration `yaml:"backoff_base,omitempty"`
	BackoffMax          *time.Duration `yaml:"backoff_max,omitempty"`
	AcquireTimeout      *time.Duration `yaml:"acquire_timeout,omitempty"`
}

// EgressSection configures the egress pool.
type EgressSection struct {
	Proxies          []string       `yaml:"proxies,omitempty"`
	AllowDirect      *bool          `yaml:"allow_direct,omitempty"`
	Tor              *bool          `yaml:"tor,omitempty"`
	FailureThreshold *int           `yaml:"failure_threshold,omitempty"`
	Cooldown         *time.Duration `yaml:"cooldown,omitempty"`
	LatencyAlpha     *float64       `yaml:"latency_alpha,omitempty"`
}

// RankingSection configures authority computation and categorization.
type RankingSection struct {
	DampingFactor              *float64 `yaml:"damping_factor,omitempty"`
	MaxIterations              *int     `yaml:"max_iterations,omitempty"`
	Tolerance                  *float64 `yaml:"tolerance,omitempty"`
	TopK                       *int     `yaml:"top_k,omitempty"`
	HiddenGemFollowerCeiling   *int64   `yaml:"hidden_gem_follower_ceiling,omitempty"`
	HiddenGemMinSeedFollowers  *int     `yaml:"hidden_gem_min_seed_followers,omitempty"`
	RisingStarFollowerCeiling  *int64   `yaml:"rising_star_follower_ceiling,omitempty"`
	EstablishedFollowerCeiling *int64   `yaml:"established_follower_ceiling,omitempty"`
}

// LoadConfigFile loads a YAML configuration file.
// If the file does not exist, it returns ErrConfigNotFound.
func LoadConfigFile(path string) (*File, error) {
	data, err := os.ReadFile(path) //nolint:gosec // User-provided config path is intentional
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, err
	}

	var cf File
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, err
	}
	return &cf, nil
}

// Apply overrides cfg with every value present in the file.
// Seeds, credentials and proxies are appended rather than replaced so that
// the file and the environment can both contribute.
func (f *File) Apply(cfg *Config) {
	cfg.Seeds = append(cfg.Seeds, f.Seeds...)
	cfg.Credentials = append(cfg.Credentials, f.Credentials...)
	cfg.ProxyURLs = append(cfg.ProxyURLs, f.Egress.Proxies...)
	if f.DBDir != "" {
		cfg.DBDir = f.DBDir
	}

	setInt(&cfg.MaxDepth, f.Crawl.MaxDepth)
	setInt(&cfg.Concurrency, f.Crawl.Concurrency)
	setInt(&cfg.MaxFanOutPerUser, f.Crawl.MaxFollowingPerUser)
	setInt(&cfg.PageSize, f.Crawl.PageSize)
	setDuration(&cfg.RequestTimeout, f.Crawl.RequestTimeout)
	setDuration(&cfg.RequestInterval, f.Crawl.RequestInterval)
	setInt(&cfg.MaxAttempts, f.Crawl.MaxAttempts)
	setDuration(&cfg.BackoffBase, f.Crawl.BackoffBase)
	setDuration(&cfg.BackoffMax, f.Crawl.BackoffMax)
	setDuration(&cfg.AcquireTimeout, f.Crawl.AcquireTimeout)

	if f.Egress.AllowDirect != nil {
		cfg.AllowDirectEgress = *f.Egress.AllowDirect
	}
	if f.Egress.Tor != nil {
		cfg.UseEmbeddedTor = *f.Egress.Tor
	}
	setInt(&cfg.EgressFailureThreshold, f.Egress.FailureThreshold)
	setDuration(&cfg.EgressCooldown, f.Egress.Cooldown)
	setFloat(&cfg.EgressLatencyAlpha, f.Egress.LatencyAlpha)

	setFloat(&cfg.DampingFactor, f.Ranking.DampingFactor)
	setInt(&cfg.MaxIterations, f.Ranking.MaxIterations)
	setFloat(&cfg.Tolerance, f.Ranking.Tolerance)
	setInt(&cfg.TopK, f.Ranking.TopK)
	setInt64(&cfg.HiddenGemFollowerCeiling, f.Ranking.HiddenGemFollowerCeiling)
	setInt(&cfg.HiddenGemMinSeedFollowers, f.Ranking.HiddenGemMinSeedFollowers)
	setInt64(&cfg.RisingStarFollowerCeiling, f.Ranking.RisingStarFollowerCeiling)
	setInt64(&cfg.EstablishedFollowerCeiling, f.Ranking.EstablishedFollowerCeiling)
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}

func setInt64(dst *int64, v *int64) {
	if v != nil {
		*dst = *v
	}
}

func setFloat(dst *float64, v *float64) {
	if v != nil {
		*dst = *v
	}
}

func setDuration(dst *time.Duration, v *time.Duration) {
	if v != nil {
		*dst = *v
	}
}

// FindConfigFile searches for the configuration file in the following order:
// 1. If configPath is specified, use it directly
// 2. .xspider.yaml in the current directory
// 3. .xspider.yaml in the user's home directory
// 4. config.yaml in the XDG config directory
//
// Returns the path if found, or an empty string.
func FindConfigFile(configPath string) string {
	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}
		return ""
	}

	candidates := make([]string, 0, 3)
	if cwd, err := os.Getwd(); err == nil {
		candidates = append(candidates, filepath.Join(cwd, DefaultConfigFile))
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, DefaultConfigFile))
	}
	candidates = append(candidates, filepath.Join(XDGConfigDir(), xdgConfigFile))

	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return ""
}

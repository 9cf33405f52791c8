package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestNewConfig verifies the documented defaults.
// Changing a default must be a deliberate act that also updates this test.
func TestNewConfig(t *testing.T) {
	t.Parallel()

	cfg := NewConfig()

	t.Run("crawl defaults", func(t *testing.T) {
		t.Parallel()
		if cfg.MaxDepth != 2 {
			t.Errorf("expected MaxDepth 2, got %d", cfg.MaxDepth)
		}
		if cfg.Concurrency != 5 {
			t.Errorf("expected Concurrency 5, got %d", cfg.Concurrency)
		}
		if cfg.MaxFanOutPerUser != 500 {
			t.Errorf("expected MaxFanOutPerUser 500, got %d", cfg.MaxFanOutPerUser)
		}
		if cfg.MaxAttempts != 5 || cfg.BackoffBase != time.Second || cfg.BackoffMax != time.Minute {
			t.Errorf("unexpected retry defaults: %d %v %v", cfg.MaxAttempts, cfg.BackoffBase, cfg.BackoffMax)
		}
	})

	t.Run("ranking defaults", func(t *testing.T) {
		t.Parallel()
		if cfg.DampingFactor != 0.85 {
			t.Errorf("expected damping 0.85, got %v", cfg.DampingFactor)
		}
		if cfg.MaxIterations != 100 {
			t.Errorf("expected 100 iterations, got %d", cfg.MaxIterations)
		}
		if cfg.Tolerance != 1e-6 {
			t.Errorf("expected tolerance 1e-6, got %v", cfg.Tolerance)
		}
		if cfg.HiddenGemFollowerCeiling != 5000 || cfg.HiddenGemMinSeedFollowers != 3 {
			t.Errorf("unexpected hidden gem defaults: %d %d", cfg.HiddenGemFollowerCeiling, cfg.HiddenGemMinSeedFollowers)
		}
		if cfg.EstablishedFollowerCeiling != 50000 {
			t.Errorf("expected established ceiling 50000, got %d", cfg.EstablishedFollowerCeiling)
		}
	})

	t.Run("egress defaults", func(t *testing.T) {
		t.Parallel()
		if !cfg.AllowDirectEgress {
			t.Error("direct egress should be allowed by default")
		}
		if cfg.UseEmbeddedTor {
			t.Error("embedded Tor should be off by default")
		}
		if cfg.EgressFailureThreshold != 3 {
			t.Errorf("expected failure threshold 3, got %d", cfg.EgressFailureThreshold)
		}
	})

	t.Run("defaults validate", func(t *testing.T) {
		t.Parallel()
		if err := cfg.Validate(); err != nil {
			t.Errorf("defaults should be valid, got %v", err)
		}
	})
}

// TestConfigValidate tests each validation rule in isolation.
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"negative depth", func(c *Config) { c.MaxDepth = -1 }, ErrInvalidMaxDepth},
		{"zero depth is valid", func(c *Config) { c.MaxDepth = 0 }, nil},
		{"zero concurrency", func(c *Config) { c.Concurrency = 0 }, ErrInvalidConcurrency},
		{"zero fan-out", func(c *Config) { c.MaxFanOutPerUser = 0 }, ErrInvalidFanOut},
		{"page size too large", func(c *Config) { c.PageSize = 101 }, ErrInvalidPageSize},
		{"zero timeout", func(c *Config) { c.RequestTimeout = 0 }, ErrInvalidTimeout},
		{"negative interval", func(c *Config) { c.RequestInterval = -time.Second }, ErrInvalidRequestInterval},
		{"zero attempts", func(c *Config) { c.MaxAttempts = 0 }, ErrInvalidMaxAttempts},
		{"backoff cap below base", func(c *Config) { c.BackoffMax = 500 * time.Millisecond }, ErrInvalidBackoff},
		{"zero failure threshold", func(c *Config) { c.EgressFailureThreshold = 0 }, ErrInvalidFailureThreshold},
		{"alpha above one", func(c *Config) { c.EgressLatencyAlpha = 1.5 }, ErrInvalidLatencyAlpha},
		{"damping of one", func(c *Config) { c.DampingFactor = 1 }, ErrInvalidDampingFactor},
		{"zero iterations", func(c *Config) { c.MaxIterations = 0 }, ErrInvalidMaxIterations},
		{"zero tolerance", func(c *Config) { c.Tolerance = 0 }, ErrInvalidTolerance},
		{"zero top k", func(c *Config) { c.TopK = 0 }, ErrInvalidTopK},
		{"zero min seed followers", func(c *Config) { c.HiddenGemMinSeedFollowers = 0 }, ErrInvalidThresholds},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestConfigValidateCrawl(t *testing.T) {
	t.Parallel()

	validConfig := func() *Config {
		cfg := NewConfig()
		cfg.Seeds = []string{"gopher"}
		cfg.Credentials = []Credential{{BearerToken: "b", CSRFToken: "c", AuthToken: "a"}}
		return cfg
	}

	t.Run("valid crawl config", func(t *testing.T) {
		t.Parallel()
		if err := validConfig().ValidateCrawl(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("no seeds", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.Seeds = nil
		if err := cfg.ValidateCrawl(); !errors.Is(err, ErrNoSeeds) {
			t.Errorf("expected ErrNoSeeds, got %v", err)
		}
	})

	t.Run("no credentials", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.Credentials = nil
		if err := cfg.ValidateCrawl(); !errors.Is(err, ErrNoCredentials) {
			t.Errorf("expected ErrNoCredentials, got %v", err)
		}
	})

	t.Run("credential missing ct0", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.Credentials[0].CSRFToken = ""
		if err := cfg.ValidateCrawl(); !errors.Is(err, ErrIncompleteCredential) {
			t.Errorf("expected ErrIncompleteCredential, got %v", err)
		}
	})

	t.Run("no egress", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.AllowDirectEgress = false
		if err := cfg.ValidateCrawl(); !errors.Is(err, ErrNoEgress) {
			t.Errorf("expected ErrNoEgress, got %v", err)
		}
	})

	t.Run("proxies satisfy egress", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.AllowDirectEgress = false
		cfg.ProxyURLs = []string{"http://127.0.0.1:3128"}
		if err := cfg.ValidateCrawl(); err != nil {
			t.Errorf("expected no error, got %v", err)
		}
	})

	t.Run("base validation runs first", func(t *testing.T) {
		t.Parallel()
		cfg := validConfig()
		cfg.Concurrency = 0
		if err := cfg.ValidateCrawl(); !errors.Is(err, ErrInvalidConcurrency) {
			t.Errorf("expected ErrInvalidConcurrency, got %v", err)
		}
	})
}

func TestLoadConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("missing file returns ErrConfigNotFound", func(t *testing.T) {
		t.Parallel()
		_, err := LoadConfigFile(filepath.Join(t.TempDir(), "nope.yaml"))
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("expected ErrConfigNotFound, got %v", err)
		}
	})

	t.Run("invalid yaml returns error", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("crawl: [unclosed"), 0600); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadConfigFile(path); err == nil {
			t.Error("expected parse error")
		}
	})

	t.Run("file values override defaults", func(t *testing.T) {
		t.Parallel()
		content := `
seeds: ["gopher", "12345"]
db_dir: /tmp/xspider-test
credentials:
  - bearer_token: b1
    ct0: c1
    auth_token: a1
crawl:
  max_depth: 3
  concurrency: 8
  request_interval: 250ms
  backoff_max: 30s
egress:
  proxies: ["socks5://127.0.0.1:9050"]
  allow_direct: false
ranking:
  damping_factor: 0.9
  hidden_gem_follower_ceiling: 8000
`
		path := filepath.Join(t.TempDir(), DefaultConfigFile)
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}

		file, err := LoadConfigFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		cfg := NewConfig()
		file.Apply(cfg)

		if len(cfg.Seeds) != 2 || cfg.Seeds[1] != "12345" {
			t.Errorf("unexpected seeds: %v", cfg.Seeds)
		}
		if cfg.DBDir != "/tmp/xspider-test" {
			t.Errorf("unexpected db dir: %s", cfg.DBDir)
		}
		if len(cfg.Credentials) != 1 || cfg.Credentials[0].CSRFToken != "c1" {
			t.Errorf("unexpected credentials: %d", len(cfg.Credentials))
		}
		if cfg.MaxDepth != 3 || cfg.Concurrency != 8 {
			t.Errorf("crawl section not applied: depth=%d concurrency=%d", cfg.MaxDepth, cfg.Concurrency)
		}
		if cfg.RequestInterval != 250*time.Millisecond || cfg.BackoffMax != 30*time.Second {
			t.Errorf("durations not applied: %v %v", cfg.RequestInterval, cfg.BackoffMax)
		}
		if cfg.AllowDirectEgress {
			t.Error("allow_direct: false should disable direct egress")
		}
		if len(cfg.ProxyURLs) != 1 {
			t.Errorf("expected one proxy, got %v", cfg.ProxyURLs)
		}
		if cfg.DampingFactor != 0.9 || cfg.HiddenGemFollowerCeiling != 8000 {
			t.Errorf("ranking section not applied: %v %d", cfg.DampingFactor, cfg.HiddenGemFollowerCeiling)
		}
		// Untouched keys keep their defaults.
		if cfg.MaxIterations != DefaultMaxIterations {
			t.Errorf("expected default iterations, got %d", cfg.MaxIterations)
		}
	})
}

func TestFindConfigFile(t *testing.T) {
	t.Parallel()

	t.Run("explicit existing path", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "custom.yaml")
		if err := os.WriteFile(path, []byte("{}"), 0600); err != nil {
			t.Fatal(err)
		}
		if got := FindConfigFile(path); got != path {
			t.Errorf("expected %s, got %s", path, got)
		}
	})

	t.Run("explicit missing path", func(t *testing.T) {
		t.Parallel()
		if got := FindConfigFile(filepath.Join(t.TempDir(), "missing.yaml")); got != "" {
			t.Errorf("expected empty path, got %s", got)
		}
	})
}

// Environment tests mutate process state and therefore do not run in parallel.

func TestCredentialsFromEnv(t *testing.T) {
	t.Setenv(EnvCredentials, `[{"bearer_token":"b1","ct0":"c1","auth_token":"a1"},{"bearer_token":"b2","ct0":"c2","auth_token":"a2"}]`)

	creds, err := CredentialsFromEnv()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(creds) != 2 {
		t.Fatalf("expected 2 credentials, got %d", len(creds))
	}
	if creds[1].AuthToken != "a2" || creds[0].BearerToken != "b1" {
		t.Errorf("unexpected credentials parsed")
	}
}

func TestCredentialsFromEnv_Invalid(t *testing.T) {
	t.Setenv(EnvCredentials, `{"bearer_token":"secret-value"`)

	_, err := CredentialsFromEnv()
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
	if strings.Contains(err.Error(), "secret-value") {
		t.Errorf("error must not echo the raw variable: %v", err)
	}
}

func TestProxyURLsFromEnv(t *testing.T) {
	t.Run("json array", func(t *testing.T) {
		t.Setenv(EnvProxyURLs, `["http://a:1","socks5://b:2"]`)
		urls, err := ProxyURLsFromEnv()
		if err != nil {
			t.Fatal(err)
		}
		if len(urls) != 2 || urls[1] != "socks5://b:2" {
			t.Errorf("unexpected urls: %v", urls)
		}
	})

	t.Run("comma list", func(t *testing.T) {
		t.Setenv(EnvProxyURLs, "http://a:1, http://b:2 ,")
		urls, err := ProxyURLsFromEnv()
		if err != nil {
			t.Fatal(err)
		}
		if len(urls) != 2 || urls[1] != "http://b:2" {
			t.Errorf("unexpected urls: %v", urls)
		}
	})

	t.Run("unset", func(t *testing.T) {
		t.Setenv(EnvProxyURLs, "")
		urls, err := ProxyURLsFromEnv()
		if err != nil || urls != nil {
			t.Errorf("expected nil, nil; got %v, %v", urls, err)
		}
	})
}

func TestLoadDotEnv(t *testing.T) {
	t.Run("missing file is not an error", func(t *testing.T) {
		if err := LoadDotEnv(filepath.Join(t.TempDir(), ".env")); err != nil {
			t.Errorf("expected nil, got %v", err)
		}
	})

	t.Run("loads variables", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		content := EnvProxyURLs + "=http://from-dotenv:3128\n"
		if err := os.WriteFile(path, []byte(content), 0600); err != nil {
			t.Fatal(err)
		}
		// Register cleanup for the variable godotenv is about to set.
		t.Setenv(EnvProxyURLs, "")
		if err := os.Unsetenv(EnvProxyURLs); err != nil {
			t.Fatal(err)
		}

		if err := LoadDotEnv(path); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		cfg := NewConfig()
		if err := ApplyEnv(cfg); err != nil {
			t.Fatal(err)
		}
		if len(cfg.ProxyURLs) != 1 || cfg.ProxyURLs[0] != "http://from-dotenv:3128" {
			t.Errorf("unexpected proxies: %v", cfg.ProxyURLs)
		}
	})
}

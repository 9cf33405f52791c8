package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/xspider/internal/config"
	"github.com/nao1215/xspider/internal/credential"
	"github.com/nao1215/xspider/internal/egress"
	"github.com/nao1215/xspider/internal/graphstore"
	xlog "github.com/nao1215/xspider/internal/log"
	"github.com/nao1215/xspider/internal/ranking"
	"github.com/nao1215/xspider/internal/upstream"
)

// lookupFlag finds a flag on the command or, failing that, on the root's
// persistent flags. Commands built in tests are often not attached to a
// root, so every global flag is optional.
func lookupFlag(cmd *cobra.Command, name string) (string, bool, bool) {
	if f := cmd.Flags().Lookup(name); f != nil {
		return f.Value.String(), f.Changed, true
	}
	if f := cmd.Root().PersistentFlags().Lookup(name); f != nil {
		return f.Value.String(), f.Changed, true
	}
	return "", false, false
}

// getBoolFlag retrieves a global boolean flag such as --verbose.
func getBoolFlag(cmd *cobra.Command, name string) bool {
	v, _, ok := lookupFlag(cmd, name)
	return ok && v == "true"
}

// loadConfig builds a Config from defaults, the YAML file, the dotenv file
// and the environment, then applies the global flags.
// Command-specific flags are applied by each command afterwards.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.NewConfig()

	cfg.ConfigFilePath, _, _ = lookupFlag(cmd, "config")

	// An explicit config path that does not exist is an error; a missing
	// default file is not.
	configPath := config.FindConfigFile(cfg.ConfigFilePath)
	switch {
	case configPath != "":
		file, err := config.LoadConfigFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
		file.Apply(cfg)
	case cfg.ConfigFilePath != "":
		return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, cfg.ConfigFilePath)
	}

	if envFile, changed, ok := lookupFlag(cmd, "env-file"); ok && (changed || envFile != "") {
		cfg.EnvFilePath = envFile
	}
	if err := config.LoadDotEnv(cfg.EnvFilePath); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", cfg.EnvFilePath, err)
	}
	if err := config.ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if dbDir, _, _ := lookupFlag(cmd, "db-dir"); dbDir != "" {
		cfg.DBDir = dbDir
	}
	cfg.Verbose = getBoolFlag(cmd, "verbose")
	cfg.JSONLog = getBoolFlag(cmd, "log-json")

	return cfg, nil
}

// setupLogger creates the sanitizing logger selected by the global flags
// and installs it as the slog default.
func setupLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	var logger *slog.Logger
	if cfg.JSONLog {
		logger = xlog.NewSecureJSONLogger(w, cfg.Verbose)
	} else {
		logger = xlog.NewSecureLogger(w, cfg.Verbose)
	}
	slog.SetDefault(logger)
	return logger
}

// openStore opens the SQLite store in cfg.DBDir. Read-only commands pass
// create=false so that a typo in --db-dir is reported instead of silently
// creating an empty database.
func openStore(cfg *config.Config, create bool) (*graphstore.SQLiteStore, error) {
	opts := graphstore.DefaultOptions()
	opts.CreateIfNotExists = create

	store, err := graphstore.Open(cfg.DBDir, opts)
	if err != nil {
		if errors.Is(err, graphstore.ErrDatabaseNotFound) {
			return nil, fmt.Errorf("%w in %s (run `xspider crawl` first)", err, cfg.DBDir)
		}
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return store, nil
}

// newRankingEngine builds a ranking engine from the ranking section of cfg.
func newRankingEngine(cfg *config.Config, logger *slog.Logger) *ranking.Engine {
	return ranking.NewEngine(
		ranking.WithAuthorityOptions(ranking.AuthorityOptions{
			Damping:       cfg.DampingFactor,
			MaxIterations: cfg.MaxIterations,
			Tolerance:     cfg.Tolerance,
		}),
		ranking.WithThresholds(ranking.Thresholds{
			HiddenGemFollowerCeiling:   cfg.HiddenGemFollowerCeiling,
			HiddenGemMinSeedFollowers:  cfg.HiddenGemMinSeedFollowers,
			RisingStarFollowerCeiling:  cfg.RisingStarFollowerCeiling,
			EstablishedFollowerCeiling: cfg.EstablishedFollowerCeiling,
		}),
		ranking.WithLogger(logger),
	)
}

// upstreamSession bundles the client with what must be released after use.
type upstreamSession struct {
	client *upstream.Client
	creds  *credential.Pool
	routes *egress.Pool
	tor    *egress.EmbeddedTor
	logger *slog.Logger
}

// newUpstreamSession builds the credential pool, the egress pool and the
// upstream client. When cfg.UseEmbeddedTor is set an embedded Tor daemon is
// started first and added as a route.
func newUpstreamSession(ctx context.Context, cfg *config.Config, logger *slog.Logger, stderr io.Writer) (*upstreamSession, error) {
	tokens := make([]credential.Token, 0, len(cfg.Credentials))
	for _, c := range cfg.Credentials {
		tokens = append(tokens, credential.Token{
			BearerToken: c.BearerToken,
			CSRFToken:   c.CSRFToken,
			AuthToken:   c.AuthToken,
		})
	}
	creds, err := credential.NewPool(tokens,
		credential.WithLogger(logger),
		credential.WithMaxConsecutiveErrors(cfg.CredentialMaxErrors),
		credential.WithErrorCooldown(cfg.CredentialErrorCooldown),
		credential.WithDefaultReset(cfg.DefaultRateLimitReset),
	)
	if err != nil {
		return nil, err
	}

	s := &upstreamSession{creds: creds, logger: logger}

	proxyURLs := cfg.ProxyURLs
	if cfg.UseEmbeddedTor {
		fmt.Fprintln(stderr, "Starting embedded Tor daemon...")
		fmt.Fprintf(stderr, "This may take 1-3 minutes while Tor bootstraps and connects to the network.\n\n")

		s.tor = egress.NewEmbeddedTor(egress.WithStartupTimeout(cfg.TorStartupTimeout))
		if err := s.tor.Start(ctx); err != nil {
			return nil, fmt.Errorf("failed to start embedded Tor: %w", err)
		}
		route, err := s.tor.Route()
		if err != nil {
			s.Close()
			return nil, err
		}
		logger.Info("embedded Tor daemon started", "route", route.ID)
		proxyURLs = append(slices.Clone(proxyURLs), route.URL.String())
	}

	s.routes, err = egress.NewPool(proxyURLs,
		egress.WithDirect(cfg.AllowDirectEgress),
		egress.WithFailureThreshold(cfg.EgressFailureThreshold),
		egress.WithCooldown(cfg.EgressCooldown),
		egress.WithLatencyAlpha(cfg.EgressLatencyAlpha),
		egress.WithLogger(logger),
	)
	if err != nil {
		s.Close()
		return nil, err
	}

	s.client = upstream.NewClient(creds, s.routes,
		upstream.WithPageSize(cfg.PageSize),
		upstream.WithRequestTimeout(cfg.RequestTimeout),
		upstream.WithRequestInterval(cfg.RequestInterval),
		upstream.WithMaxAttempts(cfg.MaxAttempts),
		upstream.WithAcquireTimeout(cfg.AcquireTimeout),
		upstream.WithBackoff(upstream.Backoff{
			Base:   cfg.BackoffBase,
			Max:    cfg.BackoffMax,
			Factor: 2,
		}),
		upstream.WithLogger(logger),
	)
	return s, nil
}

// probeEgress checks every proxy route once and prints the failures.
// Failing routes are marked unhealthy in the pool so the first requests
// avoid them.
func (s *upstreamSession) probeEgress(ctx context.Context, w io.Writer) {
	probeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	failed := s.routes.ProbeAll(probeCtx)
	if len(failed) == 0 {
		fmt.Fprintf(w, "All %d egress routes reachable\n", len(s.routes.Routes()))
		return
	}
	for id, err := range failed {
		fmt.Fprintf(w, "Egress route %s failed probe: %v\n", id, err)
	}
}

// Close releases idle connections and stops embedded Tor.
func (s *upstreamSession) Close() {
	if s.client != nil {
		s.client.CloseIdleConnections()
	}
	if s.tor != nil {
		s.logger.Info("stopping embedded Tor daemon...")
		if err := s.tor.Stop(); err != nil {
			s.logger.Error("failed to stop embedded Tor", "error", err)
		}
	}
}

package upstream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/nao1215/xspider/internal/credential"
	"github.com/nao1215/xspider/internal/egress"
	"github.com/nao1215/xspider/internal/model"
)

const (
	defaultPageSize       = 20
	maxPageSize           = 100
	defaultRequestTimeout = 30 * time.Second
	defaultMaxAttempts    = 5
	defaultAcquireTimeout = 15 * time.Minute

	// maxBodyBytes bounds a response body. Following pages are well under
	// one megabyte.
	maxBodyBytes = 8 << 20
)

// Client calls the upstream API through the credential and egress pools.
// It is safe for concurrent use.
type Client struct {
	creds  *credential.Pool
	routes *egress.Pool

	baseURL        string
	pageSize       int
	timeout        time.Duration
	maxAttempts    int
	acquireTimeout time.Duration
	backoff        Backoff
	jitter         func(n int64) int64
	limiter        *rate.Limiter
	logger         *slog.Logger

	mu         sync.Mutex
	transports map[string]http.RoundTripper
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the GraphQL root. Used to point tests at httptest.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.baseURL = u
		}
	}
}

// WithPageSize sets the page size requested from upstream (1..100).
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 && n <= maxPageSize {
			c.pageSize = n
		}
	}
}

// WithRequestTimeout bounds each individual attempt.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxAttempts sets how many requests one fetch may send.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithAcquireTimeout bounds the wait for a credential. Zero or less waits
// until the context is done.
func WithAcquireTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.acquireTimeout = d
	}
}

// WithBackoff sets the retry delays.
func WithBackoff(b Backoff) Option {
	return func(c *Client) {
		if b.Base > 0 && b.Max >= b.Base && b.Factor >= 1 {
			c.backoff = b
		}
	}
}

// WithJitter overrides the random source for backoff jitter.
func WithJitter(rnd func(n int64) int64) Option {
	return func(c *Client) {
		c.jitter = rnd
	}
}

// WithRequestInterval spaces requests at least d apart across all
// goroutines. Zero disables pacing.
func WithRequestInterval(d time.Duration) Option {
	return func(c *Client) {
		if d <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		c.limiter = rate.NewLimiter(rate.Every(d), 1)
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient creates a client drawing credentials from creds and routes from
// routes.
func NewClient(creds *credential.Pool, routes *egress.Pool, opts ...Option) *Client {
	c := &Client{
		creds:          creds,
		routes:         routes,
		baseURL:        DefaultBaseURL,
		pageSize:       defaultPageSize,
		timeout:        defaultRequestTimeout,
		maxAttempts:    defaultMaxAttempts,
		acquireTimeout: defaultAcquireTimeout,
		backoff:        DefaultBackoff(),
		limiter:        rate.NewLimiter(rate.Every(time.Second), 1),
		logger:         slog.Default(),
		transports:     make(map[string]http.RoundTripper),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// RequestTimeout returns the per-attempt timeout.
func (c *Client) RequestTimeout() time.Duration {
	return c.timeout
}

// FetchFollowingPage fetches one page of the accounts nodeID follows.
// An empty cursor requests the first page.
func (c *Client) FetchFollowingPage(ctx context.Context, nodeID, cursor string) (*Page, error) {
	params, err := followingParams(nodeID, c.pageSize, cursor)
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, Following, params, nodeID)
	if err != nil {
		return nil, err
	}
	page, err := ExtractFollowingPage(body)
	if err != nil {
		return nil, &FetchError{Op: Following.Operation, Subject: nodeID, Attempts: 1, Err: err}
	}
	return page, nil
}

// LookupUser resolves a handle (without "@") to a node.
func (c *Client) LookupUser(ctx context.Context, handle string) (model.Node, error) {
	params, err := userByScreenNameParams(handle)
	if err != nil {
		return model.Node{}, err
	}
	body, err := c.do(ctx, UserByScreenName, params, handle)
	if err != nil {
		return model.Node{}, err
	}
	node, err := ExtractUser(body)
	if err != nil {
		return model.Node{}, &FetchError{Op: UserByScreenName.Operation, Subject: handle, Attempts: 1, Err: err}
	}
	return node, nil
}

// do runs the retry protocol for one logical request and returns the body
// of the first successful response.
//
//   - rate limited: report to the credential pool, back off, retry with the
//     next credential
//   - auth failed: ban the credential and retry once immediately with
//     another; a second auth failure ends the fetch, as ErrAuthExhausted
//     when no usable credential is left
//   - network error, timeout or 5xx: report transient, back off, retry
//   - unavailable account or other 4xx: stop without retrying
func (c *Client) do(ctx context.Context, ep Endpoint, params url.Values, subject string) ([]byte, error) {
	reqURL := ep.URL(c.baseURL) + "?" + params.Encode()

	var (
		lastErr     error
		lastStatus  int
		authRetried bool
		attempt     int
	)
	fail := func(err error) error {
		return &FetchError{Op: ep.Operation, Subject: subject, Attempts: attempt, Status: lastStatus, Err: err}
	}

	for attempt = 1; attempt <= c.maxAttempts; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		cred, err := c.creds.AcquireBlocking(ctx, c.acquireTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fail(err)
		}
		sel := c.routes.Acquire()

		start := time.Now()
		status, header, body, err := c.send(ctx, sel.Route, cred, reqURL)
		latency := time.Since(start)
		requestDuration.WithLabelValues(ep.Operation).Observe(latency.Seconds())

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			c.creds.Report(cred, credential.Transient())
			c.routes.Report(sel.Route, egress.Failure, 0)
			requestsTotal.WithLabelValues(ep.Operation, "network_error").Inc()
			lastErr = fmt.Errorf("%w: %w", ErrNetworkError, err)
			c.logger.Debug("upstream request failed",
				"op", ep.Operation,
				"subject", subject,
				"attempt", attempt,
				"cred", cred.ID(),
				"route", sel.Route.ID,
				"error", err)
			if err := c.backoffBeforeRetry(ctx, attempt, "network_error"); err != nil {
				return nil, err
			}
			continue
		}

		c.routes.Report(sel.Route, egress.Success, latency)
		lastStatus = status
		out := Classify(status, header, body, time.Now())
		c.creds.Report(cred, out.Credential())
		requestsTotal.WithLabelValues(ep.Operation, out.Kind.String()).Inc()

		c.logger.Debug("upstream response",
			"op", ep.Operation,
			"subject", subject,
			"attempt", attempt,
			"status", status,
			"outcome", out.Kind.String(),
			"cred", cred.ID(),
			"route", sel.Route.ID)

		switch out.Kind {
		case OutcomeSuccess:
			return body, nil

		case OutcomeRateLimited:
			lastErr = ErrRateLimited
			if err := c.backoffBeforeRetry(ctx, attempt, "rate_limited"); err != nil {
				return nil, err
			}

		case OutcomeAuthFailed:
			if authRetried {
				if c.creds.AllBanned() {
					return nil, fail(ErrAuthExhausted)
				}
				return nil, fail(ErrAuthFailed)
			}
			authRetried = true
			retriesTotal.WithLabelValues("auth_failed").Inc()

		case OutcomeTransient:
			lastErr = fmt.Errorf("%w: server returned %d", ErrNetworkError, status)
			if err := c.backoffBeforeRetry(ctx, attempt, "server_error"); err != nil {
				return nil, err
			}

		case OutcomeUnavailable:
			return nil, fail(fmt.Errorf("%w: error code %d", ErrNodeUnavailable, out.Code))

		default:
			return nil, fail(fmt.Errorf("%w: %d", ErrUnexpectedStatus, status))
		}
	}

	attempt = c.maxAttempts
	if lastErr == nil {
		lastErr = ErrAuthFailed
	}
	return nil, fail(lastErr)
}

// backoffBeforeRetry sleeps before the next attempt unless this was the
// last one.
func (c *Client) backoffBeforeRetry(ctx context.Context, attempt int, reason string) error {
	if attempt >= c.maxAttempts {
		return nil
	}
	retriesTotal.WithLabelValues(reason).Inc()
	return sleepContext(ctx, c.backoff.Jittered(attempt, c.jitter))
}

// send performs one HTTP round trip over route with cred.
func (c *Client) send(ctx context.Context, route egress.Route, cred *credential.Credential, reqURL string) (int, http.Header, []byte, error) {
	rt, err := c.transport(route)
	if err != nil {
		return 0, nil, nil, err
	}

	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, nil, nil, err
	}

	client := &http.Client{Transport: newAuthTransport(rt, cred.Token())}
	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return 0, nil, nil, err
	}
	return resp.StatusCode, resp.Header, body, nil
}

// transport returns the cached transport for route.
func (c *Client) transport(route egress.Route) (http.RoundTripper, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if rt, ok := c.transports[route.ID]; ok {
		return rt, nil
	}
	rt, err := route.Transport(c.timeout)
	if err != nil {
		return nil, err
	}
	c.transports[route.ID] = rt
	return rt, nil
}

// CloseIdleConnections releases pooled connections on every route.
func (c *Client) CloseIdleConnections() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, rt := range c.transports {
		if t, ok := rt.(*http.Transport); ok {
			t.CloseIdleConnections()
		}
	}
}

// IsFatal reports whether err must stop a whole crawl rather than fail a
// single node.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuthExhausted)
}

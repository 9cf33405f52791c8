package egress

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultFailureThreshold = 3
	defaultCooldown         = 5 * time.Minute
	defaultLatencyAlpha     = 0.3
)

// Outcome is the result of a request sent over a route.
type Outcome int

const (
	// Success means the route carried the request. Upstream status codes
	// such as 429 still count as success for the route.
	Success Outcome = iota

	// Failure means a connection, proxy, or timeout error.
	Failure
)

// Selection is the route chosen by Acquire.
type Selection struct {
	Route Route

	// Degraded is true when no healthy route was available and an
	// unhealthy route was handed out instead.
	Degraded bool
}

type routeState struct {
	route Route

	latency    time.Duration
	hasLatency bool

	failures  int
	unhealthy bool
	markedAt  time.Time

	uses int64
}

// eligible reports whether the route may be chosen normally. Unhealthy
// routes become eligible again once the cool-down has passed so that a
// success can clear them.
func (s *routeState) eligible(now time.Time, cooldown time.Duration) bool {
	return !s.unhealthy || now.Sub(s.markedAt) >= cooldown
}

// Pool chooses egress routes by latency and health.
// It is safe for concurrent use.
type Pool struct {
	mu     sync.Mutex
	routes []*routeState
	byID   map[string]*routeState
	next   int

	threshold int
	cooldown  time.Duration
	alpha     float64
	direct    bool
	clock     func() time.Time
	logger    *slog.Logger
}

// Option configures a Pool.
type Option func(*Pool)

// WithDirect adds the direct route alongside any proxies.
func WithDirect(allow bool) Option {
	return func(p *Pool) {
		p.direct = allow
	}
}

// WithFailureThreshold sets the consecutive failures that mark a route
// unhealthy.
func WithFailureThreshold(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.threshold = n
		}
	}
}

// WithCooldown sets how long an unhealthy route is skipped.
func WithCooldown(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.cooldown = d
		}
	}
}

// WithLatencyAlpha sets the EWMA smoothing factor in (0, 1].
func WithLatencyAlpha(alpha float64) Option {
	return func(p *Pool) {
		if alpha > 0 && alpha <= 1 {
			p.alpha = alpha
		}
	}
}

// WithClock overrides the time source. Intended for tests.
func WithClock(clock func() time.Time) Option {
	return func(p *Pool) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithLogger sets the logger for health transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// NewPool builds a pool from proxy URLs. With no proxies and no direct
// route the pool falls back to a single direct route.
func NewPool(proxyURLs []string, opts ...Option) (*Pool, error) {
	p := &Pool{
		byID:      make(map[string]*routeState),
		threshold: defaultFailureThreshold,
		cooldown:  defaultCooldown,
		alpha:     defaultLatencyAlpha,
		clock:     time.Now,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}

	for _, raw := range proxyURLs {
		r, err := ParseRoute(raw)
		if err != nil {
			return nil, err
		}
		p.add(r)
	}
	if p.direct || len(p.routes) == 0 {
		p.add(DirectRoute())
	}
	return p, nil
}

// Add registers an extra route, such as one backed by embedded Tor.
func (p *Pool) Add(r Route) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.add(r)
}

func (p *Pool) add(r Route) {
	if _, ok := p.byID[r.ID]; ok {
		return
	}
	s := &routeState{route: r}
	p.routes = append(p.routes, s)
	p.byID[r.ID] = s
}

// Routes returns all registered routes in insertion order.
func (p *Pool) Routes() []Route {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Route, len(p.routes))
	for i, s := range p.routes {
		out[i] = s.route
	}
	return out
}

// Acquire picks a route.
//
// Eligible routes without latency samples are tried first, round-robin, so
// every route gets measured. After that the eligible route with the lowest
// EWMA latency wins. When nothing is eligible the route that was marked
// unhealthy the longest ago is returned with Degraded set.
func (p *Pool) Acquire() Selection {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	n := len(p.routes)

	for i := range n {
		idx := (p.next + i) % n
		s := p.routes[idx]
		if s.eligible(now, p.cooldown) && !s.hasLatency {
			p.next = (idx + 1) % n
			s.uses++
			return Selection{Route: s.route}
		}
	}

	var best *routeState
	for _, s := range p.routes {
		if !s.eligible(now, p.cooldown) {
			continue
		}
		if best == nil || s.latency < best.latency {
			best = s
		}
	}
	if best != nil {
		best.uses++
		return Selection{Route: best.route}
	}

	var oldest *routeState
	for _, s := range p.routes {
		if oldest == nil || s.markedAt.Before(oldest.markedAt) {
			oldest = s
		}
	}
	oldest.uses++
	p.logger.Warn("using degraded egress route",
		"route", oldest.route.ID,
		"error", ErrEgressUnhealthy)
	return Selection{Route: oldest.route, Degraded: true}
}

// Report records the outcome of a request sent over route. Latency is
// folded into the EWMA on success; a zero latency is ignored.
func (p *Pool) Report(route Route, outcome Outcome, latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.byID[route.ID]
	if !ok {
		return
	}
	now := p.clock()

	switch outcome {
	case Success:
		s.failures = 0
		if latency > 0 {
			if s.hasLatency {
				s.latency = time.Duration(p.alpha*float64(latency) + (1-p.alpha)*float64(s.latency))
			} else {
				s.latency = latency
				s.hasLatency = true
			}
		}
		if s.unhealthy && now.Sub(s.markedAt) >= p.cooldown {
			s.unhealthy = false
			p.logger.Info("egress route recovered", "route", s.route.ID)
		}

	case Failure:
		s.failures++
		switch {
		case s.unhealthy && now.Sub(s.markedAt) >= p.cooldown:
			// Trial after cool-down failed; start a new cool-down.
			s.markedAt = now
		case !s.unhealthy && s.failures >= p.threshold:
			s.unhealthy = true
			s.markedAt = now
			p.logger.Warn("egress route marked unhealthy",
				"route", s.route.ID,
				"failures", s.failures,
				"cooldown", p.cooldown)
		}
	}
}

// RouteStats describes one route's current state.
type RouteStats struct {
	ID       string
	Kind     Kind
	Healthy  bool
	Latency  time.Duration
	Failures int
	Uses     int64
}

// String formats the stats for CLI output.
func (s RouteStats) String() string {
	health := "healthy"
	if !s.Healthy {
		health = "unhealthy"
	}
	return fmt.Sprintf("%s (%s) %s latency=%s failures=%d uses=%d",
		s.ID, s.Kind, health, s.Latency.Round(time.Millisecond), s.Failures, s.Uses)
}

// Stats returns a snapshot of every route.
func (p *Pool) Stats() []RouteStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]RouteStats, len(p.routes))
	for i, s := range p.routes {
		out[i] = RouteStats{
			ID:       s.route.ID,
			Kind:     s.route.Kind,
			Healthy:  !s.unhealthy,
			Latency:  s.latency,
			Failures: s.failures,
			Uses:     s.uses,
		}
	}
	return out
}

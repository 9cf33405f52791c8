package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const (
	defaultMaxConsecutiveErrors = 5
	defaultErrorCooldown        = time.Minute
	defaultResetWindow          = 15 * time.Minute
)

// Pool hands out credentials round-robin and tracks their quota.
// It is safe for concurrent use.
type Pool struct {
	mu    sync.Mutex
	creds []*Credential
	next  int

	// wake is closed and replaced whenever a report may have made a
	// credential available again, releasing AcquireBlocking waiters.
	wake chan struct{}

	clock         func() time.Time
	logger        *slog.Logger
	maxErrors     int
	errorCooldown time.Duration
	defaultReset  time.Duration
}

// Option configures a Pool.
type Option func(*Pool)

// WithClock overrides the time source. Intended for tests.
func WithClock(clock func() time.Time) Option {
	return func(p *Pool) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithLogger sets the logger used for pool state changes.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pool) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithMaxConsecutiveErrors sets how many transient errors in a row park a
// credential for the error cool-down.
func WithMaxConsecutiveErrors(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.maxErrors = n
		}
	}
}

// WithErrorCooldown sets how long a credential is parked after too many
// transient errors.
func WithErrorCooldown(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.errorCooldown = d
		}
	}
}

// WithDefaultReset sets the window assumed when a rate-limited response
// carries no reset time.
func WithDefaultReset(d time.Duration) Option {
	return func(p *Pool) {
		if d > 0 {
			p.defaultReset = d
		}
	}
}

// NewPool creates a pool from the given tokens. Incomplete tokens are
// skipped and duplicates collapse into one credential.
func NewPool(tokens []Token, opts ...Option) (*Pool, error) {
	p := &Pool{
		wake:          make(chan struct{}),
		clock:         time.Now,
		logger:        slog.Default(),
		maxErrors:     defaultMaxConsecutiveErrors,
		errorCooldown: defaultErrorCooldown,
		defaultReset:  defaultResetWindow,
	}
	for _, opt := range opts {
		opt(p)
	}

	seen := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		if !t.Complete() {
			continue
		}
		c := newCredential(t)
		if seen[c.id] {
			continue
		}
		seen[c.id] = true
		p.creds = append(p.creds, c)
	}
	if len(p.creds) == 0 {
		return nil, ErrNoCredentials
	}
	return p, nil
}

// Len returns the number of distinct credentials in the pool.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.creds)
}

// AllBanned reports whether every credential has been permanently
// invalidated.
func (p *Pool) AllBanned() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.creds {
		if !c.banned {
			return false
		}
	}
	return true
}

// Acquire returns the next available credential, starting from the one
// after the credential most recently handed out.
//
// When every non-banned credential is exhausted it returns an
// *ExhaustedError carrying the earliest reset time. When every credential
// is banned it returns ErrAuthExhausted.
func (p *Pool) Acquire() (*Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.acquireLocked()
}

func (p *Pool) acquireLocked() (*Credential, error) {
	now := p.clock()
	n := len(p.creds)

	for i := range n {
		idx := (p.next + i) % n
		c := p.creds[idx]
		if !c.available(now) {
			continue
		}
		c.refresh(now)
		c.requests++
		p.next = (idx + 1) % n
		return c, nil
	}

	var earliest time.Time
	for _, c := range p.creds {
		if c.banned {
			continue
		}
		if earliest.IsZero() || c.resetAt.Before(earliest) {
			earliest = c.resetAt
		}
	}
	if earliest.IsZero() {
		return nil, ErrAuthExhausted
	}
	return nil, &ExhaustedError{ResetAt: earliest}
}

// AcquireBlocking is Acquire that waits for the earliest reset instead of
// failing with ErrCredentialsExhausted. A timeout of zero or less waits
// until ctx is done. ErrAuthExhausted is returned immediately.
func (p *Pool) AcquireBlocking(ctx context.Context, timeout time.Duration) (*Credential, error) {
	waitCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	for {
		p.mu.Lock()
		c, err := p.acquireLocked()
		wake := p.wake
		now := p.clock()
		p.mu.Unlock()

		if err == nil {
			return c, nil
		}
		var exhausted *ExhaustedError
		if !errors.As(err, &exhausted) {
			return nil, err
		}

		delay := exhausted.ResetAt.Sub(now)
		if delay < time.Millisecond {
			delay = time.Millisecond
		}
		p.logger.Debug("waiting for credential reset",
			"reset_at", exhausted.ResetAt,
			"delay", delay)

		timer := time.NewTimer(delay)
		select {
		case <-waitCtx.Done():
			timer.Stop()
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w after %s (next reset %s)",
				ErrAcquireTimeout, timeout, exhausted.ResetAt.Format(time.RFC3339))
		case <-wake:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Report records the outcome of a request made with c.
func (p *Pool) Report(c *Credential, outcome Outcome) {
	if c == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	switch outcome.Kind {
	case OutcomeSuccess:
		c.consecutiveErrors = 0
		switch {
		case outcome.Quota.Known:
			c.remaining = max(outcome.Quota.Remaining, 0)
			c.resetAt = outcome.Quota.ResetAt
		case c.remaining > 0:
			c.remaining--
		}
		p.wakeLocked()

	case OutcomeRateLimited:
		c.remaining = 0
		c.resetAt = outcome.ResetAt
		if c.resetAt.IsZero() {
			c.resetAt = now.Add(p.defaultReset)
		}
		p.logger.Info("credential rate limited",
			"cred", c.id,
			"reset_at", c.resetAt)

	case OutcomeAuthFailed:
		c.errors++
		if !c.banned {
			c.banned = true
			p.logger.Warn("credential banned after authentication failure",
				"cred", c.id)
		}
		// Waiters must observe ErrAuthExhausted once the last one goes.
		p.wakeLocked()

	case OutcomeTransient:
		c.errors++
		c.consecutiveErrors++
		if c.consecutiveErrors >= p.maxErrors {
			c.remaining = 0
			c.resetAt = now.Add(p.errorCooldown)
			p.logger.Warn("credential parked after consecutive errors",
				"cred", c.id,
				"errors", c.consecutiveErrors,
				"until", c.resetAt)
		}
	}
}

func (p *Pool) wakeLocked() {
	close(p.wake)
	p.wake = make(chan struct{})
}

// Stats is a point-in-time summary of the pool.
type Stats struct {
	Total       int
	Available   int
	RateLimited int
	Banned      int
	Requests    int64
	Errors      int64
}

// Stats returns a snapshot of the pool state.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock()
	s := Stats{Total: len(p.creds)}
	for _, c := range p.creds {
		s.Requests += c.requests
		s.Errors += c.errors
		switch {
		case c.banned:
			s.Banned++
		case c.available(now):
			s.Available++
		default:
			s.RateLimited++
		}
	}
	return s
}

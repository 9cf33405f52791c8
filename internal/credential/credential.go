package credential

import (
	"encoding/hex"
	"time"

	"golang.org/x/crypto/blake2b"
)

// Token is the secret material needed to call the upstream API.
type Token struct {
	// BearerToken is the application bearer token sent in Authorization.
	BearerToken string

	// CSRFToken is the ct0 cookie, mirrored into the X-Csrf-Token header.
	CSRFToken string

	// AuthToken is the auth_token session cookie.
	AuthToken string
}

// Complete reports whether all three parts are present.
func (t Token) Complete() bool {
	return t.BearerToken != "" && t.CSRFToken != "" && t.AuthToken != ""
}

// fingerprint derives a stable, non-reversible identifier for logs.
func (t Token) fingerprint() string {
	sum := blake2b.Sum256([]byte(t.BearerToken + "\x00" + t.CSRFToken + "\x00" + t.AuthToken))
	return "cred-" + hex.EncodeToString(sum[:6])
}

// unknownQuota marks a credential whose remaining quota has not been
// reported yet. Unknown quota counts as available.
const unknownQuota = -1

// Credential is one entry of the pool.
//
// ID and Token are immutable and safe to read from any goroutine. Every
// other field is owned by the Pool and only touched under its lock.
type Credential struct {
	id    string
	token Token

	remaining         int
	resetAt           time.Time
	consecutiveErrors int
	banned            bool

	requests int64
	errors   int64
}

func newCredential(t Token) *Credential {
	return &Credential{
		id:        t.fingerprint(),
		token:     t,
		remaining: unknownQuota,
	}
}

// ID returns the credential fingerprint, e.g. "cred-3f2a9c01b7de".
func (c *Credential) ID() string {
	return c.id
}

// Token returns the secret material. Never log it.
func (c *Credential) Token() Token {
	return c.token
}

// available reports whether the credential can serve a request at now.
func (c *Credential) available(now time.Time) bool {
	if c.banned {
		return false
	}
	return c.remaining != 0 || !now.Before(c.resetAt)
}

// refresh restores quota once the reset time has passed.
func (c *Credential) refresh(now time.Time) {
	if c.remaining == 0 && !now.Before(c.resetAt) {
		c.remaining = unknownQuota
		c.consecutiveErrors = 0
	}
}

// Package credential manages the pool of upstream API credentials.
//
// Each credential carries its own quota counter, reset time and error
// streak. The pool hands credentials out round-robin, skipping any that are
// rate limited, parked after repeated transient errors, or banned after an
// authentication failure. When nothing is available the pool reports the
// earliest time a credential becomes usable again so callers can wait
// instead of spinning.
//
// Design decision: The pool never deletes credentials. A banned credential
// stays in the pool so Stats() can report it, and so its fingerprint keeps
// showing up in logs for the operator to rotate.
package credential

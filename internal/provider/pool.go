// Package provider wraps the external embedding/generation service
// behind a rotating pool of credentials with bounded retries.
package provider

import "sync/atomic"

// Pool is a process-wide rotating credential pool. The credential list
// is immutable; the only state change is the cursor advancing, which is
// shared by every concurrent embed/generate call using this pool.
type Pool struct {
	creds  []string
	cursor atomic.Int64
}

// NewPool creates a pool over the given credentials. At least one
// credential is required; rotation cycles the cursor and never removes
// an entry.
func NewPool(creds []string) *Pool {
	cp := make([]string, len(creds))
	copy(cp, creds)
	return &Pool{creds: cp}
}

// Len returns the number of credentials.
func (p *Pool) Len() int {
	return len(p.creds)
}

// Index returns the current cursor position.
func (p *Pool) Index() int {
	if len(p.creds) == 0 {
		return 0
	}
	return int(p.cursor.Load() % int64(len(p.creds)))
}

// Current returns the credential under the cursor.
func (p *Pool) Current() string {
	if len(p.creds) == 0 {
		return ""
	}
	return p.creds[p.Index()]
}

// Advance rotates to the next credential and returns its index. The
// atomic increment keeps concurrent rotation triggers from corrupting
// the cursor.
func (p *Pool) Advance() int {
	if len(p.creds) == 0 {
		return 0
	}
	next := p.cursor.Add(1)
	return int(next % int64(len(p.creds)))
}

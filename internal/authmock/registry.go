// Package authmock issues and tracks the bearer tokens the protocol server
// accepts. Tokens are opaque to the rest of the system: the protocol server
// checks registry membership and expiry, never a signature.
package authmock

import (
	"sync"
	"time"
)

type tokenInfo struct {
	userID       string
	email        string
	refreshToken string
	expiresAt    time.Time
}

// Registry is the valid-token set consulted on every connection attempt.
// Static tokens come from configuration; issued tokens come from the
// sign-in endpoint and carry an expiry.
type Registry struct {
	mu      sync.Mutex
	static  map[string]struct{}
	expired map[string]struct{}
	issued  map[string]tokenInfo
	refresh map[string]string // refresh token -> id token
}

// NewRegistry seeds the static valid and expired token sets.
func NewRegistry(validTokens, expiredTokens []string) *Registry {
	r := &Registry{
		static:  make(map[string]struct{}, len(validTokens)),
		expired: make(map[string]struct{}, len(expiredTokens)),
		issued:  make(map[string]tokenInfo),
		refresh: make(map[string]string),
	}
	for _, t := range validTokens {
		r.static[t] = struct{}{}
	}
	for _, t := range expiredTokens {
		r.expired[t] = struct{}{}
	}
	return r
}

// Valid reports whether the token is known, static or issued.
func (r *Registry) Valid(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.static[token]; ok {
		return true
	}
	_, ok := r.issued[token]
	return ok
}

// Expired reports whether the token is configured as expired or was issued
// and has outlived its TTL.
func (r *Registry) Expired(token string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.expired[token]; ok {
		return true
	}
	if info, ok := r.issued[token]; ok {
		return time.Now().After(info.expiresAt)
	}
	return false
}

// register stores an issued token and its refresh handle.
func (r *Registry) register(token string, info tokenInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.issued[token] = info
	r.refresh[info.refreshToken] = token
}

// lookupRefresh resolves a refresh token to the issued token it replaces.
func (r *Registry) lookupRefresh(refreshToken string) (tokenInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	token, ok := r.refresh[refreshToken]
	if !ok {
		return tokenInfo{}, false
	}
	info, ok := r.issued[token]
	return info, ok
}

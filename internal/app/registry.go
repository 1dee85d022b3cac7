package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"peerchat/internal/core"
	"peerchat/internal/domain"
)

type sessionEntry struct {
	Token  string
	Conn   core.SignalConnection
	Cancel context.CancelFunc
}

// Registry binds live connections to identity tokens and their transport
// endpoints. Profiles are re-derived from the identity provider on every
// Resolve so a profile update is visible without reconnecting.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.ConnID]*sessionEntry
	provider core.IdentityProvider
}

func NewRegistry(provider core.IdentityProvider) *Registry {
	return &Registry{
		sessions: make(map[core.ConnID]*sessionEntry),
		provider: provider,
	}
}

func (r *Registry) Bind(cid core.ConnID, token string, conn core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[cid] = &sessionEntry{Token: token, Conn: conn, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("bound session")
}

// Resolve returns the current identity behind a connection. Fails with
// core.ErrAuthRequired when the connection never registered or its token
// no longer resolves; the caller must then terminate the connection.
func (r *Registry) Resolve(cid core.ConnID) (domain.Identity, error) {
	r.mu.RLock()
	entry, ok := r.sessions[cid]
	r.mu.RUnlock()
	if !ok || entry.Token == "" {
		return domain.Identity{}, core.ErrAuthRequired
	}
	return r.provider.Resolve(entry.Token)
}

func (r *Registry) Conn(cid core.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.sessions[cid]
	if !ok || entry.Conn == nil {
		return nil, false
	}
	return entry.Conn, true
}

func (r *Registry) Unbind(cid core.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, cid)
	log.Info().Str("module", "app.registry").Str("cid", string(cid)).Msg("unbound session")
}

// Cancel fires the connection's teardown context, if any.
func (r *Registry) Cancel(cid core.ConnID) bool {
	r.mu.RLock()
	entry, ok := r.sessions[cid]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if entry.Cancel != nil {
		entry.Cancel()
	}
	return true
}

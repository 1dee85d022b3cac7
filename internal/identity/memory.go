package identity

import (
	"sync"

	"peerchat/internal/core"
	"peerchat/internal/domain"
)

// MemoryProvider maps tokens to identities in memory. It backs tests and
// dev mode, where profiles can be edited live to exercise re-resolution.
type MemoryProvider struct {
	mu  sync.RWMutex
	ids map[string]domain.Identity
}

func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{ids: make(map[string]domain.Identity)}
}

func (p *MemoryProvider) Put(token string, id domain.Identity) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids[token] = id
}

func (p *MemoryProvider) Revoke(token string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.ids, token)
}

func (p *MemoryProvider) Resolve(token string) (domain.Identity, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	id, ok := p.ids[token]
	if !ok {
		return domain.Identity{}, core.ErrAuthRequired
	}
	return id, nil
}

package fetcher

import (
	"math/rand/v2"
	"sync"
	"time"
)

// Identity is the request fingerprint presented to a site.
type Identity struct {
	Index     int
	UserAgent string
}

// IdentityPool hands out user-agent identities. It is process-scoped state
// shared by every client in a run; Pick and Rotate are safe for concurrent use.
type IdentityPool struct {
	mu     sync.Mutex
	agents []string
	rnd    *rand.Rand
}

// NewIdentityPool creates a pool over agents. A zero seed uses the clock.
func NewIdentityPool(agents []string, seed uint64) *IdentityPool {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	cp := make([]string, len(agents))
	copy(cp, agents)
	return &IdentityPool{
		agents: cp,
		rnd:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Size returns the number of identities in the pool.
func (p *IdentityPool) Size() int {
	return len(p.agents)
}

// Pick returns a pseudo-random identity.
func (p *IdentityPool) Pick() Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.agents) == 0 {
		return Identity{Index: -1}
	}
	i := p.rnd.IntN(len(p.agents))
	return Identity{Index: i, UserAgent: p.agents[i]}
}

// Rotate returns an identity different from prev whenever the pool has more
// than one entry.
func (p *IdentityPool) Rotate(prev Identity) Identity {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := len(p.agents)
	if n == 0 {
		return Identity{Index: -1}
	}
	if n == 1 {
		return Identity{Index: 0, UserAgent: p.agents[0]}
	}
	i := p.rnd.IntN(n - 1)
	if prev.Index >= 0 && i >= prev.Index {
		i++
	}
	return Identity{Index: i, UserAgent: p.agents[i]}
}

// Jitter returns a pseudo-random duration in [lo, hi].
func (p *IdentityPool) Jitter(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return lo + time.Duration(p.rnd.Int64N(int64(hi-lo)+1))
}

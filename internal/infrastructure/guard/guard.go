// Package guard hands out per-connection execution leases. Acquisition never
// waits: a held name is reported busy straight away.
package guard

import (
	"sync"

	"github.com/semmidev/dbkeeper/internal/domain"
)

type Guard struct {
	mu     sync.Mutex
	leases map[string]*Lease
}

func New() *Guard {
	return &Guard{leases: make(map[string]*Lease)}
}

// Lease is the exclusive right to operate on one connection name.
type Lease struct {
	name  string
	guard *Guard
	once  sync.Once
}

// Acquire returns a lease for name, or a KindConnectionBusy error when one is
// already held.
func (g *Guard) Acquire(name string) (*Lease, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, held := g.leases[name]; held {
		return nil, domain.NewError(domain.KindConnectionBusy, name,
			"another backup or restore is already running for this connection", nil)
	}

	lease := &Lease{name: name, guard: g}
	g.leases[name] = lease
	return lease, nil
}

// Held reports whether a lease for name is outstanding.
func (g *Guard) Held(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, held := g.leases[name]
	return held
}

func (l *Lease) Name() string {
	return l.name
}

// Release gives the lease back. Calling it more than once is harmless.
func (l *Lease) Release() {
	l.once.Do(func() {
		g := l.guard
		g.mu.Lock()
		if g.leases[l.name] == l {
			delete(g.leases, l.name)
		}
		g.mu.Unlock()
	})
}

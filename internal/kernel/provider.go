package kernel

import (
	"sort"
	"sync"
)

// StaticProvider is a Provider whose kernel is set explicitly by the owner of
// the document, e.g. when a kernel starts, restarts or is shut down.
type StaticProvider struct {
	mu       sync.Mutex
	current  Connection
	watchers map[int]func(Connection)
	nextID   int
}

func NewStaticProvider(conn Connection) *StaticProvider {
	return &StaticProvider{
		current:  conn,
		watchers: make(map[int]func(Connection)),
	}
}

func (p *StaticProvider) Current() Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Set replaces the current kernel and notifies watchers in registration order.
// Passing nil reports that the kernel went away.
func (p *StaticProvider) Set(conn Connection) {
	p.mu.Lock()
	p.current = conn
	ids := make([]int, 0, len(p.watchers))
	for id := range p.watchers {
		ids = append(ids, id)
	}
	fns := make([]func(Connection), 0, len(ids))
	sort.Ints(ids)
	for _, id := range ids {
		fns = append(fns, p.watchers[id])
	}
	p.mu.Unlock()

	for _, fn := range fns {
		fn(conn)
	}
}

func (p *StaticProvider) Watch(fn func(Connection)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := p.nextID
	p.nextID++
	p.watchers[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.watchers, id)
		p.mu.Unlock()
	}
}


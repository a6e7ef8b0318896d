package kernel

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mattjoyce/widgetsync/internal/protocol"
)

// DefaultCommTargets is shared by every dispatcher in the process so that
// several registrants on one connection never register a name twice.
var DefaultCommTargets = NewCommTargetRegistry()

// CommTargetRegistry records which comm target names are registered on each
// connection, keyed by connection id. Entries live until Release.
type CommTargetRegistry struct {
	mu     sync.Mutex
	byConn map[string]map[string]struct{}
}

func NewCommTargetRegistry() *CommTargetRegistry {
	return &CommTargetRegistry{byConn: make(map[string]map[string]struct{})}
}

// Register registers name on conn unless it is already registered there.
// It reports whether the connection was called.
func (r *CommTargetRegistry) Register(conn Connection, name string, cb CommTargetFunc) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	names := r.byConn[id]
	if _, ok := names[name]; ok {
		return false, nil
	}
	if cb == nil {
		cb = func(*protocol.Message) {}
	}
	if err := conn.RegisterCommTarget(name, cb); err != nil {
		return false, fmt.Errorf("register comm target %q: %w", name, err)
	}
	if names == nil {
		names = make(map[string]struct{})
		r.byConn[id] = names
	}
	names[name] = struct{}{}
	return true, nil
}

// Unregister removes name from conn if this registry registered it.
func (r *CommTargetRegistry) Unregister(conn Connection, name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := conn.ID()
	if _, ok := r.byConn[id][name]; !ok {
		return
	}
	conn.RemoveCommTarget(name)
	delete(r.byConn[id], name)
	if len(r.byConn[id]) == 0 {
		delete(r.byConn, id)
	}
}

// IsRegistered reports whether name is registered on the connection.
func (r *CommTargetRegistry) IsRegistered(connID, name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.byConn[connID][name]
	return ok
}

// Registered lists the names registered on the connection, sorted.
func (r *CommTargetRegistry) Registered(connID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.byConn[connID]))
	for name := range r.byConn[connID] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Release forgets a connection. Call it when the connection is disposed or
// its kernel restarts.
func (r *CommTargetRegistry) Release(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byConn, connID)
}

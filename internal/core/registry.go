package core

import "sync"

// Registry maps the remote address of each authenticated connection to its identifier.
// The lock is held only for map access, never across I/O.
type Registry struct {
	mu      sync.Mutex
	clients map[string]string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{clients: make(map[string]string)}
}

// Register records identifier for addr, replacing any previous value.
func (r *Registry) Register(addr, identifier string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[addr] = identifier
}

// Remove deletes the entry for addr. Returns true if it existed.
func (r *Registry) Remove(addr string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.clients[addr]; !ok {
		return false
	}
	delete(r.clients, addr)
	return true
}

// Lookup returns the identifier registered for addr.
func (r *Registry) Lookup(addr string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.clients[addr]
	return id, ok
}

// Len returns the number of authenticated connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.clients)
}

// Identifiers returns the distinct identifiers currently connected.
func (r *Registry) Identifiers() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]struct{}, len(r.clients))
	out := make([]string, 0, len(r.clients))
	for _, id := range r.clients {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

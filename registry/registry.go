package registry

import "sync"

// Registry maps a live connection id to the display name it joined with.
type Registry struct {
	names map[string]string
	mu    sync.RWMutex
}

func New() *Registry {
	return &Registry{
		names: make(map[string]string),
	}
}

// Register inserts or overwrites the name for connID. Names need not be unique.
func (r *Registry) Register(connID, name string) {
	r.mu.Lock()
	r.names[connID] = name
	r.mu.Unlock()
}

func (r *Registry) Lookup(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	name, ok := r.names[connID]
	return name, ok
}

func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	delete(r.names, connID)
	r.mu.Unlock()
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

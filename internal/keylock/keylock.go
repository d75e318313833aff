// Package keylock hands out one mutex per string key so concurrent work on
// the same key serializes while different keys proceed independently.
package keylock

import "sync"

// Registry maps arbitrary string keys to mutexes. The same key always
// returns the same mutex for the lifetime of the registry; entries are
// never removed. The key space is bounded by the number of questions, so
// unbounded growth is fine at this scale.
type Registry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New() *Registry {
	return &Registry{locks: make(map[string]*sync.Mutex)}
}

// Get returns the mutex for key, creating it on first use. The registry
// mutex is held only for the lookup/insert, never for the caller's
// critical section.
func (r *Registry) Get(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

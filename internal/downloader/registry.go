package downloader

import "sync"

// Handle aborts a live download.
type Handle interface {
	Abort()
}

// Registry maps task ids to live handles. Absence means the task is not
// currently cancellable, not that it does not exist.
type Registry interface {
	Set(id int64, h Handle)
	Get(id int64) (Handle, bool)
	Delete(id int64)
	Len() int
}

type memoryRegistry struct {
	mu      sync.RWMutex
	handles map[int64]Handle
}

// NewRegistry returns an empty in-memory registry.
func NewRegistry() Registry {
	return &memoryRegistry{handles: make(map[int64]Handle)}
}

func (r *memoryRegistry) Set(id int64, h Handle) {
	r.mu.Lock()
	r.handles[id] = h
	r.mu.Unlock()
}

func (r *memoryRegistry) Get(id int64) (Handle, bool) {
	r.mu.RLock()
	h, ok := r.handles[id]
	r.mu.RUnlock()
	return h, ok
}

func (r *memoryRegistry) Delete(id int64) {
	r.mu.Lock()
	delete(r.handles, id)
	r.mu.Unlock()
}

func (r *memoryRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}

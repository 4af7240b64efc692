package downloader

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

type abortCounter struct {
	mu sync.Mutex
	n  int
}

func (a *abortCounter) Abort() {
	a.mu.Lock()
	a.n++
	a.mu.Unlock()
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	h := &abortCounter{}

	_, ok := r.Get(1)
	assert.False(t, ok)

	r.Set(1, h)
	got, ok := r.Get(1)
	assert.True(t, ok)
	assert.Same(t, h, got)
	assert.Equal(t, 1, r.Len())

	r.Delete(1)
	r.Delete(1)
	_, ok = r.Get(1)
	assert.False(t, ok)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := int64(0); i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			r.Set(id, &abortCounter{})
			if h, ok := r.Get(id); ok {
				h.Abort()
			}
			r.Delete(id)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 0, r.Len())
}

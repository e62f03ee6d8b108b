// Package keylock provides striped mutexes keyed by string.
package keylock

import (
	"hash/fnv"
	"sync"
)

const defaultStripes = 64

// Striped maps keys onto a fixed set of mutexes. Distinct keys may share a
// stripe; the same key always maps to the same one.
type Striped struct {
	locks []sync.Mutex
}

// New creates a Striped lock with n stripes, or a default count when n <= 0.
func New(n int) *Striped {
	if n <= 0 {
		n = defaultStripes
	}
	return &Striped{locks: make([]sync.Mutex, n)}
}

func (s *Striped) stripe(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &s.locks[h.Sum32()%uint32(len(s.locks))]
}

// Lock acquires the stripe for key and returns its release function.
func (s *Striped) Lock(key string) func() {
	m := s.stripe(key)
	m.Lock()
	return m.Unlock
}

package tiered

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

const defaultStripes = 256

// stripedMutex serializes loads per key with a fixed number of mutexes, so
// memory stays constant however many keys are seen. Distinct keys that hash
// to the same stripe wait on each other.
type stripedMutex struct {
	stripes []sync.Mutex
}

func newStripedMutex(n int) *stripedMutex {
	if n <= 0 {
		n = defaultStripes
	}
	return &stripedMutex{stripes: make([]sync.Mutex, n)}
}

func (s *stripedMutex) forKey(key string) *sync.Mutex {
	return &s.stripes[xxhash.Sum64String(key)%uint64(len(s.stripes))]
}

// Package recentset adapts the teacher's common.lruCache wrapper
// (common/cache.go) into a fixed-capacity set of recently admitted
// transaction ids, letting the verifier reject duplicates without
// keeping every id it has ever seen.
package recentset

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/bermi/rheia/chain/types"
)

// Set is a bounded, concurrency-safe record of recently committed
// transaction ids. It answers "have I already accepted this id" with a
// false negative only once the id has aged out of the configured
// capacity, which is acceptable: spec.md leaves duplicate handling
// unspecified and this package supplies the reject-as-duplicate policy
// chosen for it.
type Set struct {
	cache *lru.Cache
}

// New returns a Set retaining up to size ids, evicting least-recently-seen
// first once full.
func New(size int) (*Set, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, err
	}
	return &Set{cache: c}, nil
}

// SeenOrAdd reports whether id was already present, adding it if not.
func (s *Set) SeenOrAdd(id types.ID) bool {
	if s.cache.Contains(id) {
		return true
	}
	s.cache.Add(id, struct{}{})
	return false
}

// Remove drops id from the set.
func (s *Set) Remove(id types.ID) {
	s.cache.Remove(id)
}

// Len reports the current number of tracked ids.
func (s *Set) Len() int {
	return s.cache.Len()
}

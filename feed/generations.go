package feed

import (
	"sync"
)

// Resource keys of Generations.
const (
	keyPosts = "posts"
)

func keyComments(postID string) string {
	return "comments/" + postID
}

func keyUserPosts(userID string) string {
	return "user-posts/" + userID
}

// Generations numbers fetches so that a result which completes after a newer
// one for the same resource can be recognized and dropped. Numbers come from
// one sequence shared by all resources, so they also order fetches of
// different resources by the time they were issued.
type Generations struct {
	mu          sync.Mutex
	issued      uint64
	applied     map[string]uint64
	outstanding map[uint64]string
}

// NewGenerations returns a Generations without any issued number.
func NewGenerations() *Generations {
	return &Generations{
		applied:     map[string]uint64{},
		outstanding: map[uint64]string{},
	}
}

// Issue returns the number of a fetch of key that is about to start. Every
// issued number must eventually be passed to Accept or Drop.
func (g *Generations) Issue(key string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.issued++
	g.outstanding[g.issued] = key
	return g.issued
}

// Accept reports whether the result of fetch gen of key may be applied, and
// if so marks it as the latest applied one. Results older than or as old as
// the latest applied one are refused.
func (g *Generations) Accept(key string, gen uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.outstanding, gen)
	if gen <= g.applied[key] {
		return false
	}
	g.applied[key] = gen
	return true
}

// Latest returns the number issued last.
func (g *Generations) Latest() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.issued
}

// Drop forgets a fetch that failed.
func (g *Generations) Drop(gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.outstanding, gen)
}

// Oldest returns the lowest number of a fetch still in flight, or the next
// number to be issued if there is none.
func (g *Generations) Oldest() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	oldest := g.issued + 1
	for gen := range g.outstanding {
		if gen < oldest {
			oldest = gen
		}
	}
	return oldest
}

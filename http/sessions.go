package http

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	log "github.com/sirupsen/logrus"

	"forkChan/crud"
	"forkChan/domain"
	"forkChan/feed"
)

// DefaultMaxSessions is the number of coordinators kept alive at once.
const DefaultMaxSessions = 1024

// sessions keeps one feed.Coordinator per user, the anonymous user included.
// The least recently used coordinator is closed once there are too many.
type sessions struct {
	services *crud.Services
	opts     []feed.Option

	mu      sync.Mutex
	cache   *lru.Cache[string, *feed.Coordinator]
	closing sync.WaitGroup
}

func newSessions(services *crud.Services, size int, opts ...feed.Option) (*sessions, error) {
	if size <= 0 {
		size = DefaultMaxSessions
	}
	s := &sessions{
		services: services,
		opts:     opts,
	}
	cache, err := lru.NewWithEvict[string, *feed.Coordinator](size, s.evicted)
	if err != nil {
		return nil, err
	}
	s.cache = cache
	return s, nil
}

// get returns the coordinator of session, creating it if needed. created
// reports whether it is new, that is, whether its cache is still empty.
func (s *sessions) get(session domain.Session) (c *feed.Coordinator, created bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.cache.Get(session.UserID); ok {
		return c, false
	}
	c = feed.NewCoordinator(s.services, session, s.opts...)
	s.cache.Add(session.UserID, c)
	return c, true
}

// getFresh is like get but waits for the first refresh of a new coordinator.
func (s *sessions) getFresh(ctx context.Context, session domain.Session) (*feed.Coordinator, error) {
	c, created := s.get(session)
	if !created {
		return c, nil
	}
	return c, c.Refresh(ctx).Wait(ctx)
}

// drop closes the coordinator of a user, if any. The next request of the
// user starts over with a new session.
func (s *sessions) drop(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache.Remove(userID)
}

// close closes every coordinator and waits until they have stopped.
func (s *sessions) close() {
	s.mu.Lock()
	s.cache.Purge()
	s.mu.Unlock()
	s.closing.Wait()
}

func (s *sessions) evicted(userID string, c *feed.Coordinator) {
	log.WithField("user", userID).Debug("closing feed session")
	s.closing.Add(1)
	go func() {
		defer s.closing.Done()
		c.Close()
	}()
}

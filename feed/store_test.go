package feed

import (
	"context"
	"sync"
	"testing"
	"time"

	"forkChan/crud"
	"forkChan/database/memory"
	"forkChan/domain"
)

// faultStore wraps the in-memory store with hooks around every call. before
// may block or fail the call; after runs once the call has returned and may
// block to delay its result.
type faultStore struct {
	*memory.Store

	mu     sync.Mutex
	calls  int
	before func(op, collection string) error
	after  func(op, collection string)
}

func (s *faultStore) setHooks(before func(op, collection string) error, after func(op, collection string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.before, s.after = before, after
}

func (s *faultStore) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *faultStore) enter(op, collection string) error {
	s.mu.Lock()
	s.calls++
	before := s.before
	s.mu.Unlock()
	if before != nil {
		return before(op, collection)
	}
	return nil
}

func (s *faultStore) leave(op, collection string) {
	s.mu.Lock()
	after := s.after
	s.mu.Unlock()
	if after != nil {
		after(op, collection)
	}
}

func (s *faultStore) Create(ctx context.Context, collection string, fields domain.Fields) (string, error) {
	if err := s.enter("create", collection); err != nil {
		return "", err
	}
	defer s.leave("create", collection)
	return s.Store.Create(ctx, collection, fields)
}

func (s *faultStore) Get(ctx context.Context, collection, id string) (*domain.Document, error) {
	if err := s.enter("get", collection); err != nil {
		return nil, err
	}
	defer s.leave("get", collection)
	return s.Store.Get(ctx, collection, id)
}

func (s *faultStore) Update(ctx context.Context, collection, id string, fields domain.Fields) error {
	if err := s.enter("update", collection); err != nil {
		return err
	}
	defer s.leave("update", collection)
	return s.Store.Update(ctx, collection, id, fields)
}

func (s *faultStore) Delete(ctx context.Context, collection, id string) error {
	if err := s.enter("delete", collection); err != nil {
		return err
	}
	defer s.leave("delete", collection)
	return s.Store.Delete(ctx, collection, id)
}

func (s *faultStore) Query(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	if err := s.enter("query", q.Collection); err != nil {
		return nil, err
	}
	defer s.leave("query", q.Collection)
	return s.Store.Query(ctx, q)
}

func (s *faultStore) RunTransaction(ctx context.Context, refs []domain.DocRef, fn domain.TxFunc) error {
	collection := ""
	if len(refs) > 0 {
		collection = refs[0].Collection
	}
	if err := s.enter("transaction", collection); err != nil {
		return err
	}
	defer s.leave("transaction", collection)
	return s.Store.RunTransaction(ctx, refs, fn)
}

type fixture struct {
	store    *faultStore
	services *crud.Services
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := &faultStore{Store: memory.NewStore(memory.WithMaxRetries(50))}
	return newFixtureOn(t, store, store)
}

// pushStore hands out a subscription whose pushes the test sends by hand.
type pushStore struct {
	*faultStore
	pushes chan []domain.Document
}

func (s *pushStore) Subscribe(ctx context.Context, q domain.Query) (<-chan []domain.Document, error) {
	return s.pushes, nil
}

// newPushFixture returns a fixture whose store pushes what is sent on the
// returned channel. Closing the channel ends the subscription.
func newPushFixture(t *testing.T) (*fixture, chan []domain.Document) {
	t.Helper()
	store := &faultStore{Store: memory.NewStore(memory.WithMaxRetries(50))}
	pushes := make(chan []domain.Document)
	return newFixtureOn(t, &pushStore{faultStore: store, pushes: pushes}, store), pushes
}

func newFixtureOn(t *testing.T, remote domain.RemoteStore, store *faultStore) *fixture {
	t.Helper()
	services, err := crud.NewServices(remote, crud.WithAll("hmac-secret", "pepper", 1<<20))
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{store: store, services: services}
}

func (f *fixture) coordinator(t *testing.T, userID string) *Coordinator {
	t.Helper()
	c := NewCoordinator(f.services, domain.Session{UserID: userID, DisplayName: "User " + userID},
		WithLogger(quietLogger()),
		WithNoticeBuffer(64))
	t.Cleanup(c.Close)
	return c
}

// seedPost creates a post directly through the crud layer.
func (f *fixture) seedPost(t *testing.T, author, description string) *domain.Post {
	t.Helper()
	post := &domain.Post{AuthorID: author, Description: description}
	if err := f.services.Post.Create(context.Background(), post); err != nil {
		t.Fatal(err)
	}
	return post
}

func (f *fixture) likeDocs(t *testing.T, postID, userID string) int {
	t.Helper()
	docs, err := f.store.Store.Query(context.Background(), domain.Query{
		Collection: domain.CollectionLikes,
		Filters: []domain.Filter{
			domain.Where(domain.FieldPostID, postID),
			domain.Where(domain.FieldUserID, userID),
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return len(docs)
}

func (f *fixture) storedPost(t *testing.T, id string) *domain.Post {
	t.Helper()
	p, err := f.services.Post.ByID(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func wait(t *testing.T, p *Pending) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return p.Wait(ctx)
}

func mustWait(t *testing.T, p *Pending) {
	t.Helper()
	if err := wait(t, p); err != nil {
		t.Fatal(err)
	}
}

func view(t *testing.T, c *Coordinator, postID string) PostView {
	t.Helper()
	snap, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	for _, v := range snap.Posts {
		if v.ID == postID {
			return v
		}
	}
	t.Fatalf("post %s not in the feed", postID)
	return PostView{}
}

// eventually polls cond until it holds or a few seconds have passed.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

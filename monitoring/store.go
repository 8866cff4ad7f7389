package monitoring

import (
	"context"
	"time"

	"forkChan/domain"
	"forkChan/errs"
)

// Store wraps a domain.RemoteStore and records the outcome and duration of
// every call.
type Store struct {
	next domain.RemoteStore
}

var _ domain.RemoteStore = &Store{}

// NewStore returns next instrumented. If next can push query results, so can
// the returned store.
func NewStore(next domain.RemoteStore) domain.RemoteStore {
	s := &Store{next: next}
	if sub, ok := next.(domain.Subscriber); ok {
		return &subscribingStore{Store: s, sub: sub}
	}
	return s
}

func (s *Store) Create(ctx context.Context, collection string, fields domain.Fields) (string, error) {
	defer observe("create", time.Now())
	id, err := s.next.Create(ctx, collection, fields)
	count("create", err)
	return id, err
}

func (s *Store) Get(ctx context.Context, collection, id string) (*domain.Document, error) {
	defer observe("get", time.Now())
	doc, err := s.next.Get(ctx, collection, id)
	count("get", err)
	return doc, err
}

func (s *Store) Update(ctx context.Context, collection, id string, fields domain.Fields) error {
	defer observe("update", time.Now())
	err := s.next.Update(ctx, collection, id, fields)
	count("update", err)
	return err
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	defer observe("delete", time.Now())
	err := s.next.Delete(ctx, collection, id)
	count("delete", err)
	return err
}

func (s *Store) Query(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	defer observe("query", time.Now())
	docs, err := s.next.Query(ctx, q)
	count("query", err)
	return docs, err
}

func (s *Store) RunTransaction(ctx context.Context, refs []domain.DocRef, fn domain.TxFunc) error {
	defer observe("transaction", time.Now())
	err := s.next.RunTransaction(ctx, refs, fn)
	count("transaction", err)
	return err
}

type subscribingStore struct {
	*Store
	sub domain.Subscriber
}

func (s *subscribingStore) Subscribe(ctx context.Context, q domain.Query) (<-chan []domain.Document, error) {
	ch, err := s.sub.Subscribe(ctx, q)
	count("subscribe", err)
	return ch, err
}

func observe(op string, start time.Time) {
	RemoteOpDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// count labels not found as its own outcome: it's an answer, not a failure.
func count(op string, err error) {
	outcome := "ok"
	switch {
	case err == nil:
	case errs.Is(err, errs.ENOTFOUND):
		outcome = "not_found"
	case errs.Is(err, errs.ECONFLICT):
		outcome = "conflict"
	default:
		outcome = "error"
	}
	RemoteOpsTotal.WithLabelValues(op, outcome).Inc()
}

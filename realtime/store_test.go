package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"forkChan/database/memory"
	"forkChan/domain"
	"forkChan/errs"
)

// localBus is an in-process Bus.
type localBus struct {
	mu        sync.Mutex
	listeners map[string][]chan struct{}
	published []string
	fail      error
}

func newLocalBus() *localBus {
	return &localBus{listeners: map[string][]chan struct{}{}}
}

func (b *localBus) Publish(ctx context.Context, channel string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.fail != nil {
		return b.fail
	}
	b.published = append(b.published, channel)
	for _, l := range b.listeners[channel] {
		select {
		case l <- struct{}{}:
		default:
		}
	}
	return nil
}

func (b *localBus) Listen(ctx context.Context, channel string) (<-chan struct{}, error) {
	in := make(chan struct{}, 1)
	b.mu.Lock()
	b.listeners[channel] = append(b.listeners[channel], in)
	b.mu.Unlock()
	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-in:
				select {
				case out <- struct{}{}:
				default:
				}
			}
		}
	}()
	return out, nil
}

func (b *localBus) channels() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.published...)
}

func TestWritesAreAnnounced(t *testing.T) {
	ctx := context.Background()
	bus := newLocalBus()
	s := NewStore(memory.NewStore(), bus, "fc:")

	id, err := s.Create(ctx, domain.CollectionPosts, domain.Fields{domain.FieldLikeCount: 0})
	if err != nil {
		t.Fatalf("Create() err = %v", err)
	}
	if err := s.Update(ctx, domain.CollectionPosts, id, domain.Fields{"description": "x"}); err != nil {
		t.Fatalf("Update() err = %v", err)
	}
	ref := domain.DocRef{Collection: domain.CollectionPosts, ID: id}
	err = s.RunTransaction(ctx, []domain.DocRef{ref}, func(docs []*domain.Document, tx domain.TxWriter) error {
		return tx.Update(ref, domain.Fields{domain.FieldLikeCount: 1})
	})
	if err != nil {
		t.Fatalf("RunTransaction() err = %v", err)
	}
	if err := s.Delete(ctx, domain.CollectionPosts, id); err != nil {
		t.Fatalf("Delete() err = %v", err)
	}
	// Failed writes are not announced.
	if err := s.Delete(ctx, domain.CollectionPosts, id); !errs.Is(err, errs.ENOTFOUND) {
		t.Fatalf("second Delete() err = %v, want not found", err)
	}

	got := bus.channels()
	if len(got) != 4 {
		t.Fatalf("published %v, want 4 announcements", got)
	}
	for _, ch := range got {
		if ch != "fc:posts" {
			t.Errorf("published on %q, want fc:posts", ch)
		}
	}
}

func TestReadOnlyTransactionIsNotAnnounced(t *testing.T) {
	ctx := context.Background()
	bus := newLocalBus()
	s := NewStore(memory.NewStore(), bus, "")
	ref := domain.DocRef{Collection: domain.CollectionPosts, ID: "missing"}
	err := s.RunTransaction(ctx, []domain.DocRef{ref}, func(docs []*domain.Document, tx domain.TxWriter) error {
		return nil
	})
	if err != nil {
		t.Fatalf("RunTransaction() err = %v", err)
	}
	if got := bus.channels(); len(got) != 0 {
		t.Errorf("published %v, want nothing", got)
	}
}

func TestPublishFailureDoesNotFailWrite(t *testing.T) {
	bus := newLocalBus()
	bus.fail = errors.New("connection refused")
	s := NewStore(memory.NewStore(), bus, "")
	if _, err := s.Create(context.Background(), domain.CollectionPosts, domain.Fields{}); err != nil {
		t.Errorf("Create() err = %v, want nil", err)
	}
}

func TestSubscribeRequeriesOnAnnouncement(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	bus := newLocalBus()
	s := NewStore(memory.NewStore(), bus, "")

	results, err := s.Subscribe(ctx, domain.Query{Collection: domain.CollectionPosts})
	if err != nil {
		t.Fatalf("Subscribe() err = %v", err)
	}
	next := func() []domain.Document {
		t.Helper()
		select {
		case docs, ok := <-results:
			if !ok {
				t.Fatal("subscription closed early")
			}
			return docs
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for a result")
		}
		return nil
	}
	if docs := next(); len(docs) != 0 {
		t.Fatalf("initial result has %d docs, want 0", len(docs))
	}
	if _, err := s.Create(ctx, domain.CollectionPosts, domain.Fields{}); err != nil {
		t.Fatalf("Create() err = %v", err)
	}
	if docs := next(); len(docs) != 1 {
		t.Fatalf("result after create has %d docs, want 1", len(docs))
	}

	cancel()
	select {
	case _, ok := <-results:
		for ok {
			_, ok = <-results
		}
	case <-time.After(5 * time.Second):
		t.Fatal("subscription not closed after cancel")
	}
}

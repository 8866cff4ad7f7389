// Package realtime gives remote stores that cannot push query results the
// domain.Subscriber capability. Writes made through the decorated store are
// announced on a per-collection channel of a Bus, and subscribers re-run
// their query whenever an announcement arrives.
package realtime

import (
	"context"

	log "github.com/sirupsen/logrus"

	"forkChan/domain"
	"forkChan/errs"
)

var _ domain.RemoteStore = &Store{}
var _ domain.Subscriber = &Store{}

// Bus carries change announcements between processes.
type Bus interface {
	Publish(ctx context.Context, channel string) error
	// Listen delivers one value per announcement on channel until ctx is
	// done, then closes the returned channel.
	Listen(ctx context.Context, channel string) (<-chan struct{}, error)
}

// Store decorates a domain.RemoteStore with change announcements.
type Store struct {
	domain.RemoteStore
	bus    Bus
	prefix string
}

// NewStore wraps next. Channels are named prefix + collection.
func NewStore(next domain.RemoteStore, bus Bus, prefix string) *Store {
	return &Store{
		RemoteStore: next,
		bus:         bus,
		prefix:      prefix,
	}
}

func (s *Store) Create(ctx context.Context, collection string, fields domain.Fields) (string, error) {
	id, err := s.RemoteStore.Create(ctx, collection, fields)
	if err == nil {
		s.announce(ctx, collection)
	}
	return id, err
}

func (s *Store) Update(ctx context.Context, collection, id string, fields domain.Fields) error {
	err := s.RemoteStore.Update(ctx, collection, id, fields)
	if err == nil {
		s.announce(ctx, collection)
	}
	return err
}

func (s *Store) Delete(ctx context.Context, collection, id string) error {
	err := s.RemoteStore.Delete(ctx, collection, id)
	if err == nil {
		s.announce(ctx, collection)
	}
	return err
}

// RunTransaction announces every collection the committed attempt wrote to.
func (s *Store) RunTransaction(ctx context.Context, refs []domain.DocRef, fn domain.TxFunc) error {
	var touched map[string]bool
	err := s.RemoteStore.RunTransaction(ctx, refs, func(docs []*domain.Document, tx domain.TxWriter) error {
		touched = map[string]bool{}
		return fn(docs, recordingWriter{TxWriter: tx, touched: touched})
	})
	if err != nil {
		return err
	}
	for collection := range touched {
		s.announce(ctx, collection)
	}
	return nil
}

// recordingWriter notes the collections of the writes of one attempt.
type recordingWriter struct {
	domain.TxWriter
	touched map[string]bool
}

func (w recordingWriter) Update(ref domain.DocRef, fields domain.Fields) error {
	w.touched[ref.Collection] = true
	return w.TxWriter.Update(ref, fields)
}

// Subscribe pushes the result of q now and again after every announced
// change to its collection. Announcements arriving while a query runs are
// collapsed into one re-run.
func (s *Store) Subscribe(ctx context.Context, q domain.Query) (<-chan []domain.Document, error) {
	ctx, cancel := context.WithCancel(ctx)
	changes, err := s.bus.Listen(ctx, s.prefix+q.Collection)
	if err != nil {
		cancel()
		return nil, errs.Unavailable(err)
	}
	out := make(chan []domain.Document)
	go func() {
		defer close(out)
		defer cancel()
		for {
			docs, err := s.RemoteStore.Query(ctx, q)
			if err != nil {
				if ctx.Err() == nil {
					log.WithError(err).WithField("collection", q.Collection).Warn("realtime: subscription query failed")
				}
				return
			}
			select {
			case out <- docs:
			case <-ctx.Done():
				return
			}
			select {
			case _, ok := <-changes:
				if !ok {
					return
				}
			case <-ctx.Done():
				return
			}
		drain:
			for {
				select {
				case _, ok := <-changes:
					if !ok {
						return
					}
				default:
					break drain
				}
			}
		}
	}()
	return out, nil
}

// announce publishes a change. Failures are logged, not returned: the write
// itself already succeeded.
func (s *Store) announce(ctx context.Context, collection string) {
	if err := s.bus.Publish(context.WithoutCancel(ctx), s.prefix+collection); err != nil {
		log.WithError(err).WithField("collection", collection).Warn("realtime: publish failed")
	}
}

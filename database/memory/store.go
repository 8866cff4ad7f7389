// Package memory provides a remote store that keeps every collection in
// process memory. It implements the same contract as the networked stores,
// including conflicting transactions and push subscriptions, so it serves as
// the development backend and as the store of the test suites.
package memory

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"forkChan/domain"
	"forkChan/errs"
)

// DefaultMaxRetries is the number of times a conflicting transaction is re-run.
const DefaultMaxRetries = 5

var _ domain.RemoteStore = &Store{}
var _ domain.Subscriber = &Store{}

// Store is an in-memory domain.RemoteStore.
type Store struct {
	mu          sync.Mutex
	collections map[string]map[string]*record
	last        time.Time
	watchers    map[string]map[int]chan struct{}
	nextWatcher int

	now        func() time.Time
	maxRetries int

	// beforeCommit runs between the reads and the commit of a transaction attempt.
	beforeCommit func()
}

type record struct {
	doc     domain.Document
	version uint64
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now as the source of creation timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithMaxRetries sets how often a conflicting transaction is re-run.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		s.maxRetries = n
	}
}

// NewStore returns an empty Store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		collections: map[string]map[string]*record{},
		watchers:    map[string]map[int]chan struct{}{},
		now:         time.Now,
		maxRetries:  DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create stores a new document and returns its generated ID.
func (s *Store) Create(ctx context.Context, collection string, fields domain.Fields) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", errs.Unavailable(err)
	}
	s.mu.Lock()
	id := uuid.NewString()
	s.collection(collection)[id] = &record{
		doc: domain.Document{
			ID:        id,
			CreatedAt: s.timestamp(),
			Fields:    copyFields(fields),
		},
		version: 1,
	}
	s.mu.Unlock()
	s.notify(collection)
	return id, nil
}

// Get returns a copy of a single document.
func (s *Store) Get(ctx context.Context, collection, id string) (*domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.collection(collection)[id]
	if !ok {
		return nil, notFound(collection, id)
	}
	doc := copyDoc(rec.doc)
	return &doc, nil
}

// Update merges fields into an existing document.
func (s *Store) Update(ctx context.Context, collection, id string, fields domain.Fields) error {
	if err := ctx.Err(); err != nil {
		return errs.Unavailable(err)
	}
	s.mu.Lock()
	rec, ok := s.collection(collection)[id]
	if !ok {
		s.mu.Unlock()
		return notFound(collection, id)
	}
	for k, v := range fields {
		rec.doc.Fields[k] = v
	}
	rec.version++
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return errs.Unavailable(err)
	}
	s.mu.Lock()
	coll := s.collection(collection)
	if _, ok := coll[id]; !ok {
		s.mu.Unlock()
		return notFound(collection, id)
	}
	delete(coll, id)
	s.mu.Unlock()
	s.notify(collection)
	return nil
}

// Query returns copies of the matching documents.
func (s *Store) Query(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, errs.Unavailable(err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.query(q), nil
}

func (s *Store) query(q domain.Query) []domain.Document {
	docs := make([]domain.Document, 0)
	for _, rec := range s.collection(q.Collection) {
		if matches(rec.doc, q.Filters) {
			docs = append(docs, copyDoc(rec.doc))
		}
	}
	sort.SliceStable(docs, func(i, j int) bool {
		c := compareDocs(docs[i], docs[j], q.OrderBy)
		if c == 0 {
			return docs[i].ID < docs[j].ID
		}
		if q.Direction == domain.Descending {
			return c > 0
		}
		return c < 0
	})
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs
}

// RunTransaction reads refs, runs fn without holding the store lock and
// commits its writes only if none of the read documents changed in between.
// Otherwise the attempt is discarded and fn runs again.
func (s *Store) RunTransaction(ctx context.Context, refs []domain.DocRef, fn domain.TxFunc) error {
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return errs.Unavailable(err)
		}
		docs, versions := s.read(refs)
		tx := &txWriter{writes: map[domain.DocRef]domain.Fields{}}
		if err := fn(docs, tx); err != nil {
			return err
		}
		if s.beforeCommit != nil {
			s.beforeCommit()
		}
		committed, err := s.commit(refs, versions, tx)
		if err != nil {
			return err
		}
		if committed {
			return nil
		}
	}
	return errs.Errorf(errs.ECONFLICT, "Transaction aborted after %d conflicting attempts.", s.maxRetries+1)
}

func (s *Store) read(refs []domain.DocRef) ([]*domain.Document, []uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	docs := make([]*domain.Document, len(refs))
	versions := make([]uint64, len(refs))
	for i, ref := range refs {
		if rec, ok := s.collection(ref.Collection)[ref.ID]; ok {
			doc := copyDoc(rec.doc)
			docs[i] = &doc
			versions[i] = rec.version
		}
	}
	return docs, versions
}

func (s *Store) commit(refs []domain.DocRef, versions []uint64, tx *txWriter) (bool, error) {
	s.mu.Lock()
	for i, ref := range refs {
		var current uint64
		if rec, ok := s.collection(ref.Collection)[ref.ID]; ok {
			current = rec.version
		}
		if current != versions[i] {
			s.mu.Unlock()
			return false, nil
		}
	}
	touched := map[string]bool{}
	for ref := range tx.writes {
		if _, ok := s.collection(ref.Collection)[ref.ID]; !ok {
			s.mu.Unlock()
			return false, notFound(ref.Collection, ref.ID)
		}
	}
	for ref, fields := range tx.writes {
		rec := s.collection(ref.Collection)[ref.ID]
		for k, v := range fields {
			rec.doc.Fields[k] = v
		}
		rec.version++
		touched[ref.Collection] = true
	}
	s.mu.Unlock()
	for collection := range touched {
		s.notify(collection)
	}
	return true, nil
}

type txWriter struct {
	writes map[domain.DocRef]domain.Fields
}

func (tx *txWriter) Update(ref domain.DocRef, fields domain.Fields) error {
	w, ok := tx.writes[ref]
	if !ok {
		w = domain.Fields{}
		tx.writes[ref] = w
	}
	for k, v := range fields {
		w[k] = v
	}
	return nil
}

// Subscribe pushes the result of q now and after every change to its collection.
func (s *Store) Subscribe(ctx context.Context, q domain.Query) (<-chan []domain.Document, error) {
	signal := make(chan struct{}, 1)
	signal <- struct{}{}
	s.mu.Lock()
	id := s.nextWatcher
	s.nextWatcher++
	if s.watchers[q.Collection] == nil {
		s.watchers[q.Collection] = map[int]chan struct{}{}
	}
	s.watchers[q.Collection][id] = signal
	s.mu.Unlock()

	out := make(chan []domain.Document)
	go func() {
		defer close(out)
		defer func() {
			s.mu.Lock()
			delete(s.watchers[q.Collection], id)
			s.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case <-signal:
			}
			s.mu.Lock()
			docs := s.query(q)
			s.mu.Unlock()
			select {
			case out <- docs:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *Store) notify(collection string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, signal := range s.watchers[collection] {
		select {
		case signal <- struct{}{}:
		default:
		}
	}
}

// collection returns the documents of a collection. The caller holds s.mu.
func (s *Store) collection(name string) map[string]*record {
	coll, ok := s.collections[name]
	if !ok {
		coll = map[string]*record{}
		s.collections[name] = coll
	}
	return coll
}

// timestamp returns a creation time that is strictly after the previous one,
// so insertion order can always be recovered from CreatedAt. The caller holds s.mu.
func (s *Store) timestamp() time.Time {
	t := s.now().UTC()
	if !t.After(s.last) {
		t = s.last.Add(time.Nanosecond)
	}
	s.last = t
	return t
}

func notFound(collection, id string) error {
	return errs.Errorf(errs.ENOTFOUND, "Document %s/%s does not exist.", collection, id)
}

func matches(doc domain.Document, filters []domain.Filter) bool {
	for _, f := range filters {
		v, ok := doc.Fields[f.Field]
		if !ok || compareValues(v, f.Value) != 0 {
			return false
		}
	}
	return true
}

func compareDocs(a, b domain.Document, field string) int {
	switch field {
	case "":
		return 0
	case domain.FieldCreatedAt:
		return compareValues(a.CreatedAt, b.CreatedAt)
	}
	return compareValues(a.Fields[field], b.Fields[field])
}

// compareValues orders two field values. Numbers compare numerically
// regardless of their Go type, times chronologically, anything else by its
// string form.
func compareValues(a, b interface{}) int {
	if fa, ok := toFloat(a); ok {
		if fb, ok := toFloat(b); ok {
			switch {
			case fa < fb:
				return -1
			case fa > fb:
				return 1
			}
			return 0
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}
	if reflect.DeepEqual(a, b) {
		return 0
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func copyFields(fields domain.Fields) domain.Fields {
	out := make(domain.Fields, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

func copyDoc(doc domain.Document) domain.Document {
	doc.Fields = copyFields(doc.Fields)
	return doc
}

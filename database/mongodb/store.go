// Package mongodb provides the remote store backed by MongoDB. Every
// collection maps to a MongoDB collection of the same name. Transactions and
// change streams need the server to run as a replica set.
package mongodb

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"forkChan/domain"
	"forkChan/errs"
)

const (
	keyID        = "_id"
	keyCreatedAt = "createdAt"
	keyFields    = "fields"
)

var _ domain.RemoteStore = &Store{}
var _ domain.Subscriber = &Store{}

// Store is a domain.RemoteStore on top of a MongoDB database.
type Store struct {
	db *mongo.Database

	mu   sync.Mutex
	last time.Time
}

// record is the stored shape of a document. The payload is nested under
// fields so it can never clash with the store-assigned keys.
type record struct {
	ID        string    `bson:"_id"`
	CreatedAt time.Time `bson:"createdAt"`
	Fields    bson.M    `bson:"fields"`
}

// Connect dials uri and returns a Store on the named database.
func Connect(ctx context.Context, uri, name string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return NewStore(client.Database(name)), nil
}

// NewStore returns a Store using db.
func NewStore(db *mongo.Database) *Store {
	return &Store{db: db}
}

// Close disconnects the underlying client.
func (s *Store) Close(ctx context.Context) error {
	return s.db.Client().Disconnect(ctx)
}

// Create inserts a new document and returns its generated ID.
func (s *Store) Create(ctx context.Context, collection string, fields domain.Fields) (string, error) {
	rec := record{
		ID:        uuid.NewString(),
		CreatedAt: s.timestamp(),
		Fields:    bson.M(fields),
	}
	if rec.Fields == nil {
		rec.Fields = bson.M{}
	}
	if _, err := s.db.Collection(collection).InsertOne(ctx, rec); err != nil {
		return "", errs.Unavailable(err)
	}
	return rec.ID, nil
}

// Get reads a single document.
func (s *Store) Get(ctx context.Context, collection, id string) (*domain.Document, error) {
	return get(ctx, s.db.Collection(collection), id)
}

func get(ctx context.Context, coll *mongo.Collection, id string) (*domain.Document, error) {
	var rec record
	err := coll.FindOne(ctx, bson.D{{Key: keyID, Value: id}}).Decode(&rec)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, notFound(coll.Name(), id)
	} else if err != nil {
		return nil, errs.Unavailable(err)
	}
	doc := rec.toDocument()
	return &doc, nil
}

// Update sets fields on an existing document.
func (s *Store) Update(ctx context.Context, collection, id string, fields domain.Fields) error {
	return update(ctx, s.db.Collection(collection), id, fields)
}

func update(ctx context.Context, coll *mongo.Collection, id string, fields domain.Fields) error {
	set := bson.D{}
	for k, v := range fields {
		set = append(set, bson.E{Key: keyFields + "." + k, Value: v})
	}
	if len(set) == 0 {
		_, err := get(ctx, coll, id)
		return err
	}
	res, err := coll.UpdateOne(ctx, bson.D{{Key: keyID, Value: id}}, bson.D{{Key: "$set", Value: set}})
	if err != nil {
		return errs.Unavailable(err)
	}
	if res.MatchedCount == 0 {
		return notFound(coll.Name(), id)
	}
	return nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res, err := s.db.Collection(collection).DeleteOne(ctx, bson.D{{Key: keyID, Value: id}})
	if err != nil {
		return errs.Unavailable(err)
	}
	if res.DeletedCount == 0 {
		return notFound(collection, id)
	}
	return nil
}

// Query finds the documents of a collection matching all filters.
func (s *Store) Query(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	filter, opts := findArgs(q)
	cur, err := s.db.Collection(q.Collection).Find(ctx, filter, opts)
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	var recs []record
	if err := cur.All(ctx, &recs); err != nil {
		return nil, errs.Unavailable(err)
	}
	docs := make([]domain.Document, 0, len(recs))
	for _, rec := range recs {
		docs = append(docs, rec.toDocument())
	}
	return docs, nil
}

// findArgs translates q into a find filter and its options.
func findArgs(q domain.Query) (bson.D, *options.FindOptions) {
	filter := bson.D{}
	for _, f := range q.Filters {
		filter = append(filter, bson.E{Key: keyFields + "." + f.Field, Value: f.Value})
	}
	dir := 1
	if q.Direction == domain.Descending {
		dir = -1
	}
	sort := bson.D{}
	switch q.OrderBy {
	case "":
	case domain.FieldCreatedAt:
		sort = append(sort, bson.E{Key: keyCreatedAt, Value: dir})
	default:
		sort = append(sort, bson.E{Key: keyFields + "." + q.OrderBy, Value: dir})
	}
	sort = append(sort, bson.E{Key: keyID, Value: dir})
	opts := options.Find().SetSort(sort)
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	return filter, opts
}

// RunTransaction reads refs and applies the writes of fn inside a
// multi-document transaction. The driver re-runs the whole callback on
// transient errors such as write conflicts.
func (s *Store) RunTransaction(ctx context.Context, refs []domain.DocRef, fn domain.TxFunc) error {
	session, err := s.db.Client().StartSession()
	if err != nil {
		return errs.Unavailable(err)
	}
	defer session.EndSession(ctx)

	txnOptions := options.Transaction().SetWriteConcern(writeconcern.Majority())
	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		docs := make([]*domain.Document, len(refs))
		for i, ref := range refs {
			doc, err := get(sc, s.db.Collection(ref.Collection), ref.ID)
			if errs.Is(err, errs.ENOTFOUND) {
				continue
			} else if err != nil {
				return nil, err
			}
			docs[i] = doc
		}
		w := &txWriter{writes: map[domain.DocRef]domain.Fields{}}
		if err := fn(docs, w); err != nil {
			return nil, err
		}
		for _, ref := range w.order {
			if err := update(sc, s.db.Collection(ref.Collection), ref.ID, w.writes[ref]); err != nil {
				return nil, err
			}
		}
		return nil, nil
	}, txnOptions)
	if err == nil {
		return nil
	}
	var se mongo.ServerError
	if errors.As(err, &se) && (se.HasErrorLabel("TransientTransactionError") || se.HasErrorCode(112)) {
		log.WithError(err).Warn("mongodb: transaction gave up on write conflicts")
		return errs.Errorf(errs.ECONFLICT, "Transaction aborted after conflicting attempts.")
	}
	var appErr *errs.Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return errs.Unavailable(err)
}

type txWriter struct {
	writes map[domain.DocRef]domain.Fields
	order  []domain.DocRef
}

func (tx *txWriter) Update(ref domain.DocRef, fields domain.Fields) error {
	w, ok := tx.writes[ref]
	if !ok {
		w = domain.Fields{}
		tx.writes[ref] = w
		tx.order = append(tx.order, ref)
	}
	for k, v := range fields {
		w[k] = v
	}
	return nil
}

// Subscribe opens a change stream on the collection of q and pushes the full
// result of q once up front and again after every change.
func (s *Store) Subscribe(ctx context.Context, q domain.Query) (<-chan []domain.Document, error) {
	stream, err := s.db.Collection(q.Collection).Watch(ctx, mongo.Pipeline{})
	if err != nil {
		return nil, errs.Unavailable(err)
	}
	out := make(chan []domain.Document)
	go func() {
		defer close(out)
		defer stream.Close(context.Background())
		for {
			docs, err := s.Query(ctx, q)
			if err != nil {
				log.WithError(err).WithField("collection", q.Collection).Warn("mongodb: subscription query failed")
				return
			}
			select {
			case out <- docs:
			case <-ctx.Done():
				return
			}
			if !stream.Next(ctx) {
				if err := stream.Err(); err != nil && ctx.Err() == nil {
					log.WithError(err).WithField("collection", q.Collection).Warn("mongodb: change stream ended")
				}
				return
			}
			// Collapse a burst of changes into a single query.
			for stream.RemainingBatchLength() > 0 && stream.Next(ctx) {
			}
		}
	}()
	return out, nil
}

// timestamp returns a creation time strictly after the previous one. BSON
// dates have millisecond precision, so that is the step.
func (s *Store) timestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := time.Now().UTC().Truncate(time.Millisecond)
	if !t.After(s.last) {
		t = s.last.Add(time.Millisecond)
	}
	s.last = t
	return t
}

func (rec record) toDocument() domain.Document {
	fields := domain.Fields{}
	for k, v := range rec.Fields {
		fields[k] = fromBSON(v)
	}
	return domain.Document{
		ID:        rec.ID,
		CreatedAt: rec.CreatedAt.UTC(),
		Fields:    fields,
	}
}

// fromBSON converts decoded BSON values back into plain Go values.
func fromBSON(v interface{}) interface{} {
	switch x := v.(type) {
	case primitive.DateTime:
		return x.Time().UTC()
	case primitive.M:
		out := map[string]interface{}{}
		for k, e := range x {
			out[k] = fromBSON(e)
		}
		return out
	case primitive.D:
		out := map[string]interface{}{}
		for _, e := range x {
			out[e.Key] = fromBSON(e.Value)
		}
		return out
	case primitive.A:
		out := make([]interface{}, 0, len(x))
		for _, e := range x {
			out = append(out, fromBSON(e))
		}
		return out
	}
	return v
}

func notFound(collection, id string) error {
	return errs.Errorf(errs.ENOTFOUND, "Document %s/%s does not exist.", collection, id)
}

// Package database provides the remote store backed by PostgreSQL. Every
// collection lives in a single documents table whose payload is a JSONB
// column, so the store keeps the schemaless contract of the other backends.
package database

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"forkChan/domain"
	"forkChan/errs"
)

// DefaultMaxRetries is the number of times a serialization failure is retried.
const DefaultMaxRetries = 5

var _ domain.RemoteStore = &Store{}

// document is one row of the documents table.
type document struct {
	Collection string `gorm:"primaryKey;size:64"`
	ID         string `gorm:"primaryKey;size:36"`
	// Seq breaks ties between rows created within the same clock tick.
	Seq       int64             `gorm:"autoIncrement;index"`
	CreatedAt time.Time         `gorm:"index"`
	Fields    datatypes.JSONMap `gorm:"type:jsonb"`
}

func (document) TableName() string {
	return "documents"
}

// Migrate creates or updates the documents table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&document{})
}

// DestructiveReset drops the documents table and rebuilds it.
func DestructiveReset(db *gorm.DB) error {
	if err := db.Migrator().DropTable(&document{}); err != nil {
		return err
	}
	return Migrate(db)
}

// Store is a domain.RemoteStore on top of gorm.
type Store struct {
	db         *gorm.DB
	maxRetries int
}

// Option configures a Store.
type Option func(*Store)

// WithMaxRetries sets how often a transaction hitting a serialization
// failure or a deadlock is re-run.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		s.maxRetries = n
	}
}

// NewStore returns a Store using db. The documents table must exist, see Migrate.
func NewStore(db *gorm.DB, opts ...Option) *Store {
	s := &Store{
		db:         db,
		maxRetries: DefaultMaxRetries,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create inserts a new row and returns its generated ID.
func (s *Store) Create(ctx context.Context, collection string, fields domain.Fields) (string, error) {
	row := document{
		Collection: collection,
		ID:         uuid.NewString(),
		Fields:     datatypes.JSONMap(fields),
	}
	if row.Fields == nil {
		row.Fields = datatypes.JSONMap{}
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return "", errs.Unavailable(err)
	}
	return row.ID, nil
}

// Get reads a single document.
func (s *Store) Get(ctx context.Context, collection, id string) (*domain.Document, error) {
	var row document
	err := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFound(collection, id)
	} else if err != nil {
		return nil, errs.Unavailable(err)
	}
	doc := row.toDocument()
	return &doc, nil
}

// Update merges fields into the JSONB payload of an existing row.
func (s *Store) Update(ctx context.Context, collection, id string, fields domain.Fields) error {
	return update(s.db.WithContext(ctx), domain.DocRef{Collection: collection, ID: id}, fields)
}

// Delete removes a row.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	res := s.db.WithContext(ctx).
		Where("collection = ? AND id = ?", collection, id).
		Delete(&document{})
	if res.Error != nil {
		return errs.Unavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(collection, id)
	}
	return nil
}

// Query selects the rows of a collection matching all filters.
func (s *Store) Query(ctx context.Context, q domain.Query) ([]domain.Document, error) {
	var rows []document
	if err := selectQuery(s.db.WithContext(ctx), q).Find(&rows).Error; err != nil {
		return nil, errs.Unavailable(err)
	}
	docs := make([]domain.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.toDocument())
	}
	return docs, nil
}

func selectQuery(db *gorm.DB, q domain.Query) *gorm.DB {
	tx := db.Where("collection = ?", q.Collection)
	for _, f := range q.Filters {
		tx = tx.Where(datatypes.JSONQuery("fields").Equals(f.Value, f.Field))
	}
	tx = tx.Order(orderBy(q))
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit)
	}
	return tx
}

// RunTransaction locks the rows of refs with SELECT ... FOR UPDATE, runs fn
// and applies its writes before committing. Serialization failures and
// deadlocks abort the attempt and fn runs again.
func (s *Store) RunTransaction(ctx context.Context, refs []domain.DocRef, fn domain.TxFunc) error {
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			docs := make([]*domain.Document, len(refs))
			for i, ref := range refs {
				var row document
				err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
					Where("collection = ? AND id = ?", ref.Collection, ref.ID).
					First(&row).Error
				if errors.Is(err, gorm.ErrRecordNotFound) {
					continue
				} else if err != nil {
					return err
				}
				doc := row.toDocument()
				docs[i] = &doc
			}
			w := &txWriter{writes: map[domain.DocRef]domain.Fields{}}
			if err := fn(docs, w); err != nil {
				return err
			}
			for _, ref := range w.order {
				if err := update(tx, ref, w.writes[ref]); err != nil {
					return err
				}
			}
			return nil
		})
		if err == nil {
			return nil
		}
		if retryable(err) {
			continue
		}
		var appErr *errs.Error
		if errors.As(err, &appErr) {
			return appErr
		}
		return errs.Unavailable(err)
	}
	return errs.Errorf(errs.ECONFLICT, "Transaction aborted after %d conflicting attempts.", s.maxRetries+1)
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

func update(db *gorm.DB, ref domain.DocRef, fields domain.Fields) error {
	res := db.Model(&document{}).
		Where("collection = ? AND id = ?", ref.Collection, ref.ID).
		Update("fields", gorm.Expr("fields || ?::jsonb", datatypes.JSONMap(fields)))
	if res.Error != nil {
		return errs.Unavailable(res.Error)
	}
	if res.RowsAffected == 0 {
		return notFound(ref.Collection, ref.ID)
	}
	return nil
}

// orderBy turns the sort order of q into an ORDER BY clause. Payload fields
// are compared as JSONB values, ties are broken by insertion order.
func orderBy(q domain.Query) clause.OrderBy {
	desc := q.Direction == domain.Descending
	var cols []clause.OrderByColumn
	switch q.OrderBy {
	case "":
	case domain.FieldCreatedAt:
		cols = append(cols, clause.OrderByColumn{Column: clause.Column{Name: "created_at"}, Desc: desc})
	default:
		return clause.OrderBy{Expression: clause.Expr{
			SQL:                "fields -> ?" + direction(desc) + ", seq" + direction(desc),
			Vars:               []interface{}{q.OrderBy},
			WithoutParentheses: true,
		}}
	}
	cols = append(cols, clause.OrderByColumn{Column: clause.Column{Name: "seq"}, Desc: desc})
	return clause.OrderBy{Columns: cols}
}

func direction(desc bool) string {
	if desc {
		return " DESC"
	}
	return ""
}

// retryable reports whether err is a serialization failure or a deadlock.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

func (row document) toDocument() domain.Document {
	fields := domain.Fields{}
	for k, v := range row.Fields {
		fields[k] = v
	}
	return domain.Document{
		ID:        row.ID,
		CreatedAt: row.CreatedAt,
		Fields:    fields,
	}
}

func notFound(collection, id string) error {
	return errs.Errorf(errs.ENOTFOUND, "Document %s/%s does not exist.", collection, id)
}

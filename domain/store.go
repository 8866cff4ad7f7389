package domain

import (
	"context"
	"time"
)

const (
	// CollectionPosts holds Post documents.
	CollectionPosts = "posts"
	// CollectionComments holds Comment documents, linked to a post through FieldPostID.
	CollectionComments = "comments"
	// CollectionLikes holds Like documents, at most one per (post, user) pair.
	CollectionLikes = "likes"
	// CollectionFollows holds Follow documents, at most one per (follower, followed) pair.
	CollectionFollows = "follows"
	// CollectionUsers holds User documents (accounts and profiles).
	CollectionUsers = "users"
	// CollectionChatRooms holds ChatRoom documents.
	CollectionChatRooms = "chat_rooms"
	// CollectionMessages holds Message documents, linked to a room through FieldRoomID.
	CollectionMessages = "messages"
)

const (
	// FieldCreatedAt is the store-assigned creation timestamp of every document.
	// Stores order on Document.CreatedAt when a query orders by this field.
	FieldCreatedAt    = "createdAt"
	FieldUserID       = "userId"
	FieldPostID       = "postId"
	FieldRoomID       = "roomId"
	FieldFollowerID   = "followerId"
	FieldFollowedID   = "followedId"
	FieldLikeCount    = "likeCount"
	FieldCommentCount = "commentCount"
	FieldEmail        = "email"
	FieldRememberHash = "rememberHash"
)

// Fields is the mutable payload of a document. Values are plain JSON-like
// values: strings, numbers, booleans, time.Time, nested maps and slices.
type Fields map[string]interface{}

// Document is one record of a remote store collection. The ID and the
// CreatedAt timestamp are assigned by the store on creation and are opaque to
// callers: CreatedAt is only ever compared, never interpreted.
type Document struct {
	ID        string
	CreatedAt time.Time
	Fields    Fields
}

// Direction is the sort order of a Query.
type Direction int

const (
	Ascending Direction = iota
	Descending
)

// Filter is an equality predicate on one field.
type Filter struct {
	Field string
	Value interface{}
}

// Where is a shorthand for building a Filter.
func Where(field string, value interface{}) Filter {
	return Filter{Field: field, Value: value}
}

// Query selects documents of one collection matching all Filters, ordered by
// OrderBy. An empty OrderBy leaves the order up to the store. A Limit of zero
// means no limit.
type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Direction  Direction
	Limit      int
}

// DocRef addresses a single document.
type DocRef struct {
	Collection string
	ID         string
}

// TxWriter buffers the writes of a transaction. Writes become visible
// atomically when the transaction function returns nil.
type TxWriter interface {
	Update(ref DocRef, fields Fields) error
}

// TxFunc receives the documents read for the refs passed to RunTransaction, in
// the same order. A nil entry means the document does not exist. The function
// may be invoked several times when the store retries on a write conflict, so
// it must not have side effects outside of tx.
type TxFunc func(docs []*Document, tx TxWriter) error

// RemoteStore is the client of the authoritative document database. Every
// method is a suspension point and may fail with a transport or backend error.
// Missing documents are reported with an errs.ENOTFOUND error.
type RemoteStore interface {
	Create(ctx context.Context, collection string, fields Fields) (string, error)
	Get(ctx context.Context, collection, id string) (*Document, error)
	Update(ctx context.Context, collection, id string, fields Fields) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, q Query) ([]Document, error)
	// RunTransaction atomically reads refs and applies the writes of fn. It
	// retries internally on write conflicts and fails with errs.ECONFLICT once
	// its retries are exhausted.
	RunTransaction(ctx context.Context, refs []DocRef, fn TxFunc) error
}

// Subscriber is implemented by stores that can push query results. Every
// value received on the channel is the complete, current result of q. The
// channel is closed when ctx is done or the subscription fails.
type Subscriber interface {
	Subscribe(ctx context.Context, q Query) (<-chan []Document, error)
}

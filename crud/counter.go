package crud

import (
	"context"

	"forkChan/domain"
	"forkChan/errs"
)

// adjustCounter adds delta to a denormalized counter of a post. The read and
// the write happen in one transaction, so concurrent adjustments from other
// clients are never lost. Counters don't go below zero.
func adjustCounter(ctx context.Context, store domain.RemoteStore, postID, field string, delta int) error {
	ref := domain.DocRef{Collection: domain.CollectionPosts, ID: postID}
	return store.RunTransaction(ctx, []domain.DocRef{ref}, func(docs []*domain.Document, tx domain.TxWriter) error {
		if docs[0] == nil {
			return errs.Errorf(errs.ENOTFOUND, "The post does not exist.")
		}
		n := intField(docs[0].Fields, field) + delta
		if n < 0 {
			n = 0
		}
		return tx.Update(ref, domain.Fields{field: n})
	})
}

// intField reads a numeric field whatever numeric type the store handed back.
func intField(fields domain.Fields, name string) int {
	switch n := fields[name].(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	}
	return 0
}

// decodeAll decodes documents into entities of type T.
func decodeAll[T any](docs []domain.Document) ([]T, error) {
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := domain.Decode(doc, &v); err != nil {
			return nil, errs.Errorf(errs.EINTERNAL, "Malformed %s document.", doc.ID)
		}
		out = append(out, v)
	}
	return out, nil
}

// deleteAll deletes documents, skipping the ones that are already gone.
func deleteAll(ctx context.Context, store domain.RemoteStore, collection string, docs []domain.Document) error {
	for _, doc := range docs {
		err := store.Delete(ctx, collection, doc.ID)
		if err != nil && !errs.Is(err, errs.ENOTFOUND) {
			return err
		}
	}
	return nil
}

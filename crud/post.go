package crud

import (
	"context"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"forkChan/domain"
	"forkChan/errs"
)

// MaxDescriptionLength is the maximum number of characters of a post description.
const MaxDescriptionLength = 280

// cascadeParallelism bounds the concurrent deletes of a post deletion.
const cascadeParallelism = 8

// PostService manages Posts.
// It implements the domain.PostService interface.
type PostService struct {
	postValidator
}

// postValidator runs validations on incoming Post data.
// On success, it passes the data on to postStore.
// Otherwise, it returns the error of the validation that has failed.
type postValidator struct {
	postStore
}

// postStore runs CRUD operations on the remote store using incoming Post data.
// It assumes that data has been validated. On success, it returns nil.
// Otherwise, it returns the error of the operation that has failed.
type postStore struct {
	store domain.RemoteStore
}

// NewPostService returns an instance of PostService.
func NewPostService(store domain.RemoteStore) *PostService {
	return &PostService{
		postValidator{
			postStore{
				store: store,
			},
		},
	}
}

// Ensure the PostService struct properly implements the domain.PostService interface.
// If it does not, then this expression becomes invalid and won't compile.
var _ domain.PostService = &PostService{}

// Create runs validations needed for creating new Post documents.
func (pv *postValidator) Create(ctx context.Context, post *domain.Post) error {
	err := runPostValFns(post,
		pv.authorIdValid,
		pv.countersZero,
		pv.contentMinLength,
		pv.contentMaxLength)
	if err != nil {
		return err
	}
	return pv.postStore.Create(ctx, post)
}

// Delete runs validations needed for deleting existing Post documents.
// post.AuthorID must hold the ID of the user asking for the deletion.
func (pv *postValidator) Delete(ctx context.Context, post *domain.Post) error {
	err := runPostValFns(post, pv.idValid, pv.authorIdValid)
	if err != nil {
		return err
	}
	stored, err := pv.postStore.ByID(ctx, post.ID)
	if err != nil {
		return err
	}
	if stored.AuthorID != post.AuthorID {
		return errs.Errorf(errs.EUNAUTHORIZED, "You are not allowed to delete this post.")
	}
	return pv.postStore.Delete(ctx, post)
}

// Recount runs validations needed for recomputing the counters of a post.
func (pv *postValidator) Recount(ctx context.Context, id string) (domain.Counts, error) {
	if err := pv.idValid(&domain.Post{ID: id}); err != nil {
		return domain.Counts{}, err
	}
	return pv.postStore.Recount(ctx, id)
}

// runPostValFns runs any number of functions of type postValFn on the passed in Post object.
// If none of them returns an error, it returns nil. Otherwise, it returns the respective error.
func runPostValFns(post *domain.Post, fns ...postValFn) error {
	for _, fn := range fns {
		if err := fn(post); err != nil {
			return err
		}
	}
	return nil
}

// A postValFn is any function that takes in a pointer to a domain.Post object and returns an error.
type postValFn = func(post *domain.Post) error

// contentMinLength makes sure that the post has a description or an image.
func (pv *postValidator) contentMinLength(post *domain.Post) error {
	if strings.TrimSpace(post.Description) == "" && post.Image == "" {
		return errs.Errorf(errs.EINVALID, "Post description must not be empty.")
	}
	return nil
}

// contentMaxLength makes sure that the description does not exceed the maximum length.
func (pv *postValidator) contentMaxLength(post *domain.Post) error {
	if utf8.RuneCountInString(post.Description) > MaxDescriptionLength {
		return errs.Errorf(errs.EINVALID, "Post description max length is %d characters.", MaxDescriptionLength)
	}
	return nil
}

// countersZero resets the counters: a new post has no likes and no comments.
func (pv *postValidator) countersZero(post *domain.Post) error {
	post.LikeCount = 0
	post.CommentCount = 0
	return nil
}

// idValid makes sure that the ID of the post is not empty.
func (pv *postValidator) idValid(post *domain.Post) error {
	if post.ID == "" {
		return errs.IdInvalid
	}
	return nil
}

// authorIdValid ensures that the author's ID is not empty.
func (pv *postValidator) authorIdValid(post *domain.Post) error {
	if post.AuthorID == "" {
		return errs.UserIdValid
	}
	return nil
}

// ByID retrieves a single Post by ID.
func (ps *postStore) ByID(ctx context.Context, id string) (*domain.Post, error) {
	doc, err := ps.store.Get(ctx, domain.CollectionPosts, id)
	if err != nil {
		if errs.Is(err, errs.ENOTFOUND) {
			return nil, errs.Errorf(errs.ENOTFOUND, "The post does not exist.")
		}
		return nil, err
	}
	var post domain.Post
	if err := domain.Decode(*doc, &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// Feed retrieves all posts, newest first.
func (ps *postStore) Feed(ctx context.Context) ([]domain.Post, error) {
	return ps.query(ctx, nil)
}

// ByAuthor retrieves the posts of one user, newest first.
func (ps *postStore) ByAuthor(ctx context.Context, userID string) ([]domain.Post, error) {
	return ps.query(ctx, []domain.Filter{domain.Where(domain.FieldUserID, userID)})
}

func (ps *postStore) query(ctx context.Context, filters []domain.Filter) ([]domain.Post, error) {
	docs, err := ps.store.Query(ctx, domain.Query{
		Collection: domain.CollectionPosts,
		Filters:    filters,
		OrderBy:    domain.FieldCreatedAt,
		Direction:  domain.Descending,
	})
	if err != nil {
		return nil, err
	}
	return decodeAll[domain.Post](docs)
}

// Create stores the data from the Post object in a new document and fills in
// the ID and timestamp assigned by the store.
func (ps *postStore) Create(ctx context.Context, post *domain.Post) error {
	fields, err := domain.FieldsOf(post)
	if err != nil {
		return err
	}
	id, err := ps.store.Create(ctx, domain.CollectionPosts, fields)
	if err != nil {
		return err
	}
	created, err := ps.ByID(ctx, id)
	if err != nil {
		return err
	}
	*post = *created
	return nil
}

// Delete removes a post along with its comments and likes. The dependents go
// first: if the deletion is interrupted the post is still there and the
// deletion can be retried.
func (ps *postStore) Delete(ctx context.Context, post *domain.Post) error {
	for _, collection := range []string{domain.CollectionComments, domain.CollectionLikes} {
		docs, err := ps.store.Query(ctx, domain.Query{
			Collection: collection,
			Filters:    []domain.Filter{domain.Where(domain.FieldPostID, post.ID)},
		})
		if err != nil {
			return err
		}
		if err := ps.deleteConcurrently(ctx, collection, docs); err != nil {
			return err
		}
	}
	err := ps.store.Delete(ctx, domain.CollectionPosts, post.ID)
	if err != nil && errs.Is(err, errs.ENOTFOUND) {
		return errs.Errorf(errs.ENOTFOUND, "The post does not exist.")
	}
	return err
}

func (ps *postStore) deleteConcurrently(ctx context.Context, collection string, docs []domain.Document) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cascadeParallelism)
	for _, doc := range docs {
		doc := doc
		g.Go(func() error {
			return deleteAll(gctx, ps.store, collection, []domain.Document{doc})
		})
	}
	return g.Wait()
}

// Recount recomputes the like and comment counters of a post from the Like
// and Comment documents and writes them back.
func (ps *postStore) Recount(ctx context.Context, id string) (domain.Counts, error) {
	var counts domain.Counts
	for _, c := range []struct {
		collection string
		n          *int
	}{
		{domain.CollectionLikes, &counts.Likes},
		{domain.CollectionComments, &counts.Comments},
	} {
		docs, err := ps.store.Query(ctx, domain.Query{
			Collection: c.collection,
			Filters:    []domain.Filter{domain.Where(domain.FieldPostID, id)},
		})
		if err != nil {
			return domain.Counts{}, err
		}
		*c.n = len(docs)
	}
	ref := domain.DocRef{Collection: domain.CollectionPosts, ID: id}
	err := ps.store.RunTransaction(ctx, []domain.DocRef{ref}, func(docs []*domain.Document, tx domain.TxWriter) error {
		if docs[0] == nil {
			return errs.Errorf(errs.ENOTFOUND, "The post does not exist.")
		}
		return tx.Update(ref, domain.Fields{
			domain.FieldLikeCount:    counts.Likes,
			domain.FieldCommentCount: counts.Comments,
		})
	})
	if err != nil {
		return domain.Counts{}, err
	}
	return counts, nil
}

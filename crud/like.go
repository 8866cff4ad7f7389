package crud

import (
	"context"

	"forkChan/domain"
	"forkChan/errs"
)

// LikeService manages Likes.
// It implements the domain.LikeService interface.
type LikeService struct {
	likeValidator
}

// likeValidator runs validations on incoming Like data.
// On success, it passes the data on to likeStore.
// Otherwise, it returns the error of the validation that has failed.
type likeValidator struct {
	likeStore
}

// likeStore runs CRUD operations on the remote store using incoming Like data.
// It assumes that data has been validated. On success, it returns nil.
// Otherwise, it returns the error of the operation that has failed.
type likeStore struct {
	store domain.RemoteStore
}

// NewLikeService returns an instance of LikeService.
func NewLikeService(store domain.RemoteStore) *LikeService {
	return &LikeService{
		likeValidator{
			likeStore{
				store: store,
			},
		},
	}
}

// Ensure the LikeService struct properly implements the domain.LikeService interface.
// If it does not, then this expression becomes invalid and won't compile.
var _ domain.LikeService = &LikeService{}

// Set runs validations needed for liking or unliking a post.
func (lv *likeValidator) Set(ctx context.Context, postID, userID string, liked bool) (bool, error) {
	err := runLikeValFns(&domain.Like{PostID: postID, UserID: userID},
		lv.userIdValid,
		lv.postIdValid)
	if err != nil {
		return false, err
	}
	return lv.likeStore.Set(ctx, postID, userID, liked)
}

// runLikeValFns runs any number of functions of type likeValFn on the passed in Like object.
// If none of them returns an error, it returns nil. Otherwise, it returns the respective error.
func runLikeValFns(like *domain.Like, fns ...likeValFn) error {
	for _, fn := range fns {
		if err := fn(like); err != nil {
			return err
		}
	}
	return nil
}

// A likeValFn is any function that takes in a pointer to a domain.Like object and returns an error.
type likeValFn func(like *domain.Like) error

// userIdValid ensures that the userId is not empty.
func (lv *likeValidator) userIdValid(like *domain.Like) error {
	if like.UserID == "" {
		return errs.UserIdValid
	}
	return nil
}

// postIdValid ensures that the postId is not empty.
func (lv *likeValidator) postIdValid(like *domain.Like) error {
	if like.PostID == "" {
		return errs.IdInvalid
	}
	return nil
}

// Set drives the like of the user on the post to the wanted state.
//
// The existing Like documents are queried first. Liking creates a Like only
// when there is none and then bumps the counter; unliking deletes every Like
// of the pair and decrements the counter by the number deleted. If the
// counter update fails, the document write is reverted so the counter and
// the Like collection stay consistent.
func (ls *likeStore) Set(ctx context.Context, postID, userID string, liked bool) (bool, error) {
	if _, err := ls.store.Get(ctx, domain.CollectionPosts, postID); err != nil {
		if errs.Is(err, errs.ENOTFOUND) {
			return false, errs.Errorf(errs.ENOTFOUND, "The liked post does not exist.")
		}
		return false, err
	}
	existing, err := ls.byPair(ctx, postID, userID)
	if err != nil {
		return false, err
	}
	if liked {
		if len(existing) > 0 {
			return false, nil
		}
		fields, err := domain.FieldsOf(&domain.Like{PostID: postID, UserID: userID})
		if err != nil {
			return false, err
		}
		id, err := ls.store.Create(ctx, domain.CollectionLikes, fields)
		if err != nil {
			return false, err
		}
		if err := adjustCounter(ctx, ls.store, postID, domain.FieldLikeCount, 1); err != nil {
			_ = ls.store.Delete(context.WithoutCancel(ctx), domain.CollectionLikes, id)
			return false, err
		}
		return true, nil
	}

	if len(existing) == 0 {
		return false, nil
	}
	var deleted int
	for _, doc := range existing {
		err := ls.store.Delete(ctx, domain.CollectionLikes, doc.ID)
		if errs.Is(err, errs.ENOTFOUND) {
			continue
		}
		if err != nil {
			return deleted > 0, err
		}
		deleted++
	}
	if deleted == 0 {
		return false, nil
	}
	if err := adjustCounter(ctx, ls.store, postID, domain.FieldLikeCount, -deleted); err != nil {
		if fields, ferr := domain.FieldsOf(&domain.Like{PostID: postID, UserID: userID}); ferr == nil {
			_, _ = ls.store.Create(context.WithoutCancel(ctx), domain.CollectionLikes, fields)
		}
		return false, err
	}
	return true, nil
}

// Exists reports whether the user likes the post.
func (ls *likeStore) Exists(ctx context.Context, postID, userID string) (bool, error) {
	docs, err := ls.byPair(ctx, postID, userID)
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

// LikedPostIDs returns the IDs of all posts the user likes.
func (ls *likeStore) LikedPostIDs(ctx context.Context, userID string) (map[string]bool, error) {
	docs, err := ls.store.Query(ctx, domain.Query{
		Collection: domain.CollectionLikes,
		Filters:    []domain.Filter{domain.Where(domain.FieldUserID, userID)},
	})
	if err != nil {
		return nil, err
	}
	likes, err := decodeAll[domain.Like](docs)
	if err != nil {
		return nil, err
	}
	ids := make(map[string]bool, len(likes))
	for _, like := range likes {
		ids[like.PostID] = true
	}
	return ids, nil
}

func (ls *likeStore) byPair(ctx context.Context, postID, userID string) ([]domain.Document, error) {
	return ls.store.Query(ctx, domain.Query{
		Collection: domain.CollectionLikes,
		Filters: []domain.Filter{
			domain.Where(domain.FieldPostID, postID),
			domain.Where(domain.FieldUserID, userID),
		},
	})
}

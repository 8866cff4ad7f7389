package crud

import (
	"context"

	"forkChan/domain"
	"forkChan/errs"
)

// FollowService manages Follows.
// It implements the domain.FollowService interface.
type FollowService struct {
	followValidator
}

// followValidator runs validations on incoming Follow data.
// On success, it passes the data on to followStore.
// Otherwise, it returns the error of the validation that has failed.
type followValidator struct {
	followStore
}

// followStore runs CRUD operations on the remote store using incoming Follow data.
// It assumes that data has been validated. On success, it returns nil.
// Otherwise, it returns the error of the operation that has failed.
type followStore struct {
	store domain.RemoteStore
}

// NewFollowService returns an instance of FollowService.
func NewFollowService(store domain.RemoteStore) *FollowService {
	return &FollowService{
		followValidator{
			followStore{
				store: store,
			},
		},
	}
}

// Ensure the FollowService struct properly implements the domain.FollowService interface.
// If it does not, then this expression becomes invalid and won't compile.
var _ domain.FollowService = &FollowService{}

// Create runs validations needed for creating new Follow documents.
func (fv *followValidator) Create(ctx context.Context, follow *domain.Follow) error {
	err := runFollowValFns(follow,
		fv.followerIdValid,
		fv.followedIdValid,
		fv.notFollowingSelf)
	if err != nil {
		return err
	}
	if err := fv.followedExists(ctx, follow); err != nil {
		return err
	}
	if err := fv.notAlreadyFollowing(ctx, follow); err != nil {
		return err
	}
	return fv.followStore.Create(ctx, follow)
}

// Delete runs validations needed for deleting existing Follow documents.
func (fv *followValidator) Delete(ctx context.Context, follow *domain.Follow) error {
	err := runFollowValFns(follow,
		fv.followerIdValid,
		fv.followedIdValid)
	if err != nil {
		return err
	}
	return fv.followStore.Delete(ctx, follow)
}

// runFollowValFns runs any number of functions of type followValFn on the passed in Follow object.
// If none of them returns an error, it returns nil. Otherwise, it returns the respective error.
func runFollowValFns(follow *domain.Follow, fns ...followValFn) error {
	for _, fn := range fns {
		if err := fn(follow); err != nil {
			return err
		}
	}
	return nil
}

// A followValFn is any function that takes in a pointer to a domain.Follow object and returns an error.
type followValFn func(follow *domain.Follow) error

// followerIdValid ensures that the followerId is not empty.
func (fv *followValidator) followerIdValid(follow *domain.Follow) error {
	if follow.FollowerID == "" {
		return errs.UserIdValid
	}
	return nil
}

// followedIdValid ensures that the followedId is not empty.
func (fv *followValidator) followedIdValid(follow *domain.Follow) error {
	if follow.FollowedID == "" {
		return errs.IdInvalid
	}
	return nil
}

// notFollowingSelf makes sure that users don't follow themselves.
func (fv *followValidator) notFollowingSelf(follow *domain.Follow) error {
	if follow.FollowerID == follow.FollowedID {
		return errs.Errorf(errs.EINVALID, "You cannot follow yourself.")
	}
	return nil
}

// followedExists makes sure that the user to be followed actually exists.
func (fv *followValidator) followedExists(ctx context.Context, follow *domain.Follow) error {
	_, err := fv.store.Get(ctx, domain.CollectionUsers, follow.FollowedID)
	if errs.Is(err, errs.ENOTFOUND) {
		return errs.Errorf(errs.ENOTFOUND, "The followed user does not exist.")
	}
	return err
}

// notAlreadyFollowing makes sure that the follower doesn't already follow the followed user.
func (fv *followValidator) notAlreadyFollowing(ctx context.Context, follow *domain.Follow) error {
	ok, err := fv.followStore.Exists(ctx, follow.FollowerID, follow.FollowedID)
	if err != nil {
		return err
	}
	if ok {
		return errs.Errorf(errs.ECONFLICT, "You already follow that user.")
	}
	return nil
}

// Create stores the data from the Follow object in a new document.
func (fs *followStore) Create(ctx context.Context, follow *domain.Follow) error {
	fields, err := domain.FieldsOf(follow)
	if err != nil {
		return err
	}
	id, err := fs.store.Create(ctx, domain.CollectionFollows, fields)
	if err != nil {
		return err
	}
	doc, err := fs.store.Get(ctx, domain.CollectionFollows, id)
	if err != nil {
		return err
	}
	return domain.Decode(*doc, follow)
}

// Delete removes every Follow document of the (follower, followed) pair.
func (fs *followStore) Delete(ctx context.Context, follow *domain.Follow) error {
	docs, err := fs.byPair(ctx, follow.FollowerID, follow.FollowedID)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return errs.Errorf(errs.ENOTFOUND, "You cannot unfollow a user you are not following.")
	}
	return deleteAll(ctx, fs.store, domain.CollectionFollows, docs)
}

// Exists reports whether the follower follows the followed user.
func (fs *followStore) Exists(ctx context.Context, followerID, followedID string) (bool, error) {
	docs, err := fs.byPair(ctx, followerID, followedID)
	if err != nil {
		return false, err
	}
	return len(docs) > 0, nil
}

// Followers retrieves the Follows pointing at a user, newest first.
func (fs *followStore) Followers(ctx context.Context, userID string) ([]domain.Follow, error) {
	return fs.query(ctx, domain.Where(domain.FieldFollowedID, userID))
}

// Following retrieves the Follows a user has created, newest first.
func (fs *followStore) Following(ctx context.Context, userID string) ([]domain.Follow, error) {
	return fs.query(ctx, domain.Where(domain.FieldFollowerID, userID))
}

func (fs *followStore) query(ctx context.Context, filter domain.Filter) ([]domain.Follow, error) {
	docs, err := fs.store.Query(ctx, domain.Query{
		Collection: domain.CollectionFollows,
		Filters:    []domain.Filter{filter},
		OrderBy:    domain.FieldCreatedAt,
		Direction:  domain.Descending,
	})
	if err != nil {
		return nil, err
	}
	return decodeAll[domain.Follow](docs)
}

func (fs *followStore) byPair(ctx context.Context, followerID, followedID string) ([]domain.Document, error) {
	return fs.store.Query(ctx, domain.Query{
		Collection: domain.CollectionFollows,
		Filters: []domain.Filter{
			domain.Where(domain.FieldFollowerID, followerID),
			domain.Where(domain.FieldFollowedID, followedID),
		},
	})
}

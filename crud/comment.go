package crud

import (
	"context"
	"strings"
	"unicode/utf8"

	"forkChan/domain"
	"forkChan/errs"
)

// MaxCommentLength is the maximum number of characters of a comment.
const MaxCommentLength = 280

// CommentService manages Comments.
// It implements the domain.CommentService interface.
type CommentService struct {
	commentValidator
}

// commentValidator runs validations on incoming Comment data.
// On success, it passes the data on to commentStore.
// Otherwise, it returns the error of the validation that has failed.
type commentValidator struct {
	commentStore
}

// commentStore runs CRUD operations on the remote store using incoming Comment data.
// It assumes that data has been validated. On success, it returns nil.
// Otherwise, it returns the error of the operation that has failed.
type commentStore struct {
	store domain.RemoteStore
}

// NewCommentService returns an instance of CommentService.
func NewCommentService(store domain.RemoteStore) *CommentService {
	return &CommentService{
		commentValidator{
			commentStore{
				store: store,
			},
		},
	}
}

// Ensure the CommentService struct properly implements the domain.CommentService interface.
// If it does not, then this expression becomes invalid and won't compile.
var _ domain.CommentService = &CommentService{}

// Create runs validations needed for creating new Comment documents.
func (cv *commentValidator) Create(ctx context.Context, comment *domain.Comment) error {
	err := runCommentValFns(comment,
		cv.authorIdValid,
		cv.postIdValid,
		cv.textMinLength,
		cv.textMaxLength)
	if err != nil {
		return err
	}
	return cv.commentStore.Create(ctx, comment)
}

// runCommentValFns runs any number of functions of type commentValFn on the passed in Comment object.
// If none of them returns an error, it returns nil. Otherwise, it returns the respective error.
func runCommentValFns(comment *domain.Comment, fns ...commentValFn) error {
	for _, fn := range fns {
		if err := fn(comment); err != nil {
			return err
		}
	}
	return nil
}

// A commentValFn is any function that takes in a pointer to a domain.Comment object and returns an error.
type commentValFn func(comment *domain.Comment) error

func (cv *commentValidator) authorIdValid(comment *domain.Comment) error {
	if comment.AuthorID == "" {
		return errs.UserIdValid
	}
	return nil
}

func (cv *commentValidator) postIdValid(comment *domain.Comment) error {
	if comment.PostID == "" {
		return errs.IdInvalid
	}
	return nil
}

func (cv *commentValidator) textMinLength(comment *domain.Comment) error {
	comment.Text = strings.TrimSpace(comment.Text)
	if comment.Text == "" {
		return errs.Errorf(errs.EINVALID, "Comment text must not be empty.")
	}
	return nil
}

func (cv *commentValidator) textMaxLength(comment *domain.Comment) error {
	if utf8.RuneCountInString(comment.Text) > MaxCommentLength {
		return errs.Errorf(errs.EINVALID, "Comment text max length is %d characters.", MaxCommentLength)
	}
	return nil
}

// ByPost retrieves the comments of a post, oldest first.
func (cs *commentStore) ByPost(ctx context.Context, postID string) ([]domain.Comment, error) {
	docs, err := cs.store.Query(ctx, domain.Query{
		Collection: domain.CollectionComments,
		Filters:    []domain.Filter{domain.Where(domain.FieldPostID, postID)},
		OrderBy:    domain.FieldCreatedAt,
		Direction:  domain.Ascending,
	})
	if err != nil {
		return nil, err
	}
	return decodeAll[domain.Comment](docs)
}

// Create stores the comment and bumps the comment counter of its post. The
// comment is removed again if the counter can't be updated.
func (cs *commentStore) Create(ctx context.Context, comment *domain.Comment) error {
	if _, err := cs.store.Get(ctx, domain.CollectionPosts, comment.PostID); err != nil {
		if errs.Is(err, errs.ENOTFOUND) {
			return errs.Errorf(errs.ENOTFOUND, "The commented post does not exist.")
		}
		return err
	}
	fields, err := domain.FieldsOf(comment)
	if err != nil {
		return err
	}
	id, err := cs.store.Create(ctx, domain.CollectionComments, fields)
	if err != nil {
		return err
	}
	if err := adjustCounter(ctx, cs.store, comment.PostID, domain.FieldCommentCount, 1); err != nil {
		_ = cs.store.Delete(context.WithoutCancel(ctx), domain.CollectionComments, id)
		return err
	}
	doc, err := cs.store.Get(ctx, domain.CollectionComments, id)
	if err != nil {
		return err
	}
	return domain.Decode(*doc, comment)
}

package crud

import (
	"forkChan/domain"
	"forkChan/storage"
)

// A ServicesConfig is any function that takes in a pointer to a Services
// object and returns an error. It's basically just wrapping the constructor
// method of any given crud service. It exists to be able to easily create
// the crud services using functional options in main.go.
type ServicesConfig func(*Services) error

// Services is a container object holding pointers to all the crud services.
// The crud services all share the remote store provided by Services.
type Services struct {
	store   domain.RemoteStore
	User    *UserService
	Post    *PostService
	Comment *CommentService
	Like    *LikeService
	Follow  *FollowService
	Chat    *ChatService
	Image   *storage.ImageService
}

// NewServices returns a new Services object, containing any crud services
// it's told to create by one of the passed in ServicesConfig functions.
// It shares the passed in remote store with any crud service it creates.
func NewServices(store domain.RemoteStore, cfgs ...ServicesConfig) (*Services, error) {
	s := Services{
		store: store,
	}
	for _, cfg := range cfgs {
		if err := cfg(&s); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

// Store returns the remote store shared by the services.
func (s *Services) Store() domain.RemoteStore {
	return s.store
}

// WithUser wraps the constructor of UserService, NewUserService.
func WithUser(hmacKey, pepper string) ServicesConfig {
	return func(s *Services) error {
		s.User = NewUserService(s.store, hmacKey, pepper)
		return nil
	}
}

// WithPost wraps the constructor of PostService, NewPostService.
func WithPost() ServicesConfig {
	return func(s *Services) error {
		s.Post = NewPostService(s.store)
		return nil
	}
}

// WithComment wraps the constructor of CommentService, NewCommentService.
func WithComment() ServicesConfig {
	return func(s *Services) error {
		s.Comment = NewCommentService(s.store)
		return nil
	}
}

// WithLike wraps the constructor of LikeService, NewLikeService.
func WithLike() ServicesConfig {
	return func(s *Services) error {
		s.Like = NewLikeService(s.store)
		return nil
	}
}

// WithFollow wraps the constructor of FollowService, NewFollowService.
func WithFollow() ServicesConfig {
	return func(s *Services) error {
		s.Follow = NewFollowService(s.store)
		return nil
	}
}

// WithChat wraps the constructor of ChatService, NewChatService.
func WithChat() ServicesConfig {
	return func(s *Services) error {
		s.Chat = NewChatService(s.store)
		return nil
	}
}

// WithImage wraps the constructor of ImageService, storage.NewImageService.
func WithImage(maxSize int64) ServicesConfig {
	return func(s *Services) error {
		s.Image = storage.NewImageService(maxSize)
		return nil
	}
}

// WithAll creates every service with the given secrets and image size limit.
func WithAll(hmacKey, pepper string, maxImageSize int64) ServicesConfig {
	return func(s *Services) error {
		for _, cfg := range []ServicesConfig{
			WithUser(hmacKey, pepper),
			WithPost(),
			WithComment(),
			WithLike(),
			WithFollow(),
			WithChat(),
			WithImage(maxImageSize),
		} {
			if err := cfg(s); err != nil {
				return err
			}
		}
		return nil
	}
}

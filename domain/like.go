package domain

import (
	"context"
	"time"
)

// Like represents a many-to-many relationship between a User and a Post.
// A Like is created when a user decides to like a post. It's destroyed when
// a user decides to unlike a previously liked post, or when the post gets deleted.
// Its existence is the only source of truth for "does user X like post Y".
type Like struct {
	ID     string `json:"id" mapstructure:"-"`
	PostID string `json:"post_id" mapstructure:"postId"`
	UserID string `json:"user_id" mapstructure:"userId"`
}

func (l *Like) setMeta(id string, _ time.Time) {
	l.ID = id
}

// LikeService is a set of methods to manipulate and work with the Like model.
type LikeService interface {
	// Set drives the (post, user) pair to the wanted state and reports
	// whether anything had to change.
	Set(ctx context.Context, postID, userID string, liked bool) (bool, error)
	Exists(ctx context.Context, postID, userID string) (bool, error)
	LikedPostIDs(ctx context.Context, userID string) (map[string]bool, error)
}

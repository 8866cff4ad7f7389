package domain

import (
	"context"
	"time"
)

// Comment belongs to exactly one Post. Comments are never edited; they are
// removed only as part of deleting their post.
type Comment struct {
	ID           string    `json:"id" mapstructure:"-"`
	PostID       string    `json:"post_id" mapstructure:"postId"`
	AuthorID     string    `json:"user_id" mapstructure:"userId"`
	AuthorName   string    `json:"username" mapstructure:"username"`
	AuthorAvatar string    `json:"user_profile_pic_url" mapstructure:"userProfilePicUrl"`
	Text         string    `json:"text" mapstructure:"text"`
	CreatedAt    time.Time `json:"created_at" mapstructure:"-"`
}

func (c *Comment) setMeta(id string, createdAt time.Time) {
	c.ID = id
	c.CreatedAt = createdAt
}

// CommentService is a set of methods to manipulate and work with the Comment model.
type CommentService interface {
	ByPost(ctx context.Context, postID string) ([]Comment, error)
	Create(ctx context.Context, comment *Comment) error
}

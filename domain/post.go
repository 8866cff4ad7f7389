package domain

import (
	"context"
	"time"
)

// Post is an entry of the feed. Its ID and CreatedAt are assigned by the
// remote store. LikeCount and CommentCount are denormalized counters: they are
// only authoritative at the store and may only be changed through a transaction.
//
// Image holds either an inline base64 payload or a remote reference (a value
// starting with a URL scheme), see the storage package.
type Post struct {
	ID           string    `json:"id" mapstructure:"-"`
	AuthorID     string    `json:"user_id" mapstructure:"userId"`
	AuthorName   string    `json:"username" mapstructure:"username"`
	AuthorAvatar string    `json:"user_profile_pic_url" mapstructure:"userProfilePicUrl"`
	Description  string    `json:"description" mapstructure:"description"`
	Image        string    `json:"image,omitempty" mapstructure:"imageUrl"`
	LikeCount    int       `json:"like_count" mapstructure:"likeCount"`
	CommentCount int       `json:"comment_count" mapstructure:"commentCount"`
	CreatedAt    time.Time `json:"created_at" mapstructure:"-"`
}

func (p *Post) setMeta(id string, createdAt time.Time) {
	p.ID = id
	p.CreatedAt = createdAt
}

// Counts is the pair of denormalized counters of a Post.
type Counts struct {
	Likes    int `json:"likes"`
	Comments int `json:"comments"`
}

// PostService is a set of methods to manipulate and work with the Post model.
type PostService interface {
	ByID(ctx context.Context, id string) (*Post, error)
	Feed(ctx context.Context) ([]Post, error)
	ByAuthor(ctx context.Context, userID string) ([]Post, error)
	Create(ctx context.Context, post *Post) error
	Delete(ctx context.Context, post *Post) error
	Recount(ctx context.Context, id string) (Counts, error)
}

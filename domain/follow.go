package domain

import (
	"context"
	"time"
)

// Follow represents a self-referential many-to-may relationship between two users.
// A Follow is created when one user decides to follow another user.
// The FollowerID is the ID of the user that follows, and the FollowedID is the ID of the
// user that is being followed. At most one Follow exists per (follower, followed) pair.
type Follow struct {
	ID         string    `json:"id" mapstructure:"-"`
	FollowerID string    `json:"follower_id" mapstructure:"followerId"`
	FollowedID string    `json:"followed_id" mapstructure:"followedId"`
	CreatedAt  time.Time `json:"created_at" mapstructure:"-"`
}

func (f *Follow) setMeta(id string, createdAt time.Time) {
	f.ID = id
	f.CreatedAt = createdAt
}

// FollowService is a set of methods to manipulate and work with the Follow model.
type FollowService interface {
	Create(ctx context.Context, follow *Follow) error
	Delete(ctx context.Context, follow *Follow) error
	Exists(ctx context.Context, followerID, followedID string) (bool, error)
	Followers(ctx context.Context, userID string) ([]Follow, error)
	Following(ctx context.Context, userID string) ([]Follow, error)
}

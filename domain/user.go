package domain

import (
	"context"
	"time"
)

// User is an account of the app together with its public profile.
// Password and Remember only ever live in memory: what gets stored are their
// hashes.
type User struct {
	ID           string    `json:"id" mapstructure:"-"`
	Name         string    `json:"name" mapstructure:"name"`
	Email        string    `json:"email" mapstructure:"email"`
	Avatar       string    `json:"avatar" mapstructure:"avatar"`
	Bio          string    `json:"bio" mapstructure:"bio"`
	Password     string    `json:"password,omitempty" mapstructure:"-"`
	PasswordHash string    `json:"-" mapstructure:"passwordHash"`
	Remember     string    `json:"-" mapstructure:"-"`
	RememberHash string    `json:"-" mapstructure:"rememberHash"`
	CreatedAt    time.Time `json:"created_at" mapstructure:"-"`
}

func (u *User) setMeta(id string, createdAt time.Time) {
	u.ID = id
	u.CreatedAt = createdAt
}

// Session returns the session of the signed in user.
func (u *User) Session() Session {
	return Session{UserID: u.ID, DisplayName: u.Name, Avatar: u.Avatar}
}

// ProfileUpdate holds the profile fields a user may change. Nil fields are left alone.
type ProfileUpdate struct {
	Name   *string `json:"name"`
	Avatar *string `json:"avatar"`
	Bio    *string `json:"bio"`
}

// UserService is a set of methods to manipulate and work with the User model.
type UserService interface {
	ByID(ctx context.Context, id string) (*User, error)
	ByRemember(ctx context.Context, token string) (*User, error)
	Authenticate(ctx context.Context, email, password string) (*User, error)
	Create(ctx context.Context, user *User) error
	SignIn(ctx context.Context, user *User) error
	SignOut(ctx context.Context, user *User) error
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*User, error)
}

// Package auth resolves the signed in user of a request from its remember
// token cookie and carries it through the request context.
package auth

import (
	"context"

	"forkChan/domain"
)

const (
	userKey privateKey = "user"
)

type privateKey string

// SetUser returns a copy of ctx carrying user.
func SetUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// GetUser returns the user set by SetUser, or nil.
func GetUser(ctx context.Context) *domain.User {
	if temp := ctx.Value(userKey); temp != nil {
		if user, ok := temp.(*domain.User); ok {
			return user
		}
	}
	return nil
}

// GetSession returns the session of the user in ctx. Without a user it is
// the anonymous session.
func GetSession(ctx context.Context) domain.Session {
	if user := GetUser(ctx); user != nil {
		return user.Session()
	}
	return domain.Session{}
}

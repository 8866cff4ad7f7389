package auth

import (
	"net/http"
	"strings"

	log "github.com/sirupsen/logrus"

	"forkChan/domain"
	"forkChan/errs"
)

// CookieName is the name of the cookie holding the remember token.
const CookieName = "remember_token"

// UserMw looks up the user of every request by its remember token.
type UserMw struct {
	UserService domain.UserService
}

// Apply wraps next with the user lookup.
func (mw *UserMw) Apply(next http.Handler) http.Handler {
	return mw.ApplyFn(next.ServeHTTP)
}

// ApplyFn sets the user owning the remember token cookie in the request
// context. Requests without a valid token pass through anonymously.
func (mw *UserMw) ApplyFn(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// Metrics scrapes never need a user.
		if strings.HasPrefix(r.URL.Path, "/metrics") {
			next(w, r)
			return
		}
		cookie, err := r.Cookie(CookieName)
		if err != nil || cookie.Value == "" {
			next(w, r)
			return
		}
		user, err := mw.UserService.ByRemember(r.Context(), cookie.Value)
		if err != nil {
			if !errs.Is(err, errs.ENOTFOUND) && !errs.Is(err, errs.EINVALID) {
				log.WithError(err).Warn("auth: remember token lookup failed")
			}
			next(w, r)
			return
		}
		next(w, r.WithContext(SetUser(r.Context(), user)))
	}
}

// RequireUser assumes that UserMw has already run. It rejects requests
// without a signed in user.
func RequireUser(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if GetUser(r.Context()) == nil {
			errs.ReturnError(w, r, errs.Errorf(errs.EUNAUTHENTICATED, "You must be signed in to do that."))
			return
		}
		next(w, r)
	}
}

// SetCookie hands the remember token of user to the client.
func SetCookie(w http.ResponseWriter, user *domain.User) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    user.Remember,
		Path:     "/",
		HttpOnly: true,
	})
}

// ClearCookie removes the remember token from the client.
func ClearCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
}

package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"forkChan/auth"
	"forkChan/domain"
	"forkChan/errs"
)

func (s *Server) registerUserRoutes(r *mux.Router) {
	// Get the profile data of a specific user.
	r.HandleFunc("/profile/{id}", s.handleGetProfile).Methods("GET")

	// Update the authed user's profile.
	r.HandleFunc("/profile", auth.RequireUser(s.handleUpdateProfile)).Methods("PUT")
}

// profile is a user as shown to other users.
type profile struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Avatar    string `json:"avatar"`
	Bio       string `json:"bio"`
	Following bool   `json:"following"`
}

// handleGetProfile handles the route "GET /profile/{id}".
// It returns the public profile of a user and whether the authed user follows them.
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	// Fetch the user from the store.
	user, err := s.services.User.ByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Check if the authed user is following that user.
	c, _ := s.sessions.get(auth.GetSession(r.Context()))
	following, err := c.IsFollowing(r.Context(), user.ID)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	respond(w, r, http.StatusOK, profile{
		ID:        user.ID,
		Name:      domain.Session{DisplayName: user.Name}.Name(),
		Avatar:    user.Avatar,
		Bio:       user.Bio,
		Following: following,
	})
}

// handleUpdateProfile handles the route "PUT /profile".
// It reads the changed profile fields from the json body and stores them.
func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	var upd domain.ProfileUpdate
	if err := decode(r, &upd); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	authed := auth.GetUser(r.Context())
	user, err := s.services.User.UpdateProfile(r.Context(), authed.ID, upd)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// The feed session carries the old name and avatar into new posts.
	s.sessions.drop(user.ID)

	respond(w, r, http.StatusOK, user)
}

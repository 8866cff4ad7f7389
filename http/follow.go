package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"forkChan/auth"
	"forkChan/domain"
	"forkChan/errs"
)

func (s *Server) registerFollowRoutes(r *mux.Router) {
	r.HandleFunc("/follow/{id}", auth.RequireUser(s.handleCreateFollow)).Methods("POST")
	r.HandleFunc("/follow/{id}", auth.RequireUser(s.handleDeleteFollow)).Methods("DELETE")
	r.HandleFunc("/user/{id}/followers", s.handleGetFollowers).Methods("GET")
	r.HandleFunc("/user/{id}/following", s.handleGetFollowing).Methods("GET")
}

// followState is the response of the follow and unfollow routes.
type followState struct {
	UserID    string `json:"user_id"`
	Following bool   `json:"following"`
}

// handleCreateFollow handles the route "POST /follow/{id}".
// Following a user twice is not an error.
func (s *Server) handleCreateFollow(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	c, _ := s.sessions.get(auth.GetSession(r.Context()))
	if err := c.Follow(r.Context(), userID).Wait(r.Context()); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, followState{UserID: userID, Following: true})
}

// handleDeleteFollow handles the route "DELETE /follow/{id}".
func (s *Server) handleDeleteFollow(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	c, _ := s.sessions.get(auth.GetSession(r.Context()))
	if err := c.Unfollow(r.Context(), userID).Wait(r.Context()); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, followState{UserID: userID, Following: false})
}

// handleGetFollowers handles the route "GET /user/{id}/followers".
func (s *Server) handleGetFollowers(w http.ResponseWriter, r *http.Request) {
	c, _ := s.sessions.get(auth.GetSession(r.Context()))
	list, err := c.Followers(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	respondFollows(w, r, list)
}

// handleGetFollowing handles the route "GET /user/{id}/following".
func (s *Server) handleGetFollowing(w http.ResponseWriter, r *http.Request) {
	c, _ := s.sessions.get(auth.GetSession(r.Context()))
	list, err := c.Following(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	respondFollows(w, r, list)
}

func respondFollows(w http.ResponseWriter, r *http.Request, list []domain.Follow) {
	if list == nil {
		list = []domain.Follow{}
	}
	respond(w, r, http.StatusOK, list)
}

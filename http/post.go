package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"forkChan/auth"
	"forkChan/domain"
	"forkChan/errs"
)

// registerPostRoutes is a helper for registering all post routes.
func (s *Server) registerPostRoutes(r *mux.Router) {
	// Publish a post, optionally with an image.
	r.HandleFunc("/post", auth.RequireUser(s.handleCreatePost)).Methods("POST")

	// Delete a post of the authed user together with its comments and likes.
	r.HandleFunc("/post/{id}", auth.RequireUser(s.handleDeletePost)).Methods("DELETE")

	// Like or unlike a post.
	r.HandleFunc("/post/{id}/like", auth.RequireUser(s.handleToggleLike)).Methods("POST")

	// The comments of a post, and commenting on it.
	r.HandleFunc("/post/{id}/comments", s.handleGetComments).Methods("GET")
	r.HandleFunc("/post/{id}/comments", auth.RequireUser(s.handleCreateComment)).Methods("POST")

	// Recompute the counters of a post.
	r.HandleFunc("/post/{id}/heal", auth.RequireUser(s.handleHealPost)).Methods("POST")

	// The image of a post.
	s.registerImageRoutes(r)
}

// postBody is the json body of "POST /post".
type postBody struct {
	Description string `json:"description"`
	// Image is either a remote reference or a base64 encoded jpeg or png.
	Image string `json:"image"`
}

// handleCreatePost handles the route "POST /post".
// It publishes the post and returns the refreshed feed.
func (s *Server) handleCreatePost(w http.ResponseWriter, r *http.Request) {
	var body postBody
	if err := decode(r, &body); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	c, _ := s.sessions.get(auth.GetSession(r.Context()))
	if err := c.CreatePost(r.Context(), body.Description, body.Image).Wait(r.Context()); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	s.respondSnapshot(w, r, c, http.StatusCreated)
}

// handleDeletePost handles the route "DELETE /post/{id}".
func (s *Server) handleDeletePost(w http.ResponseWriter, r *http.Request) {
	postID := mux.Vars(r)["id"]
	c, _ := s.sessions.get(auth.GetSession(r.Context()))
	if err := c.DeletePost(r.Context(), postID).Wait(r.Context()); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	respond(w, r, http.StatusNoContent, nil)
}

// likeState is the response of "POST /post/{id}/like".
type likeState struct {
	PostID    string `json:"post_id"`
	LikedByMe bool   `json:"liked_by_me"`
	LikeCount int    `json:"like_count"`
	Pending   bool   `json:"pending"`
}

// handleToggleLike handles the route "POST /post/{id}/like".
// It answers with the optimistic state right away. The outcome of the write
// is reported on the feed stream and shows in later reads of the feed.
func (s *Server) handleToggleLike(w http.ResponseWriter, r *http.Request) {
	postID := mux.Vars(r)["id"]
	c, _ := s.sessions.get(auth.GetSession(r.Context()))
	c.ToggleLike(r.Context(), postID)

	snap, err := c.Snapshot(r.Context())
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	state := likeState{PostID: postID}
	found := false
	for _, v := range snap.Posts {
		if v.ID == postID {
			state.LikedByMe, state.LikeCount, state.Pending = v.LikedByMe, v.LikeCount, v.Pending
			found = true
			break
		}
	}
	if !found {
		liked, err := c.LikedByMe(r.Context(), postID)
		if err != nil {
			errs.ReturnError(w, r, err)
			return
		}
		state.LikedByMe = liked
	}
	respond(w, r, http.StatusAccepted, state)
}

// handleGetComments handles the route "GET /post/{id}/comments".
func (s *Server) handleGetComments(w http.ResponseWriter, r *http.Request) {
	postID := mux.Vars(r)["id"]
	c, _ := s.sessions.get(auth.GetSession(r.Context()))
	if err := c.RefreshComments(r.Context(), postID).Wait(r.Context()); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	s.respondComments(w, r, postID, http.StatusOK)
}

// commentBody is the json body of "POST /post/{id}/comments".
type commentBody struct {
	Text string `json:"text"`
}

// handleCreateComment handles the route "POST /post/{id}/comments".
// It returns the comments of the post including the new one.
func (s *Server) handleCreateComment(w http.ResponseWriter, r *http.Request) {
	postID := mux.Vars(r)["id"]
	var body commentBody
	if err := decode(r, &body); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	c, _ := s.sessions.get(auth.GetSession(r.Context()))
	if err := c.AddComment(r.Context(), postID, body.Text).Wait(r.Context()); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	s.respondComments(w, r, postID, http.StatusCreated)
}

func (s *Server) respondComments(w http.ResponseWriter, r *http.Request, postID string, status int) {
	c, _ := s.sessions.get(auth.GetSession(r.Context()))
	list, err := c.Comments(r.Context(), postID)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	if list == nil {
		list = []domain.Comment{}
	}
	respond(w, r, status, list)
}

// handleHealPost handles the route "POST /post/{id}/heal".
// It returns the post with its recomputed counters.
func (s *Server) handleHealPost(w http.ResponseWriter, r *http.Request) {
	postID := mux.Vars(r)["id"]
	c, _ := s.sessions.get(auth.GetSession(r.Context()))
	if err := c.Heal(r.Context(), postID).Wait(r.Context()); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	post, err := s.services.Post.ByID(r.Context(), postID)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, post)
}

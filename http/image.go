package http

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"forkChan/errs"
	"forkChan/storage"
)

// registerImageRoutes is a helper for registering all image routes.
func (s *Server) registerImageRoutes(r *mux.Router) {
	// Serve the image of a post.
	r.HandleFunc("/post/{id}/image", s.handleGetPostImage).Methods("GET")
}

// handleGetPostImage handles the route "GET /post/{id}/image".
// Inline images are decoded and served with their sniffed content type,
// remote references are answered with a redirect.
func (s *Server) handleGetPostImage(w http.ResponseWriter, r *http.Request) {
	// Fetch the post from the store.
	post, err := s.services.Post.ByID(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Send the client to images hosted elsewhere.
	if storage.IsRemote(post.Image) {
		http.Redirect(w, r, post.Image, http.StatusFound)
		return
	}

	// Decode the inline payload.
	img, err := s.services.Image.Decode(post.Image)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", img.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(img.Data)))
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(img.Data); err != nil {
		errs.LogError(r, err)
	}
}

package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"forkChan/auth"
	"forkChan/domain"
	"forkChan/errs"
)

func (s *Server) registerAuthRoutes(r *mux.Router) {
	r.HandleFunc("/signup", s.handleSignup).Methods("POST")
	r.HandleFunc("/login", s.handleLogin).Methods("POST")
	r.HandleFunc("/logout", auth.RequireUser(s.handleLogout)).Methods("POST")
}

// credentials is the json body of the signup and login routes.
type credentials struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// handleSignup handles the route "POST /signup".
// It creates a new account, signs it in and returns it.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := decode(r, &creds); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	// Create the user. This also issues its first remember token.
	user := &domain.User{
		Name:     creds.Name,
		Email:    creds.Email,
		Password: creds.Password,
	}
	if err := s.services.User.Create(r.Context(), user); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	auth.SetCookie(w, user)
	respond(w, r, http.StatusCreated, user)
}

// handleLogin handles the route "POST /login".
// It checks the credentials, rotates the remember token and returns the user.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds credentials
	if err := decode(r, &creds); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	user, err := s.services.User.Authenticate(r.Context(), creds.Email, creds.Password)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	if err := s.services.User.SignIn(r.Context(), user); err != nil {
		errs.ReturnError(w, r, err)
		return
	}

	auth.SetCookie(w, user)
	respond(w, r, http.StatusOK, user)
}

// handleLogout handles the route "POST /logout".
// It invalidates the remember token and closes the user's feed session.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	user := auth.GetUser(r.Context())
	if err := s.services.User.SignOut(r.Context(), user); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	s.sessions.drop(user.ID)

	auth.ClearCookie(w)
	respond(w, r, http.StatusNoContent, nil)
}

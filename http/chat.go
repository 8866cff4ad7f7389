package http

import (
	"net/http"

	"github.com/gorilla/mux"

	"forkChan/auth"
	"forkChan/domain"
	"forkChan/errs"
)

func (s *Server) registerChatRoutes(r *mux.Router) {
	r.HandleFunc("/chat", s.handleGetRooms).Methods("GET")
	r.HandleFunc("/chat", auth.RequireUser(s.handleCreateRoom)).Methods("POST")
	r.HandleFunc("/chat/{id}/messages", s.handleGetMessages).Methods("GET")
	r.HandleFunc("/chat/{id}/messages", auth.RequireUser(s.handleSendMessage)).Methods("POST")
}

// handleGetRooms handles the route "GET /chat".
// It returns all chat rooms, newest first.
func (s *Server) handleGetRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.services.Chat.Rooms(r.Context())
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, rooms)
}

// handleCreateRoom handles the route "POST /chat".
func (s *Server) handleCreateRoom(w http.ResponseWriter, r *http.Request) {
	var room domain.ChatRoom
	if err := decode(r, &room); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	room.CreatorID = auth.GetUser(r.Context()).ID

	if err := s.services.Chat.CreateRoom(r.Context(), &room); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, room)
}

// handleGetMessages handles the route "GET /chat/{id}/messages".
// It returns the messages of a room, oldest first.
func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.services.Chat.Messages(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	respond(w, r, http.StatusOK, msgs)
}

// handleSendMessage handles the route "POST /chat/{id}/messages".
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var msg domain.Message
	if err := decode(r, &msg); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	user := auth.GetUser(r.Context())
	msg.RoomID = mux.Vars(r)["id"]
	msg.SenderID = user.ID
	msg.SenderName = user.Session().Name()

	if err := s.services.Chat.Send(r.Context(), &msg); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	respond(w, r, http.StatusCreated, msg)
}

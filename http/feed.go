package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"forkChan/auth"
	"forkChan/errs"
	"forkChan/feed"
)

// streamWriteTimeout bounds a single websocket write.
const streamWriteTimeout = 10 * time.Second

func (s *Server) registerFeedRoutes(r *mux.Router) {
	// The feed as cached by the user's coordinator.
	r.HandleFunc("/feed", s.handleGetFeed).Methods("GET")

	// Fetch the feed again, then return it.
	r.HandleFunc("/feed/refresh", s.handleRefreshFeed).Methods("POST")

	// Push the feed over a websocket whenever it changes.
	r.HandleFunc("/feed/stream", s.handleFeedStream).Methods("GET")

	// The posts of one author.
	r.HandleFunc("/user/{id}/posts", s.handleGetUserPosts).Methods("GET")
}

// handleGetFeed handles the route "GET /feed".
// The first request of a session waits for the initial fetch.
func (s *Server) handleGetFeed(w http.ResponseWriter, r *http.Request) {
	c, err := s.sessions.getFresh(r.Context(), auth.GetSession(r.Context()))
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	s.respondSnapshot(w, r, c, http.StatusOK)
}

// handleRefreshFeed handles the route "POST /feed/refresh".
func (s *Server) handleRefreshFeed(w http.ResponseWriter, r *http.Request) {
	c, _ := s.sessions.get(auth.GetSession(r.Context()))
	if err := c.Refresh(r.Context()).Wait(r.Context()); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	s.respondSnapshot(w, r, c, http.StatusOK)
}

// handleGetUserPosts handles the route "GET /user/{id}/posts".
func (s *Server) handleGetUserPosts(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["id"]
	c, _ := s.sessions.get(auth.GetSession(r.Context()))
	if err := c.RefreshUserPosts(r.Context(), userID).Wait(r.Context()); err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	posts, err := c.UserPosts(r.Context(), userID)
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	if posts == nil {
		posts = []feed.PostView{}
	}
	respond(w, r, http.StatusOK, posts)
}

// streamMessage is one frame of the feed stream.
type streamMessage struct {
	Type     string         `json:"type"`
	Snapshot *feed.Snapshot `json:"snapshot,omitempty"`
	Notice   *noticeBody    `json:"notice,omitempty"`
}

// noticeBody is a failed operation as shown to the user.
type noticeBody struct {
	Op      string `json:"op"`
	PostID  string `json:"post_id,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleFeedStream handles the route "GET /feed/stream".
// It upgrades the connection to a websocket and writes a snapshot frame
// every time the feed changes, and a notice frame for every failed
// operation of the session. Stores that can't push fall back to a single
// refresh; the stream then follows the session's own writes only.
func (s *Server) handleFeedStream(w http.ResponseWriter, r *http.Request) {
	c, _ := s.sessions.get(auth.GetSession(r.Context()))
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		log.WithError(err).Debug("feed stream upgrade failed")
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The client never sends anything; reading only notices the close.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	if err := c.Watch(ctx); err != nil {
		log.WithError(err).Debug("feed stream without store pushes")
		c.Refresh(ctx)
	}

	send := func(msg streamMessage) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
		if err := conn.WriteJSON(msg); err != nil {
			log.WithError(err).Debug("feed stream closed")
			return false
		}
		return true
	}
	sendSnapshot := func() bool {
		snap, err := c.Snapshot(ctx)
		if err != nil {
			return false
		}
		return send(streamMessage{Type: "snapshot", Snapshot: &snap})
	}

	if !sendSnapshot() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return
		case <-c.Changes():
			if !sendSnapshot() {
				return
			}
		case n := <-c.Errors():
			body := &noticeBody{Op: n.Op, PostID: n.PostID, Code: errs.ErrorCode(n.Err), Message: n.Message()}
			if !send(streamMessage{Type: "notice", Notice: body}) {
				return
			}
		}
	}
}

// respondSnapshot writes the cached feed of c.
func (s *Server) respondSnapshot(w http.ResponseWriter, r *http.Request, c *feed.Coordinator, status int) {
	snap, err := c.Snapshot(r.Context())
	if err != nil {
		errs.ReturnError(w, r, err)
		return
	}
	if snap.Posts == nil {
		snap.Posts = []feed.PostView{}
	}
	respond(w, r, status, snap)
}

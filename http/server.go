package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"forkChan/auth"
	"forkChan/crud"
	"forkChan/errs"
	"forkChan/feed"
	"forkChan/monitoring"
)

// Server provides the http functionality of this app, namely routing,
// request handling, and middleware. It resolves the signed in user of every
// request and hands feed operations to that user's feed.Coordinator. Plain
// lookups go straight to the crud services.
type Server struct {
	router   *mux.Router
	services *crud.Services
	sessions *sessions
	userMw   *auth.UserMw
	upgrader websocket.Upgrader
	server   *http.Server
}

// Config holds the optional settings of a Server.
type Config struct {
	// MaxSessions bounds the number of live coordinators.
	MaxSessions int
	// FeedOptions are passed to every coordinator.
	FeedOptions []feed.Option
}

// NewServer returns a new instance of the server, registers all necessary
// routes and gives their handlers access to the services passed in.
func NewServer(services *crud.Services, cfg Config) (*Server, error) {
	sessions, err := newSessions(services, cfg.MaxSessions, cfg.FeedOptions...)
	if err != nil {
		return nil, err
	}

	// Construct a new Server with a gorilla router and the services passed in.
	s := &Server{
		router:   mux.NewRouter(),
		services: services,
		sessions: sessions,
		userMw:   &auth.UserMw{UserService: services.User},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	// Register routes of the auth system.
	s.registerAuthRoutes(s.router)
	s.registerUserRoutes(s.router)

	// Register routes of the feed.
	s.registerFeedRoutes(s.router)
	s.registerPostRoutes(s.router)
	s.registerFollowRoutes(s.router)
	s.registerChatRoutes(s.router)

	s.router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// Set up middleware that needs to run on every request.
	s.router.Use(monitoring.Middleware, setContentTypeJSON, s.userMw.Apply)
	return s, nil
}

// The setContentTypeJSON middleware sets the content type to "application/json".
// Handlers serving something else overwrite it.
func setContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// ServeHTTP makes the Server an http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run starts to listen and serve on addr. It returns http.ErrServerClosed
// after Shutdown.
func (s *Server) Run(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	log.WithField("addr", addr).Info("http server listening")
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests, waits for the ones in flight and
// closes every feed session.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.server != nil {
		err = s.server.Shutdown(ctx)
	}
	s.sessions.close()
	return err
}

// respond writes v as the json body of a response with the given status.
func respond(w http.ResponseWriter, r *http.Request, status int, v interface{}) {
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		errs.LogError(r, err)
	}
}

// decode parses the json body of a request into v.
func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errs.Errorf(errs.EINVALID, "Invalid json body.")
	}
	return nil
}

package http

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"forkChan/crud"
	"forkChan/database/memory"
	"forkChan/feed"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	services, err := crud.NewServices(memory.NewStore(), crud.WithAll("hmac-secret", "pepper", 1<<20))
	if err != nil {
		t.Fatal(err)
	}
	logger := log.New()
	logger.SetOutput(io.Discard)
	s, err := NewServer(services, Config{MaxSessions: 8, FeedOptions: []feed.Option{feed.WithLogger(logger)}})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(s)
	t.Cleanup(func() {
		ts.Close()
		s.sessions.close()
	})
	return ts
}

// client is a browser-like client keeping the remember token cookie.
type client struct {
	t    *testing.T
	base string
	http *http.Client
}

func newClient(t *testing.T, ts *httptest.Server) *client {
	jar, err := cookiejar.New(nil)
	if err != nil {
		t.Fatal(err)
	}
	return &client{t: t, base: ts.URL, http: &http.Client{Jar: jar}}
}

// do sends a request with an optional json body and decodes the json
// response into out, if out is not nil. It returns the status code.
func (c *client) do(method, path string, body, out interface{}) int {
	c.t.Helper()
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			c.t.Fatal(err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, rd)
	if err != nil {
		c.t.Fatal(err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		c.t.Fatal(err)
	}
	defer res.Body.Close()
	if out != nil && res.StatusCode < 300 {
		if err := json.NewDecoder(res.Body).Decode(out); err != nil {
			c.t.Fatalf("%s %s: decoding response: %v", method, path, err)
		}
	}
	return res.StatusCode
}

func (c *client) signup(name, email string) string {
	c.t.Helper()
	var user struct {
		ID string `json:"id"`
	}
	status := c.do("POST", "/signup", credentials{Name: name, Email: email, Password: "correct horse"}, &user)
	if status != http.StatusCreated {
		c.t.Fatalf("signup status = %d, want %d", status, http.StatusCreated)
	}
	return user.ID
}

type feedBody struct {
	Posts []struct {
		ID          string `json:"id"`
		Description string `json:"description"`
		LikeCount   int    `json:"like_count"`
		LikedByMe   bool   `json:"liked_by_me"`
	} `json:"posts"`
}

func TestAnonymousReadsButCannotWrite(t *testing.T) {
	ts := newTestServer(t)
	anon := newClient(t, ts)

	var snap feedBody
	if status := anon.do("GET", "/feed", nil, &snap); status != http.StatusOK {
		t.Fatalf("GET /feed status = %d, want 200", status)
	}
	if len(snap.Posts) != 0 {
		t.Fatalf("feed has %d posts, want 0", len(snap.Posts))
	}
	if status := anon.do("POST", "/post", postBody{Description: "hi"}, nil); status != http.StatusUnauthorized {
		t.Errorf("POST /post status = %d, want 401", status)
	}
	if status := anon.do("POST", "/post/x/like", nil, nil); status != http.StatusUnauthorized {
		t.Errorf("POST /post/x/like status = %d, want 401", status)
	}
}

func TestPostLikeAndComment(t *testing.T) {
	ts := newTestServer(t)
	alice := newClient(t, ts)
	alice.signup("Alice", "alice@example.com")

	var snap feedBody
	if status := alice.do("POST", "/post", postBody{Description: "hello"}, &snap); status != http.StatusCreated {
		t.Fatalf("POST /post status = %d, want 201", status)
	}
	if len(snap.Posts) != 1 || snap.Posts[0].Description != "hello" {
		t.Fatalf("feed after post = %+v", snap.Posts)
	}
	postID := snap.Posts[0].ID

	var state likeState
	if status := alice.do("POST", "/post/"+postID+"/like", nil, &state); status != http.StatusAccepted {
		t.Fatalf("like status = %d, want 202", status)
	}
	if !state.LikedByMe || state.LikeCount != 1 {
		t.Fatalf("optimistic state = %+v, want liked with 1 like", state)
	}

	// The write settles in the background; the refreshed feed shows it.
	deadline := time.Now().Add(5 * time.Second)
	for {
		alice.do("POST", "/feed/refresh", nil, &snap)
		if len(snap.Posts) == 1 && snap.Posts[0].LikeCount == 1 && snap.Posts[0].LikedByMe {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("like never settled: %+v", snap.Posts)
		}
		time.Sleep(10 * time.Millisecond)
	}

	var comments []struct {
		Text string `json:"text"`
	}
	if status := alice.do("POST", "/post/"+postID+"/comments", commentBody{Text: "first"}, &comments); status != http.StatusCreated {
		t.Fatalf("comment status = %d, want 201", status)
	}
	if len(comments) != 1 || comments[0].Text != "first" {
		t.Fatalf("comments = %+v", comments)
	}

	bob := newClient(t, ts)
	bob.signup("Bob", "bob@example.com")
	if status := bob.do("DELETE", "/post/"+postID, nil, nil); status != http.StatusForbidden {
		t.Errorf("foreign delete status = %d, want 403", status)
	}
	if status := alice.do("DELETE", "/post/"+postID, nil, nil); status != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", status)
	}
	if status := alice.do("DELETE", "/post/"+postID, nil, nil); status != http.StatusNoContent {
		t.Errorf("second delete status = %d, want 204", status)
	}
}

func TestPostImage(t *testing.T) {
	ts := newTestServer(t)
	alice := newClient(t, ts)
	alice.signup("Alice", "alice@example.com")

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	var snap feedBody
	body := postBody{Description: "pic", Image: base64.StdEncoding.EncodeToString(png)}
	if status := alice.do("POST", "/post", body, &snap); status != http.StatusCreated {
		t.Fatalf("POST /post status = %d, want 201", status)
	}

	res, err := http.Get(ts.URL + "/post/" + snap.Posts[0].ID + "/image")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	data, _ := io.ReadAll(res.Body)
	if res.StatusCode != http.StatusOK || res.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("image status = %d type = %q", res.StatusCode, res.Header.Get("Content-Type"))
	}
	if !bytes.Equal(data, png) {
		t.Errorf("image bytes = %v, want %v", data, png)
	}
}

func TestLoginLogout(t *testing.T) {
	ts := newTestServer(t)
	alice := newClient(t, ts)
	alice.signup("Alice", "alice@example.com")
	if status := alice.do("POST", "/logout", nil, nil); status != http.StatusNoContent {
		t.Fatalf("logout status = %d, want 204", status)
	}
	if status := alice.do("POST", "/post", postBody{Description: "hi"}, nil); status != http.StatusUnauthorized {
		t.Fatalf("post after logout status = %d, want 401", status)
	}

	bad := credentials{Email: "alice@example.com", Password: "wrong password"}
	if status := alice.do("POST", "/login", bad, nil); status != http.StatusBadRequest {
		t.Errorf("bad login status = %d, want 400", status)
	}
	good := credentials{Email: "alice@example.com", Password: "correct horse"}
	if status := alice.do("POST", "/login", good, nil); status != http.StatusOK {
		t.Fatalf("login status = %d, want 200", status)
	}
	if status := alice.do("POST", "/post", postBody{Description: "back"}, nil); status != http.StatusCreated {
		t.Errorf("post after login status = %d, want 201", status)
	}
}

func TestFollowAndProfile(t *testing.T) {
	ts := newTestServer(t)
	alice := newClient(t, ts)
	alice.signup("Alice", "alice@example.com")
	bob := newClient(t, ts)
	bobID := bob.signup("Bob", "bob@example.com")

	for i := 0; i < 2; i++ {
		if status := alice.do("POST", "/follow/"+bobID, nil, nil); status != http.StatusOK {
			t.Fatalf("follow #%d status = %d, want 200", i+1, status)
		}
	}
	var p profile
	alice.do("GET", "/profile/"+bobID, nil, &p)
	if p.Name != "Bob" || !p.Following {
		t.Errorf("profile = %+v, want Bob followed", p)
	}
	var followers []struct {
		FollowedID string `json:"followed_id"`
	}
	alice.do("GET", "/user/"+bobID+"/followers", nil, &followers)
	if len(followers) != 1 {
		t.Errorf("followers = %+v, want 1", followers)
	}

	bio := "likes forks"
	var updated struct {
		Bio string `json:"bio"`
	}
	if status := bob.do("PUT", "/profile", map[string]*string{"bio": &bio}, &updated); status != http.StatusOK {
		t.Fatalf("profile update status = %d, want 200", status)
	}
	if updated.Bio != bio {
		t.Errorf("bio = %q, want %q", updated.Bio, bio)
	}

	if status := alice.do("DELETE", "/follow/"+bobID, nil, nil); status != http.StatusOK {
		t.Fatalf("unfollow status = %d, want 200", status)
	}
	alice.do("GET", "/profile/"+bobID, nil, &p)
	if p.Following {
		t.Error("still following after unfollow")
	}
}

func TestChat(t *testing.T) {
	ts := newTestServer(t)
	alice := newClient(t, ts)
	alice.signup("Alice", "alice@example.com")

	var room struct {
		ID string `json:"id"`
	}
	if status := alice.do("POST", "/chat", map[string]string{"name": "forks"}, &room); status != http.StatusCreated {
		t.Fatalf("create room status = %d, want 201", status)
	}
	for _, text := range []string{"one", "two"} {
		if status := alice.do("POST", "/chat/"+room.ID+"/messages", map[string]string{"text": text}, nil); status != http.StatusCreated {
			t.Fatalf("send status = %d, want 201", status)
		}
	}
	var msgs []struct {
		Text       string `json:"text"`
		SenderName string `json:"sender_name"`
	}
	alice.do("GET", "/chat/"+room.ID+"/messages", nil, &msgs)
	if len(msgs) != 2 || msgs[0].Text != "one" || msgs[1].SenderName != "Alice" {
		t.Errorf("messages = %+v", msgs)
	}
	if status := alice.do("POST", "/chat/nope/messages", map[string]string{"text": "x"}, nil); status != http.StatusNotFound {
		t.Errorf("send to unknown room status = %d, want 404", status)
	}
}

func TestFeedStream(t *testing.T) {
	ts := newTestServer(t)
	alice := newClient(t, ts)
	alice.signup("Alice", "alice@example.com")

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/feed/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer conn.Close()

	alice.do("POST", "/post", postBody{Description: "streamed"}, nil)

	deadline := time.Now().Add(5 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for {
		var msg struct {
			Type     string    `json:"type"`
			Snapshot *feedBody `json:"snapshot"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("no snapshot with the new post: %v", err)
		}
		if msg.Type == "snapshot" && len(msg.Snapshot.Posts) == 1 && msg.Snapshot.Posts[0].Description == "streamed" {
			return
		}
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	res, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("GET /metrics status = %d, want 200", res.StatusCode)
	}
}

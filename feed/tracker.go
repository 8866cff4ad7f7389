package feed

// Token identifies one like toggle. Tokens of a Tracker are strictly increasing.
type Token uint64

type mutation struct {
	token    Token
	intended bool
}

// Tracker remembers the like toggles that wait for their remote write: for
// each post the state the user asked for last and the token of that request.
//
// Tracker holds no locks. It must only be used from a single goroutine.
type Tracker struct {
	last    Token
	pending map[string]mutation
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{pending: map[string]mutation{}}
}

// Begin records that the user wants the post to end up liked or not and
// returns the token of that request. It replaces any earlier request for the
// same post.
func (t *Tracker) Begin(postID string, intended bool) Token {
	t.last++
	t.pending[postID] = mutation{token: t.last, intended: intended}
	return t.last
}

// End clears the request of the post if token is its latest one and reports
// whether it did. Completions of superseded requests leave it alone.
func (t *Tracker) End(postID string, token Token) bool {
	m, ok := t.pending[postID]
	if !ok || m.token != token {
		return false
	}
	delete(t.pending, postID)
	return true
}

// IsPending reports whether a toggle of the post waits for its write.
func (t *Tracker) IsPending(postID string) bool {
	_, ok := t.pending[postID]
	return ok
}

// Intended returns the state the latest pending toggle of the post asked for.
func (t *Tracker) Intended(postID string) (liked bool, ok bool) {
	m, ok := t.pending[postID]
	return m.intended, ok
}

// Len returns the number of posts with a pending toggle.
func (t *Tracker) Len() int {
	return len(t.pending)
}

package feed

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"forkChan/crud"
	"forkChan/domain"
	"forkChan/errs"
	"forkChan/monitoring"
)

const (
	// DefaultNoticeBuffer is the capacity of the Errors channel.
	DefaultNoticeBuffer = 16
	// DefaultCloseGrace is how long Close lets writes in flight finish
	// before cancelling them.
	DefaultCloseGrace = 5 * time.Second
)

// Notice is a failure the presentation layer should tell the user about.
type Notice struct {
	Op     string
	PostID string
	Err    error
}

// Message returns the user facing text of the failure.
func (n Notice) Message() string {
	return errs.ErrorMessage(n.Err)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithLogger replaces the standard logrus logger.
func WithLogger(logger log.FieldLogger) Option {
	return func(c *Coordinator) {
		c.log = logger
	}
}

// WithNoticeBuffer sets the capacity of the Errors channel. Notices that
// don't fit are logged and dropped.
func WithNoticeBuffer(n int) Option {
	return func(c *Coordinator) {
		c.noticeBuffer = n
	}
}

// WithCloseGrace sets how long Close waits for writes in flight before it
// cancels them.
func WithCloseGrace(d time.Duration) Option {
	return func(c *Coordinator) {
		c.closeGrace = d
	}
}

// Coordinator is the only part of the feed that talks to the remote store.
// It serves one session: every write is made on behalf of that user, and an
// anonymous session may only read.
//
// Operations return right away with a Pending. Their remote calls run on
// background goroutines; everything that touches the cache runs on the
// coordinator's Loop, in the order it was requested.
type Coordinator struct {
	services *crud.Services
	session  domain.Session
	log      log.FieldLogger

	loop         *Loop
	gens         *Generations
	noticeBuffer int
	closeGrace   time.Duration
	notices      chan Notice
	changes      chan struct{}

	// Owned by the loop.
	cache   *Cache
	tracker *Tracker
	// fences holds, per post, the last generation issued before its like
	// writes settled. Fetches up to that generation may predate the writes.
	fences map[string]uint64
	// writes holds, per post, the completion of the last queued like write.
	writes map[string]chan struct{}
	// follows holds, per followed user, the completion of the last queued
	// follow or unfollow write.
	follows map[string]chan struct{}
	// postGens holds, per cached post, the generation of the fetch its
	// entry was last taken from.
	postGens map[string]uint64

	// ctx is cancelled once Close gave up waiting for the writes in flight,
	// watchCtx as soon as Close is called.
	ctx         context.Context
	cancel      context.CancelFunc
	watchCtx    context.Context
	stopWatches context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewCoordinator returns a Coordinator for session. It starts its Loop; call
// Close to stop it.
func NewCoordinator(services *crud.Services, session domain.Session, opts ...Option) *Coordinator {
	c := &Coordinator{
		services:     services,
		session:      session,
		log:          log.StandardLogger(),
		noticeBuffer: DefaultNoticeBuffer,
		closeGrace:   DefaultCloseGrace,
		gens:         NewGenerations(),
		tracker:      NewTracker(),
		fences:       map[string]uint64{},
		writes:       map[string]chan struct{}{},
		follows:      map[string]chan struct{}{},
		postGens:     map[string]uint64{},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("user", session.UserID)
	c.cache = NewCache(c.log)
	c.notices = make(chan Notice, c.noticeBuffer)
	c.changes = make(chan struct{}, 1)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	c.watchCtx, c.stopWatches = context.WithCancel(c.ctx)
	c.loop = NewLoop()
	return c
}

// Session returns the session the coordinator acts for.
func (c *Coordinator) Session() domain.Session {
	return c.session
}

// Errors delivers the failures of operations, including the ones nobody
// waits for, such as refreshes triggered by writes.
func (c *Coordinator) Errors() <-chan Notice {
	return c.notices
}

// Changes receives a value whenever the cache may have changed. Signals
// are coalesced: a reader that falls behind sees one value, not many.
func (c *Coordinator) Changes() <-chan struct{} {
	return c.changes
}

// Close ends the watches, lets the remote calls in flight finish and
// applies their results, then stops the loop. Writes still running after
// the close grace period are cancelled and rolled back. Operations started
// afterwards fail with ErrClosed.
func (c *Coordinator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.stopWatches()
	settled := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(settled)
	}()
	select {
	case <-settled:
	case <-time.After(c.closeGrace):
		c.log.Warn("writes still running at close, cancelling them")
		c.cancel()
		<-settled
	}
	c.cancel()
	c.loop.Close()
}

// Refresh fetches the feed and the likes of the session user.
func (c *Coordinator) Refresh(ctx context.Context) *Pending {
	return c.fetchPosts(ctx, keyPosts, c.services.Post.Feed, func(list []domain.Post) {
		c.cache.ReplacePosts(list, nil)
	})
}

// RefreshUserPosts fetches the posts of one author.
func (c *Coordinator) RefreshUserPosts(ctx context.Context, userID string) *Pending {
	byAuthor := func(ctx context.Context) ([]domain.Post, error) {
		return c.services.Post.ByAuthor(ctx, userID)
	}
	return c.fetchPosts(ctx, keyUserPosts(userID), byAuthor, func(list []domain.Post) {
		c.cache.SetUserPosts(userID, list)
	})
}

// RefreshComments fetches the comments of a post.
func (c *Coordinator) RefreshComments(ctx context.Context, postID string) *Pending {
	p := newPending()
	key := keyComments(postID)
	gen := c.gens.Issue(key)
	ok := c.spawn(func() {
		list, err := c.services.Comment.ByPost(ctx, postID)
		c.finish(p, "refresh comments", postID, func() (*Pending, error) {
			if err != nil {
				c.gens.Drop(gen)
				return nil, surface(err)
			}
			if c.accept(key, gen) {
				c.cache.SetComments(postID, list)
			}
			return nil, nil
		})
	})
	if !ok {
		c.gens.Drop(gen)
		p.resolve(ErrClosed)
	}
	return p
}

// CreatePost publishes a post of the session user and refreshes the feed.
// image is either empty, a remote reference or a base64 encoded jpeg or png.
func (c *Coordinator) CreatePost(ctx context.Context, description, image string) *Pending {
	if err := c.requireUser(); err != nil {
		return failed(err)
	}
	payload, err := c.services.Image.Normalize(image)
	if err != nil {
		return failed(err)
	}
	post := &domain.Post{
		AuthorID:     c.session.UserID,
		AuthorName:   c.session.Name(),
		AuthorAvatar: c.session.Avatar,
		Description:  description,
		Image:        payload,
	}
	return c.write("create post", "", func(ctx context.Context) error {
		return c.services.Post.Create(ctx, post)
	}, func() *Pending {
		return c.Refresh(c.ctx)
	})
}

// DeletePost deletes a post of the session user together with its comments
// and likes, then refreshes the feed. Deleting a post that is already gone
// succeeds.
func (c *Coordinator) DeletePost(ctx context.Context, postID string) *Pending {
	if err := c.requireUser(); err != nil {
		return failed(err)
	}
	return c.write("delete post", postID, func(ctx context.Context) error {
		err := c.services.Post.Delete(ctx, &domain.Post{ID: postID, AuthorID: c.session.UserID})
		if errs.Is(err, errs.ENOTFOUND) {
			c.log.WithField("post", postID).Debug("post already deleted")
			return nil
		}
		return err
	}, func() *Pending {
		c.cache.Forget(postID)
		return c.Refresh(c.ctx)
	})
}

// ToggleLike flips whether the session user likes a post. The cache shows
// the new state before the write is sent; if the write fails and no later
// toggle of the post superseded it, the cache is rolled back. Writes of the
// same post go out one at a time in the order of the toggles, and once the
// last one has settled the feed is refreshed.
//
// The returned Pending completes when the write of this toggle has settled.
func (c *Coordinator) ToggleLike(ctx context.Context, postID string) *Pending {
	if err := c.requireUser(); err != nil {
		return failed(err)
	}
	p := newPending()
	if !c.loop.Post(func() { c.beginToggle(postID, p) }) {
		p.resolve(ErrClosed)
	}
	return p
}

func (c *Coordinator) beginToggle(postID string, p *Pending) {
	intended := !c.cache.LikedByMe(postID)
	prior, known := c.cache.Post(postID)
	undo := func() {
		c.cache.SetLikedByMe(postID, !intended)
		if known {
			c.cache.SetLikeCount(postID, prior.LikeCount)
		}
	}
	before := c.tracker.Len()
	token := c.tracker.Begin(postID, intended)
	monitoring.PendingMutations.Add(float64(c.tracker.Len() - before))
	c.cache.SetLikedByMe(postID, intended)
	c.cache.ApplyLikeDelta(postID, likeDelta(intended))
	c.changed()

	prev := c.writes[postID]
	done := make(chan struct{})
	c.writes[postID] = done

	ok := c.spawn(func() {
		if prev != nil {
			<-prev
		}
		_, err := c.services.Like.Set(c.ctx, postID, c.session.UserID, intended)
		close(done)
		c.finish(p, "like", postID, func() (*Pending, error) {
			return nil, c.settleToggle(postID, token, done, undo, err)
		})
	})
	if !ok {
		close(done)
		p.resolve(c.settleToggle(postID, token, done, undo, ErrClosed))
	}
}

// settleToggle runs on the loop once the write of a toggle has completed.
// undo restores the like state and count the post had before the toggle.
func (c *Coordinator) settleToggle(postID string, token Token, done chan struct{}, undo func(), err error) error {
	before := c.tracker.Len()
	latest := c.tracker.End(postID, token)
	monitoring.PendingMutations.Add(float64(c.tracker.Len() - before))

	if c.writes[postID] == done {
		delete(c.writes, postID)
		c.fences[postID] = c.gens.Latest()
		defer c.Refresh(c.ctx)
	}
	if err == nil {
		return nil
	}

	logger := c.log.WithFields(log.Fields{"post": postID, "op": "like"}).WithError(err)
	if !latest {
		// A later toggle owns the cached state; the refresh after the last
		// write reconciles the count.
		logger.Info("superseded like write failed")
		return surface(err)
	}
	undo()
	monitoring.Rollbacks.Inc()
	logger.Warn("like write failed, rolled back")
	return surface(err)
}

// AddComment comments on a post as the session user, then refreshes the
// comments of the post and the feed.
func (c *Coordinator) AddComment(ctx context.Context, postID, text string) *Pending {
	if err := c.requireUser(); err != nil {
		return failed(err)
	}
	comment := &domain.Comment{
		PostID:       postID,
		AuthorID:     c.session.UserID,
		AuthorName:   c.session.Name(),
		AuthorAvatar: c.session.Avatar,
		Text:         text,
	}
	return c.write("add comment", postID, func(ctx context.Context) error {
		return c.services.Comment.Create(ctx, comment)
	}, func() *Pending {
		return join(c.RefreshComments(c.ctx, postID), c.Refresh(c.ctx))
	})
}

// Heal recomputes the like and comment counters of a post from the likes
// and comments that exist, then refreshes the feed.
func (c *Coordinator) Heal(ctx context.Context, postID string) *Pending {
	if err := c.requireUser(); err != nil {
		return failed(err)
	}
	return c.write("heal", postID, func(ctx context.Context) error {
		_, err := c.services.Post.Recount(ctx, postID)
		return err
	}, func() *Pending {
		return c.Refresh(c.ctx)
	})
}

// Follow makes the session user follow another user. Following twice is not
// an error. Follow and Unfollow writes for the same user go out one at a
// time, in the order they were requested.
func (c *Coordinator) Follow(ctx context.Context, userID string) *Pending {
	if err := c.requireUser(); err != nil {
		return failed(err)
	}
	return c.writeFollow("follow", userID, func(ctx context.Context) error {
		err := c.services.Follow.Create(ctx, &domain.Follow{FollowerID: c.session.UserID, FollowedID: userID})
		if errs.Is(err, errs.ECONFLICT) {
			return nil
		}
		return err
	})
}

// Unfollow makes the session user stop following another user. Unfollowing
// a user that isn't followed is not an error.
func (c *Coordinator) Unfollow(ctx context.Context, userID string) *Pending {
	if err := c.requireUser(); err != nil {
		return failed(err)
	}
	return c.writeFollow("unfollow", userID, func(ctx context.Context) error {
		err := c.services.Follow.Delete(ctx, &domain.Follow{FollowerID: c.session.UserID, FollowedID: userID})
		if errs.Is(err, errs.ENOTFOUND) {
			return nil
		}
		return err
	})
}

// writeFollow runs call after the previous follow graph write for userID
// has returned, so the check for an existing follow never races another
// write of the same pair.
func (c *Coordinator) writeFollow(op, userID string, call func(context.Context) error) *Pending {
	p := newPending()
	posted := c.loop.Post(func() {
		prev := c.follows[userID]
		done := make(chan struct{})
		c.follows[userID] = done
		release := func() {
			if c.follows[userID] == done {
				delete(c.follows, userID)
			}
		}
		ok := c.spawn(func() {
			if prev != nil {
				<-prev
			}
			err := call(c.ctx)
			close(done)
			c.finish(p, op, "", func() (*Pending, error) {
				release()
				return nil, surface(err)
			})
		})
		if !ok {
			close(done)
			release()
			p.resolve(ErrClosed)
		}
	})
	if !posted {
		p.resolve(ErrClosed)
	}
	return p
}

// IsFollowing reports whether the session user follows userID.
func (c *Coordinator) IsFollowing(ctx context.Context, userID string) (bool, error) {
	if c.session.Anonymous() {
		return false, nil
	}
	ok, err := c.services.Follow.Exists(ctx, c.session.UserID, userID)
	return ok, surface(err)
}

// Followers lists who follows userID.
func (c *Coordinator) Followers(ctx context.Context, userID string) ([]domain.Follow, error) {
	list, err := c.services.Follow.Followers(ctx, userID)
	return list, surface(err)
}

// Following lists whom userID follows.
func (c *Coordinator) Following(ctx context.Context, userID string) ([]domain.Follow, error) {
	list, err := c.services.Follow.Following(ctx, userID)
	return list, surface(err)
}

// Watch keeps the feed up to date with the pushes of the store until ctx is
// done or the coordinator is closed. Every push is applied like the result
// of a Refresh. If the store ends the subscription on its own, an
// EUNAVAILABLE notice with op "watch" is sent on Errors.
//
// A store runs the query of a push only after the previous push has been
// received. The like state of a push is therefore judged by a generation
// issued before that receive, which predates the push's query.
func (c *Coordinator) Watch(ctx context.Context) error {
	sub, ok := c.services.Store().(domain.Subscriber)
	if !ok {
		return errs.Errorf(errs.EINVALID, "The store does not push updates.")
	}
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.watchCtx, cancel)
	since := c.gens.Issue(keyPosts)
	ch, err := sub.Subscribe(ctx, domain.Query{
		Collection: domain.CollectionPosts,
		OrderBy:    domain.FieldCreatedAt,
		Direction:  domain.Descending,
	})
	if err != nil {
		c.gens.Drop(since)
		stop()
		cancel()
		return surface(err)
	}
	started := c.spawn(func() {
		defer stop()
		defer cancel()
		for {
			next := c.gens.Issue(keyPosts)
			var docs []domain.Document
			ok := false
			select {
			case docs, ok = <-ch:
			case <-ctx.Done():
			}
			if !ok {
				c.gens.Drop(next)
				c.gens.Drop(since)
				break
			}
			gen := c.gens.Issue(keyPosts)
			posts, err := decodePosts(docs)
			var liked map[string]bool
			if err == nil && !c.session.Anonymous() {
				liked, err = c.services.Like.LikedPostIDs(ctx, c.session.UserID)
			}
			c.completePosts(newPending(), keyPosts, gen, since, posts, liked, err, func(list []domain.Post) {
				c.cache.ReplacePosts(list, nil)
			})
			since = next
		}
		if ctx.Err() != nil {
			c.log.Debug("watch ended")
			return
		}
		c.finish(newPending(), "watch", "", func() (*Pending, error) {
			return nil, errs.Errorf(errs.EUNAVAILABLE, "Live updates stopped, refresh to try again.")
		})
	})
	if !started {
		c.gens.Drop(since)
		stop()
		cancel()
		return ErrClosed
	}
	return nil
}

// Snapshot returns a copy of the feed.
func (c *Coordinator) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := c.loop.Call(ctx, func() {
		snap = c.cache.Snapshot()
		c.markPending(snap.Posts)
	})
	return snap, err
}

// UserPosts returns the cached posts of one author, as of the last
// RefreshUserPosts.
func (c *Coordinator) UserPosts(ctx context.Context, userID string) ([]PostView, error) {
	var views []PostView
	err := c.loop.Call(ctx, func() {
		for _, p := range c.cache.UserPosts(userID) {
			views = append(views, PostView{Post: p, LikedByMe: c.cache.LikedByMe(p.ID)})
		}
		c.markPending(views)
	})
	return views, err
}

// Comments returns the cached comments of a post, oldest first.
func (c *Coordinator) Comments(ctx context.Context, postID string) ([]domain.Comment, error) {
	var list []domain.Comment
	err := c.loop.Call(ctx, func() {
		list = c.cache.Comments(postID)
	})
	return list, err
}

// LikedByMe reports whether the session user likes a post, as the cache
// currently shows it.
func (c *Coordinator) LikedByMe(ctx context.Context, postID string) (bool, error) {
	var liked bool
	err := c.loop.Call(ctx, func() {
		liked = c.cache.LikedByMe(postID)
	})
	return liked, err
}

func (c *Coordinator) markPending(views []PostView) {
	for i := range views {
		views[i].Pending = c.tracker.IsPending(views[i].ID)
	}
}

func (c *Coordinator) fetchPosts(ctx context.Context, key string, fetch func(context.Context) ([]domain.Post, error), apply func([]domain.Post)) *Pending {
	p := newPending()
	gen := c.gens.Issue(key)
	ok := c.spawn(func() {
		posts, err := fetch(ctx)
		var liked map[string]bool
		if err == nil && !c.session.Anonymous() {
			liked, err = c.services.Like.LikedPostIDs(ctx, c.session.UserID)
		}
		c.completePosts(p, key, gen, gen, posts, liked, err, apply)
	})
	if !ok {
		c.gens.Drop(gen)
		p.resolve(ErrClosed)
	}
	return p
}

// completePosts hands the result of a post fetch to the loop. Results older
// than the latest applied one for key are dropped. since is a generation
// issued before the fetch read the store; for one-shot fetches it is gen.
//
// Posts whose like state the session user is changing, or has changed after
// since, keep their cached like state and count. Posts the cache took from a
// newer fetch of another resource keep their cached entry.
func (c *Coordinator) completePosts(p *Pending, key string, gen, since uint64, posts []domain.Post, liked map[string]bool, err error, apply func([]domain.Post)) {
	c.finish(p, "refresh", "", func() (*Pending, error) {
		c.gens.Drop(since)
		if err != nil {
			c.gens.Drop(gen)
			if key == keyPosts {
				c.cache.ReplacePosts(nil, err)
			}
			return nil, surface(err)
		}
		if !c.accept(key, gen) {
			return nil, nil
		}
		for i := range posts {
			id := posts[i].ID
			cached, ok := c.cache.Post(id)
			if ok && c.postGens[id] > since {
				posts[i] = cached
				continue
			}
			c.postGens[id] = since
			if c.holdsLike(id, since) {
				if ok {
					posts[i].LikeCount = cached.LikeCount
				}
				continue
			}
			if liked != nil {
				c.cache.SetLikedByMe(id, liked[id])
			}
		}
		apply(posts)
		c.pruneFences()
		c.prunePostGens()
		return nil, nil
	})
}

func (c *Coordinator) accept(key string, gen uint64) bool {
	if c.gens.Accept(key, gen) {
		return true
	}
	monitoring.StaleFetches.WithLabelValues(resourceOf(key)).Inc()
	c.log.WithFields(log.Fields{"resource": key, "generation": gen}).Debug("dropping stale fetch")
	return false
}

func (c *Coordinator) holdsLike(postID string, gen uint64) bool {
	if c.tracker.IsPending(postID) {
		return true
	}
	fence, ok := c.fences[postID]
	return ok && gen <= fence
}

// pruneFences drops the fences no fetch in flight can cross anymore.
func (c *Coordinator) pruneFences() {
	oldest := c.gens.Oldest()
	for id, fence := range c.fences {
		if fence < oldest {
			delete(c.fences, id)
		}
	}
}

// prunePostGens forgets the generations of posts the cache dropped.
func (c *Coordinator) prunePostGens() {
	for id := range c.postGens {
		if _, ok := c.cache.Post(id); !ok {
			delete(c.postGens, id)
		}
	}
}

// write runs call on a background goroutine with the coordinator's own
// context, so a caller that stops waiting doesn't abort a write halfway. On
// success, then runs on the loop and the returned Pending completes once
// whatever then started has completed too.
func (c *Coordinator) write(op, postID string, call func(context.Context) error, then func() *Pending) *Pending {
	p := newPending()
	ok := c.spawn(func() {
		err := call(c.ctx)
		c.finish(p, op, postID, func() (*Pending, error) {
			if err != nil {
				return nil, surface(err)
			}
			if then == nil {
				return nil, nil
			}
			return then(), nil
		})
	})
	if !ok {
		p.resolve(ErrClosed)
	}
	return p
}

// finish runs fn on the loop and completes p with its outcome. Failures are
// also reported on the Errors channel.
func (c *Coordinator) finish(p *Pending, op, postID string, fn func() (*Pending, error)) {
	posted := c.loop.Post(func() {
		next, err := fn()
		c.changed()
		if err != nil {
			c.report(op, postID, err)
			p.resolve(err)
			return
		}
		if next == nil {
			p.resolve(nil)
			return
		}
		go func() {
			<-next.Done()
			p.resolve(nil)
		}()
	})
	if !posted {
		p.resolve(ErrClosed)
	}
}

func (c *Coordinator) changed() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}

func (c *Coordinator) report(op, postID string, err error) {
	fields := log.Fields{"op": op}
	if postID != "" {
		fields["post"] = postID
	}
	logger := c.log.WithFields(fields).WithError(err)
	switch errs.ErrorCode(err) {
	case errs.EUNAVAILABLE, errs.EINTERNAL:
		logger.Error("remote operation failed")
	default:
		logger.Info("operation rejected")
	}
	select {
	case c.notices <- Notice{Op: op, PostID: postID, Err: err}:
	default:
		logger.Debug("notice buffer full, dropping notice")
	}
}

// spawn runs fn on a tracked goroutine unless the coordinator is closed.
func (c *Coordinator) spawn(fn func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		fn()
	}()
	return true
}

func (c *Coordinator) requireUser() error {
	if c.session.Anonymous() {
		return errs.Errorf(errs.EUNAUTHENTICATED, "You must be signed in to do that.")
	}
	return nil
}

// surface maps errors of the remote protocols to what the user is told.
// An exhausted transaction is as good as an unavailable backend.
func surface(err error) error {
	switch {
	case err == nil:
		return nil
	case errs.Is(err, errs.ECONFLICT):
		return &errs.Error{
			Code:    errs.EUNAVAILABLE,
			Message: "The post is busy right now, please try again.",
			Err:     err,
		}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if errs.ErrorCode(err) == errs.EINTERNAL {
			return errs.Unavailable(err)
		}
	}
	return err
}

func likeDelta(liked bool) int {
	if liked {
		return 1
	}
	return -1
}

func resourceOf(key string) string {
	if i := strings.IndexByte(key, '/'); i >= 0 {
		return key[:i]
	}
	return key
}

func decodePosts(docs []domain.Document) ([]domain.Post, error) {
	posts := make([]domain.Post, 0, len(docs))
	for _, doc := range docs {
		var p domain.Post
		if err := domain.Decode(doc, &p); err != nil {
			return nil, errs.Errorf(errs.EINTERNAL, "Malformed post %s.", doc.ID)
		}
		posts = append(posts, p)
	}
	return posts, nil
}

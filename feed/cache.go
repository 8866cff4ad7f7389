// Package feed keeps a local view of posts, their comments and the current
// user's likes consistent with the remote store while the user keeps
// mutating it.
//
// All state lives in a Cache that is only ever touched from one goroutine,
// the Loop of a Coordinator. Remote calls run elsewhere and hand their
// results back to the loop, where they are filtered through the Tracker (so
// an in-flight like is not visually undone by an older read) and through
// Generations (so an older fetch never overwrites a newer one).
package feed

import (
	log "github.com/sirupsen/logrus"

	"forkChan/domain"
)

// PostView is a post as the presentation layer renders it.
type PostView struct {
	domain.Post
	LikedByMe bool `json:"liked_by_me"`
	// Pending is set while a like toggle of the post waits for its write.
	Pending bool `json:"pending"`
}

// Snapshot is a consistent copy of the feed.
type Snapshot struct {
	Posts []PostView `json:"posts"`
}

// Cache is the in-memory feed: the post list (newest first), the comments of
// each post (oldest first), the posts of individual authors, and the set of
// posts the current user likes.
//
// Cache holds no locks. It must only be used from a single goroutine.
type Cache struct {
	posts    map[string]*domain.Post
	order    []string
	byAuthor map[string][]string
	comments map[string][]domain.Comment
	liked    map[string]bool
	log      log.FieldLogger
}

// NewCache returns an empty Cache.
func NewCache(logger log.FieldLogger) *Cache {
	if logger == nil {
		logger = log.StandardLogger()
	}
	return &Cache{
		posts:    map[string]*domain.Post{},
		byAuthor: map[string][]string{},
		comments: map[string][]domain.Comment{},
		liked:    map[string]bool{},
		log:      logger,
	}
}

// ReplacePosts replaces the feed with list, keeping its order. A non-nil
// fetchErr marks a failed fetch: the cache keeps its state and reports false.
// A nil fetchErr with an empty list empties the feed.
func (c *Cache) ReplacePosts(list []domain.Post, fetchErr error) bool {
	if fetchErr != nil {
		c.log.WithError(fetchErr).Warn("feed fetch failed, keeping cached posts")
		return false
	}
	c.order = c.upsert(list)
	c.prune()
	return true
}

// SetUserPosts replaces the list of posts of one author.
func (c *Cache) SetUserPosts(userID string, list []domain.Post) {
	c.byAuthor[userID] = c.upsert(list)
	c.prune()
}

// SetComments replaces the comments of a post. Unknown posts get an entry.
func (c *Cache) SetComments(postID string, list []domain.Comment) {
	cp := make([]domain.Comment, len(list))
	copy(cp, list)
	c.comments[postID] = cp
}

// ApplyLikeDelta adds delta to the like count of a post. Unknown posts are
// ignored and the count never drops below zero.
func (c *Cache) ApplyLikeDelta(postID string, delta int) {
	p, ok := c.posts[postID]
	if !ok {
		return
	}
	p.LikeCount += delta
	if p.LikeCount < 0 {
		p.LikeCount = 0
	}
}

// SetLikeCount sets the like count of a post. Unknown posts are ignored.
func (c *Cache) SetLikeCount(postID string, count int) {
	if p, ok := c.posts[postID]; ok && count >= 0 {
		p.LikeCount = count
	}
}

// SetLikedByMe records whether the current user likes a post.
func (c *Cache) SetLikedByMe(postID string, liked bool) {
	if liked {
		c.liked[postID] = true
		return
	}
	delete(c.liked, postID)
}

// Forget drops a post and its comments.
func (c *Cache) Forget(postID string) {
	c.order = without(c.order, postID)
	for author, ids := range c.byAuthor {
		c.byAuthor[author] = without(ids, postID)
	}
	delete(c.posts, postID)
	delete(c.comments, postID)
	delete(c.liked, postID)
}

// Posts returns a copy of the feed, newest first.
func (c *Cache) Posts() []domain.Post {
	return c.list(c.order)
}

// UserPosts returns a copy of the cached posts of one author.
func (c *Cache) UserPosts(userID string) []domain.Post {
	return c.list(c.byAuthor[userID])
}

// Post returns a copy of one cached post.
func (c *Cache) Post(id string) (domain.Post, bool) {
	p, ok := c.posts[id]
	if !ok {
		return domain.Post{}, false
	}
	return *p, true
}

// Comments returns a copy of the comments of a post, oldest first.
func (c *Cache) Comments(postID string) []domain.Comment {
	list := c.comments[postID]
	cp := make([]domain.Comment, len(list))
	copy(cp, list)
	return cp
}

// LikedByMe reports whether the current user likes a post.
func (c *Cache) LikedByMe(postID string) bool {
	return c.liked[postID]
}

// Snapshot returns a copy of the feed with the like membership resolved.
func (c *Cache) Snapshot() Snapshot {
	return Snapshot{Posts: c.views(c.order)}
}

func (c *Cache) views(ids []string) []PostView {
	out := make([]PostView, 0, len(ids))
	for _, id := range ids {
		out = append(out, PostView{Post: *c.posts[id], LikedByMe: c.liked[id]})
	}
	return out
}

func (c *Cache) list(ids []string) []domain.Post {
	out := make([]domain.Post, 0, len(ids))
	for _, id := range ids {
		out = append(out, *c.posts[id])
	}
	return out
}

// upsert stores the posts of list and returns their IDs in order. Duplicate
// IDs keep their first position.
func (c *Cache) upsert(list []domain.Post) []string {
	ids := make([]string, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, p := range list {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		p := p
		c.posts[p.ID] = &p
		ids = append(ids, p.ID)
	}
	return ids
}

// prune drops posts no list refers to anymore.
func (c *Cache) prune() {
	live := make(map[string]bool, len(c.posts))
	for _, id := range c.order {
		live[id] = true
	}
	for _, ids := range c.byAuthor {
		for _, id := range ids {
			live[id] = true
		}
	}
	for id := range c.posts {
		if !live[id] {
			delete(c.posts, id)
		}
	}
}

func without(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

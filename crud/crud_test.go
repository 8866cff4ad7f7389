package crud

import (
	"context"
	"errors"
	"sync"
	"testing"

	"forkChan/database/memory"
	"forkChan/domain"
	"forkChan/errs"
)

// txFailStore fails every transaction.
type txFailStore struct {
	*memory.Store
}

func (s txFailStore) RunTransaction(ctx context.Context, refs []domain.DocRef, fn domain.TxFunc) error {
	return errs.Unavailable(errors.New("connection reset"))
}

func newTestServices(t *testing.T, store domain.RemoteStore) *Services {
	t.Helper()
	s, err := NewServices(store, WithAll("hmac-secret", "pepper", 1<<20))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func createPost(t *testing.T, s *Services, author, description string) *domain.Post {
	t.Helper()
	post := &domain.Post{AuthorID: author, AuthorName: "Author " + author, Description: description}
	if err := s.Post.Create(context.Background(), post); err != nil {
		t.Fatal(err)
	}
	return post
}

func TestPostCreateValidation(t *testing.T) {
	s := newTestServices(t, memory.NewStore())
	long := make([]rune, MaxDescriptionLength+1)
	for i := range long {
		long[i] = 'a'
	}
	tests := []struct {
		name string
		post domain.Post
		code string
	}{
		{"no author", domain.Post{Description: "hi"}, errs.EINVALID},
		{"no content", domain.Post{AuthorID: "u1", Description: "  "}, errs.EINVALID},
		{"too long", domain.Post{AuthorID: "u1", Description: string(long)}, errs.EINVALID},
		{"image only", domain.Post{AuthorID: "u1", Image: "https://example.com/a.png"}, ""},
		{"text", domain.Post{AuthorID: "u1", Description: "hello"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			post := tt.post
			err := s.Post.Create(context.Background(), &post)
			if tt.code == "" {
				if err != nil {
					t.Fatalf("unexpected error %v", err)
				}
				if post.ID == "" || post.CreatedAt.IsZero() {
					t.Fatalf("store metadata missing: %+v", post)
				}
				return
			}
			if got := errs.ErrorCode(err); got != tt.code {
				t.Fatalf("got code %q, want %q", got, tt.code)
			}
		})
	}
}

func TestPostFeedOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, memory.NewStore())
	first := createPost(t, s, "u1", "first")
	second := createPost(t, s, "u2", "second")
	third := createPost(t, s, "u1", "third")

	feed, err := s.Post.Feed(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(feed) != 3 || feed[0].ID != third.ID || feed[1].ID != second.ID || feed[2].ID != first.ID {
		t.Fatalf("feed not newest first: %+v", feed)
	}

	mine, err := s.Post.ByAuthor(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 2 || mine[0].ID != third.ID || mine[1].ID != first.ID {
		t.Fatalf("unexpected author posts: %+v", mine)
	}
}

func TestPostDeleteCascades(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	s := newTestServices(t, store)
	post := createPost(t, s, "u1", "doomed")
	other := createPost(t, s, "u1", "survivor")

	for i := 0; i < 5; i++ {
		if err := s.Comment.Create(ctx, &domain.Comment{PostID: post.ID, AuthorID: "u2", Text: "nice"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Comment.Create(ctx, &domain.Comment{PostID: other.ID, AuthorID: "u2", Text: "keep"}); err != nil {
		t.Fatal(err)
	}
	for _, u := range []string{"u2", "u3"} {
		if _, err := s.Like.Set(ctx, post.ID, u, true); err != nil {
			t.Fatal(err)
		}
	}

	err := s.Post.Delete(ctx, &domain.Post{ID: post.ID, AuthorID: "u2"})
	if got := errs.ErrorCode(err); got != errs.EUNAUTHORIZED {
		t.Fatalf("non-author delete: got %q, want %q", got, errs.EUNAUTHORIZED)
	}

	if err := s.Post.Delete(ctx, &domain.Post{ID: post.ID, AuthorID: "u1"}); err != nil {
		t.Fatal(err)
	}
	comments, _ := s.Comment.ByPost(ctx, post.ID)
	if len(comments) != 0 {
		t.Fatalf("%d comments left after delete", len(comments))
	}
	likes, _ := store.Query(ctx, domain.Query{
		Collection: domain.CollectionLikes,
		Filters:    []domain.Filter{domain.Where(domain.FieldPostID, post.ID)},
	})
	if len(likes) != 0 {
		t.Fatalf("%d likes left after delete", len(likes))
	}
	if _, err := s.Post.ByID(ctx, post.ID); !errs.Is(err, errs.ENOTFOUND) {
		t.Fatalf("deleted post: got %v, want not found", err)
	}
	kept, _ := s.Comment.ByPost(ctx, other.ID)
	if len(kept) != 1 {
		t.Fatalf("other post lost its comments: %+v", kept)
	}

	err = s.Post.Delete(ctx, &domain.Post{ID: post.ID, AuthorID: "u1"})
	if !errs.Is(err, errs.ENOTFOUND) {
		t.Fatalf("double delete: got %v, want not found", err)
	}
}

func TestLikeSetIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, memory.NewStore())
	post := createPost(t, s, "u1", "hello")

	steps := []struct {
		liked     bool
		changed   bool
		wantCount int
	}{
		{true, true, 1},
		{true, false, 1},
		{false, true, 0},
		{false, false, 0},
		{true, true, 1},
	}
	for i, step := range steps {
		changed, err := s.Like.Set(ctx, post.ID, "u2", step.liked)
		if err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		if changed != step.changed {
			t.Fatalf("step %d: changed = %v, want %v", i, changed, step.changed)
		}
		got, _ := s.Post.ByID(ctx, post.ID)
		if got.LikeCount != step.wantCount {
			t.Fatalf("step %d: likeCount = %d, want %d", i, got.LikeCount, step.wantCount)
		}
		liked, _ := s.Like.Exists(ctx, post.ID, "u2")
		if liked != step.liked {
			t.Fatalf("step %d: Exists = %v, want %v", i, liked, step.liked)
		}
	}

	ids, err := s.Like.LikedPostIDs(ctx, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || !ids[post.ID] {
		t.Fatalf("unexpected liked set %v", ids)
	}
}

func TestLikeUnknownPost(t *testing.T) {
	s := newTestServices(t, memory.NewStore())
	_, err := s.Like.Set(context.Background(), "missing", "u1", true)
	if !errs.Is(err, errs.ENOTFOUND) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestConcurrentLikesFromDifferentUsers(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, memory.NewStore(memory.WithMaxRetries(50)))
	post := createPost(t, s, "u1", "popular")

	users := []string{"a", "b", "c", "d", "e", "f", "g", "h"}
	var wg sync.WaitGroup
	errc := make(chan error, len(users))
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			if _, err := s.Like.Set(ctx, post.ID, u, true); err != nil {
				errc <- err
			}
		}(u)
	}
	wg.Wait()
	close(errc)
	for err := range errc {
		t.Fatal(err)
	}
	got, _ := s.Post.ByID(ctx, post.ID)
	if got.LikeCount != len(users) {
		t.Fatalf("likeCount = %d, want %d", got.LikeCount, len(users))
	}
}

func TestLikeCompensatesFailedCounter(t *testing.T) {
	ctx := context.Background()
	mem := memory.NewStore()
	good := newTestServices(t, mem)
	post := createPost(t, good, "u1", "hello")
	bad := newTestServices(t, txFailStore{mem})

	if _, err := bad.Like.Set(ctx, post.ID, "u2", true); !errs.Is(err, errs.EUNAVAILABLE) {
		t.Fatalf("got %v, want unavailable", err)
	}
	if liked, _ := good.Like.Exists(ctx, post.ID, "u2"); liked {
		t.Fatal("like survived a failed counter update")
	}

	if _, err := good.Like.Set(ctx, post.ID, "u2", true); err != nil {
		t.Fatal(err)
	}
	if _, err := bad.Like.Set(ctx, post.ID, "u2", false); !errs.Is(err, errs.EUNAVAILABLE) {
		t.Fatalf("got %v, want unavailable", err)
	}
	if liked, _ := good.Like.Exists(ctx, post.ID, "u2"); !liked {
		t.Fatal("like lost after a failed counter update")
	}
	got, _ := good.Post.ByID(ctx, post.ID)
	if got.LikeCount != 1 {
		t.Fatalf("likeCount = %d, want 1", got.LikeCount)
	}
}

func TestCommentCreate(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, memory.NewStore())
	post := createPost(t, s, "u1", "hello")

	for _, text := range []string{"one", "two", "three"} {
		c := &domain.Comment{PostID: post.ID, AuthorID: "u2", AuthorName: "Bob", Text: text}
		if err := s.Comment.Create(ctx, c); err != nil {
			t.Fatal(err)
		}
		if c.ID == "" || c.CreatedAt.IsZero() {
			t.Fatalf("comment metadata missing: %+v", c)
		}
	}
	comments, err := s.Comment.ByPost(ctx, post.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 3 || comments[0].Text != "one" || comments[2].Text != "three" {
		t.Fatalf("comments not oldest first: %+v", comments)
	}
	got, _ := s.Post.ByID(ctx, post.ID)
	if got.CommentCount != 3 {
		t.Fatalf("commentCount = %d, want 3", got.CommentCount)
	}

	err = s.Comment.Create(ctx, &domain.Comment{PostID: post.ID, AuthorID: "u2", Text: " "})
	if !errs.Is(err, errs.EINVALID) {
		t.Fatalf("empty comment: got %v, want invalid", err)
	}
	err = s.Comment.Create(ctx, &domain.Comment{PostID: "missing", AuthorID: "u2", Text: "hi"})
	if !errs.Is(err, errs.ENOTFOUND) {
		t.Fatalf("comment on missing post: got %v, want not found", err)
	}
}

func TestPostRecount(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	s := newTestServices(t, store)
	post := createPost(t, s, "u1", "drifted")
	if _, err := s.Like.Set(ctx, post.ID, "u2", true); err != nil {
		t.Fatal(err)
	}
	if err := s.Comment.Create(ctx, &domain.Comment{PostID: post.ID, AuthorID: "u2", Text: "hi"}); err != nil {
		t.Fatal(err)
	}
	err := store.Update(ctx, domain.CollectionPosts, post.ID, domain.Fields{
		domain.FieldLikeCount:    7,
		domain.FieldCommentCount: 0,
	})
	if err != nil {
		t.Fatal(err)
	}

	counts, err := s.Post.Recount(ctx, post.ID)
	if err != nil {
		t.Fatal(err)
	}
	if counts != (domain.Counts{Likes: 1, Comments: 1}) {
		t.Fatalf("unexpected counts %+v", counts)
	}
	got, _ := s.Post.ByID(ctx, post.ID)
	if got.LikeCount != 1 || got.CommentCount != 1 {
		t.Fatalf("counters not healed: %+v", got)
	}
}

func TestUserSignupAndSignIn(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, memory.NewStore())

	user := &domain.User{Name: " Alice ", Email: " Alice@Example.com ", Password: "correct horse"}
	if err := s.User.Create(ctx, user); err != nil {
		t.Fatal(err)
	}
	if user.ID == "" || user.Name != "Alice" || user.Email != "alice@example.com" {
		t.Fatalf("unexpected user %+v", user)
	}
	if user.Password != "" || user.PasswordHash == "" {
		t.Fatal("password was not replaced by its hash")
	}

	dup := &domain.User{Email: "alice@example.com", Password: "whatever1"}
	if err := s.User.Create(ctx, dup); !errs.Is(err, errs.EINVALID) {
		t.Fatalf("duplicate email: got %v, want invalid", err)
	}

	tests := []struct {
		name     string
		email    string
		password string
		ok       bool
	}{
		{"right", "alice@example.com", "correct horse", true},
		{"case and space", " ALICE@example.com", "correct horse", true},
		{"wrong password", "alice@example.com", "wrong horse", false},
		{"unknown", "bob@example.com", "correct horse", false},
		{"empty", "", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.User.Authenticate(ctx, tt.email, tt.password)
			if tt.ok {
				if err != nil || got.ID != user.ID {
					t.Fatalf("got %v, %v", got, err)
				}
				return
			}
			if !errs.Is(err, errs.EINVALID) {
				t.Fatalf("got %v, want invalid", err)
			}
		})
	}

	if err := s.User.SignIn(ctx, user); err != nil {
		t.Fatal(err)
	}
	token := user.Remember
	found, err := s.User.ByRemember(ctx, token)
	if err != nil || found.ID != user.ID {
		t.Fatalf("ByRemember: %v, %v", found, err)
	}
	if found.Session().UserID != user.ID || found.Session().Name() != "Alice" {
		t.Fatalf("unexpected session %+v", found.Session())
	}

	if err := s.User.SignOut(ctx, user); err != nil {
		t.Fatal(err)
	}
	if _, err := s.User.ByRemember(ctx, token); !errs.Is(err, errs.ENOTFOUND) {
		t.Fatalf("old token still valid: %v", err)
	}
	if _, err := s.User.ByRemember(ctx, "short"); err == nil {
		t.Fatal("short token accepted")
	}
}

func TestUserUpdateProfile(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, memory.NewStore())
	user := &domain.User{Name: "Alice", Email: "alice@example.com", Password: "password1"}
	if err := s.User.Create(ctx, user); err != nil {
		t.Fatal(err)
	}

	bio := "  eats forks  "
	got, err := s.User.UpdateProfile(ctx, user.ID, domain.ProfileUpdate{Bio: &bio})
	if err != nil {
		t.Fatal(err)
	}
	if got.Bio != "eats forks" || got.Name != "Alice" {
		t.Fatalf("unexpected profile %+v", got)
	}
	stored, _ := s.User.ByID(ctx, user.ID)
	if stored.Bio != "eats forks" || stored.PasswordHash == "" {
		t.Fatalf("profile update clobbered the account: %+v", stored)
	}

	long := string(make([]byte, MaxNameLength+1))
	if _, err := s.User.UpdateProfile(ctx, user.ID, domain.ProfileUpdate{Name: &long}); err == nil {
		t.Fatal("overlong name accepted")
	}
	if _, err := s.User.UpdateProfile(ctx, "missing", domain.ProfileUpdate{Bio: &bio}); !errs.Is(err, errs.ENOTFOUND) {
		t.Fatalf("got %v, want not found", err)
	}
}

func TestFollow(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, memory.NewStore())
	alice := &domain.User{Email: "alice@example.com", Password: "password1"}
	bob := &domain.User{Email: "bob@example.com", Password: "password1"}
	for _, u := range []*domain.User{alice, bob} {
		if err := s.User.Create(ctx, u); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.Follow.Create(ctx, &domain.Follow{FollowerID: alice.ID, FollowedID: alice.ID}); !errs.Is(err, errs.EINVALID) {
		t.Fatalf("self follow: got %v", err)
	}
	if err := s.Follow.Create(ctx, &domain.Follow{FollowerID: alice.ID, FollowedID: "ghost"}); !errs.Is(err, errs.ENOTFOUND) {
		t.Fatalf("ghost follow: got %v", err)
	}
	if err := s.Follow.Create(ctx, &domain.Follow{FollowerID: alice.ID, FollowedID: bob.ID}); err != nil {
		t.Fatal(err)
	}
	if err := s.Follow.Create(ctx, &domain.Follow{FollowerID: alice.ID, FollowedID: bob.ID}); !errs.Is(err, errs.ECONFLICT) {
		t.Fatalf("second follow: got %v, want conflict", err)
	}

	followers, _ := s.Follow.Followers(ctx, bob.ID)
	following, _ := s.Follow.Following(ctx, alice.ID)
	if len(followers) != 1 || followers[0].FollowerID != alice.ID || len(following) != 1 {
		t.Fatalf("followers %+v, following %+v", followers, following)
	}

	if err := s.Follow.Delete(ctx, &domain.Follow{FollowerID: alice.ID, FollowedID: bob.ID}); err != nil {
		t.Fatal(err)
	}
	if ok, _ := s.Follow.Exists(ctx, alice.ID, bob.ID); ok {
		t.Fatal("follow still exists")
	}
	if err := s.Follow.Delete(ctx, &domain.Follow{FollowerID: alice.ID, FollowedID: bob.ID}); !errs.Is(err, errs.ENOTFOUND) {
		t.Fatalf("second unfollow: got %v, want not found", err)
	}
}

func TestChat(t *testing.T) {
	ctx := context.Background()
	s := newTestServices(t, memory.NewStore())

	room := &domain.ChatRoom{Name: " forks ", CreatorID: "u1"}
	if err := s.Chat.CreateRoom(ctx, room); err != nil {
		t.Fatal(err)
	}
	if room.ID == "" || room.Name != "forks" {
		t.Fatalf("unexpected room %+v", room)
	}
	if err := s.Chat.CreateRoom(ctx, &domain.ChatRoom{CreatorID: "u1"}); !errs.Is(err, errs.EINVALID) {
		t.Fatalf("nameless room: got %v", err)
	}
	for _, text := range []string{"hi", "hello"} {
		if err := s.Chat.Send(ctx, &domain.Message{RoomID: room.ID, SenderID: "u1", Text: text}); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Chat.Send(ctx, &domain.Message{RoomID: "nope", SenderID: "u1", Text: "hi"}); !errs.Is(err, errs.ENOTFOUND) {
		t.Fatalf("message to missing room: got %v", err)
	}
	msgs, err := s.Chat.Messages(ctx, room.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 2 || msgs[0].Text != "hi" || msgs[1].Text != "hello" {
		t.Fatalf("unexpected messages %+v", msgs)
	}
	rooms, _ := s.Chat.Rooms(ctx)
	if len(rooms) != 1 {
		t.Fatalf("unexpected rooms %+v", rooms)
	}
}

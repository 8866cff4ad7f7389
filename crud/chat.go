package crud

import (
	"context"
	"strings"
	"unicode/utf8"

	"forkChan/domain"
	"forkChan/errs"
)

const (
	// MaxRoomNameLength is the maximum number of characters of a chat room name.
	MaxRoomNameLength = 64
	// MaxMessageLength is the maximum number of characters of a chat message.
	MaxMessageLength = 1000
)

// ChatService manages chat rooms and their messages.
// It implements the domain.ChatService interface.
type ChatService struct {
	chatValidator
}

// chatValidator runs validations on incoming ChatRoom and Message data.
// On success, it passes the data on to chatStore.
type chatValidator struct {
	chatStore
}

// chatStore runs CRUD operations on the remote store using incoming chat data.
type chatStore struct {
	store domain.RemoteStore
}

// NewChatService returns an instance of ChatService.
func NewChatService(store domain.RemoteStore) *ChatService {
	return &ChatService{
		chatValidator{
			chatStore{
				store: store,
			},
		},
	}
}

// Ensure the ChatService struct properly implements the domain.ChatService interface.
// If it does not, then this expression becomes invalid and won't compile.
var _ domain.ChatService = &ChatService{}

// CreateRoom runs validations needed for creating a new chat room.
func (cv *chatValidator) CreateRoom(ctx context.Context, room *domain.ChatRoom) error {
	room.Name = strings.TrimSpace(room.Name)
	if room.CreatorID == "" {
		return errs.UserIdValid
	}
	if room.Name == "" {
		return errs.Errorf(errs.EINVALID, "The chat room needs a name.")
	}
	if utf8.RuneCountInString(room.Name) > MaxRoomNameLength {
		return errs.Errorf(errs.EINVALID, "Chat room name max length is %d characters.", MaxRoomNameLength)
	}
	return cv.chatStore.CreateRoom(ctx, room)
}

// Send runs validations needed for posting a message to a room.
func (cv *chatValidator) Send(ctx context.Context, msg *domain.Message) error {
	msg.Text = strings.TrimSpace(msg.Text)
	if msg.SenderID == "" {
		return errs.UserIdValid
	}
	if msg.RoomID == "" {
		return errs.IdInvalid
	}
	if msg.Text == "" {
		return errs.Errorf(errs.EINVALID, "Message text must not be empty.")
	}
	if utf8.RuneCountInString(msg.Text) > MaxMessageLength {
		return errs.Errorf(errs.EINVALID, "Message max length is %d characters.", MaxMessageLength)
	}
	if _, err := cv.store.Get(ctx, domain.CollectionChatRooms, msg.RoomID); err != nil {
		if errs.Is(err, errs.ENOTFOUND) {
			return errs.Errorf(errs.ENOTFOUND, "The chat room does not exist.")
		}
		return err
	}
	return cv.chatStore.Send(ctx, msg)
}

// Rooms retrieves all chat rooms, newest first.
func (cs *chatStore) Rooms(ctx context.Context) ([]domain.ChatRoom, error) {
	docs, err := cs.store.Query(ctx, domain.Query{
		Collection: domain.CollectionChatRooms,
		OrderBy:    domain.FieldCreatedAt,
		Direction:  domain.Descending,
	})
	if err != nil {
		return nil, err
	}
	return decodeAll[domain.ChatRoom](docs)
}

// Messages retrieves the messages of a room, oldest first.
func (cs *chatStore) Messages(ctx context.Context, roomID string) ([]domain.Message, error) {
	docs, err := cs.store.Query(ctx, domain.Query{
		Collection: domain.CollectionMessages,
		Filters:    []domain.Filter{domain.Where(domain.FieldRoomID, roomID)},
		OrderBy:    domain.FieldCreatedAt,
		Direction:  domain.Ascending,
	})
	if err != nil {
		return nil, err
	}
	return decodeAll[domain.Message](docs)
}

// CreateRoom stores the room in a new document.
func (cs *chatStore) CreateRoom(ctx context.Context, room *domain.ChatRoom) error {
	return cs.create(ctx, domain.CollectionChatRooms, room)
}

// Send stores the message in a new document.
func (cs *chatStore) Send(ctx context.Context, msg *domain.Message) error {
	return cs.create(ctx, domain.CollectionMessages, msg)
}

// create stores v and decodes the stored document back into it, which fills
// in the ID and timestamp.
func (cs *chatStore) create(ctx context.Context, collection string, v interface{}) error {
	fields, err := domain.FieldsOf(v)
	if err != nil {
		return err
	}
	id, err := cs.store.Create(ctx, collection, fields)
	if err != nil {
		return err
	}
	doc, err := cs.store.Get(ctx, collection, id)
	if err != nil {
		return err
	}
	return domain.Decode(*doc, v)
}

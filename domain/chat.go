package domain

import (
	"context"
	"time"
)

// ChatRoom is a named conversation any signed in user can post messages to.
type ChatRoom struct {
	ID        string    `json:"id" mapstructure:"-"`
	Name      string    `json:"name" mapstructure:"name"`
	CreatorID string    `json:"creator_id" mapstructure:"creatorId"`
	CreatedAt time.Time `json:"created_at" mapstructure:"-"`
}

func (c *ChatRoom) setMeta(id string, createdAt time.Time) {
	c.ID = id
	c.CreatedAt = createdAt
}

// Message is a single chat line of a ChatRoom.
type Message struct {
	ID         string    `json:"id" mapstructure:"-"`
	RoomID     string    `json:"room_id" mapstructure:"roomId"`
	SenderID   string    `json:"sender_id" mapstructure:"senderId"`
	SenderName string    `json:"sender_name" mapstructure:"senderName"`
	Text       string    `json:"text" mapstructure:"text"`
	CreatedAt  time.Time `json:"created_at" mapstructure:"-"`
}

func (m *Message) setMeta(id string, createdAt time.Time) {
	m.ID = id
	m.CreatedAt = createdAt
}

// ChatService is a set of methods to manipulate and work with chat rooms and their messages.
type ChatService interface {
	Rooms(ctx context.Context) ([]ChatRoom, error)
	CreateRoom(ctx context.Context, room *ChatRoom) error
	Messages(ctx context.Context, roomID string) ([]Message, error)
	Send(ctx context.Context, msg *Message) error
}

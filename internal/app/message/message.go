/*
Package message owns the persisted direct message: its shape, its stores, and the service
that validates, persists and then hands each message to live delivery.
*/
package message

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores when no message matches.
var ErrNotFound = errors.New("message: not found")

// Message is a persisted direct message. It is immutable once stored; deletion is a hard delete.
type Message struct {
	ID         string    `json:"_id"`
	SenderID   string    `json:"senderId"`
	ReceiverID string    `json:"receiverId"`
	Text       string    `json:"text,omitempty"`
	Image      string    `json:"image,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Between reports whether m was exchanged by a and b, in either direction.
func (m Message) Between(a, b string) bool {
	return (m.SenderID == a && m.ReceiverID == b) || (m.SenderID == b && m.ReceiverID == a)
}

// Store persists messages. Thread returns both directions of a conversation in the order
// the messages were stored.
type Store interface {
	Create(ctx context.Context, m Message) (Message, error)
	Get(ctx context.Context, id string) (Message, error)
	Thread(ctx context.Context, a, b string) ([]Message, error)
	Delete(ctx context.Context, id string) error
	DeleteThread(ctx context.Context, a, b string) (int64, error)
}

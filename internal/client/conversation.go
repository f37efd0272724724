package client

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"dmchat/internal/app/message"
	"dmchat/internal/pkg/logx"
)

// Backend is the request/response side a Conversation talks to.
type Backend interface {
	Thread(ctx context.Context, peer string) ([]message.Message, error)
	Send(ctx context.Context, peer, text, image string) (message.Message, error)
}

// Conversation binds the selected peer to a Thread. At most one newMessage listener is
// active per Conversation; opening another peer disposes the previous one first.
type Conversation struct {
	backend Backend
	socket  *Socket
	me      string

	// OnChange, when set, runs after every change to the visible thread.
	OnChange func(*Thread)

	mu     sync.Mutex
	thread *Thread
	sub    *Subscription

	logger zerolog.Logger
}

// NewConversation returns a Conversation for the user me. Nothing is selected yet.
func NewConversation(backend Backend, socket *Socket, me string) *Conversation {
	return &Conversation{
		backend: backend,
		socket:  socket,
		me:      me,
		logger:  logx.Component("Conversation"),
	}
}

// Open selects peer: the previous listener is disposed, a single new one is registered and
// the thread is fetched. Pushes arriving during the fetch are kept.
func (c *Conversation) Open(ctx context.Context, peer string) (*Thread, error) {
	thread := NewThread(c.me, peer)

	c.mu.Lock()
	if c.sub != nil {
		c.sub.Close()
	}
	c.thread = thread
	c.sub = c.socket.Subscribe(EventNewMessage, func(payload json.RawMessage) {
		var msg message.Message
		if err := json.Unmarshal(payload, &msg); err != nil {
			c.logger.Warn().Err(err).Msg("Dropping malformed message push.")
			return
		}
		if thread.Merge(msg) {
			c.changed(thread)
		}
	})
	c.mu.Unlock()

	msgs, err := c.backend.Thread(ctx, peer)
	if err != nil {
		return thread, err
	}

	thread.Refresh(msgs)
	c.changed(thread)

	return thread, nil
}

// Thread returns the selected thread, or nil.
func (c *Conversation) Thread() *Thread {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.thread
}

// Send runs one optimistic send: the entry is visible immediately, then confirmed with the
// persisted message or marked failed. A failed send is not retried.
func (c *Conversation) Send(ctx context.Context, text, image string) (Entry, error) {
	thread := c.Thread()
	if thread == nil {
		return Entry{}, ErrNoConversation
	}

	pending := thread.AddOptimistic(text, image)
	c.changed(thread)

	msg, err := c.backend.Send(ctx, thread.Peer, text, image)
	if err != nil {
		thread.Fail(pending.TempID)
		c.changed(thread)
		c.logger.Info().Err(err).Str("temp_id", pending.TempID).Msg("Send failed.")

		pending.Status = StatusFailed
		return pending, err
	}

	thread.Confirm(pending.TempID, msg)
	c.changed(thread)

	return Entry{Message: msg, TempID: pending.TempID, Status: StatusSent}, nil
}

// Close disposes the listener. The Conversation can be opened again afterwards.
func (c *Conversation) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sub != nil {
		c.sub.Close()
		c.sub = nil
	}
	c.thread = nil
}

func (c *Conversation) changed(t *Thread) {
	if c.OnChange != nil {
		c.OnChange(t)
	}
}

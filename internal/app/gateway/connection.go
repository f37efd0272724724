package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"dmchat/internal/app/user"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/randx"
)

// State is the lifecycle position of a Connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// Envelope is the frame written to clients.
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// Connection is one live websocket owned by one identity.
//
// The send queue is never closed: senders race with shutdown, so shutdown is signalled on
// done instead and Send checks it before enqueueing.
type Connection struct {
	id        string
	user      user.Identity
	createdAt time.Time
	state     atomic.Int32

	conn *websocket.Conn
	cfg  Config

	send chan []byte

	done        chan struct{}
	closeOnce   sync.Once
	closeReason string

	logger zerolog.Logger
}

func newConnection(identity user.Identity, cfg Config) *Connection {
	now := time.Now()
	id := randx.ConnectionID(now)

	c := &Connection{
		id:        id,
		user:      identity,
		createdAt: now,
		cfg:       cfg,
		send:      make(chan []byte, cfg.SendQueueSize),
		done:      make(chan struct{}),
		logger: logx.Logger().With().
			Str("conn_id", id).
			Str("user_id", identity.ID).
			Logger(),
	}
	c.state.Store(int32(StateConnecting))

	return c
}

// ID returns the connection id.
func (c *Connection) ID() string { return c.id }

// UserID returns the id of the identity owning the connection.
func (c *Connection) UserID() string { return c.user.ID }

// User returns the identity owning the connection.
func (c *Connection) User() user.Identity { return c.user }

// CreatedAt returns when the handshake started.
func (c *Connection) CreatedAt() time.Time { return c.createdAt }

// State returns the current lifecycle state.
func (c *Connection) State() State { return State(c.state.Load()) }

// Done is closed once the connection starts shutting down.
func (c *Connection) Done() <-chan struct{} { return c.done }

func (c *Connection) setState(s State) {
	c.state.Store(int32(s))
}

// Send queues an event for the client. It never blocks: a connection that is not open
// returns ErrDeliveryFailed, and a full queue closes the connection.
func (c *Connection) Send(event string, payload any) error {
	if c.State() != StateOpen {
		return errs.NewError(errs.ErrDeliveryFailed)
	}

	select {
	case <-c.done:
		return errs.NewError(errs.ErrDeliveryFailed)
	default:
	}

	frame, err := json.Marshal(Envelope{Event: event, Payload: payload})
	if err != nil {
		return errs.Wrap(errs.ErrUnknown, err)
	}

	select {
	case c.send <- frame:
		return nil
	default:
		c.logger.Warn().Int("queue_len", len(c.send)).Msg("Send queue full, closing connection.")
		c.Close("send queue full")
		return errs.NewError(errs.ErrDeliveryFailed)
	}
}

// Close moves the connection to Closed and signals the pumps to stop. Idempotent.
func (c *Connection) Close(reason string) {
	c.closeOnce.Do(func() {
		c.closeReason = reason
		c.setState(StateClosed)
		close(c.done)
	})
}

// reason returns why the connection closed. Only valid after done is closed.
func (c *Connection) reason() string {
	<-c.done
	return c.closeReason
}

// readPump consumes client frames until the socket fails, the client closes it, or no
// frame or pong arrives within the idle timeout. Clients push nothing over the socket,
// so frames only refresh the idle deadline.
func (c *Connection) readPump() {
	c.conn.SetReadLimit(c.cfg.MaxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout)); err != nil {
		c.Close("read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout))
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			reason := "network error"
			switch {
			case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				reason = "client closed"
			case isTimeout(err):
				reason = "idle timeout"
			case websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				c.logger.Info().Err(err).Msg("Unexpected close while reading.")
			}
			c.Close(reason)
			return
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(c.cfg.IdleTimeout)); err != nil {
			c.Close("read deadline")
			return
		}
	}
}

// writePump drains the send queue to the socket and pings at PingPeriod. On shutdown it
// sends a close frame and closes the socket, which also unblocks readPump.
func (c *Connection) writePump() {
	ticker := time.NewTicker(c.cfg.pingPeriod())

	defer func() {
		ticker.Stop()

		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Socket close error in writePump.")
		}
	}()

	for {
		select {
		case frame := <-c.send:
			if !c.write(websocket.TextMessage, frame) {
				c.Close("write failed")
				return
			}

		case <-ticker.C:
			if !c.write(websocket.PingMessage, nil) {
				c.Close("ping failed")
				return
			}

		case <-c.done:
			c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.closeReason))
			return
		}
	}
}

func (c *Connection) write(messageType int, data []byte) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline.")
		return false
	}

	if err := c.conn.WriteMessage(messageType, data); err != nil {
		c.logger.Debug().Err(err).Int("message_type", messageType).Msg("Socket write failed.")
		return false
	}

	return true
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

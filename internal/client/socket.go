package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/rs/zerolog"

	"dmchat/internal/pkg/logx"
)

// Server event names.
const (
	EventOnlineUsers = "getOnlineUsers"
	EventNewMessage  = "newMessage"
)

const (
	maxReadBytes   = 1 << 20
	minBackoff     = 500 * time.Millisecond
	maxBackoff     = 30 * time.Second
	connectTimeout = 10 * time.Second
)

// ErrRejected is returned by Run when the server refuses the handshake. Retrying with
// the same token cannot succeed.
var ErrRejected = errors.New("client: handshake rejected")

// ErrNoConversation is returned by Conversation.Send before a peer is opened.
var ErrNoConversation = errors.New("client: no conversation open")

// Handler receives the raw payload of one event.
type Handler func(payload json.RawMessage)

type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Socket is the client end of the persistent channel. It reconnects on its own and fans
// incoming events out to subscribers.
type Socket struct {
	url   string
	token string

	mu     sync.Mutex
	subs   map[string]map[uint64]Handler
	nextID uint64
	online map[string]struct{}

	connected chan struct{}

	logger zerolog.Logger
}

// NewSocket returns a Socket for the websocket endpoint at url, authenticating every
// handshake with token.
func NewSocket(url, token string) *Socket {
	return &Socket{
		url:       url,
		token:     token,
		subs:      make(map[string]map[uint64]Handler),
		online:    make(map[string]struct{}),
		connected: make(chan struct{}, 1),
		logger:    logx.Component("ClientSocket"),
	}
}

// Subscription is an active event listener. Close removes it.
type Subscription struct {
	s     *Socket
	event string
	id    uint64
	once  sync.Once
}

// Close unregisters the listener. Calling it again does nothing.
func (sub *Subscription) Close() {
	sub.once.Do(func() {
		sub.s.mu.Lock()
		defer sub.s.mu.Unlock()

		delete(sub.s.subs[sub.event], sub.id)
		if len(sub.s.subs[sub.event]) == 0 {
			delete(sub.s.subs, sub.event)
		}
	})
}

// Subscribe registers fn for event. Handlers run on the read goroutine and must not block.
func (s *Socket) Subscribe(event string, fn Handler) *Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	handlers, ok := s.subs[event]
	if !ok {
		handlers = make(map[uint64]Handler)
		s.subs[event] = handlers
	}
	handlers[s.nextID] = fn

	return &Subscription{s: s, event: event, id: s.nextID}
}

// Listeners returns how many handlers are registered for event.
func (s *Socket) Listeners(event string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.subs[event])
}

// Online returns the sorted ids from the latest roster.
func (s *Socket) Online() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.online))
	for id := range s.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// IsOnline reports whether id was present in the latest roster.
func (s *Socket) IsOnline(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.online[id]
	return ok
}

// Connected signals each successful handshake. It is buffered by one and never closed.
func (s *Socket) Connected() <-chan struct{} {
	return s.connected
}

// Run keeps the channel connected until ctx ends, backing off between attempts. Each
// attempt is a fresh handshake.
func (s *Socket) Run(ctx context.Context) error {
	backoff := minBackoff

	for {
		connected, err := s.connectOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, ErrRejected) {
			return err
		}
		if connected {
			backoff = minBackoff
		}

		s.logger.Info().Err(err).Dur("retry_in", backoff).Msg("Disconnected, reconnecting.")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (s *Socket) connectOnce(ctx context.Context) (bool, error) {
	dialCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.token)

	conn, resp, err := websocket.Dial(dialCtx, s.url, &websocket.DialOptions{HTTPHeader: header})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return false, ErrRejected
		}
		return false, err
	}
	defer conn.CloseNow()

	conn.SetReadLimit(maxReadBytes)

	select {
	case s.connected <- struct{}{}:
	default:
	}
	s.logger.Debug().Str("url", s.url).Msg("Connected.")

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			s.clearOnline()
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return true, nil
			}
			return true, err
		}

		var env envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.logger.Warn().Err(err).Msg("Dropping malformed frame.")
			continue
		}
		s.dispatch(env)
	}
}

func (s *Socket) dispatch(env envelope) {
	if env.Event == EventOnlineUsers {
		var ids []string
		if err := json.Unmarshal(env.Payload, &ids); err != nil {
			s.logger.Warn().Err(err).Msg("Dropping malformed roster.")
			return
		}
		s.setOnline(ids)
	}

	s.mu.Lock()
	handlers := make([]Handler, 0, len(s.subs[env.Event]))
	for _, fn := range s.subs[env.Event] {
		handlers = append(handlers, fn)
	}
	s.mu.Unlock()

	for _, fn := range handlers {
		fn(env.Payload)
	}
}

func (s *Socket) setOnline(ids []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.online = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		s.online[id] = struct{}{}
	}
}

func (s *Socket) clearOnline() {
	s.setOnline(nil)
}

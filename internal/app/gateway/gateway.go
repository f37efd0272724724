/*
Package gateway accepts authenticated websocket connections and moves them through their
lifecycle: Connecting → Authenticated → Open → Closed.

A handshake only reaches Authenticated when its session token resolves to a directory
identity. Open connections are registered in the presence registry and deregistered exactly
once when they close, whatever the cause.
*/
package gateway

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"dmchat/internal/app/presence"
	"dmchat/internal/app/user"
	"dmchat/internal/metrics"
	"dmchat/internal/pkg/auth/jwt"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/resp"
)

const (
	defaultWriteWait      = 10 * time.Second
	defaultIdleTimeout    = 60 * time.Second
	defaultSendQueueSize  = 256
	defaultMaxMessageSize = 4096
)

// Verifier resolves handshake credentials to an identity.
type Verifier interface {
	Verify(ctx context.Context, token string) (user.Identity, error)
}

// Credentials are what a client presents at handshake time.
type Credentials struct {
	Token string
}

// Config tunes connection behaviour. Zero fields take defaults.
type Config struct {
	// WriteWait bounds a single socket write.
	WriteWait time.Duration

	// IdleTimeout closes a connection that sends nothing, pongs included, for this long.
	IdleTimeout time.Duration

	// SendQueueSize is the per-connection outbound buffer, in frames.
	SendQueueSize int

	// MaxMessageSize caps inbound frames.
	MaxMessageSize int64
}

func (c Config) withDefaults() Config {
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = defaultIdleTimeout
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = defaultSendQueueSize
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = defaultMaxMessageSize
	}
	return c
}

// pingPeriod keeps pings comfortably inside the idle timeout.
func (c Config) pingPeriod() time.Duration {
	return c.IdleTimeout * 9 / 10
}

// Gateway owns every live connection of the process.
type Gateway struct {
	registry *presence.Registry
	verifier Verifier
	upgrader websocket.Upgrader
	cfg      Config
	recorder metrics.Recorder

	// mu protects conns, the open connections by id.
	mu    sync.RWMutex
	conns map[string]*Connection

	// wg tracks connections until they have been released.
	wg sync.WaitGroup

	logger zerolog.Logger
}

// NewGateway wires a Gateway to its registry and verifier. A nil recorder disables metrics.
func NewGateway(registry *presence.Registry, verifier Verifier, upgrader websocket.Upgrader, cfg Config, recorder metrics.Recorder) *Gateway {
	if recorder == nil {
		recorder = metrics.Noop{}
	}

	return &Gateway{
		registry: registry,
		verifier: verifier,
		upgrader: upgrader,
		cfg:      cfg.withDefaults(),
		recorder: recorder,
		conns:    make(map[string]*Connection),
		logger:   logx.Component("Gateway"),
	}
}

// Accept authenticates a handshake. On success the returned connection is Authenticated;
// on failure it never leaves the gateway. Credentials that cannot resolve to an identity
// give ErrAuthentication; a directory that cannot answer gives ErrUnknown, so clients
// retry instead of giving up.
func (g *Gateway) Accept(ctx context.Context, creds Credentials) (*Connection, error) {
	if creds.Token == "" {
		return nil, errs.NewError(errs.ErrAuthentication)
	}

	identity, err := g.verifier.Verify(ctx, creds.Token)
	if err != nil {
		if errors.Is(err, jwt.ErrInvalidToken) || errors.Is(err, user.ErrNotFound) {
			return nil, errs.Wrap(errs.ErrAuthentication, err)
		}
		return nil, errs.Wrap(errs.ErrUnknown, err)
	}

	c := newConnection(identity, g.cfg)
	c.setState(StateAuthenticated)

	return c, nil
}

// ServeHTTP runs the websocket handshake and then the connection itself; it returns once
// the connection is closed and deregistered.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := g.Accept(r.Context(), Credentials{Token: jwt.TokenFromRequest(r)})
	if err != nil {
		if errs.Is(err, errs.ErrAuthentication) {
			g.recorder.HandshakeRejected("unauthenticated")
			g.logger.Info().Err(err).Msg("Websocket handshake rejected.")
		} else {
			g.recorder.HandshakeRejected("verifier")
			g.logger.Warn().Err(err).Msg("Websocket handshake failed, identity lookup unavailable.")
		}
		resp.RespondError(w, r, err)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.Close("upgrade failed")
		g.recorder.HandshakeRejected("upgrade")
		g.logger.Warn().Err(err).Str("user_id", c.UserID()).Msg("Failed to upgrade connection.")
		return
	}
	c.conn = conn

	g.open(c)
	defer g.release(c)

	go c.writePump()
	c.readPump()
}

// open registers c and makes it Open. The roster is sent directly to c because the
// broadcast triggered by its own registration happened while it was still Authenticated.
func (g *Gateway) open(c *Connection) {
	g.wg.Add(1)

	g.mu.Lock()
	g.conns[c.ID()] = c
	g.mu.Unlock()

	g.registry.Register(c.UserID(), c)
	c.setState(StateOpen)
	g.recorder.ConnectionOpened()

	if err := g.registry.SendSnapshot(c); err != nil {
		c.logger.Debug().Err(err).Msg("Initial roster not delivered.")
	}

	c.logger.Info().Msg("Connection open.")
}

// release deregisters c. It runs once per opened connection, after readPump has returned.
func (g *Gateway) release(c *Connection) {
	defer g.wg.Done()

	c.Close("released")

	g.mu.Lock()
	delete(g.conns, c.ID())
	g.mu.Unlock()

	g.registry.Deregister(c)

	reason := c.reason()
	g.recorder.ConnectionClosed(reason)

	c.logger.Info().
		Str("reason", reason).
		Dur("duration", time.Since(c.CreatedAt())).
		Msg("Connection closed.")
}

// Send pushes one event to the connection with the given id. ErrDeliveryFailed means the
// connection is gone or not open; callers treat the recipient as offline.
func (g *Gateway) Send(connID, event string, payload any) error {
	g.mu.RLock()
	c, ok := g.conns[connID]
	g.mu.RUnlock()

	if !ok {
		return errs.NewError(errs.ErrDeliveryFailed)
	}

	return c.Send(event, payload)
}

// Broadcast pushes one event to every open connection. Failures are logged and skipped.
func (g *Gateway) Broadcast(event string, payload any) {
	g.mu.RLock()
	targets := make([]*Connection, 0, len(g.conns))
	for _, c := range g.conns {
		targets = append(targets, c)
	}
	g.mu.RUnlock()

	for _, c := range targets {
		if err := c.Send(event, payload); err != nil {
			c.logger.Debug().Err(err).Str("event", event).Msg("Broadcast skipped connection.")
		}
	}
}

// OpenConnections returns how many connections are currently tracked.
func (g *Gateway) OpenConnections() int {
	g.mu.RLock()
	defer g.mu.RUnlock()

	return len(g.conns)
}

// Shutdown closes every connection and waits until each has been deregistered or ctx ends.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info().Msg("Closing all connections...")

	g.mu.RLock()
	for _, c := range g.conns {
		c.Close("server shutdown")
	}
	g.mu.RUnlock()

	drained := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		g.logger.Info().Msg("Gateway shutdown complete.")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

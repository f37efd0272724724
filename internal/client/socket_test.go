package client

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"dmchat/internal/app/gateway"
	"dmchat/internal/app/presence"
	"dmchat/internal/app/user"
	"dmchat/internal/pkg/auth/jwt"
)

const socketSecret = "socket-test-secret"

// flakyDirectory fails its next outages lookups as if the database were down.
type flakyDirectory struct {
	user.Directory
	outages atomic.Int32
}

func (d *flakyDirectory) GetByID(ctx context.Context, id string) (user.Identity, error) {
	if d.outages.Add(-1) >= 0 {
		return user.Identity{}, errors.New("connection refused")
	}
	return d.Directory.GetByID(ctx, id)
}

func startGateway(t *testing.T, dir user.Directory) string {
	t.Helper()

	gw := gateway.NewGateway(presence.NewRegistry(nil), jwt.NewVerifier(socketSecret, dir), websocket.Upgrader{}, gateway.Config{}, nil)
	server := httptest.NewServer(gw)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = gw.Shutdown(ctx)
		server.Close()
	})

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestSocket_ReconnectsAfterDirectoryOutage(t *testing.T) {
	users := user.NewMemoryStore()
	account, err := users.Create(context.Background(), user.NewAccount{Email: "alice@example.com", FullName: "Alice"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	dir := &flakyDirectory{Directory: users}
	dir.outages.Store(1)
	url := startGateway(t, dir)

	token, _ := jwt.GenerateToken(account.ID, socketSecret, time.Hour)
	s := NewSocket(url, token)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- s.Run(ctx) }()

	select {
	case <-s.Connected():
	case err := <-result:
		t.Fatalf("Run() returned %v before connecting", err)
	case <-time.After(5 * time.Second):
		t.Fatal("socket never connected after the outage")
	}

	cancel()
	if err := <-result; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestSocket_StopsWhenRejected(t *testing.T) {
	url := startGateway(t, user.NewMemoryStore())

	token, _ := jwt.GenerateToken("7f1d3d52-8f0e-4a43-9a3a-0d8b1a1c1e11", socketSecret, time.Hour)
	s := NewSocket(url, token)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.Run(ctx); !errors.Is(err, ErrRejected) {
		t.Errorf("Run() error = %v, want ErrRejected", err)
	}
}

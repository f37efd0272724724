package gateway

import (
	"testing"

	"dmchat/internal/app/user"
	"dmchat/internal/pkg/errs"
)

func TestConnection_FullQueueCloses(t *testing.T) {
	c := newConnection(user.Identity{ID: "u1"}, Config{SendQueueSize: 1}.withDefaults())
	c.setState(StateOpen)

	if err := c.Send("first", nil); err != nil {
		t.Fatalf("Send(first) error = %v", err)
	}
	if err := c.Send("second", nil); !errs.Is(err, errs.ErrDeliveryFailed) {
		t.Fatalf("Send(second) error = %v, want code %d", err, errs.ErrDeliveryFailed)
	}

	if c.State() != StateClosed {
		t.Errorf("State() = %s, want closed", c.State())
	}
	select {
	case <-c.Done():
	default:
		t.Error("Done() not closed after overflow")
	}
	if got := c.reason(); got != "send queue full" {
		t.Errorf("reason() = %q, want %q", got, "send queue full")
	}
	if err := c.Send("third", nil); !errs.Is(err, errs.ErrDeliveryFailed) {
		t.Errorf("Send(third) error = %v, want code %d", err, errs.ErrDeliveryFailed)
	}
}

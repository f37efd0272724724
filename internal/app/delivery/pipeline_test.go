package delivery_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"dmchat/internal/app/delivery"
	"dmchat/internal/app/message"
	"dmchat/internal/app/presence"
	"dmchat/internal/metrics"
)

type handle struct{ id, userID string }

func (h handle) ID() string             { return h.id }
func (h handle) UserID() string         { return h.userID }
func (h handle) Send(string, any) error { return nil }

type push struct {
	connID string
	event  string
	msg    message.Message
}

type fakeSender struct {
	mu     sync.Mutex
	pushes []push
	down   map[string]bool
}

func (s *fakeSender) Send(connID, event string, payload any) error {
	if s.down[connID] {
		return errors.New("connection not open")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pushes = append(s.pushes, push{connID, event, payload.(message.Message)})
	return nil
}

func newMessage(id, from, to, text string) message.Message {
	return message.Message{ID: id, SenderID: from, ReceiverID: to, Text: text, CreatedAt: time.Unix(1700000000, 0).UTC()}
}

func TestPipeline_OfflineReceiver(t *testing.T) {
	registry := presence.NewRegistry(nil)
	sender := &fakeSender{}
	p := delivery.NewPipeline(registry, sender, nil)

	if got := p.Deliver(newMessage("m1", "u1", "u2", "hi again")); got != 0 {
		t.Errorf("Deliver() = %d, want 0", got)
	}
	if len(sender.pushes) != 0 {
		t.Errorf("push attempts = %d, want 0", len(sender.pushes))
	}
}

func TestPipeline_OneConnection(t *testing.T) {
	registry := presence.NewRegistry(nil)
	registry.Register("u2", handle{"c2", "u2"})
	sender := &fakeSender{}
	p := delivery.NewPipeline(registry, sender, nil)

	msg := newMessage("m1", "u1", "u2", "hi")
	if got := p.Deliver(msg); got != 1 {
		t.Fatalf("Deliver() = %d, want 1", got)
	}

	if len(sender.pushes) != 1 {
		t.Fatalf("pushes = %d, want 1", len(sender.pushes))
	}
	got := sender.pushes[0]
	if got.connID != "c2" || got.event != delivery.EventNewMessage || got.msg != msg {
		t.Errorf("push = %+v, want newMessage %+v to c2", got, msg)
	}
}

func TestPipeline_FansOutAndSkipsFailures(t *testing.T) {
	registry := presence.NewRegistry(nil)
	registry.Register("u2", handle{"tab1", "u2"})
	registry.Register("u2", handle{"tab2", "u2"})
	registry.Register("u2", handle{"tab3", "u2"})
	registry.Register("u3", handle{"other", "u3"})

	reg := prometheus.NewRegistry()
	sender := &fakeSender{down: map[string]bool{"tab2": true}}
	p := delivery.NewPipeline(registry, sender, metrics.NewCollector(reg))

	if got := p.Deliver(newMessage("m1", "u1", "u2", "hi")); got != 2 {
		t.Fatalf("Deliver() = %d, want 2", got)
	}

	for _, push := range sender.pushes {
		if push.connID == "other" {
			t.Errorf("pushed to a connection of another identity")
		}
	}

	if got := pushCount(t, reg, metrics.PushDelivered); got != 2 {
		t.Errorf("delivered pushes = %v, want 2", got)
	}
	if got := pushCount(t, reg, metrics.PushFailed); got != 1 {
		t.Errorf("failed pushes = %v, want 1", got)
	}
}

func pushCount(t *testing.T, reg *prometheus.Registry, result string) float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != "dmchat_message_pushes_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "result" && l.GetValue() == result {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func TestPipeline_PreservesOrder(t *testing.T) {
	registry := presence.NewRegistry(nil)
	registry.Register("u2", handle{"c2", "u2"})
	sender := &fakeSender{}
	p := delivery.NewPipeline(registry, sender, nil)

	p.Deliver(newMessage("a", "u1", "u2", "A"))
	p.Deliver(newMessage("b", "u1", "u2", "B"))

	if len(sender.pushes) != 2 || sender.pushes[0].msg.ID != "a" || sender.pushes[1].msg.ID != "b" {
		t.Errorf("pushes = %+v, want a then b", sender.pushes)
	}
}

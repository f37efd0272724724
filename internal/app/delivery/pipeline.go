// Package delivery pushes persisted messages to the receiver's open connections.
package delivery

import (
	"github.com/rs/zerolog"

	"dmchat/internal/app/message"
	"dmchat/internal/app/presence"
	"dmchat/internal/metrics"
	"dmchat/internal/pkg/logx"
)

// EventNewMessage carries one persisted message to its receiver.
const EventNewMessage = "newMessage"

// Sender pushes an event to a single connection by id.
type Sender interface {
	Send(connID, event string, payload any) error
}

// Pipeline fans a message out to every open connection of its receiver. An offline
// receiver gets nothing pushed and picks the message up on the next thread fetch.
type Pipeline struct {
	registry *presence.Registry
	sender   Sender
	recorder metrics.Recorder
	logger   zerolog.Logger
}

// NewPipeline returns a Pipeline. A nil recorder disables metrics.
func NewPipeline(registry *presence.Registry, sender Sender, recorder metrics.Recorder) *Pipeline {
	if recorder == nil {
		recorder = metrics.Noop{}
	}

	return &Pipeline{
		registry: registry,
		sender:   sender,
		recorder: recorder,
		logger:   logx.Component("DeliveryPipeline"),
	}
}

// Deliver pushes msg to the receiver and returns how many connections accepted it.
// Push failures are logged and counted, never returned.
func (p *Pipeline) Deliver(msg message.Message) int {
	handles := p.registry.ConnectionsFor(msg.ReceiverID)
	if len(handles) == 0 {
		p.logger.Debug().
			Str("message_id", msg.ID).
			Str("receiver_id", msg.ReceiverID).
			Msg("Receiver offline, message left for the next fetch.")
		return 0
	}

	delivered := 0
	for _, h := range handles {
		if err := p.sender.Send(h.ID(), EventNewMessage, msg); err != nil {
			p.recorder.Push(metrics.PushFailed)
			p.logger.Warn().Err(err).
				Str("message_id", msg.ID).
				Str("conn_id", h.ID()).
				Msg("Push failed.")
			continue
		}

		p.recorder.Push(metrics.PushDelivered)
		delivered++
	}

	return delivered
}

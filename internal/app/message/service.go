package message

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"dmchat/internal/app/user"
	"dmchat/internal/metrics"
	"dmchat/internal/pkg/errs"
	"dmchat/internal/pkg/logx"
	"dmchat/internal/pkg/randx"
)

// MaxContentBytes is the maximum size of a message text.
const MaxContentBytes = 5000

// Directory is the part of the user directory the service depends on.
type Directory interface {
	GetByID(ctx context.Context, id string) (user.Identity, error)
	IsBlocked(ctx context.Context, a, b string) (bool, error)
}

// Deliverer pushes a persisted message to the receiver's live connections and
// returns how many pushes were accepted.
type Deliverer interface {
	Deliver(msg Message) int
}

// SendInput is the body of a send request.
type SendInput struct {
	ReceiverID string
	Text       string
	Image      string
}

// Service validates, persists and delivers direct messages.
type Service struct {
	store     Store
	users     Directory
	images    ImageStore
	deliverer Deliverer
	recorder  metrics.Recorder

	pairs  *pairLocks
	logger zerolog.Logger
}

// NewService wires a Service. images may be nil, in which case image messages are rejected.
// A nil recorder disables metrics.
func NewService(store Store, users Directory, images ImageStore, deliverer Deliverer, recorder metrics.Recorder) *Service {
	if recorder == nil {
		recorder = metrics.Noop{}
	}

	return &Service{
		store:     store,
		users:     users,
		images:    images,
		deliverer: deliverer,
		recorder:  recorder,
		pairs:     newPairLocks(),
		logger:    logx.Component("MessageService"),
	}
}

// Send validates input, persists the message and then hands it to the deliverer.
//
// Persist and deliver run under a lock scoped to the sender/receiver pair, so two sends
// on the same pair are pushed in the order they were stored. Delivery only enqueues and
// never fails the send; a store failure returns ErrPersistenceFailed and nothing is delivered.
func (s *Service) Send(ctx context.Context, senderID string, in SendInput) (Message, error) {
	if err := s.validate(senderID, in); err != nil {
		return Message{}, err
	}

	if err := s.checkReceiver(ctx, senderID, in.ReceiverID); err != nil {
		return Message{}, err
	}

	image, err := s.resolveImage(ctx, in.Image)
	if err != nil {
		return Message{}, err
	}

	unlock := s.pairs.lock(senderID, in.ReceiverID)
	defer unlock()

	msg, err := s.store.Create(ctx, Message{
		ID:         randx.MessageID(),
		SenderID:   senderID,
		ReceiverID: in.ReceiverID,
		Text:       in.Text,
		Image:      image,
	})
	if err != nil {
		s.logger.Error().Err(err).
			Str("sender_id", senderID).
			Str("receiver_id", in.ReceiverID).
			Msg("Failed to persist message.")
		s.removeImage(ctx, image)
		return Message{}, errs.Wrap(errs.ErrPersistenceFailed, err)
	}
	s.recorder.MessagePersisted()

	pushed := s.deliverer.Deliver(msg)

	s.logger.Debug().
		Str("message_id", msg.ID).
		Str("sender_id", senderID).
		Str("receiver_id", in.ReceiverID).
		Int("pushes", pushed).
		Msg("Message stored.")

	return msg, nil
}

func (s *Service) validate(senderID string, in SendInput) error {
	switch {
	case senderID == "", in.ReceiverID == "", !randx.IsValidID(in.ReceiverID), senderID == in.ReceiverID:
		return errs.NewError(errs.ErrInvalidParams)
	case strings.TrimSpace(in.Text) == "" && in.Image == "":
		return errs.NewError(errs.ErrMessageEmpty)
	case len(in.Text) > MaxContentBytes:
		return errs.NewError(errs.ErrMessageContentTooLong)
	}
	return nil
}

func (s *Service) checkReceiver(ctx context.Context, senderID, receiverID string) error {
	if _, err := s.users.GetByID(ctx, receiverID); err != nil {
		if errors.Is(err, user.ErrNotFound) {
			return errs.NewError(errs.ErrUserNotFound)
		}
		return errs.Wrap(errs.ErrUnknown, err)
	}

	blocked, err := s.users.IsBlocked(ctx, senderID, receiverID)
	if err != nil {
		return errs.Wrap(errs.ErrUnknown, err)
	}
	if blocked {
		return errs.NewError(errs.ErrMessagingBlocked)
	}

	return nil
}

// Thread returns every message between me and other in stored order.
func (s *Service) Thread(ctx context.Context, me, other string) ([]Message, error) {
	if !randx.IsValidID(other) {
		return nil, errs.NewError(errs.ErrInvalidParams)
	}

	msgs, err := s.store.Thread(ctx, me, other)
	if err != nil {
		return nil, errs.Wrap(errs.ErrUnknown, err)
	}
	return msgs, nil
}

// Delete hard-deletes a message. Only its sender may delete it.
func (s *Service) Delete(ctx context.Context, me, messageID string) error {
	msg, err := s.store.Get(ctx, messageID)
	if errors.Is(err, ErrNotFound) {
		return errs.NewError(errs.ErrMessageNotFound)
	}
	if err != nil {
		return errs.Wrap(errs.ErrUnknown, err)
	}

	if msg.SenderID != me {
		return errs.NewError(errs.ErrForbidden)
	}

	if err := s.store.Delete(ctx, messageID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return errs.NewError(errs.ErrMessageNotFound)
		}
		return errs.Wrap(errs.ErrUnknown, err)
	}

	s.removeImage(ctx, msg.Image)

	return nil
}

// ClearThread deletes every message between me and other and returns how many were removed.
func (s *Service) ClearThread(ctx context.Context, me, other string) (int64, error) {
	if !randx.IsValidID(other) {
		return 0, errs.NewError(errs.ErrInvalidParams)
	}

	unlock := s.pairs.lock(me, other)
	defer unlock()

	n, err := s.store.DeleteThread(ctx, me, other)
	if err != nil {
		return 0, errs.Wrap(errs.ErrUnknown, err)
	}
	return n, nil
}

// pairLocks hands out one mutex per unordered user pair and frees it when unused.
type pairLocks struct {
	mu    sync.Mutex
	locks map[string]*pairLock
}

type pairLock struct {
	sync.Mutex
	refs int
}

func newPairLocks() *pairLocks {
	return &pairLocks{locks: make(map[string]*pairLock)}
}

func pairKey(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

func (p *pairLocks) lock(a, b string) func() {
	key := pairKey(a, b)

	p.mu.Lock()
	l, ok := p.locks[key]
	if !ok {
		l = &pairLock{}
		p.locks[key] = l
	}
	l.refs++
	p.mu.Unlock()

	l.Lock()

	return func() {
		l.Unlock()

		p.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(p.locks, key)
		}
		p.mu.Unlock()
	}
}

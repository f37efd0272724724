package message

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps messages in insertion order. Used with STORE_DRIVER=memory and in tests.
type MemoryStore struct {
	mu       sync.RWMutex
	messages []Message

	// now is replaceable so tests can pin timestamps.
	now func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: func() time.Time { return time.Now().UTC() }}
}

func (s *MemoryStore) Create(ctx context.Context, m Message) (Message, error) {
	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	m.CreatedAt = s.now()
	s.messages = append(s.messages, m)

	return m, nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, m := range s.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return Message{}, ErrNotFound
}

func (s *MemoryStore) Thread(ctx context.Context, a, b string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Message, 0)
	for _, m := range s.messages {
		if m.Between(a, b) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *MemoryStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, m := range s.messages {
		if m.ID == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) DeleteThread(ctx context.Context, a, b string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.messages[:0]
	var deleted int64
	for _, m := range s.messages {
		if m.Between(a, b) {
			deleted++
			continue
		}
		kept = append(kept, m)
	}
	s.messages = kept

	return deleted, nil
}

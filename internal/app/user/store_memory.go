package user

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"dmchat/internal/pkg/randx"
)

// MemoryStore is an in-process Store used in development (STORE_DRIVER=memory) and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]Account
	blocks   map[string]map[string]struct{}
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]Account),
		blocks:   make(map[string]map[string]struct{}),
	}
}

func (s *MemoryStore) Create(ctx context.Context, in NewAccount) (Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	taken := make(map[string]struct{}, len(s.accounts))
	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, in.Email) {
			return Account{}, ErrDuplicate
		}
		taken[a.Username] = struct{}{}
	}

	username := in.Username
	if username != "" {
		if _, ok := taken[username]; ok {
			return Account{}, ErrDuplicate
		}
	} else {
		for attempt := 0; ; attempt++ {
			if attempt == maxUsernameAttempts {
				return Account{}, ErrDuplicate
			}
			username = derivedUsername(in.Email, attempt)
			if _, ok := taken[username]; !ok {
				break
			}
		}
	}

	account := Account{
		Identity: Identity{
			ID:       randx.MessageID(),
			FullName: in.FullName,
			Username: username,
		},
		Email:        strings.ToLower(in.Email),
		PasswordHash: in.PasswordHash,
		CreatedAt:    time.Now().UTC(),
	}
	s.accounts[account.ID] = account

	return account, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return Identity{}, ErrNotFound
	}
	return a.Identity, nil
}

func (s *MemoryStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, a := range s.accounts {
		if strings.EqualFold(a.Email, email) {
			return a, nil
		}
	}
	return Account{}, ErrNotFound
}

func (s *MemoryStore) ListExcept(ctx context.Context, id string) ([]Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Identity, 0, len(s.accounts))
	for _, a := range s.accounts {
		if a.ID != id {
			out = append(out, a.Identity)
		}
	}
	sortByName(out)

	return out, nil
}

func sortByName(ids []Identity) {
	sort.Slice(ids, func(i, j int) bool {
		if ids[i].FullName != ids[j].FullName {
			return ids[i].FullName < ids[j].FullName
		}
		return ids[i].Username < ids[j].Username
	})
}

func (s *MemoryStore) Search(ctx context.Context, me, query string, limit int) ([]Identity, error) {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return []Identity{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Identity, 0)
	for _, a := range s.accounts {
		if a.ID == me {
			continue
		}
		if strings.Contains(strings.ToLower(a.Username), query) ||
			strings.Contains(strings.ToLower(a.FullName), query) {
			out = append(out, a.Identity)
		}
	}
	sortByName(out)

	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) Block(ctx context.Context, blockerID, blockedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[blockedID]; !ok {
		return ErrNotFound
	}

	set, ok := s.blocks[blockerID]
	if !ok {
		set = make(map[string]struct{})
		s.blocks[blockerID] = set
	}
	set[blockedID] = struct{}{}

	return nil
}

func (s *MemoryStore) Unblock(ctx context.Context, blockerID, blockedID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.blocks[blockerID], blockedID)
	return nil
}

func (s *MemoryStore) ListBlocked(ctx context.Context, blockerID string) ([]Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Identity, 0, len(s.blocks[blockerID]))
	for id := range s.blocks[blockerID] {
		if a, ok := s.accounts[id]; ok {
			out = append(out, a.Identity)
		}
	}
	sortByName(out)

	return out, nil
}

func (s *MemoryStore) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.blocks[a][b]; ok {
		return true, nil
	}
	_, ok := s.blocks[b][a]
	return ok, nil
}

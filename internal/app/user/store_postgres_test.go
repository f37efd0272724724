package user

import (
	"context"
	"errors"
	"testing"
)

// Malformed ids never reach the uuid-typed queries, so a nil pool is never touched.
func TestPostgresStore_MalformedIDs(t *testing.T) {
	ctx := context.Background()
	s := NewPostgresStore(nil)
	valid := "0b7e7d1c-5f9f-4d7e-9c8e-2f8d1b6a3c4e"

	if _, err := s.GetByID(ctx, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want %v", err, ErrNotFound)
	}
	if err := s.Block(ctx, valid, "not-a-uuid"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Block() error = %v, want %v", err, ErrNotFound)
	}
	if err := s.Unblock(ctx, "not-a-uuid", valid); err != nil {
		t.Errorf("Unblock() error = %v, want nil", err)
	}
	if blocked, err := s.IsBlocked(ctx, valid, "not-a-uuid"); blocked || err != nil {
		t.Errorf("IsBlocked() = %v, %v, want false, nil", blocked, err)
	}
	if got, err := s.ListBlocked(ctx, "not-a-uuid"); len(got) != 0 || err != nil {
		t.Errorf("ListBlocked() = %v, %v, want empty", got, err)
	}
}

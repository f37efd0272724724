package user

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestDerivedUsername(t *testing.T) {
	tests := []struct {
		email   string
		attempt int
		want    string
	}{
		{"alice@a.com", 0, "alice"},
		{"alice@b.com", 1, "alice-2"},
		{"alice@c.com", 2, "alice-3"},
		{"no-at-sign", 0, "no-at-sign"},
	}

	for _, tt := range tests {
		if got := derivedUsername(tt.email, tt.attempt); got != tt.want {
			t.Errorf("derivedUsername(%q, %d) = %q, want %q", tt.email, tt.attempt, got, tt.want)
		}
	}
}

func TestMemoryStore_CreateSharedLocalPart(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	var got []string
	for _, email := range []string{"alice@a.com", "alice@b.com", "alice@c.com"} {
		a, err := s.Create(ctx, NewAccount{Email: email, FullName: "Alice"})
		if err != nil {
			t.Fatalf("Create(%s) error = %v", email, err)
		}
		got = append(got, a.Username)
	}

	want := []string{"alice", "alice-2", "alice-3"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("usernames = %v, want %v", got, want)
			break
		}
	}
}

func TestMemoryStore_CreateDuplicates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if _, err := s.Create(ctx, NewAccount{Email: "alice@a.com", FullName: "Alice", Username: "ally"}); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	tests := []struct {
		name string
		in   NewAccount
	}{
		{"same email other case", NewAccount{Email: "ALICE@a.com", FullName: "Alice"}},
		{"explicit username taken", NewAccount{Email: "bob@b.com", FullName: "Bob", Username: "ally"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := s.Create(ctx, tt.in); !errors.Is(err, ErrDuplicate) {
				t.Errorf("Create() error = %v, want ErrDuplicate", err)
			}
		})
	}
}

func TestMemoryStore_Search(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	me, err := s.Create(ctx, NewAccount{Email: "sam@example.com", FullName: "Sam Searcher"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	for i := 0; i < SearchLimit+5; i++ {
		if _, err := s.Create(ctx, NewAccount{Email: fmt.Sprintf("user%d@example.com", i), FullName: fmt.Sprintf("Sam %02d", i)}); err != nil {
			t.Fatalf("Create(%d) error = %v", i, err)
		}
	}
	if _, err := s.Create(ctx, NewAccount{Email: "zed@example.com", FullName: "Zed"}); err != nil {
		t.Fatalf("Create(zed) error = %v", err)
	}

	got, err := s.Search(ctx, me.ID, "SAM", SearchLimit)
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(got) != SearchLimit {
		t.Fatalf("Search() returned %d, want %d", len(got), SearchLimit)
	}
	for _, i := range got {
		if i.ID == me.ID {
			t.Errorf("Search() included the caller")
		}
	}

	got, err = s.Search(ctx, me.ID, "zed", SearchLimit)
	if err != nil || len(got) != 1 || got[0].Username != "zed" {
		t.Errorf("Search(zed) = %v, %v, want [zed]", got, err)
	}

	got, err = s.Search(ctx, me.ID, "  ", SearchLimit)
	if err != nil || len(got) != 0 {
		t.Errorf("Search(blank) = %v, %v, want empty", got, err)
	}
}

func TestMemoryStore_ListBlocked(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	a, _ := s.Create(ctx, NewAccount{Email: "a@example.com", FullName: "A"})
	b, _ := s.Create(ctx, NewAccount{Email: "b@example.com", FullName: "B"})
	c, _ := s.Create(ctx, NewAccount{Email: "c@example.com", FullName: "C"})

	for _, id := range []string{c.ID, b.ID} {
		if err := s.Block(ctx, a.ID, id); err != nil {
			t.Fatalf("Block() error = %v", err)
		}
	}

	got, err := s.ListBlocked(ctx, a.ID)
	if err != nil {
		t.Fatalf("ListBlocked() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != b.ID || got[1].ID != c.ID {
		t.Errorf("ListBlocked() = %v, want [B C]", got)
	}

	if got, _ := s.ListBlocked(ctx, b.ID); len(got) != 0 {
		t.Errorf("ListBlocked(b) = %v, want empty", got)
	}
}

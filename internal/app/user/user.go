/*
Package user is the user directory the realtime core reads identities from.

The directory is an external collaborator: the core only resolves ids to identities,
checks existence and consults the block list before a message is accepted.
*/
package user

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user: not found")

	// ErrDuplicate is returned when the email or username is already registered.
	ErrDuplicate = errors.New("user: duplicate email or username")
)

// Identity is the public view of a user. Fields use JSON tags for HTTP and websocket payloads.
type Identity struct {
	ID       string `json:"_id"`
	FullName string `json:"fullName"`
	Username string `json:"username"`

	// Avatar is the profile picture URL; empty when unset.
	Avatar string `json:"profilePic"`
}

// Account is an Identity plus the credentials the auth handlers need.
type Account struct {
	Identity

	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// SearchLimit caps the results of Store.Search.
const SearchLimit = 10

// maxUsernameAttempts bounds the suffixes tried for a username derived from an email.
const maxUsernameAttempts = 50

// derivedUsername returns the attempt-th username candidate for email: its local part
// first, then the local part with "-2", "-3" and so on appended.
func derivedUsername(email string, attempt int) string {
	base, _, _ := strings.Cut(email, "@")
	if attempt == 0 {
		return base
	}
	return base + "-" + strconv.Itoa(attempt+1)
}

// NewAccount describes a signup. An empty Username is derived from Email and made
// unique; an explicit one that is taken fails with ErrDuplicate.
type NewAccount struct {
	Email        string
	FullName     string
	Username     string
	PasswordHash string
}

// Directory resolves identities. It is the read side used by the realtime core.
type Directory interface {
	GetByID(ctx context.Context, id string) (Identity, error)
}

// Store is the full user directory used by the HTTP layer.
type Store interface {
	Directory

	Create(ctx context.Context, in NewAccount) (Account, error)
	GetByEmail(ctx context.Context, email string) (Account, error)
	ListExcept(ctx context.Context, id string) ([]Identity, error)

	// Search matches query against usernames and full names, case-insensitively,
	// skipping me. An empty query matches nobody.
	Search(ctx context.Context, me, query string, limit int) ([]Identity, error)

	Block(ctx context.Context, blockerID, blockedID string) error
	Unblock(ctx context.Context, blockerID, blockedID string) error
	ListBlocked(ctx context.Context, blockerID string) ([]Identity, error)

	// IsBlocked reports whether either user has blocked the other.
	IsBlocked(ctx context.Context, a, b string) (bool, error)
}

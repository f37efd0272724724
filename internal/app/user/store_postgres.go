package user

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dmchat/internal/app/db"
	"dmchat/internal/pkg/randx"
)

// PostgresStore is the Store backed by the users and user_blocks tables.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an existing pool; migrations are applied by db.NewPool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const identityColumns = `id::text, full_name, username, profile_pic`

// usernameConstraint is the unique index on users.username.
const usernameConstraint = "users_username_key"

func (s *PostgresStore) Create(ctx context.Context, in NewAccount) (Account, error) {
	derived := in.Username == ""

	for attempt := 0; attempt < maxUsernameAttempts; attempt++ {
		username := in.Username
		if derived {
			username = derivedUsername(in.Email, attempt)
		}

		a, err := s.insert(ctx, in, username)
		if err == nil {
			return a, nil
		}

		constraint, unique := db.UniqueViolation(err)
		if !unique {
			return Account{}, fmt.Errorf("insert user: %w", err)
		}
		if !derived || constraint != usernameConstraint {
			return Account{}, ErrDuplicate
		}
	}

	return Account{}, ErrDuplicate
}

func (s *PostgresStore) insert(ctx context.Context, in NewAccount, username string) (Account, error) {
	var a Account
	err := s.pool.QueryRow(ctx, `
		INSERT INTO users (email, full_name, username, password_hash)
		VALUES (lower($1), $2, $3, $4)
		RETURNING `+identityColumns+`, email, password_hash, created_at`,
		in.Email, in.FullName, username, in.PasswordHash,
	).Scan(&a.ID, &a.FullName, &a.Username, &a.Avatar, &a.Email, &a.PasswordHash, &a.CreatedAt)
	return a, err
}

func (s *PostgresStore) GetByID(ctx context.Context, id string) (Identity, error) {
	if !randx.IsValidID(id) {
		return Identity{}, ErrNotFound
	}

	var i Identity
	err := s.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM users WHERE id = $1::uuid`, id,
	).Scan(&i.ID, &i.FullName, &i.Username, &i.Avatar)
	if errors.Is(err, pgx.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	if err != nil {
		return Identity{}, fmt.Errorf("get user %s: %w", id, err)
	}
	return i, nil
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (Account, error) {
	var a Account
	err := s.pool.QueryRow(ctx, `
		SELECT `+identityColumns+`, email, password_hash, created_at
		FROM users WHERE email = lower($1)`, email,
	).Scan(&a.ID, &a.FullName, &a.Username, &a.Avatar, &a.Email, &a.PasswordHash, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrNotFound
	}
	if err != nil {
		return Account{}, fmt.Errorf("get user by email: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListExcept(ctx context.Context, id string) ([]Identity, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+identityColumns+` FROM users WHERE id <> $1::uuid ORDER BY full_name`, id)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return collectIdentities(rows)
}

func collectIdentities(rows pgx.Rows) ([]Identity, error) {
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (Identity, error) {
		var i Identity
		err := row.Scan(&i.ID, &i.FullName, &i.Username, &i.Avatar)
		return i, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan users: %w", err)
	}
	return out, nil
}

// likeEscaper quotes the ILIKE wildcards in a search term.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *PostgresStore) Search(ctx context.Context, me, query string, limit int) ([]Identity, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []Identity{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+identityColumns+` FROM users
		WHERE id <> $1::uuid AND (username ILIKE $2 OR full_name ILIKE $2)
		ORDER BY full_name, username
		LIMIT $3`, me, "%"+likeEscaper.Replace(query)+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return collectIdentities(rows)
}

func (s *PostgresStore) Block(ctx context.Context, blockerID, blockedID string) error {
	if !randx.IsValidID(blockerID) || !randx.IsValidID(blockedID) {
		return ErrNotFound
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO user_blocks (blocker_id, blocked_id)
		SELECT $1::uuid, id FROM users WHERE id = $2::uuid
		ON CONFLICT DO NOTHING`, blockerID, blockedID)
	if err != nil {
		return fmt.Errorf("block user: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.GetByID(ctx, blockedID); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) Unblock(ctx context.Context, blockerID, blockedID string) error {
	if !randx.IsValidID(blockerID) || !randx.IsValidID(blockedID) {
		return nil
	}

	_, err := s.pool.Exec(ctx,
		`DELETE FROM user_blocks WHERE blocker_id = $1::uuid AND blocked_id = $2::uuid`,
		blockerID, blockedID)
	if err != nil {
		return fmt.Errorf("unblock user: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListBlocked(ctx context.Context, blockerID string) ([]Identity, error) {
	if !randx.IsValidID(blockerID) {
		return []Identity{}, nil
	}

	rows, err := s.pool.Query(ctx, `
		SELECT u.id::text, u.full_name, u.username, u.profile_pic
		FROM user_blocks b JOIN users u ON u.id = b.blocked_id
		WHERE b.blocker_id = $1::uuid
		ORDER BY u.full_name, u.username`, blockerID)
	if err != nil {
		return nil, fmt.Errorf("list blocked users: %w", err)
	}
	return collectIdentities(rows)
}

func (s *PostgresStore) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	if !randx.IsValidID(a) || !randx.IsValidID(b) {
		return false, nil
	}

	var blocked bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM user_blocks
			WHERE (blocker_id = $1::uuid AND blocked_id = $2::uuid)
			   OR (blocker_id = $2::uuid AND blocked_id = $1::uuid)
		)`, a, b).Scan(&blocked)
	if err != nil {
		return false, fmt.Errorf("check block: %w", err)
	}
	return blocked, nil
}

package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/starstake/stakeboard/internal/domain"
)

// ProfileStore implements domain.ProfileStore using PostgreSQL.
type ProfileStore struct {
	pool *pgxpool.Pool
}

// NewProfileStore creates a new ProfileStore backed by the given connection pool.
func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

const profileSelectCols = `wallet, nickname, avatar_url, referrer, created_at, updated_at`

func scanProfileRow(row pgx.Row) (domain.UserProfile, error) {
	var p domain.UserProfile
	err := row.Scan(
		&p.Wallet, &p.Nickname, &p.AvatarURL, &p.Referrer,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return p, nil
}

// Upsert creates or updates a profile. Wallets are case-folded so a
// checksummed and a lowercase address land on the same row. The referrer
// is write-once: later upserts cannot rewrite the referral tree.
func (s *ProfileStore) Upsert(ctx context.Context, p domain.UserProfile) error {
	const query = `
		INSERT INTO profiles (wallet, nickname, avatar_url, referrer, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (wallet) DO UPDATE SET
			nickname   = EXCLUDED.nickname,
			avatar_url = EXCLUDED.avatar_url,
			referrer   = CASE
				WHEN profiles.referrer = '' THEN EXCLUDED.referrer
				ELSE profiles.referrer
			END,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		strings.ToLower(p.Wallet), p.Nickname, p.AvatarURL,
		strings.ToLower(p.Referrer),
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert profile %s: %w", p.Wallet, err)
	}
	return nil
}

// Get retrieves a profile by wallet.
// It returns domain.ErrNotFound when no profile exists.
func (s *ProfileStore) Get(ctx context.Context, wallet string) (domain.UserProfile, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+profileSelectCols+` FROM profiles WHERE wallet = $1`,
		strings.ToLower(wallet))

	p, err := scanProfileRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserProfile{}, domain.ErrNotFound
		}
		return domain.UserProfile{}, fmt.Errorf("postgres: get profile %s: %w", wallet, err)
	}
	return p, nil
}

// Count returns the number of stored profiles.
func (s *ProfileStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM profiles`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("postgres: count profiles: %w", err)
	}
	return n, nil
}

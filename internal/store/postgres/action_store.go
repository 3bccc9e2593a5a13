package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/starstake/stakeboard/internal/domain"
)

// ActionStore implements domain.ActionStore using PostgreSQL. The actions
// table is the durable journal: one row per submitted operation, updated
// in place as the transaction reaches a terminal state.
type ActionStore struct {
	pool *pgxpool.Pool
}

// NewActionStore creates a new ActionStore backed by the given connection pool.
func NewActionStore(pool *pgxpool.Pool) *ActionStore {
	return &ActionStore{pool: pool}
}

const actionSelectCols = `id, wallet, kind, package_id, stake_index, amount,
	tx_hash, status, detail, created_at, completed_at`

func scanActionRow(row pgx.Row) (domain.ActionRecord, error) {
	var (
		rec        domain.ActionRecord
		kind       string
		status     string
		amount     string
		detailJSON []byte
	)

	err := row.Scan(
		&rec.ID, &rec.Wallet, &kind,
		&rec.PackageID, &rec.StakeIndex, &amount,
		&rec.TxHash, &status, &detailJSON,
		&rec.CreatedAt, &rec.CompletedAt,
	)
	if err != nil {
		return domain.ActionRecord{}, err
	}

	rec.Kind = domain.ActionKind(kind)
	rec.Status = domain.ActionStatus(status)
	rec.Amount, err = domain.TokenAmountFromString(amount)
	if err != nil {
		return domain.ActionRecord{}, fmt.Errorf("parse amount: %w", err)
	}
	if detailJSON != nil {
		if err := json.Unmarshal(detailJSON, &rec.Detail); err != nil {
			return domain.ActionRecord{}, fmt.Errorf("unmarshal detail: %w", err)
		}
	}
	return rec, nil
}

func scanActionRows(rows pgx.Rows) ([]domain.ActionRecord, error) {
	var records []domain.ActionRecord
	for rows.Next() {
		rec, err := scanActionRow(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Create inserts a new journal row.
func (s *ActionStore) Create(ctx context.Context, rec domain.ActionRecord) error {
	detailJSON, err := json.Marshal(rec.Detail)
	if err != nil {
		return fmt.Errorf("postgres: marshal action detail: %w", err)
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	const query = `
		INSERT INTO actions (
			id, wallet, kind, package_id, stake_index, amount,
			tx_hash, status, detail, created_at, completed_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9, $10, $11
		)`

	_, err = s.pool.Exec(ctx, query,
		rec.ID, strings.ToLower(rec.Wallet), string(rec.Kind),
		rec.PackageID, rec.StakeIndex, rec.Amount.String(),
		strings.ToLower(rec.TxHash), string(rec.Status), detailJSON,
		createdAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create action %s: %w", rec.ID, err)
	}
	return nil
}

// SetStatus moves a journal row to a new status. A non-empty txHash is
// recorded; an empty one preserves whatever hash the row already has.
// Terminal statuses stamp completed_at.
func (s *ActionStore) SetStatus(ctx context.Context, id string, status domain.ActionStatus, txHash string) error {
	const query = `
		UPDATE actions SET
			status  = $2,
			tx_hash = CASE WHEN $3 <> '' THEN $3 ELSE tx_hash END,
			completed_at = CASE
				WHEN $2 IN ('confirmed', 'reverted', 'rejected') THEN NOW()
				ELSE completed_at
			END
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query, id, string(status), strings.ToLower(txHash))
	if err != nil {
		return fmt.Errorf("postgres: set action %s status %s: %w", id, status, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a single journal row.
func (s *ActionStore) GetByID(ctx context.Context, id string) (domain.ActionRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+actionSelectCols+` FROM actions WHERE id = $1`, id)

	rec, err := scanActionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ActionRecord{}, domain.ErrNotFound
		}
		return domain.ActionRecord{}, fmt.Errorf("postgres: get action %s: %w", id, err)
	}
	return rec, nil
}

// ListByWallet returns a wallet's journal with pagination and optional
// time filtering, newest first.
func (s *ActionStore) ListByWallet(ctx context.Context, wallet string, opts domain.ListOpts) ([]domain.ActionRecord, error) {
	query := `SELECT ` + actionSelectCols + ` FROM actions WHERE wallet = $1`
	args := []any{strings.ToLower(wallet)}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY created_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list actions for %s: %w", wallet, err)
	}
	defer rows.Close()

	records, err := scanActionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan actions for %s: %w", wallet, err)
	}
	return records, nil
}

// ListBefore returns journal rows older than the cutoff, oldest first, so
// the archiver drains them in stable order.
func (s *ActionStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.ActionRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+actionSelectCols+` FROM actions
		 WHERE created_at < $1
		 ORDER BY created_at ASC
		 LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list actions before %s: %w", before, err)
	}
	defer rows.Close()

	records, err := scanActionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan actions before %s: %w", before, err)
	}
	return records, nil
}

// DeleteBefore removes journal rows older than the cutoff and reports how
// many went away.
func (s *ActionStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM actions WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete actions before %s: %w", before, err)
	}
	return tag.RowsAffected(), nil
}

package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// ProfileStore persists user profiles.
type ProfileStore interface {
	Upsert(ctx context.Context, p UserProfile) error
	Get(ctx context.Context, wallet string) (UserProfile, error)
	Count(ctx context.Context) (int64, error)
}

// ActionStore persists the action journal.
type ActionStore interface {
	Create(ctx context.Context, rec ActionRecord) error
	SetStatus(ctx context.Context, id string, status ActionStatus, txHash string) error
	GetByID(ctx context.Context, id string) (ActionRecord, error)
	ListByWallet(ctx context.Context, wallet string, opts ListOpts) ([]ActionRecord, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]ActionRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]AuditEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

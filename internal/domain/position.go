package domain

import (
	"fmt"
	"strings"
	"time"
)

// PositionStatus tracks a staking position through its lifecycle.
// Pending only ever moves forward to Active, never back.
type PositionStatus string

const (
	PositionStatusPending  PositionStatus = "pending"
	PositionStatusActive   PositionStatus = "active"
	PositionStatusInactive PositionStatus = "inactive"
)

// Position is one user's stake in one package. At most one authoritative
// position exists per (user, package, stake index); an optimistic position
// is a provisional stand-in that must not survive its authoritative
// counterpart.
type Position struct {
	Key                string         `json:"key"` // dedup key, see DedupKey
	TxHash             string         `json:"tx_hash,omitempty"`
	User               string         `json:"user"`
	PackageID          uint64         `json:"package_id"`
	StakeIndex         uint64         `json:"stake_index"`
	PackageName        string         `json:"package_name,omitempty"`
	Amount             TokenAmount    `json:"amount"`
	StartAt            time.Time      `json:"start_at"`
	NextClaimAt        time.Time      `json:"next_claim_at"`
	Status             PositionStatus `json:"status"`
	Rules              PackageRules   `json:"rules"`
	ClaimedReward      TokenAmount    `json:"claimed_reward"`
	WithdrawnPrincipal TokenAmount    `json:"withdrawn_principal"`
	FullyWithdrawn     bool           `json:"fully_withdrawn"`
	Optimistic         bool           `json:"optimistic"`
}

// DedupKeyForTx keys a position by its creating transaction.
func DedupKeyForTx(txHash string) string {
	return "tx:" + strings.ToLower(txHash)
}

// DedupKeyForStart keys a position by package and start second, for
// sources that do not expose the transaction hash.
func DedupKeyForStart(packageID uint64, startAt time.Time) string {
	return fmt.Sprintf("pkg:%d:start:%d", packageID, startAt.Unix())
}

// DedupKey derives the canonical identity of p: the tx key when the hash
// is known, the package/start key otherwise.
func (p Position) DedupKey() string {
	if p.TxHash != "" {
		return DedupKeyForTx(p.TxHash)
	}
	return DedupKeyForStart(p.PackageID, p.StartAt)
}

// MaturesAt returns when the position's lock period ends.
func (p Position) MaturesAt() time.Time {
	return p.StartAt.Add(time.Duration(p.Rules.DurationDays) * 24 * time.Hour)
}

// Matured reports whether the lock period has ended as of now.
func (p Position) Matured(now time.Time) bool {
	return !now.Before(p.MaturesAt())
}

package domain

import "time"

// ActionKind names a user-initiated on-chain operation.
type ActionKind string

const (
	ActionKindStake   ActionKind = "stake"
	ActionKindClaim   ActionKind = "claim"
	ActionKindUnstake ActionKind = "unstake"
	ActionKindApprove ActionKind = "approve"
)

// ActionStatus is the journal status of a submitted action.
type ActionStatus string

const (
	ActionStatusSubmitted ActionStatus = "submitted"
	ActionStatusConfirmed ActionStatus = "confirmed"
	ActionStatusReverted  ActionStatus = "reverted"
	ActionStatusRejected  ActionStatus = "rejected" // user declined in the wallet
)

// ActionRecord is one row of the action journal. The journal is the
// durable trail of everything the orchestrator submitted, in every
// terminal state it reached.
type ActionRecord struct {
	ID          string         `json:"id"` // UUID
	Wallet      string         `json:"wallet"`
	Kind        ActionKind     `json:"kind"`
	PackageID   uint64         `json:"package_id,omitempty"`
	StakeIndex  uint64         `json:"stake_index,omitempty"`
	Amount      TokenAmount    `json:"amount"`
	TxHash      string         `json:"tx_hash,omitempty"`
	Status      ActionStatus   `json:"status"`
	Detail      map[string]any `json:"detail,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

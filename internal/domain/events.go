package domain

import (
	"context"
	"time"
)

// EventKind discriminates bus events. Handlers switch on the kind and
// read only the payload fields documented for it.
type EventKind string

const (
	// EventPositionPending fires when an optimistic position is inserted
	// after a successful submission. Payload: Wallet, TxHash, Position.
	EventPositionPending EventKind = "position.pending"
	// EventPositionConfirmed fires when the chain confirms a stake.
	// Payload: Wallet, TxHash.
	EventPositionConfirmed EventKind = "position.confirmed"
	// EventPositionsChanged fires when the reconciled view may differ
	// from what clients last saw. Payload: Wallet (empty = all).
	EventPositionsChanged EventKind = "positions.changed"
	// EventClaimConfirmed fires after a confirmed claim. Payload:
	// Wallet, TxHash, Position (the claimed position, key only may be set).
	EventClaimConfirmed EventKind = "claim.confirmed"
	// EventUnstakeConfirmed fires after a confirmed unstake. Payload:
	// Wallet, TxHash.
	EventUnstakeConfirmed EventKind = "unstake.confirmed"
	// EventActionFailed fires when a submitted action reverts or errors.
	// Payload: Wallet, TxHash, Action, Reason.
	EventActionFailed EventKind = "action.failed"
	// EventRefreshRequested asks the position service to refetch.
	// Payload: Wallet (empty = all tracked).
	EventRefreshRequested EventKind = "refresh.requested"
	// EventDisplayTick drives live counters; no payload.
	EventDisplayTick EventKind = "display.tick"
	// EventPricesUpdated fires after a price refresh; no payload.
	EventPricesUpdated EventKind = "prices.updated"
	// EventArchiveCompleted fires after a journal/audit archive run.
	// Payload: Reason carries the object path, Count the rows moved.
	EventArchiveCompleted EventKind = "archive.completed"
)

// Event is one typed bus message. Only the fields relevant to Kind are
// populated; the rest stay zero.
type Event struct {
	Kind     EventKind     `json:"kind"`
	At       time.Time     `json:"at"`
	Wallet   string        `json:"wallet,omitempty"`
	TxHash   string        `json:"tx_hash,omitempty"`
	Position *Position     `json:"position,omitempty"`
	Action   *ActionRecord `json:"action,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Count    int64         `json:"count,omitempty"`
}

// EventBus is the in-process typed bus. Publish never blocks the caller;
// slow subscribers miss events rather than stall producers.
type EventBus interface {
	Publish(ev Event)
	Subscribe(ctx context.Context, kinds ...EventKind) <-chan Event
}

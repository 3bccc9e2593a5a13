package reconcile

import (
	"strings"
	"sync"
	"time"

	"github.com/starstake/stakeboard/internal/domain"
)

type entry struct {
	pos       domain.Position
	createdAt time.Time
}

// EntryStore holds provisional positions between transaction submission
// and the authoritative source catching up. Entries are keyed by dedup
// key and guarded by one mutex; the ticker, confirmation and request
// paths all share it.
//
// Per-entry lifecycle: Pending -> Active (confirmation or timeout),
// removed from either state once Prune sees the authoritative
// counterpart. Status never moves back to Pending.
type EntryStore struct {
	mu        sync.Mutex
	entries   map[string]*entry
	timeout   time.Duration // pending entries older than this self-promote
	tolerance time.Duration // fuzzy prune window around start times
	now       func() time.Time
}

// NewEntryStore creates an EntryStore. Non-positive arguments fall back
// to a 120s pending timeout and a 2h fuzzy window.
func NewEntryStore(pendingTimeout, fuzzyTolerance time.Duration) *EntryStore {
	if pendingTimeout <= 0 {
		pendingTimeout = 120 * time.Second
	}
	if fuzzyTolerance <= 0 {
		fuzzyTolerance = 2 * time.Hour
	}
	return &EntryStore{
		entries:   make(map[string]*entry),
		timeout:   pendingTimeout,
		tolerance: fuzzyTolerance,
		now:       time.Now,
	}
}

// Add inserts pos as a Pending optimistic entry and records its creation
// time for elapsed displays and timeout promotion. Adding a key that is
// already present is a no-op, so a double submission cannot fork state.
func (s *EntryStore) Add(pos domain.Position) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pos.DedupKey()
	if _, ok := s.entries[key]; ok {
		return false
	}
	pos.Key = key
	pos.Status = domain.PositionStatusPending
	pos.Optimistic = true
	s.entries[key] = &entry{pos: pos, createdAt: s.now()}
	return true
}

// PromoteConfirmed moves the entry created by txHash from Pending to
// Active. Unknown hashes are a no-op: a receipt can belong to another
// session or arrive after the prune already removed the entry.
func (s *EntryStore) PromoteConfirmed(txHash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[domain.DedupKeyForTx(txHash)]
	if !ok || e.pos.Status != domain.PositionStatusPending {
		return false
	}
	e.pos.Status = domain.PositionStatusActive
	return true
}

// Remove drops the entry created by txHash regardless of status. Used
// when the transaction reverts on-chain: the position it promised will
// never exist, so timeout promotion must not resurrect it.
func (s *EntryStore) Remove(txHash string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.DedupKeyForTx(txHash)
	if _, ok := s.entries[key]; !ok {
		return false
	}
	delete(s.entries, key)
	return true
}

// PromoteStale promotes every Pending entry older than the pending
// timeout. Indexer lag must not pin a very likely successful stake in
// Pending forever; the authoritative source still prunes it later.
func (s *EntryStore) PromoteStale() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for _, e := range s.entries {
		if e.pos.Status != domain.PositionStatusPending {
			continue
		}
		if now.Sub(e.createdAt) > s.timeout {
			e.pos.Status = domain.PositionStatusActive
			n++
		}
	}
	return n
}

// Prune removes every optimistic entry superseded by an authoritative
// position, matched by exact dedup key or by package id with start
// times inside the fuzzy window. Removal is terminal: a pruned entry
// never reappears.
func (s *EntryStore) Prune(authoritative []domain.Position) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 || len(authoritative) == 0 {
		return 0
	}
	keys := make(map[string]struct{}, len(authoritative))
	for _, a := range authoritative {
		keys[a.DedupKey()] = struct{}{}
	}
	n := 0
	for key, e := range s.entries {
		if _, ok := keys[key]; ok {
			delete(s.entries, key)
			n++
			continue
		}
		for _, a := range authoritative {
			if a.PackageID != e.pos.PackageID {
				continue
			}
			if absDuration(a.StartAt.Sub(e.pos.StartAt)) <= s.tolerance {
				delete(s.entries, key)
				n++
				break
			}
		}
	}
	return n
}

// Snapshot returns copies of the optimistic entries for wallet; an
// empty wallet returns everything.
func (s *EntryStore) Snapshot(wallet string) []domain.Position {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Position, 0, len(s.entries))
	for _, e := range s.entries {
		if wallet != "" && !strings.EqualFold(e.pos.User, wallet) {
			continue
		}
		out = append(out, e.pos)
	}
	return out
}

// ElapsedSince reports how long the entry created by txHash has been
// waiting. ok is false when no such entry exists.
func (s *EntryStore) ElapsedSince(txHash string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[domain.DedupKeyForTx(txHash)]
	if !ok {
		return 0, false
	}
	return s.now().Sub(e.createdAt), true
}

// Len returns the number of live optimistic entries.
func (s *EntryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

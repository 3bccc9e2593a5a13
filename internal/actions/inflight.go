package actions

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/starstake/stakeboard/internal/domain"
)

// Guard rejects a logical action while an identical one is still in
// flight. Keys are parameter hashes, so a double-clicked stake cannot
// submit twice while two different actions never wait on each other.
//
// Entries are released explicitly when an action reaches a terminal
// state; the TTL only reaps entries orphaned by a crash mid-flight.
type Guard struct {
	mu   sync.Mutex
	held map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

// NewGuard creates a Guard. A non-positive ttl falls back to 10 minutes.
func NewGuard(ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Guard{
		held: make(map[string]time.Time),
		ttl:  ttl,
		now:  time.Now,
	}
}

// Begin claims key. It returns false when the key is already held and
// its TTL has not lapsed; an expired hold is reclaimed in place.
func (g *Guard) Begin(key string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	if since, ok := g.held[key]; ok && now.Sub(since) < g.ttl {
		return false
	}
	g.held[key] = now
	return true
}

// End releases key. Unknown keys are a no-op.
func (g *Guard) End(key string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.held, key)
}

// Cleanup drops holds older than the TTL and returns how many were
// reaped. Anything it finds was orphaned; normal completion releases
// through End.
func (g *Guard) Cleanup() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	n := 0
	for key, since := range g.held {
		if now.Sub(since) >= g.ttl {
			delete(g.held, key)
			n++
		}
	}
	return n
}

// Len returns the number of live holds.
func (g *Guard) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.held)
}

// ActionKey hashes the identifying parameters of an action into a guard
// key. The same parameters always produce the same key, so retries of
// one logical action collide while any differing field keeps them apart.
func ActionKey(kind domain.ActionKind, wallet string, parts ...string) string {
	h := sha256.New()
	io.WriteString(h, string(kind))
	io.WriteString(h, "|")
	io.WriteString(h, strings.ToLower(wallet))
	for _, p := range parts {
		io.WriteString(h, "|")
		io.WriteString(h, strings.ToLower(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

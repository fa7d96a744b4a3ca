package issues

import (
	"sync"

	"github.com/automatesecurity/masat/internal/types"
)

// Patch is a staged local change to one issue.
type Patch struct {
	Status *types.Status
	Owner  *string
}

// Ledger tracks optimistic local writes that have been sent but not yet
// acknowledged. A caller stages the patch, issues the write, then commits
// on success or rolls back on failure; Overlay merges staged patches over
// server state so reads reflect in-flight intent without mutating it.
type Ledger struct {
	mu      sync.Mutex
	pending map[string]Patch
}

// NewLedger returns an empty pending-write ledger.
func NewLedger() *Ledger {
	return &Ledger{pending: map[string]Patch{}}
}

// Stage records a pending patch for a fingerprint, replacing any earlier
// staged patch for the same issue.
func (l *Ledger) Stage(fp string, p Patch) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[fp] = p
}

// Commit drops the staged patch after the server accepted the write.
func (l *Ledger) Commit(fp string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, fp)
}

// Rollback drops the staged patch after a rejected or conflicted write.
func (l *Ledger) Rollback(fp string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.pending, fp)
}

// Pending reports whether a patch is staged for the fingerprint.
func (l *Ledger) Pending(fp string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.pending[fp]
	return ok
}

// Overlay returns a copy of items with staged patches applied. The input
// slice is not modified.
func (l *Ledger) Overlay(items []types.Issue) []types.Issue {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.pending) == 0 {
		return items
	}
	out := make([]types.Issue, len(items))
	copy(out, items)
	for i := range out {
		p, ok := l.pending[out[i].Fingerprint]
		if !ok {
			continue
		}
		if p.Status != nil {
			out[i].Status = *p.Status
		}
		if p.Owner != nil {
			out[i].Owner = *p.Owner
		}
	}
	return out
}

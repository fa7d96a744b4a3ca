// Package storage provides the durable repositories behind the engine:
// issues keyed by fingerprint, append-only runs with a (target, ts)
// ordering, and append-only posture snapshots. Two implementations exist
// with identical semantics: an in-memory store for tests and ephemeral use,
// and a GORM/SQLite store for the portal.
package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/automatesecurity/masat/internal/issues"
	"github.com/automatesecurity/masat/internal/types"
)

// ErrRunNotFound is returned when no run exists for an id.
var ErrRunNotFound = errors.New("run not found")

// Memory is a mutex-guarded in-memory store implementing the issue, run,
// and snapshot repositories.
type Memory struct {
	mu        sync.Mutex
	issues    map[string]types.Issue
	runs      []types.Run
	nextRunID int64
	snaps     []types.PostureSnapshot
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{issues: map[string]types.Issue{}}
}

// Get implements issues.Store.
func (m *Memory) Get(ctx context.Context, fingerprint string) (types.Issue, error) {
	if err := ctx.Err(); err != nil {
		return types.Issue{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	is, ok := m.issues[fingerprint]
	if !ok {
		return types.Issue{}, issues.ErrNotFound
	}
	return is, nil
}

func matches(is types.Issue, f issues.Filter) bool {
	if f.Status != nil && is.Status != *f.Status {
		return false
	}
	if f.Owner != nil && is.Owner != *f.Owner {
		return false
	}
	return true
}

// List implements issues.Store: severity descending, then last-seen
// descending, with fingerprint as the final tie-break for stable pages.
func (m *Memory) List(ctx context.Context, f issues.Filter, limit, offset int) ([]types.Issue, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var all []types.Issue
	for _, is := range m.issues {
		if matches(is, f) {
			all = append(all, is)
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Severity != all[j].Severity {
			return all[i].Severity > all[j].Severity
		}
		if !all[i].LastSeen.Equal(all[j].LastSeen) {
			return all[i].LastSeen.After(all[j].LastSeen)
		}
		return all[i].Fingerprint < all[j].Fingerprint
	})

	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	page := make([]types.Issue, end-offset)
	copy(page, all[offset:end])
	return page, total, nil
}

// Stats implements issues.Store.
func (m *Memory) Stats(ctx context.Context) (issues.Stats, error) {
	if err := ctx.Err(); err != nil {
		return issues.Stats{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var st issues.Stats
	for _, is := range m.issues {
		if is.Status.Terminal() {
			continue
		}
		st.Open++
		if is.Owner != "" {
			st.OpenOwned++
		}
	}
	return st, nil
}

type memTx struct {
	base   map[string]types.Issue
	staged map[string]types.Issue
}

func (t *memTx) Get(fingerprint string) (types.Issue, error) {
	if is, ok := t.staged[fingerprint]; ok {
		return is, nil
	}
	if is, ok := t.base[fingerprint]; ok {
		return is, nil
	}
	return types.Issue{}, issues.ErrNotFound
}

func (t *memTx) Put(is types.Issue) error {
	t.staged[is.Fingerprint] = is
	return nil
}

// Atomically implements issues.Store. Writes are staged and applied only if
// fn succeeds and ctx is still live, so a failed or cancelled block leaves
// no partial state.
func (m *Memory) Atomically(ctx context.Context, fn func(tx issues.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := &memTx{base: m.issues, staged: map[string]types.Issue{}}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for k, v := range tx.staged {
		m.issues[k] = v
	}
	return nil
}

// AppendRun stores a run and assigns the next monotonic id.
func (m *Memory) AppendRun(ctx context.Context, run types.Run) (types.Run, error) {
	if err := ctx.Err(); err != nil {
		return types.Run{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextRunID++
	run.ID = m.nextRunID
	m.runs = append(m.runs, run)
	return run, nil
}

// LatestRuns returns up to n runs for a target ordered by (timestamp, id)
// descending; the id tie-break keeps the ordering reproducible when clock
// resolution makes timestamps collide.
func (m *Memory) LatestRuns(ctx context.Context, target string, n int) ([]types.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []types.Run
	for _, r := range m.runs {
		if r.Target == target {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// RunByID fetches a single run.
func (m *Memory) RunByID(ctx context.Context, id int64) (types.Run, error) {
	if err := ctx.Err(); err != nil {
		return types.Run{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.runs {
		if r.ID == id {
			return r, nil
		}
	}
	return types.Run{}, ErrRunNotFound
}

// Targets returns the distinct targets that have at least one stored run.
func (m *Memory) Targets(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, r := range m.runs {
		if !seen[r.Target] {
			seen[r.Target] = true
			out = append(out, r.Target)
		}
	}
	sort.Strings(out)
	return out, nil
}

// CountRunsSince counts runs with a timestamp at or after since.
func (m *Memory) CountRunsSince(ctx context.Context, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, r := range m.runs {
		if !r.Timestamp.Before(since) {
			n++
		}
	}
	return n, nil
}

// AppendSnapshot stores an immutable posture snapshot.
func (m *Memory) AppendSnapshot(ctx context.Context, snap types.PostureSnapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, snap)
	return nil
}

// NearestBefore returns the snapshot closest to but not after cutoff, or
// nil when no snapshot is that old.
func (m *Memory) NearestBefore(ctx context.Context, cutoff time.Time) (*types.PostureSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *types.PostureSnapshot
	for i := range m.snaps {
		s := m.snaps[i]
		if s.TS.After(cutoff) {
			continue
		}
		if best == nil || s.TS.After(best.TS) {
			cp := s
			best = &cp
		}
	}
	return best, nil
}

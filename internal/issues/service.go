// Package issues owns the deduplicated issue records and their status
// lifecycle. Repeated noisy scan output for the same target collapses into
// one trackable issue per fingerprint; ingestion applies the single
// automatic transition (terminal back to open on reappearance) and manual
// updates go through optimistic concurrency.
package issues

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/automatesecurity/masat/internal/fingerprint"
	"github.com/automatesecurity/masat/internal/types"
)

// Service applies the issue state machine on top of a Store.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService wires the state machine to a store.
func NewService(store Store) *Service {
	return &Service{store: store, now: time.Now}
}

// observation is one collapsed logical finding within a run.
type observation struct {
	fingerprint string
	finding     types.Finding
}

// collapse dedupes a run's findings by fingerprint. When several findings
// share a key within one run, the higher-severity one wins. Output order is
// deterministic regardless of scanner ordering.
func collapse(run types.Run) []observation {
	byKey := map[string]types.Finding{}
	for _, f := range run.Findings {
		asset := f.Asset
		if asset == "" {
			asset = run.Target
		}
		key := fingerprint.Key(asset, f.Category, f.Title)
		if cur, ok := byKey[key]; !ok || f.Severity > cur.Severity {
			if f.Asset == "" {
				f.Asset = asset
			}
			byKey[key] = f
		}
	}
	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]observation, 0, len(keys))
	for _, k := range keys {
		out = append(out, observation{fingerprint: k, finding: byKey[k]})
	}
	return out
}

// Ingest upserts one issue per distinct fingerprint in the run.
//
// New fingerprints create an open issue. Fingerprints backing a non-terminal
// issue touch last-seen bookkeeping and the observed severity without
// changing status. Fingerprints backing a terminal issue reopen it; that is
// the only automatic status transition. Issues absent from the run are left
// untouched. The whole ingest applies atomically: a failed or cancelled
// ingest leaves no partial state behind.
func (s *Service) Ingest(ctx context.Context, run types.Run) error {
	obs := collapse(run)
	if len(obs) == 0 {
		return nil
	}
	err := s.store.Atomically(ctx, func(tx Tx) error {
		for _, o := range obs {
			cur, err := tx.Get(o.fingerprint)
			switch {
			case errors.Is(err, ErrNotFound):
				if err := tx.Put(newIssue(o, run)); err != nil {
					return err
				}
			case err != nil:
				return err
			default:
				if err := tx.Put(s.observeExisting(cur, o, run)); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("ingest run %d: %w", run.ID, err)
	}
	return nil
}

func newIssue(o observation, run types.Run) types.Issue {
	return types.Issue{
		Fingerprint:   o.fingerprint,
		Asset:         o.finding.Asset,
		Category:      o.finding.Category,
		Title:         o.finding.Title,
		Severity:      o.finding.Severity,
		Status:        types.StatusOpen,
		FirstSeen:     run.Timestamp,
		LastSeen:      run.Timestamp,
		LastRunID:     run.ID,
		StatusUpdated: run.Timestamp,
		Remediation:   o.finding.Remediation,
		Details:       o.finding.Details,
		Version:       1,
	}
}

// observeExisting applies a fresh observation to a known issue.
// FirstSeen, owner, and environment are preserved; LastSeen never moves
// backwards even when an older run is replayed.
func (s *Service) observeExisting(cur types.Issue, o observation, run types.Run) types.Issue {
	seenAgain := run.Timestamp.After(cur.LastSeen)

	next := cur
	next.Severity = o.finding.Severity
	next.LastRunID = run.ID
	if seenAgain {
		next.LastSeen = run.Timestamp
	}
	if o.finding.Remediation != "" {
		next.Remediation = o.finding.Remediation
	}
	if o.finding.Details != "" {
		next.Details = o.finding.Details
	}

	if cur.Status.Terminal() && seenAgain {
		next.Status = types.StatusOpen
		next.ReopenedCount = cur.ReopenedCount + 1
		next.StatusUpdated = s.now()
		next.Resolved = time.Time{}
	}
	next.Version = cur.Version + 1
	return next
}

// Update applies a manual status and/or owner change.
//
// Unknown fingerprints return ErrNotFound. Concurrent updates are resolved
// with a version check inside the store's atomic block; the losing writer
// receives a ConflictError carrying the current stored issue rather than a
// silently dropped write. A nil status or owner leaves that field untouched.
func (s *Service) Update(ctx context.Context, fp string, status *types.Status, owner *string) (types.Issue, error) {
	cur, err := s.store.Get(ctx, fp)
	if err != nil {
		return types.Issue{}, err
	}
	return s.UpdateFrom(ctx, cur, status, owner)
}

// UpdateFrom is Update against a caller-held prior version of the issue.
// Callers that read the issue earlier (e.g. a UI row) pass it here so that
// any write that landed in between surfaces as a conflict.
func (s *Service) UpdateFrom(ctx context.Context, prior types.Issue, status *types.Status, owner *string) (types.Issue, error) {
	var updated types.Issue
	err := s.store.Atomically(ctx, func(tx Tx) error {
		cur, err := tx.Get(prior.Fingerprint)
		if err != nil {
			return err
		}
		if cur.Version != prior.Version {
			return &ConflictError{Current: cur}
		}
		next := cur
		if status != nil && *status != cur.Status {
			next.Status = *status
			next.StatusUpdated = s.now()
			if status.Terminal() {
				next.Resolved = s.now()
			} else {
				next.Resolved = time.Time{}
			}
		}
		if owner != nil {
			next.Owner = *owner
		}
		next.Version = cur.Version + 1
		if err := tx.Put(next); err != nil {
			return err
		}
		updated = next
		return nil
	})
	if err != nil {
		return types.Issue{}, err
	}
	return updated, nil
}

// Get returns the issue for a fingerprint.
func (s *Service) Get(ctx context.Context, fp string) (types.Issue, error) {
	return s.store.Get(ctx, fp)
}

// List returns a page of issues sorted by severity descending then
// last-seen descending, with the total count across all pages.
func (s *Service) List(ctx context.Context, f Filter, limit, offset int) (Page, error) {
	items, total, err := s.store.List(ctx, f, limit, offset)
	if err != nil {
		return Page{}, fmt.Errorf("list issues: %w", err)
	}
	return Page{Items: items, Total: total}, nil
}

// TriageStats reports open/owned counts for posture scoring.
func (s *Service) TriageStats(ctx context.Context) (Stats, error) {
	return s.store.Stats(ctx)
}

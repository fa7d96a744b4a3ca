// Package trend persists point-in-time posture snapshots and produces
// narrative deltas between them. Snapshots are append-only and immutable;
// narration is informational text whose numbers are always derivable from
// the two snapshots being compared.
package trend

import (
	"context"
	"fmt"
	"time"

	"github.com/automatesecurity/masat/internal/posture"
	"github.com/automatesecurity/masat/internal/types"
)

// SnapshotRepo is the append-only snapshot store.
type SnapshotRepo interface {
	AppendSnapshot(ctx context.Context, snap types.PostureSnapshot) error
	NearestBefore(ctx context.Context, cutoff time.Time) (*types.PostureSnapshot, error)
}

// Aggregator records snapshots and answers historical lookups.
type Aggregator struct {
	snaps SnapshotRepo
	now   func() time.Time
}

// NewAggregator returns an aggregator over the given snapshot repository.
func NewAggregator(snaps SnapshotRepo) *Aggregator {
	return &Aggregator{snaps: snaps, now: time.Now}
}

// Build assembles the immutable snapshot for one scoring evaluation.
func Build(m posture.Metrics, card posture.Scorecard, ts time.Time) types.PostureSnapshot {
	sevs := make(map[string]int, len(m.FindingsBySeverity))
	for k, v := range m.FindingsBySeverity {
		sevs[k] = v
	}
	return types.PostureSnapshot{
		TS:                 ts,
		Score:              card.Score,
		ScoreCategories:    card.Categories,
		FindingsBySeverity: sevs,
		OpenPortsTotal:     m.OpenPortsTotal,
		CoveragePct:        m.CoveragePct,
	}
}

// Snapshot appends one snapshot for a scoring evaluation.
func (a *Aggregator) Snapshot(ctx context.Context, snap types.PostureSnapshot) error {
	if err := a.snaps.AppendSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("append snapshot: %w", err)
	}
	return nil
}

// AsOf returns the snapshot closest to, but not after, now minus daysAgo.
// A nil snapshot means no history that old exists; that is a normal result,
// not an error.
func (a *Aggregator) AsOf(ctx context.Context, daysAgo int) (*types.PostureSnapshot, error) {
	cutoff := a.now().AddDate(0, 0, -daysAgo)
	snap, err := a.snaps.NearestBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("snapshot as of %dd ago: %w", daysAgo, err)
	}
	return snap, nil
}

// Narrate produces short human-readable deltas between two snapshots. An
// empty list is returned when there is no older snapshot to compare
// against.
func Narrate(current types.PostureSnapshot, old *types.PostureSnapshot) []string {
	if old == nil {
		return []string{}
	}
	var out []string

	if d := current.Score - old.Score; d != 0 {
		verb := "improved"
		if d < 0 {
			verb = "dropped"
		}
		out = append(out, fmt.Sprintf("Posture score %s from %d to %d (%+d)", verb, old.Score, current.Score, d))
	}

	if d := current.OpenPortsTotal - old.OpenPortsTotal; d != 0 {
		verb := "increased"
		if d < 0 {
			verb = "decreased"
		}
		out = append(out, fmt.Sprintf("Open ports %s from %d to %d", verb, old.OpenPortsTotal, current.OpenPortsTotal))
	}

	if d := current.FindingsBySeverity[types.BucketCritical] - old.FindingsBySeverity[types.BucketCritical]; d > 0 {
		out = append(out, fmt.Sprintf("%d new critical finding(s) since the compared snapshot", d))
	} else if d < 0 {
		out = append(out, fmt.Sprintf("%d critical finding(s) resolved since the compared snapshot", -d))
	}

	if d := current.CoveragePct - old.CoveragePct; d != 0 {
		out = append(out, fmt.Sprintf("Scan coverage moved from %d%% to %d%%", old.CoveragePct, current.CoveragePct))
	}

	if out == nil {
		out = []string{}
	}
	return out
}

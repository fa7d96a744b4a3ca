package portal

import (
	"context"
	"fmt"
	"math"

	"github.com/automatesecurity/masat/internal/drift"
	"github.com/automatesecurity/masat/internal/posture"
	"github.com/automatesecurity/masat/internal/trend"
	"github.com/automatesecurity/masat/internal/types"
)

// Trend holds the historical snapshots the dashboard compares against.
// Nil entries mean no snapshot that old exists yet.
type Trend struct {
	Asof7d  *types.PostureSnapshot `json:"asof7d"`
	Asof30d *types.PostureSnapshot `json:"asof30d"`
	Asof90d *types.PostureSnapshot `json:"asof90d"`
}

// Dashboard is the aggregate posture view served to the UI.
type Dashboard struct {
	Metrics   posture.Metrics   `json:"metrics"`
	Scorecard posture.Scorecard `json:"scorecard"`
	Trend     Trend             `json:"trend"`
	Narrative []string          `json:"narrative"`
}

// WithTrend attaches a trend aggregator; without one, Dashboard skips
// snapshots and narration.
func (s *Service) WithTrend(agg *trend.Aggregator) *Service {
	s.trend = agg
	return s
}

// Metrics aggregates current posture inputs from the run and issue
// repositories. Coverage is the share of known targets (those with any run
// history) scanned in the last 30 days; findings and port exposure come
// from each target's latest run only, so stale history does not inflate
// current posture.
func (s *Service) Metrics(ctx context.Context) (posture.Metrics, error) {
	targets, err := s.runs.Targets(ctx)
	if err != nil {
		return posture.Metrics{}, fmt.Errorf("list targets: %w", err)
	}

	now := s.now()
	cutoff30 := now.AddDate(0, 0, -30)

	sevs := map[string]int{
		types.BucketCritical: 0,
		types.BucketHigh:     0,
		types.BucketMedium:   0,
		types.BucketLow:      0,
		types.BucketInfo:     0,
	}
	openPorts := 0
	scanned30 := 0

	for _, target := range targets {
		latest, err := s.runs.LatestRuns(ctx, target, 1)
		if err != nil {
			return posture.Metrics{}, fmt.Errorf("latest run for %s: %w", target, err)
		}
		if len(latest) == 0 {
			continue
		}
		run := latest[0]
		if !run.Timestamp.Before(cutoff30) {
			scanned30++
		}
		for _, f := range run.Findings {
			sevs[types.SeverityBucket(f.Severity)]++
		}
		openPorts += len(drift.OpenPorts(run))
	}

	coverage := 0
	if len(targets) > 0 {
		coverage = int(math.Round(float64(scanned30) * 100 / float64(len(targets))))
	}

	runs24h, err := s.runs.CountRunsSince(ctx, now.AddDate(0, 0, -1))
	if err != nil {
		return posture.Metrics{}, fmt.Errorf("count runs 24h: %w", err)
	}
	runs7d, err := s.runs.CountRunsSince(ctx, now.AddDate(0, 0, -7))
	if err != nil {
		return posture.Metrics{}, fmt.Errorf("count runs 7d: %w", err)
	}

	stats, err := s.issues.TriageStats(ctx)
	if err != nil {
		return posture.Metrics{}, fmt.Errorf("triage stats: %w", err)
	}
	// An empty backlog is fully triaged.
	ownerPct := 100
	if stats.Open > 0 {
		ownerPct = int(math.Round(float64(stats.OpenOwned) * 100 / float64(stats.Open)))
	}

	return posture.Metrics{
		TotalTargets:       len(targets),
		TargetsScanned30d:  scanned30,
		CoveragePct:        coverage,
		Runs24h:            runs24h,
		Runs7d:             runs7d,
		FindingsBySeverity: sevs,
		OpenPortsTotal:     openPorts,
		OwnerCoveragePct:   ownerPct,
	}, nil
}

// Dashboard aggregates current metrics, scores them, appends a posture
// snapshot, and compares against the 7/30/90 day history.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	m, err := s.Metrics(ctx)
	if err != nil {
		return Dashboard{}, err
	}
	card := posture.Score(m)

	out := Dashboard{Metrics: m, Scorecard: card, Narrative: []string{}}
	if s.trend == nil {
		return out, nil
	}

	snap := trend.Build(m, card, s.now())
	if err := s.trend.Snapshot(ctx, snap); err != nil {
		return Dashboard{}, err
	}
	for _, w := range []struct {
		days int
		dst  **types.PostureSnapshot
	}{
		{7, &out.Trend.Asof7d},
		{30, &out.Trend.Asof30d},
		{90, &out.Trend.Asof90d},
	} {
		old, err := s.trend.AsOf(ctx, w.days)
		if err != nil {
			return Dashboard{}, err
		}
		*w.dst = old
	}
	out.Narrative = trend.Narrate(snap, out.Trend.Asof7d)
	return out, nil
}

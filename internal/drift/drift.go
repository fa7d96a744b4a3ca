// Package drift answers: what changed between a target's two most recent
// runs? It diffs at two layers, findings (normalized category/title keys)
// and exposure signals (open ports, server header).
package drift

import (
	"context"
	"fmt"
	"sort"

	"github.com/automatesecurity/masat/internal/fingerprint"
	"github.com/automatesecurity/masat/internal/types"
)

// RunSource supplies a target's most recent runs ordered by (timestamp, id)
// descending.
type RunSource interface {
	LatestRuns(ctx context.Context, target string, n int) ([]types.Run, error)
}

// Exposure describes port and server-header changes between two runs.
type Exposure struct {
	AddedPorts          []string `json:"added_ports"`
	RemovedPorts        []string `json:"removed_ports"`
	ServerHeaderChanged bool     `json:"server_header_changed"`
	OldServerHeader     string   `json:"old_server_header,omitempty"`
	NewServerHeader     string   `json:"new_server_header,omitempty"`
}

// Result is the delta between a target's two most recent runs.
type Result struct {
	Target           string          `json:"target"`
	OldRunID         int64           `json:"old_run_id"`
	NewRunID         int64           `json:"new_run_id"`
	NewFindings      []types.Finding `json:"new_findings"`
	ResolvedFindings []types.Finding `json:"resolved_findings"`
	Exposure         Exposure        `json:"exposure"`
}

// Engine computes run deltas. Pure and read-only given its run source.
type Engine struct {
	runs RunSource
}

// NewEngine returns a diff engine over the given run source.
func NewEngine(runs RunSource) *Engine {
	return &Engine{runs: runs}
}

// Diff compares the newest two runs for a target. Fewer than two stored
// runs (including an unknown target) is normal insufficient history and
// yields (nil, nil), not an error.
func (e *Engine) Diff(ctx context.Context, target string) (*Result, error) {
	runs, err := e.runs.LatestRuns(ctx, target, 2)
	if err != nil {
		return nil, fmt.Errorf("fetch runs for %s: %w", target, err)
	}
	if len(runs) < 2 {
		return nil, nil
	}
	newRun, oldRun := runs[0], runs[1]

	added, resolved := DiffFindings(oldRun.Findings, newRun.Findings)
	return &Result{
		Target:           target,
		OldRunID:         oldRun.ID,
		NewRunID:         newRun.ID,
		NewFindings:      added,
		ResolvedFindings: resolved,
		Exposure:         DiffExposure(oldRun, newRun),
	}, nil
}

func findingKey(f types.Finding) string {
	return fingerprint.Fold(f.Category) + "|" + fingerprint.Fold(f.Title)
}

// DiffFindings returns the findings new in the second list and the ones
// resolved from the first, keyed by normalized (category, title). The two
// key sets are disjoint by construction; the set comparison is independent
// of input ordering.
func DiffFindings(old, new []types.Finding) (added, resolved []types.Finding) {
	oldKeys := map[string]types.Finding{}
	for _, f := range old {
		oldKeys[findingKey(f)] = f
	}
	newKeys := map[string]types.Finding{}
	for _, f := range new {
		newKeys[findingKey(f)] = f
	}
	for k, f := range newKeys {
		if _, ok := oldKeys[k]; !ok {
			added = append(added, f)
		}
	}
	for k, f := range oldKeys {
		if _, ok := newKeys[k]; !ok {
			resolved = append(resolved, f)
		}
	}
	sortForPresentation(added)
	sortForPresentation(resolved)
	return added, resolved
}

// sortForPresentation orders findings by severity descending with title as
// the deterministic tie-break.
func sortForPresentation(fs []types.Finding) {
	sort.Slice(fs, func(i, j int) bool {
		if fs[i].Severity != fs[j].Severity {
			return fs[i].Severity > fs[j].Severity
		}
		return fs[i].Title < fs[j].Title
	})
}

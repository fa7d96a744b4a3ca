// Package portal is the read/write entry point consumed by the UI: run
// ingestion, issue listing and updates, drift, and the posture dashboard.
// It is thin wiring over the engines; the hard invariants live below it.
package portal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/automatesecurity/masat/internal/audit"
	"github.com/automatesecurity/masat/internal/drift"
	"github.com/automatesecurity/masat/internal/issues"
	"github.com/automatesecurity/masat/internal/trend"
	"github.com/automatesecurity/masat/internal/types"
)

// ErrValidation marks malformed caller input. Never retried automatically.
var ErrValidation = errors.New("invalid input")

// RunRepo is the append-only run repository consumed by the portal.
type RunRepo interface {
	AppendRun(ctx context.Context, run types.Run) (types.Run, error)
	LatestRuns(ctx context.Context, target string, n int) ([]types.Run, error)
	RunByID(ctx context.Context, id int64) (types.Run, error)
	Targets(ctx context.Context) ([]string, error)
	CountRunsSince(ctx context.Context, since time.Time) (int, error)
}

// Service wires the issue store, run repository, diff engine, and trend
// aggregator behind one facade.
type Service struct {
	issues     *issues.Service
	runs       RunRepo
	drift      *drift.Engine
	trend      *trend.Aggregator
	audit      *audit.Log
	driftLimit int
	now        func() time.Time
}

// Options tune optional service behavior.
type Options struct {
	// DriftLimit bounds concurrent per-target diffs in DriftAll.
	// Zero means a conservative default.
	DriftLimit int
	// Audit, when set, records manual issue transitions.
	Audit *audit.Log
}

// New assembles the facade.
func New(issueSvc *issues.Service, runs RunRepo, opts Options) *Service {
	limit := opts.DriftLimit
	if limit <= 0 {
		limit = 8
	}
	return &Service{
		issues:     issueSvc,
		runs:       runs,
		drift:      drift.NewEngine(runs),
		audit:      opts.Audit,
		driftLimit: limit,
		now:        time.Now,
	}
}

// Ingest stores a completed run and upserts its issues. The run is
// validated first; the issue upserts apply atomically, so a failure here
// never reports success over partial state.
func (s *Service) Ingest(ctx context.Context, run types.Run) (types.Run, error) {
	if run.Target == "" {
		return types.Run{}, fmt.Errorf("%w: run target is required", ErrValidation)
	}
	if run.Timestamp.IsZero() {
		run.Timestamp = s.now()
	}
	stored, err := s.runs.AppendRun(ctx, run)
	if err != nil {
		return types.Run{}, fmt.Errorf("store run: %w", err)
	}
	if err := s.issues.Ingest(ctx, stored); err != nil {
		return types.Run{}, err
	}
	return stored, nil
}

// Issues returns a filtered, paginated issue listing. Filters are explicit
// per-request values (the caller's persona defaults resolve to them before
// this call).
func (s *Service) Issues(ctx context.Context, status, owner *string, limit, offset int) (issues.Page, error) {
	var f issues.Filter
	if status != nil && *status != "" {
		st, err := types.ParseStatus(*status)
		if err != nil {
			return issues.Page{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		f.Status = &st
	}
	if owner != nil && *owner != "" {
		f.Owner = owner
	}
	if limit <= 0 {
		limit = 30
	}
	if limit > 500 {
		limit = 500
	}
	if offset < 0 {
		offset = 0
	}
	return s.issues.List(ctx, f, limit, offset)
}

// UpdateIssue applies a manual status/owner change. An optional expected
// version makes the optimistic concurrency window span the caller's earlier
// read: a write that landed in between surfaces as a conflict carrying the
// current stored issue.
func (s *Service) UpdateIssue(ctx context.Context, fp string, status, owner *string, expectVersion *int64) (types.Issue, error) {
	if fp == "" {
		return types.Issue{}, fmt.Errorf("%w: fingerprint is required", ErrValidation)
	}
	if status == nil && owner == nil {
		return types.Issue{}, fmt.Errorf("%w: nothing to update", ErrValidation)
	}
	var st *types.Status
	if status != nil {
		parsed, err := types.ParseStatus(*status)
		if err != nil {
			return types.Issue{}, fmt.Errorf("%w: %v", ErrValidation, err)
		}
		st = &parsed
	}

	prior, err := s.issues.Get(ctx, fp)
	if err != nil {
		return types.Issue{}, err
	}
	if expectVersion != nil && *expectVersion != prior.Version {
		return types.Issue{}, &issues.ConflictError{Current: prior}
	}
	updated, err := s.issues.UpdateFrom(ctx, prior, st, owner)
	if err != nil {
		return types.Issue{}, err
	}

	if s.audit != nil {
		rec := audit.ChangeRecord{
			Timestamp:   s.now(),
			Fingerprint: fp,
			FromStatus:  prior.Status,
			ToStatus:    updated.Status,
			Owner:       updated.Owner,
			Version:     updated.Version,
		}
		if err := s.audit.Record(rec); err != nil {
			// The update itself is durable; a failed audit append is not
			// worth failing the caller over.
			log.Printf("audit append failed for %s: %v", fp, err)
		}
	}
	return updated, nil
}

// Diff compares the newest two runs for a target. A nil result means
// insufficient history, which is normal.
func (s *Service) Diff(ctx context.Context, target string) (*drift.Result, error) {
	if target == "" {
		return nil, fmt.Errorf("%w: target is required", ErrValidation)
	}
	return s.drift.Diff(ctx, target)
}

// DriftAll computes drift for many targets with bounded concurrency.
// Targets with insufficient history are omitted from the result.
func (s *Service) DriftAll(ctx context.Context, targets []string) (map[string]*drift.Result, error) {
	results := make([]*drift.Result, len(targets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.driftLimit)
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			res, err := s.drift.Diff(gctx, target)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	out := map[string]*drift.Result{}
	for i, target := range targets {
		if results[i] != nil {
			out[target] = results[i]
		}
	}
	return out, nil
}

// Run fetches a stored run by id.
func (s *Service) Run(ctx context.Context, id int64) (types.Run, error) {
	return s.runs.RunByID(ctx, id)
}

// Targets lists targets with stored run history.
func (s *Service) Targets(ctx context.Context) ([]string, error) {
	return s.runs.Targets(ctx)
}

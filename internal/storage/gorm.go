package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/automatesecurity/masat/internal/issues"
	"github.com/automatesecurity/masat/internal/types"
)

type issueRow struct {
	Fingerprint     string `gorm:"primaryKey;size:64"`
	Asset           string `gorm:"size:512;not null"`
	Category        string `gorm:"size:64;not null"`
	Title           string `gorm:"size:512;not null"`
	Severity        int    `gorm:"not null"`
	Status          string `gorm:"size:32;not null;index"`
	Owner           string `gorm:"size:128"`
	Environment     string `gorm:"size:64"`
	FirstSeenTS     int64  `gorm:"not null"`
	LastSeenTS      int64  `gorm:"not null;index"`
	LastRunID       int64  `gorm:"not null"`
	StatusUpdatedTS int64  `gorm:"not null;default:0"`
	ResolvedTS      int64  `gorm:"not null;default:0"`
	ReopenedCount   int    `gorm:"not null;default:0"`
	Remediation     string `gorm:"type:text"`
	Details         string `gorm:"type:text"`
	Version         int64  `gorm:"not null"`
}

func (issueRow) TableName() string { return "issues" }

type runRow struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	TS           int64  `gorm:"not null;index:idx_runs_target_ts,priority:2"`
	Target       string `gorm:"size:512;not null;index:idx_runs_target_ts,priority:1"`
	ScansJSON    string `gorm:"type:text;not null"`
	FindingsJSON string `gorm:"type:text;not null"`
	ResultsJSON  string `gorm:"type:text"`
}

func (runRow) TableName() string { return "runs" }

type snapshotRow struct {
	TS             int64  `gorm:"primaryKey"`
	Score          int    `gorm:"not null"`
	CategoriesJSON string `gorm:"type:text;not null"`
	SeveritiesJSON string `gorm:"type:text;not null"`
	OpenPortsTotal int    `gorm:"not null"`
	CoveragePct    int    `gorm:"not null"`
}

func (snapshotRow) TableName() string { return "posture_snapshots" }

// Gorm is the SQLite-backed store.
type Gorm struct {
	db *gorm.DB
}

// OpenGorm opens (and migrates) the SQLite database at path.
func OpenGorm(path string) (*Gorm, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open db %s: %w", path, err)
	}
	if err := db.AutoMigrate(&issueRow{}, &runRow{}, &snapshotRow{}); err != nil {
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	return &Gorm{db: db}, nil
}

func toIssueRow(is types.Issue) issueRow {
	return issueRow{
		Fingerprint:     is.Fingerprint,
		Asset:           is.Asset,
		Category:        is.Category,
		Title:           is.Title,
		Severity:        is.Severity,
		Status:          string(is.Status),
		Owner:           is.Owner,
		Environment:     is.Environment,
		FirstSeenTS:     is.FirstSeen.Unix(),
		LastSeenTS:      is.LastSeen.Unix(),
		LastRunID:       is.LastRunID,
		StatusUpdatedTS: unixOrZero(is.StatusUpdated),
		ResolvedTS:      unixOrZero(is.Resolved),
		ReopenedCount:   is.ReopenedCount,
		Remediation:     is.Remediation,
		Details:         is.Details,
		Version:         is.Version,
	}
}

func fromIssueRow(r issueRow) types.Issue {
	return types.Issue{
		Fingerprint:   r.Fingerprint,
		Asset:         r.Asset,
		Category:      r.Category,
		Title:         r.Title,
		Severity:      r.Severity,
		Status:        types.Status(r.Status),
		Owner:         r.Owner,
		Environment:   r.Environment,
		FirstSeen:     time.Unix(r.FirstSeenTS, 0).UTC(),
		LastSeen:      time.Unix(r.LastSeenTS, 0).UTC(),
		LastRunID:     r.LastRunID,
		StatusUpdated: timeOrZero(r.StatusUpdatedTS),
		Resolved:      timeOrZero(r.ResolvedTS),
		ReopenedCount: r.ReopenedCount,
		Remediation:   r.Remediation,
		Details:       r.Details,
		Version:       r.Version,
	}
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

// Get implements issues.Store.
func (g *Gorm) Get(ctx context.Context, fingerprint string) (types.Issue, error) {
	var row issueRow
	err := g.db.WithContext(ctx).First(&row, "fingerprint = ?", fingerprint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Issue{}, issues.ErrNotFound
	}
	if err != nil {
		return types.Issue{}, fmt.Errorf("get issue: %w", err)
	}
	return fromIssueRow(row), nil
}

func applyFilter(q *gorm.DB, f issues.Filter) *gorm.DB {
	if f.Status != nil {
		q = q.Where("status = ?", string(*f.Status))
	}
	if f.Owner != nil {
		q = q.Where("owner = ?", *f.Owner)
	}
	return q
}

// List implements issues.Store.
func (g *Gorm) List(ctx context.Context, f issues.Filter, limit, offset int) ([]types.Issue, int, error) {
	var total int64
	if err := applyFilter(g.db.WithContext(ctx).Model(&issueRow{}), f).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count issues: %w", err)
	}
	q := applyFilter(g.db.WithContext(ctx), f).
		Order("severity DESC, last_seen_ts DESC, fingerprint ASC").
		Offset(offset)
	if limit > 0 {
		q = q.Limit(limit)
	}
	var rows []issueRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("list issues: %w", err)
	}
	out := make([]types.Issue, len(rows))
	for i, r := range rows {
		out[i] = fromIssueRow(r)
	}
	return out, int(total), nil
}

// Stats implements issues.Store.
func (g *Gorm) Stats(ctx context.Context) (issues.Stats, error) {
	terminal := []string{
		string(types.StatusFixed), string(types.StatusAccepted), string(types.StatusFalsePositive),
	}
	var open, owned int64
	q := g.db.WithContext(ctx).Model(&issueRow{}).Where("status NOT IN ?", terminal)
	if err := q.Count(&open).Error; err != nil {
		return issues.Stats{}, fmt.Errorf("count open issues: %w", err)
	}
	q = g.db.WithContext(ctx).Model(&issueRow{}).Where("status NOT IN ? AND owner <> ''", terminal)
	if err := q.Count(&owned).Error; err != nil {
		return issues.Stats{}, fmt.Errorf("count owned issues: %w", err)
	}
	return issues.Stats{Open: int(open), OpenOwned: int(owned)}, nil
}

type gormTx struct {
	tx *gorm.DB
}

func (t gormTx) Get(fingerprint string) (types.Issue, error) {
	var row issueRow
	err := t.tx.First(&row, "fingerprint = ?", fingerprint).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Issue{}, issues.ErrNotFound
	}
	if err != nil {
		return types.Issue{}, fmt.Errorf("get issue: %w", err)
	}
	return fromIssueRow(row), nil
}

// Put writes one issue version. Creations insert through the primary-key
// upsert; rewrites are compare-and-swap on the prior version so a racing
// writer surfaces as a conflict instead of a lost update.
func (t gormTx) Put(is types.Issue) error {
	row := toIssueRow(is)
	if is.Version <= 1 {
		if err := t.tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
			return fmt.Errorf("create issue: %w", err)
		}
		return nil
	}
	res := t.tx.Model(&issueRow{}).
		Where("fingerprint = ? AND version = ?", is.Fingerprint, is.Version-1).
		Select("*").
		Updates(row)
	if res.Error != nil {
		return fmt.Errorf("update issue: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		cur, err := t.Get(is.Fingerprint)
		if err != nil {
			return err
		}
		return &issues.ConflictError{Current: cur}
	}
	return nil
}

// Atomically implements issues.Store using one database transaction.
func (g *Gorm) Atomically(ctx context.Context, fn func(tx issues.Tx) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(gormTx{tx: tx})
	})
}

// AppendRun stores a run; SQLite assigns the monotonic id.
func (g *Gorm) AppendRun(ctx context.Context, run types.Run) (types.Run, error) {
	scans, err := json.Marshal(run.Scans)
	if err != nil {
		return types.Run{}, fmt.Errorf("encode scans: %w", err)
	}
	findings, err := json.Marshal(run.Findings)
	if err != nil {
		return types.Run{}, fmt.Errorf("encode findings: %w", err)
	}
	row := runRow{
		TS:           run.Timestamp.Unix(),
		Target:       run.Target,
		ScansJSON:    string(scans),
		FindingsJSON: string(findings),
		ResultsJSON:  run.Results,
	}
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		return types.Run{}, fmt.Errorf("store run: %w", err)
	}
	run.ID = row.ID
	return run, nil
}

func fromRunRow(r runRow) (types.Run, error) {
	run := types.Run{
		ID:        r.ID,
		Target:    r.Target,
		Timestamp: time.Unix(r.TS, 0).UTC(),
		Results:   r.ResultsJSON,
	}
	if r.ScansJSON != "" {
		if err := json.Unmarshal([]byte(r.ScansJSON), &run.Scans); err != nil {
			return run, fmt.Errorf("decode scans for run %d: %w", r.ID, err)
		}
	}
	if r.FindingsJSON != "" {
		if err := json.Unmarshal([]byte(r.FindingsJSON), &run.Findings); err != nil {
			return run, fmt.Errorf("decode findings for run %d: %w", r.ID, err)
		}
	}
	return run, nil
}

// LatestRuns returns up to n runs for a target ordered by (ts, id)
// descending.
func (g *Gorm) LatestRuns(ctx context.Context, target string, n int) ([]types.Run, error) {
	q := g.db.WithContext(ctx).Where("target = ?", target).Order("ts DESC, id DESC")
	if n > 0 {
		q = q.Limit(n)
	}
	var rows []runRow
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]types.Run, 0, len(rows))
	for _, r := range rows {
		run, err := fromRunRow(r)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, nil
}

// RunByID fetches a single run.
func (g *Gorm) RunByID(ctx context.Context, id int64) (types.Run, error) {
	var row runRow
	err := g.db.WithContext(ctx).First(&row, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return types.Run{}, ErrRunNotFound
	}
	if err != nil {
		return types.Run{}, fmt.Errorf("get run: %w", err)
	}
	return fromRunRow(row)
}

// Targets returns the distinct targets with at least one stored run.
func (g *Gorm) Targets(ctx context.Context) ([]string, error) {
	var out []string
	err := g.db.WithContext(ctx).Model(&runRow{}).
		Distinct("target").Order("target ASC").Pluck("target", &out).Error
	if err != nil {
		return nil, fmt.Errorf("list targets: %w", err)
	}
	return out, nil
}

// CountRunsSince counts runs with a timestamp at or after since.
func (g *Gorm) CountRunsSince(ctx context.Context, since time.Time) (int, error) {
	var n int64
	err := g.db.WithContext(ctx).Model(&runRow{}).Where("ts >= ?", since.Unix()).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count runs: %w", err)
	}
	return int(n), nil
}

// AppendSnapshot stores an immutable posture snapshot keyed by timestamp.
func (g *Gorm) AppendSnapshot(ctx context.Context, snap types.PostureSnapshot) error {
	cats, err := json.Marshal(snap.ScoreCategories)
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}
	sevs, err := json.Marshal(snap.FindingsBySeverity)
	if err != nil {
		return fmt.Errorf("encode severities: %w", err)
	}
	row := snapshotRow{
		TS:             snap.TS.Unix(),
		Score:          snap.Score,
		CategoriesJSON: string(cats),
		SeveritiesJSON: string(sevs),
		OpenPortsTotal: snap.OpenPortsTotal,
		CoveragePct:    snap.CoveragePct,
	}
	// Snapshots are append-only; a same-second evaluation keeps the first
	// write.
	err = g.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("store snapshot: %w", err)
	}
	return nil
}

// NearestBefore returns the snapshot closest to but not after cutoff, or
// nil when no snapshot is that old.
func (g *Gorm) NearestBefore(ctx context.Context, cutoff time.Time) (*types.PostureSnapshot, error) {
	var row snapshotRow
	err := g.db.WithContext(ctx).Where("ts <= ?", cutoff.Unix()).Order("ts DESC").First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get snapshot: %w", err)
	}
	snap := types.PostureSnapshot{
		TS:             time.Unix(row.TS, 0).UTC(),
		Score:          row.Score,
		OpenPortsTotal: row.OpenPortsTotal,
		CoveragePct:    row.CoveragePct,
	}
	if err := json.Unmarshal([]byte(row.CategoriesJSON), &snap.ScoreCategories); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	if err := json.Unmarshal([]byte(row.SeveritiesJSON), &snap.FindingsBySeverity); err != nil {
		return nil, fmt.Errorf("decode severities: %w", err)
	}
	return &snap, nil
}

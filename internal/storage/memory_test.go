package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automatesecurity/masat/internal/issues"
	"github.com/automatesecurity/masat/internal/types"
)

func TestMemoryAtomicallyDiscardsOnError(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	boom := errors.New("boom")

	err := m.Atomically(ctx, func(tx issues.Tx) error {
		require.NoError(t, tx.Put(types.Issue{Fingerprint: "fp1", Status: types.StatusOpen, Version: 1}))
		require.NoError(t, tx.Put(types.Issue{Fingerprint: "fp2", Status: types.StatusOpen, Version: 1}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = m.Get(ctx, "fp1")
	assert.ErrorIs(t, err, issues.ErrNotFound, "a failed block leaves no partial writes")
	_, err = m.Get(ctx, "fp2")
	assert.ErrorIs(t, err, issues.ErrNotFound)
}

func TestMemoryAtomicallyReadsOwnWrites(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	err := m.Atomically(ctx, func(tx issues.Tx) error {
		if err := tx.Put(types.Issue{Fingerprint: "fp1", Severity: 3, Version: 1}); err != nil {
			return err
		}
		is, err := tx.Get("fp1")
		if err != nil {
			return err
		}
		is.Severity = 8
		is.Version++
		return tx.Put(is)
	})
	require.NoError(t, err)

	is, err := m.Get(ctx, "fp1")
	require.NoError(t, err)
	assert.Equal(t, 8, is.Severity)
	assert.Equal(t, int64(2), is.Version)
}

func TestMemoryAtomicallyHonorsCancelledContext(t *testing.T) {
	m := NewMemory()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := m.Atomically(ctx, func(tx issues.Tx) error {
		return tx.Put(types.Issue{Fingerprint: "fp1", Version: 1})
	})
	assert.ErrorIs(t, err, context.Canceled)
	_, err = m.Get(context.Background(), "fp1")
	assert.ErrorIs(t, err, issues.ErrNotFound)
}

func TestMemoryRunOrderingAndIDs(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	r1, err := m.AppendRun(ctx, types.Run{Target: "a.com", Timestamp: ts})
	require.NoError(t, err)
	r2, err := m.AppendRun(ctx, types.Run{Target: "a.com", Timestamp: ts.Add(time.Hour)})
	require.NoError(t, err)
	_, err = m.AppendRun(ctx, types.Run{Target: "b.com", Timestamp: ts.Add(2 * time.Hour)})
	require.NoError(t, err)

	assert.Equal(t, int64(1), r1.ID)
	assert.Equal(t, int64(2), r2.ID)

	runs, err := m.LatestRuns(ctx, "a.com", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, int64(2), runs[0].ID, "newest first")
	assert.Equal(t, int64(1), runs[1].ID)

	got, err := m.RunByID(ctx, r1.ID)
	require.NoError(t, err)
	assert.Equal(t, "a.com", got.Target)

	_, err = m.RunByID(ctx, 99)
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestMemoryTargetsAndRunCounts(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for _, r := range []types.Run{
		{Target: "b.com", Timestamp: ts},
		{Target: "a.com", Timestamp: ts.Add(time.Hour)},
		{Target: "b.com", Timestamp: ts.Add(2 * time.Hour)},
	} {
		_, err := m.AppendRun(ctx, r)
		require.NoError(t, err)
	}

	targets, err := m.Targets(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.com", "b.com"}, targets)

	n, err := m.CountRunsSince(ctx, ts.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 2, n, "the boundary timestamp is included")
}

func TestMemoryListPaging(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	seed := []types.Issue{
		{Fingerprint: "aaa", Severity: 5, LastSeen: ts, Version: 1},
		{Fingerprint: "bbb", Severity: 5, LastSeen: ts, Version: 1},
		{Fingerprint: "ccc", Severity: 9, LastSeen: ts, Version: 1},
	}
	err := m.Atomically(ctx, func(tx issues.Tx) error {
		for _, is := range seed {
			if err := tx.Put(is); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	items, total, err := m.List(ctx, issues.Filter{}, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, items, 2)
	assert.Equal(t, "ccc", items[0].Fingerprint)
	assert.Equal(t, "aaa", items[1].Fingerprint, "fingerprint breaks severity/last-seen ties")

	items, _, err = m.List(ctx, issues.Filter{}, 2, 4)
	require.NoError(t, err)
	assert.Empty(t, items, "offset past the end is an empty page")
}

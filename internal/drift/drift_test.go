package drift_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automatesecurity/masat/internal/drift"
	"github.com/automatesecurity/masat/internal/storage"
	"github.com/automatesecurity/masat/internal/types"
)

var t0 = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func portFinding(port, service string) types.Finding {
	return types.Finding{
		Category: "exposure",
		Title:    "Open port " + port,
		Severity: 3,
		Evidence: map[string]string{
			types.EvidencePort:    port,
			types.EvidenceService: service,
		},
	}
}

func TestDiffInsufficientHistory(t *testing.T) {
	store := storage.NewMemory()
	eng := drift.NewEngine(store)
	ctx := context.Background()

	res, err := eng.Diff(ctx, "unknown.example")
	require.NoError(t, err)
	assert.Nil(t, res, "unknown target is insufficient history, not an error")

	_, err = store.AppendRun(ctx, types.Run{Target: "a.com", Timestamp: t0})
	require.NoError(t, err)
	res, err = eng.Diff(ctx, "a.com")
	require.NoError(t, err)
	assert.Nil(t, res, "a single run cannot be diffed")
}

func TestDiffNewAndResolvedAreDisjoint(t *testing.T) {
	store := storage.NewMemory()
	eng := drift.NewEngine(store)
	ctx := context.Background()

	_, err := store.AppendRun(ctx, types.Run{Target: "a.com", Timestamp: t0, Findings: []types.Finding{
		{Category: "web", Title: "Missing HSTS", Severity: 6},
		{Category: "tls", Title: "Weak cipher", Severity: 5},
	}})
	require.NoError(t, err)
	_, err = store.AppendRun(ctx, types.Run{Target: "a.com", Timestamp: t0.Add(time.Hour), Findings: []types.Finding{
		{Category: "web", Title: "  MISSING hsts  ", Severity: 6}, // same key after normalization
		{Category: "web", Title: "Directory listing", Severity: 4},
	}})
	require.NoError(t, err)

	res, err := eng.Diff(ctx, "a.com")
	require.NoError(t, err)
	require.NotNil(t, res)

	assert.Equal(t, int64(1), res.OldRunID)
	assert.Equal(t, int64(2), res.NewRunID)
	require.Len(t, res.NewFindings, 1)
	assert.Equal(t, "Directory listing", res.NewFindings[0].Title)
	require.Len(t, res.ResolvedFindings, 1)
	assert.Equal(t, "Weak cipher", res.ResolvedFindings[0].Title)
}

func TestDiffPortExposure(t *testing.T) {
	store := storage.NewMemory()
	eng := drift.NewEngine(store)
	ctx := context.Background()

	_, err := store.AppendRun(ctx, types.Run{Target: "a.com", Timestamp: t0, Findings: []types.Finding{
		portFinding("80", "http"),
		portFinding("443", "https"),
	}})
	require.NoError(t, err)
	_, err = store.AppendRun(ctx, types.Run{Target: "a.com", Timestamp: t0.Add(time.Hour), Findings: []types.Finding{
		portFinding("80", "http"),
		portFinding("443", "https"),
		portFinding("22", "ssh"),
	}})
	require.NoError(t, err)

	res, err := eng.Diff(ctx, "a.com")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, []string{"22"}, res.Exposure.AddedPorts)
	assert.Empty(t, res.Exposure.RemovedPorts)
	assert.False(t, res.Exposure.ServerHeaderChanged)
}

func TestDiffServerHeaderChange(t *testing.T) {
	store := storage.NewMemory()
	eng := drift.NewEngine(store)
	ctx := context.Background()

	withHeader := func(h string) types.Finding {
		return types.Finding{
			Category: "web", Title: "Banner", Severity: 1,
			Evidence: map[string]string{types.EvidenceServerHeader: h},
		}
	}
	_, err := store.AppendRun(ctx, types.Run{Target: "a.com", Timestamp: t0, Findings: []types.Finding{withHeader("nginx/1.24")}})
	require.NoError(t, err)
	_, err = store.AppendRun(ctx, types.Run{Target: "a.com", Timestamp: t0.Add(time.Hour), Findings: []types.Finding{withHeader("nginx/1.26")}})
	require.NoError(t, err)

	res, err := eng.Diff(ctx, "a.com")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Exposure.ServerHeaderChanged)
	assert.Equal(t, "nginx/1.24", res.Exposure.OldServerHeader)
	assert.Equal(t, "nginx/1.26", res.Exposure.NewServerHeader)
}

func TestDiffTimestampTieBreaksOnRunID(t *testing.T) {
	store := storage.NewMemory()
	eng := drift.NewEngine(store)
	ctx := context.Background()

	// Identical timestamps: the higher id is the newer run.
	_, err := store.AppendRun(ctx, types.Run{Target: "a.com", Timestamp: t0, Findings: []types.Finding{
		{Category: "web", Title: "Old only", Severity: 2},
	}})
	require.NoError(t, err)
	_, err = store.AppendRun(ctx, types.Run{Target: "a.com", Timestamp: t0, Findings: []types.Finding{
		{Category: "web", Title: "New only", Severity: 2},
	}})
	require.NoError(t, err)

	res, err := eng.Diff(ctx, "a.com")
	require.NoError(t, err)
	require.NotNil(t, res)
	assert.Equal(t, int64(1), res.OldRunID)
	assert.Equal(t, int64(2), res.NewRunID)
	require.Len(t, res.NewFindings, 1)
	assert.Equal(t, "New only", res.NewFindings[0].Title)
}

func TestDiffFindingsSortedBySeverity(t *testing.T) {
	added, resolved := drift.DiffFindings(nil, []types.Finding{
		{Category: "web", Title: "B", Severity: 4},
		{Category: "web", Title: "A", Severity: 4},
		{Category: "web", Title: "C", Severity: 9},
	})
	require.Empty(t, resolved)
	require.Len(t, added, 3)
	assert.Equal(t, "C", added[0].Title)
	assert.Equal(t, "A", added[1].Title)
	assert.Equal(t, "B", added[2].Title)
}

func TestOpenPortsDistinctAndOrdered(t *testing.T) {
	run := types.Run{Findings: []types.Finding{
		portFinding("443", "https"),
		portFinding("80", "http"),
		portFinding("443", "https"), // duplicate evidence for the same port
		portFinding("8080", "http-alt"),
	}}
	ports := drift.OpenPorts(run)
	require.Len(t, ports, 3)
	assert.Equal(t, "80", ports[0].Port)
	assert.Equal(t, "443", ports[1].Port)
	assert.Equal(t, "8080", ports[2].Port)
	assert.Equal(t, "http-alt", ports[2].Service)
}

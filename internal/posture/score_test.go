package posture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automatesecurity/masat/internal/types"
)

func TestWeightsSumToOne(t *testing.T) {
	var sum float64
	for _, w := range Weights() {
		sum += w
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestScoreBounds(t *testing.T) {
	cases := []struct {
		name string
		m    Metrics
	}{
		{"zero metrics", Metrics{}},
		{"saturated backlog", Metrics{
			TotalTargets:      50,
			TargetsScanned30d: 1,
			FindingsBySeverity: map[string]int{
				types.BucketCritical: 500,
				types.BucketHigh:     500,
				types.BucketMedium:   500,
				types.BucketLow:      500,
			},
			OpenPortsTotal: 10000,
		}},
		{"healthy estate", Metrics{
			TotalTargets:       10,
			TargetsScanned30d:  10,
			CoveragePct:        100,
			Runs24h:            8,
			Runs7d:             60,
			FindingsBySeverity: map[string]int{},
			OpenPortsTotal:     4,
			OwnerCoveragePct:   100,
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			card := Score(tc.m)
			assert.GreaterOrEqual(t, card.Score, 0)
			assert.LessOrEqual(t, card.Score, 100)
			require.Len(t, card.Categories, 5)
			for name, v := range card.Categories {
				assert.GreaterOrEqualf(t, v, 0, "category %s", name)
				assert.LessOrEqualf(t, v, 100, "category %s", name)
			}
			assert.Equal(t, GradeFor(card.Score), card.Grade)
		})
	}
}

func TestVulnerabilityScoreDegradesSmoothly(t *testing.T) {
	clean := scoreVulnerability(map[string]int{})
	assert.Equal(t, 100, clean)

	one := scoreVulnerability(map[string]int{types.BucketCritical: 1})
	many := scoreVulnerability(map[string]int{types.BucketCritical: 20})
	flood := scoreVulnerability(map[string]int{types.BucketCritical: 200})

	assert.Less(t, one, clean)
	assert.Less(t, many, one)
	assert.Less(t, flood, many)
	assert.Greater(t, flood, 0, "even a flood of criticals never pins the category to zero")
}

func TestVulnerabilitySeverityOrdering(t *testing.T) {
	crit := scoreVulnerability(map[string]int{types.BucketCritical: 3})
	high := scoreVulnerability(map[string]int{types.BucketHigh: 3})
	med := scoreVulnerability(map[string]int{types.BucketMedium: 3})
	low := scoreVulnerability(map[string]int{types.BucketLow: 3})

	assert.Less(t, crit, high)
	assert.Less(t, high, med)
	assert.Less(t, med, low)
}

func TestExposureNormalizedPerTarget(t *testing.T) {
	// 40 open ports is alarming for one host and routine for eighty.
	small := scoreExposure(40, 1)
	large := scoreExposure(40, 80)
	assert.Less(t, small, large)

	// Zero scanned targets must not divide by zero.
	assert.Equal(t, scoreExposure(3, 0), scoreExposure(3, 1))
}

func TestGradeThresholds(t *testing.T) {
	cases := []struct {
		score int
		grade string
	}{
		{100, "A"}, {90, "A"},
		{89, "B"}, {75, "B"},
		{74, "C"}, {60, "C"},
		{59, "D"}, {40, "D"},
		{39, "F"}, {0, "F"},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.grade, GradeFor(tc.score), "score %d", tc.score)
	}
}

func TestGradeMonotonic(t *testing.T) {
	prev := GradeFor(0)
	for s := 1; s <= 100; s++ {
		g := GradeFor(s)
		assert.LessOrEqualf(t, g, prev, "grade must never worsen as score rises (score %d)", s)
		prev = g
	}
}

func TestTriageScoreBand(t *testing.T) {
	assert.Equal(t, 30, scoreTriage(0))
	assert.Equal(t, 95, scoreTriage(100))
	assert.Equal(t, 63, scoreTriage(50))
}

func TestScoreIsPure(t *testing.T) {
	m := Metrics{
		TotalTargets:       4,
		TargetsScanned30d:  3,
		CoveragePct:        75,
		Runs7d:             5,
		FindingsBySeverity: map[string]int{types.BucketHigh: 2},
		OpenPortsTotal:     6,
		OwnerCoveragePct:   50,
	}
	first := Score(m)
	second := Score(m)
	assert.Equal(t, first, second)
}

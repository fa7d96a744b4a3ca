// Package posture turns aggregate scan metrics into a 0-100 weighted score
// with a category breakdown and letter grade. Scoring is a pure function of
// its inputs; callers aggregate the metrics from the issue store and run
// repository.
package posture

import (
	"math"

	"github.com/automatesecurity/masat/internal/types"
)

// Metrics are the pre-aggregated inputs to scoring. The scorer performs no
// I/O.
type Metrics struct {
	TotalTargets       int            `json:"total_targets"`
	TargetsScanned30d  int            `json:"targets_scanned_30d"`
	CoveragePct        int            `json:"coverage_pct"`
	Runs24h            int            `json:"runs_24h"`
	Runs7d             int            `json:"runs_7d"`
	FindingsBySeverity map[string]int `json:"findings_by_severity"`
	OpenPortsTotal     int            `json:"open_ports_total"`
	OwnerCoveragePct   int            `json:"owner_coverage_pct"`
}

// Scorecard is the scoring output. Score and every category score lie in
// [0, 100]; the weights always sum to 1.0.
type Scorecard struct {
	Score      int                `json:"score"`
	Grade      string             `json:"grade"`
	Categories map[string]int     `json:"category_scores"`
	Weights    map[string]float64 `json:"weights"`
}

// Category names.
const (
	CatVulnerability = "vulnerability"
	CatExposure      = "exposure"
	CatCoverage      = "coverage"
	CatActivity      = "activity"
	CatTriage        = "triage"
)

// weights bias toward vulnerabilities and exposure, then coverage. They sum
// to 1.0.
var weights = map[string]float64{
	CatVulnerability: 0.40,
	CatExposure:      0.25,
	CatCoverage:      0.15,
	CatActivity:      0.10,
	CatTriage:        0.10,
}

// Weights returns a copy of the fixed category weight table.
func Weights() map[string]float64 {
	out := make(map[string]float64, len(weights))
	for k, v := range weights {
		out[k] = v
	}
	return out
}

// Score computes the weighted posture score for the given metrics.
func Score(m Metrics) Scorecard {
	cats := map[string]int{
		CatVulnerability: scoreVulnerability(m.FindingsBySeverity),
		CatExposure:      scoreExposure(m.OpenPortsTotal, m.TargetsScanned30d),
		CatCoverage:      scoreCoverage(m.CoveragePct),
		CatActivity:      scoreActivity(m.Runs7d),
		CatTriage:        scoreTriage(m.OwnerCoveragePct),
	}
	var acc float64
	for name, w := range weights {
		acc += float64(clamp(cats[name])) * w
	}
	score := clamp(int(math.Round(acc)))
	return Scorecard{
		Score:      score,
		Grade:      GradeFor(score),
		Categories: cats,
		Weights:    Weights(),
	}
}

// GradeFor maps a score to its letter grade. Monotonic: a higher score
// never yields a worse grade.
func GradeFor(score int) string {
	switch {
	case score >= 90:
		return "A"
	case score >= 75:
		return "B"
	case score >= 60:
		return "C"
	case score >= 40:
		return "D"
	default:
		return "F"
	}
}

// scoreVulnerability penalizes by severity-weighted finding count with
// diminishing returns, so a large backlog degrades the score smoothly
// instead of collapsing straight to zero.
func scoreVulnerability(bySeverity map[string]int) int {
	penalty := bySeverity[types.BucketCritical]*18 +
		bySeverity[types.BucketHigh]*8 +
		bySeverity[types.BucketMedium]*3 +
		bySeverity[types.BucketLow]*1
	return clamp(int(math.Round(100 * 60 / (60 + float64(penalty)))))
}

// scoreExposure rates open port count normalized by the number of scanned
// targets, so large inventories are not over-penalized.
func scoreExposure(openPortsTotal, targetsScanned30d int) int {
	denom := targetsScanned30d
	if denom < 1 {
		denom = 1
	}
	perTarget := float64(openPortsTotal) / float64(denom)
	switch {
	case perTarget <= 0.5:
		return 95
	case perTarget <= 1.0:
		return 88
	case perTarget <= 2.0:
		return 78
	case perTarget <= 4.0:
		return 62
	case perTarget <= 7.0:
		return 45
	default:
		return 30
	}
}

func scoreCoverage(coveragePct int) int {
	c := clamp(coveragePct)
	switch {
	case c >= 95:
		return 95
	case c >= 80:
		return 85
	case c >= 60:
		return 72
	case c >= 40:
		return 58
	case c >= 20:
		return 45
	default:
		return 30
	}
}

func scoreActivity(runs7d int) int {
	switch {
	case runs7d >= 50:
		return 92
	case runs7d >= 20:
		return 85
	case runs7d >= 10:
		return 78
	case runs7d >= 4:
		return 65
	case runs7d >= 1:
		return 52
	default:
		return 35
	}
}

// scoreTriage rates how much of the open backlog has an owner, mapped
// linearly onto the same 30-95 band the other threshold tables use.
func scoreTriage(ownerCoveragePct int) int {
	c := clamp(ownerCoveragePct)
	return 30 + int(math.Round(float64(c)*0.65))
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

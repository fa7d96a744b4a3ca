package types

import "time"

// Severity buckets for the 0-10 integer severity scale used by scanners.
const (
	BucketCritical = "critical"
	BucketHigh     = "high"
	BucketMedium   = "medium"
	BucketLow      = "low"
	BucketInfo     = "info"
)

// SeverityBucket maps an integer severity to its named bucket.
func SeverityBucket(sev int) string {
	switch {
	case sev >= 9:
		return BucketCritical
	case sev >= 7:
		return BucketHigh
	case sev >= 4:
		return BucketMedium
	case sev >= 1:
		return BucketLow
	default:
		return BucketInfo
	}
}

// Evidence keys populated by scanners on findings that carry exposure data.
const (
	EvidencePort         = "port"
	EvidenceService      = "service"
	EvidenceVersion      = "version"
	EvidenceServerHeader = "server_header"
)

// Finding is a single raw observation produced by a scanner during one run.
// Findings are immutable once attached to a run.
type Finding struct {
	Asset       string            `json:"asset"`
	Scanner     string            `json:"scanner,omitempty"`
	Category    string            `json:"category"`
	Title       string            `json:"title"`
	Severity    int               `json:"severity"`
	Details     string            `json:"details,omitempty"`
	Remediation string            `json:"remediation,omitempty"`
	References  []string          `json:"references,omitempty"`
	Evidence    map[string]string `json:"evidence,omitempty"`
}

// Run is one immutable, timestamped scan execution against a target.
// IDs are assigned monotonically by the run repository; runs for the same
// target form a time-ordered history with (timestamp, id) as the sort key.
type Run struct {
	ID        int64     `json:"id"`
	Target    string    `json:"target"`
	Timestamp time.Time `json:"ts"`
	Scans     []string  `json:"scans"`
	Findings  []Finding `json:"findings"`
	Results   string    `json:"results,omitempty"` // raw per-scanner result blob, JSON text
}

// PortExposure is a single open port observed in one run's evidence.
type PortExposure struct {
	Port    string `json:"port"`
	Service string `json:"service,omitempty"`
	Version string `json:"version,omitempty"`
}

// PostureSnapshot is an immutable point-in-time record of posture metrics,
// appended once per scoring evaluation and used only for trend lookups.
type PostureSnapshot struct {
	TS                 time.Time      `json:"ts"`
	Score              int            `json:"score"`
	ScoreCategories    map[string]int `json:"score_categories"`
	FindingsBySeverity map[string]int `json:"findings_by_severity"`
	OpenPortsTotal     int            `json:"open_ports_total"`
	CoveragePct        int            `json:"coverage_pct"`
}

package core

import (
	"github.com/automatesecurity/masat/internal/fingerprint"
	"github.com/automatesecurity/masat/internal/posture"
	"github.com/automatesecurity/masat/internal/types"
)

// Re-export selected internal types as a stable public API surface.
// These are type aliases so external consumers can depend on a stable path.
// We can replace these with decoupled structs later without breaking callers.
type Finding = types.Finding
type Run = types.Run
type Issue = types.Issue
type PostureSnapshot = types.PostureSnapshot
type Metrics = posture.Metrics
type Scorecard = posture.Scorecard

// Fingerprint is the stable identity key for a finding: deterministic,
// case-insensitive, and whitespace-normalized over its three inputs.
func Fingerprint(asset, category, title string) string {
	return fingerprint.Key(asset, category, title)
}

// Score computes the 0-100 weighted posture score for aggregate metrics.
func Score(m Metrics) Scorecard { return posture.Score(m) }

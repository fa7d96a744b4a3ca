package types

import (
	"fmt"
	"time"
)

// Status is the triage disposition of an issue.
type Status string

const (
	StatusOpen          Status = "open"
	StatusTriaged       Status = "triaged"
	StatusInProgress    Status = "in_progress"
	StatusFixed         Status = "fixed"
	StatusAccepted      Status = "accepted"
	StatusFalsePositive Status = "false_positive"
)

// Statuses lists all valid status values in lifecycle order.
func Statuses() []Status {
	return []Status{
		StatusOpen, StatusTriaged, StatusInProgress,
		StatusFixed, StatusAccepted, StatusFalsePositive,
	}
}

// ParseStatus validates a raw status string.
func ParseStatus(s string) (Status, error) {
	for _, st := range Statuses() {
		if string(st) == s {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Terminal reports whether the status is a closed disposition. Terminal
// issues are eligible for automatic reopening when their finding reappears.
func (s Status) Terminal() bool {
	switch s {
	case StatusFixed, StatusAccepted, StatusFalsePositive:
		return true
	}
	return false
}

// Issue is the persistent, deduplicated record derived from findings that
// share a fingerprint. Exactly one issue exists per fingerprint.
//
// FirstSeen is set once at creation and never changes. LastSeen is
// monotonically non-decreasing. ReopenedCount increments only on the
// automatic terminal-to-open transition. StatusUpdated changes on every
// status transition, never on a pure "still present" touch. Version
// increments on every write and backs optimistic concurrency for manual
// updates.
type Issue struct {
	Fingerprint   string    `json:"fingerprint"`
	Asset         string    `json:"asset"`
	Category      string    `json:"category"`
	Title         string    `json:"title"`
	Severity      int       `json:"severity"`
	Status        Status    `json:"status"`
	Owner         string    `json:"owner,omitempty"`
	Environment   string    `json:"environment,omitempty"`
	FirstSeen     time.Time `json:"first_seen_ts"`
	LastSeen      time.Time `json:"last_seen_ts"`
	LastRunID     int64     `json:"last_run_id"`
	StatusUpdated time.Time `json:"status_updated_ts"`
	Resolved      time.Time `json:"resolved_ts,omitempty"` // zero until a terminal status is entered
	ReopenedCount int       `json:"reopened_count"`
	Remediation   string    `json:"remediation,omitempty"`
	Details       string    `json:"details,omitempty"`
	Version       int64     `json:"version"`
}

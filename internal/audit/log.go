// Package audit keeps an append-only JSONL record of manual issue
// transitions, so triage decisions remain reviewable after the fact.
package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/automatesecurity/masat/internal/types"
)

// ChangeRecord is one manual issue update as applied.
type ChangeRecord struct {
	Timestamp   time.Time    `json:"timestamp"`
	Fingerprint string       `json:"fingerprint"`
	FromStatus  types.Status `json:"from_status,omitempty"`
	ToStatus    types.Status `json:"to_status,omitempty"`
	Owner       string       `json:"owner,omitempty"`
	Version     int64        `json:"version"`
}

// Log appends change records to a JSONL file.
type Log struct {
	path string
}

// NewLog returns a log writing to path.
func NewLog(path string) *Log {
	return &Log{path: path}
}

// Record appends one change record.
func (l *Log) Record(rec ChangeRecord) error {
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now()
	}
	// Owner-only permissions: the log names assets and triage decisions.
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(rec); err != nil {
		return fmt.Errorf("failed to write audit record: %w", err)
	}
	return nil
}

// History returns all recorded changes, newest first. Lines that fail to
// decode are skipped rather than aborting the read.
func (l *Log) History() ([]ChangeRecord, error) {
	f, err := os.Open(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	defer f.Close()

	var records []ChangeRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec ChangeRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit log: %w", err)
	}

	for i, j := 0, len(records)-1; i < j; i, j = i+1, j-1 {
		records[i], records[j] = records[j], records[i]
	}
	return records, nil
}

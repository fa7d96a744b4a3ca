package core

import (
	"encoding/json"
	"io"
)

// MarshalRun pretty-prints a run as JSON for humans or pipelines.
func MarshalRun(w io.Writer, run Run) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(run)
}

// UnmarshalRun decodes a run payload, useful for ingestion from files.
func UnmarshalRun(r io.Reader) (Run, error) {
	var run Run
	if err := json.NewDecoder(r).Decode(&run); err != nil {
		return Run{}, err
	}
	return run, nil
}

// MarshalIssues pretty-prints issues as JSON.
func MarshalIssues(w io.Writer, items []Issue) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(items)
}

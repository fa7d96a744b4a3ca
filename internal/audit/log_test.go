package audit

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/automatesecurity/masat/internal/types"
)

func TestRecordAndHistoryNewestFirst(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l := NewLog(path)

	ts := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, l.Record(ChangeRecord{
		Timestamp: ts, Fingerprint: "fp1",
		FromStatus: types.StatusOpen, ToStatus: types.StatusTriaged,
		Owner: "alice", Version: 2,
	}))
	require.NoError(t, l.Record(ChangeRecord{
		Timestamp: ts.Add(time.Hour), Fingerprint: "fp1",
		FromStatus: types.StatusTriaged, ToStatus: types.StatusFixed,
		Owner: "alice", Version: 3,
	}))

	recs, err := l.History()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, types.StatusFixed, recs[0].ToStatus, "newest first")
	assert.Equal(t, types.StatusTriaged, recs[1].ToStatus)
	assert.Equal(t, "fp1", recs[0].Fingerprint)
}

func TestRecordFillsTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l := NewLog(path)

	require.NoError(t, l.Record(ChangeRecord{Fingerprint: "fp1", Version: 2}))
	recs, err := l.History()
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.False(t, recs[0].Timestamp.IsZero())
}

func TestHistorySkipsCorruptLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l := NewLog(path)

	require.NoError(t, l.Record(ChangeRecord{Fingerprint: "fp1", Version: 2}))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("{not json}\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.NoError(t, l.Record(ChangeRecord{Fingerprint: "fp2", Version: 1}))

	recs, err := l.History()
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "fp2", recs[0].Fingerprint)
}

func TestRecordFilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	l := NewLog(path)
	require.NoError(t, l.Record(ChangeRecord{Fingerprint: "fp1", Version: 1}))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(string(b), "\n"), "one record per line")
}

package issues

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/automatesecurity/masat/internal/types"
)

func TestLedgerStageCommitRollback(t *testing.T) {
	l := NewLedger()
	assert.False(t, l.Pending("fp1"))

	fixed := types.StatusFixed
	l.Stage("fp1", Patch{Status: &fixed})
	assert.True(t, l.Pending("fp1"))

	l.Commit("fp1")
	assert.False(t, l.Pending("fp1"))

	l.Stage("fp1", Patch{Status: &fixed})
	l.Rollback("fp1")
	assert.False(t, l.Pending("fp1"))
}

func TestLedgerOverlayLeavesInputUntouched(t *testing.T) {
	l := NewLedger()
	triaged := types.StatusTriaged
	owner := "alice"
	l.Stage("fp1", Patch{Status: &triaged, Owner: &owner})

	in := []types.Issue{
		{Fingerprint: "fp1", Status: types.StatusOpen},
		{Fingerprint: "fp2", Status: types.StatusOpen, Owner: "bob"},
	}
	out := l.Overlay(in)

	assert.Equal(t, types.StatusTriaged, out[0].Status)
	assert.Equal(t, "alice", out[0].Owner)
	assert.Equal(t, types.StatusOpen, out[1].Status, "unstaged rows pass through")
	assert.Equal(t, "bob", out[1].Owner)

	assert.Equal(t, types.StatusOpen, in[0].Status, "overlay must not mutate the input")
	assert.Empty(t, in[0].Owner)
}

func TestLedgerRestagesReplace(t *testing.T) {
	l := NewLedger()
	fixed := types.StatusFixed
	accepted := types.StatusAccepted
	l.Stage("fp1", Patch{Status: &fixed})
	l.Stage("fp1", Patch{Status: &accepted})

	out := l.Overlay([]types.Issue{{Fingerprint: "fp1", Status: types.StatusOpen, Owner: "keep"}})
	assert.Equal(t, types.StatusAccepted, out[0].Status)
	assert.Equal(t, "keep", out[0].Owner, "nil owner patch leaves the field alone")
}

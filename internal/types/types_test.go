package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseStatus(t *testing.T) {
	for _, st := range Statuses() {
		got, err := ParseStatus(string(st))
		assert.NoError(t, err)
		assert.Equal(t, st, got)
	}

	for _, bad := range []string{"", "Open", "closed", "FIXED", "wontfix"} {
		_, err := ParseStatus(bad)
		assert.Errorf(t, err, "status %q must not parse", bad)
	}
}

func TestTerminalStatuses(t *testing.T) {
	terminal := map[Status]bool{
		StatusFixed:         true,
		StatusAccepted:      true,
		StatusFalsePositive: true,
	}
	for _, st := range Statuses() {
		assert.Equalf(t, terminal[st], st.Terminal(), "status %s", st)
	}
}

func TestSeverityBucket(t *testing.T) {
	cases := []struct {
		sev  int
		want string
	}{
		{10, BucketCritical},
		{9, BucketCritical},
		{8, BucketHigh},
		{7, BucketHigh},
		{6, BucketMedium},
		{4, BucketMedium},
		{3, BucketLow},
		{1, BucketLow},
		{0, BucketInfo},
		{-1, BucketInfo},
	}
	for _, tc := range cases {
		assert.Equalf(t, tc.want, SeverityBucket(tc.sev), "severity %d", tc.sev)
	}
}

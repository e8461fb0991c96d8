package versioning

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStampVerify(t *testing.T) {
	payload := []byte(`{"containers":3}`)
	stamp := NewStamp("canvas:snapshot", 2, payload, 3)

	require.NoError(t, stamp.Verify(payload))
	assert.Error(t, stamp.Verify([]byte(`{"containers":4}`)))

	legacy := SnapshotStamp{Key: "canvas:snapshot"}
	assert.NoError(t, legacy.Verify(payload))
}

func TestCompareStamps(t *testing.T) {
	older := NewStamp("graphs:collection", 2, []byte("one node"), 1)
	older.CreatedAt = older.CreatedAt.Add(-2 * time.Second)
	newer := NewStamp("graphs:collection", 2, []byte("one node, another node"), 2)

	diff, err := CompareStamps(older, newer)
	require.NoError(t, err)
	assert.Equal(t, 1, diff.EntityDelta)
	assert.Equal(t, 14, diff.ByteDelta)
	assert.True(t, diff.Rewritten)
	assert.GreaterOrEqual(t, diff.TimeDelta, 2*time.Second)
}

func TestCompareStampsUnchangedPayload(t *testing.T) {
	payload := []byte("same bytes")
	older := NewStamp("engine:session", 2, payload, 3)
	newer := NewStamp("engine:session", 2, payload, 3)

	diff, err := CompareStamps(older, newer)
	require.NoError(t, err)
	assert.False(t, diff.Rewritten)
	assert.Zero(t, diff.EntityDelta)
	assert.Zero(t, diff.ByteDelta)
}

func TestCompareStampsRejectsDifferentKeys(t *testing.T) {
	_, err := CompareStamps(
		NewStamp("canvas:snapshot", 2, nil, 0),
		NewStamp("graphs:collection", 2, nil, 0),
	)
	assert.Error(t, err)
}

func TestShouldFlush(t *testing.T) {
	base := time.Now()

	cases := []struct {
		name        string
		policy      SnapshotPolicy
		firstQueued time.Time
		lastQueued  time.Time
		now         time.Time
		due         bool
	}{
		{
			name:        "quiet period not reached",
			policy:      SnapshotPolicy{QuietPeriod: 500 * time.Millisecond, MaxPendingAge: 5 * time.Second},
			firstQueued: base,
			lastQueued:  base,
			now:         base.Add(100 * time.Millisecond),
			due:         false,
		},
		{
			name:        "quiet period elapsed",
			policy:      SnapshotPolicy{QuietPeriod: 500 * time.Millisecond, MaxPendingAge: 5 * time.Second},
			firstQueued: base,
			lastQueued:  base,
			now:         base.Add(600 * time.Millisecond),
			due:         true,
		},
		{
			name:        "busy key hits the maximum pending age",
			policy:      SnapshotPolicy{QuietPeriod: 500 * time.Millisecond, MaxPendingAge: 5 * time.Second},
			firstQueued: base,
			lastQueued:  base.Add(4900 * time.Millisecond),
			now:         base.Add(5 * time.Second),
			due:         true,
		},
		{
			name:        "zero maximum age never forces a busy key",
			policy:      SnapshotPolicy{QuietPeriod: 500 * time.Millisecond},
			firstQueued: base,
			lastQueued:  base.Add(time.Hour),
			now:         base.Add(time.Hour).Add(100 * time.Millisecond),
			due:         false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.due, tc.policy.ShouldFlush(tc.firstQueued, tc.lastQueued, tc.now))
		})
	}
}

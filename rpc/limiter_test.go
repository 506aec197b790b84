package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClientLimiterSweepsIdleVisitorsPeriodically(t *testing.T) {
	l := newClientLimiter(1000, 10)
	clock := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return clock }

	require.True(t, l.allow("a"))
	clock = clock.Add(visitorIdleTTL)
	require.True(t, l.allow("b"))
	require.Equal(t, clock, l.lastSweep)

	// a is now idle past the TTL, but the last sweep is too recent to repeat.
	clock = clock.Add(2 * time.Minute)
	require.True(t, l.allow("b"))
	require.Len(t, l.visitors, 2)

	clock = clock.Add(8 * time.Minute)
	require.True(t, l.allow("c"))
	require.Len(t, l.visitors, 2)
	require.NotContains(t, l.visitors, "a")
	require.Contains(t, l.visitors, "b")
	require.Equal(t, clock, l.lastSweep)
}

func TestClientLimiterBurstPerSource(t *testing.T) {
	l := newClientLimiter(0.001, 1)
	require.True(t, l.allow("10.0.0.1"))
	require.False(t, l.allow("10.0.0.1"))
	require.True(t, l.allow("10.0.0.2"))

	var disabled *clientLimiter
	require.True(t, disabled.allow("anyone"))
	require.Nil(t, newClientLimiter(0, 5))
}

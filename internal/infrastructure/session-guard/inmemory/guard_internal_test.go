package inmemory_guard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGuard(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	g := newGuard(func() time.Time { return now })

	ok, err := g.Acquire(ctx, "session", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = g.Acquire(ctx, "session", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = g.Acquire(ctx, "other", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, g.Release(ctx, "session"))
	ok, err = g.Acquire(ctx, "session", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	// Expired locks can be taken over.
	now = now.Add(2 * time.Minute)
	ok, err = g.Acquire(ctx, "other", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

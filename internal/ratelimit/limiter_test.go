package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestLimiter() (*Limiter, *clock, *MemoryStore) {
	c := &clock{t: time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	return NewLimiter(store, time.Minute).WithClock(c.now), c, store
}

func TestLimiterWindow(t *testing.T) {
	ctx := context.Background()
	l, c, _ := newTestLimiter()
	key := Key("203.0.113.7", "ana@example.fr")

	_, err := l.Claim(ctx, key)
	require.NoError(t, err)

	c.advance(59 * time.Second)
	assert.ErrorIs(t, l.Check(ctx, key), ErrLimited)
	_, err = l.Claim(ctx, key)
	assert.ErrorIs(t, err, ErrLimited)

	c.advance(time.Second)
	assert.NoError(t, l.Check(ctx, key))
	_, err = l.Claim(ctx, key)
	assert.NoError(t, err)
}

func TestLimiterRejectionKeepsTimestamp(t *testing.T) {
	ctx := context.Background()
	l, c, store := newTestLimiter()
	key := Key("a", "b@c.de")

	_, err := l.Claim(ctx, key)
	require.NoError(t, err)
	first, _ := store.Get(ctx, key)

	c.advance(30 * time.Second)
	_, err = l.Claim(ctx, key)
	require.ErrorIs(t, err, ErrLimited)

	got, _ := store.Get(ctx, key)
	assert.True(t, got.Equal(first))
}

func TestLimiterReleaseRestoresPrevious(t *testing.T) {
	ctx := context.Background()
	l, c, store := newTestLimiter()
	key := Key("a", "b@c.de")

	// Never submitted: a released claim leaves no trace.
	claim, err := l.Claim(ctx, key)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, claim))
	assert.Equal(t, 0, store.size())

	// Submitted before: release puts the old timestamp back.
	claim, err = l.Claim(ctx, key)
	require.NoError(t, err)
	accepted := claim.at
	c.advance(2 * time.Minute)
	claim, err = l.Claim(ctx, key)
	require.NoError(t, err)
	require.NoError(t, l.Release(ctx, claim))

	got, _ := store.Get(ctx, key)
	assert.True(t, got.Equal(accepted))
}

func TestLimiterConfirmRestartsWindow(t *testing.T) {
	ctx := context.Background()
	l, c, store := newTestLimiter()
	key := Key("a", "b@c.de")

	claim, err := l.Claim(ctx, key)
	require.NoError(t, err)
	c.advance(20 * time.Second)
	require.NoError(t, l.Confirm(ctx, claim))

	got, _ := store.Get(ctx, key)
	assert.True(t, got.Equal(c.now()))

	// 60s after the claim but only 40s after the confirmation.
	c.advance(40 * time.Second)
	assert.ErrorIs(t, l.Check(ctx, key), ErrLimited)
	c.advance(20 * time.Second)
	assert.NoError(t, l.Check(ctx, key))
}

func TestLimiterConfirmLeavesNewerWrite(t *testing.T) {
	ctx := context.Background()
	l, c, store := newTestLimiter()
	key := Key("a", "b@c.de")

	claim, err := l.Claim(ctx, key)
	require.NoError(t, err)
	newer := c.now().Add(5 * time.Second)
	ok, err := store.CompareAndSwap(ctx, key, claim.at, newer, time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	c.advance(10 * time.Second)
	require.NoError(t, l.Confirm(ctx, claim))
	got, _ := store.Get(ctx, key)
	assert.True(t, got.Equal(newer))
}

func TestLimiterConcurrentClaimsOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	l, _, _ := newTestLimiter()
	key := Key("a", "b@c.de")

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Claim(ctx, key); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), wins.Load())
}

func TestLimiterPrune(t *testing.T) {
	ctx := context.Background()
	l, c, store := newTestLimiter()

	_, err := l.Claim(ctx, "old")
	require.NoError(t, err)
	c.advance(2 * time.Minute)
	_, err = l.Claim(ctx, "fresh")
	require.NoError(t, err)

	n, err := l.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, store.size())
}

func TestKey(t *testing.T) {
	assert.Equal(t, "unknown:x@y.fr", Key("unknown", "x@y.fr"))
}

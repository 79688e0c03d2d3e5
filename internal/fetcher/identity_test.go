package fetcher

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdentityPool_PickFromPool(t *testing.T) {
	p := NewIdentityPool(testAgents, 7)
	assert.Equal(t, 3, p.Size())
	for i := 0; i < 20; i++ {
		id := p.Pick()
		require.GreaterOrEqual(t, id.Index, 0)
		assert.Equal(t, testAgents[id.Index], id.UserAgent)
	}
}

func TestIdentityPool_RotateAlwaysDiffers(t *testing.T) {
	p := NewIdentityPool(testAgents, 7)
	prev := p.Pick()
	for i := 0; i < 50; i++ {
		next := p.Rotate(prev)
		assert.NotEqual(t, prev.Index, next.Index)
		prev = next
	}
}

func TestIdentityPool_SingleAndEmpty(t *testing.T) {
	single := NewIdentityPool([]string{"only"}, 1)
	id := single.Pick()
	assert.Equal(t, "only", single.Rotate(id).UserAgent)

	empty := NewIdentityPool(nil, 1)
	assert.Equal(t, -1, empty.Pick().Index)
	assert.Equal(t, -1, empty.Rotate(Identity{Index: -1}).Index)
}

func TestIdentityPool_Jitter(t *testing.T) {
	p := NewIdentityPool(testAgents, 3)
	for i := 0; i < 100; i++ {
		d := p.Jitter(10*time.Millisecond, 20*time.Millisecond)
		assert.GreaterOrEqual(t, d, 10*time.Millisecond)
		assert.LessOrEqual(t, d, 20*time.Millisecond)
	}
	assert.Equal(t, 5*time.Millisecond, p.Jitter(5*time.Millisecond, 5*time.Millisecond))
	assert.Equal(t, time.Duration(0), p.Jitter(0, 0))
}

func TestIdentityPool_ConcurrentUse(t *testing.T) {
	p := NewIdentityPool(testAgents, 0)
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := p.Pick()
			_ = p.Rotate(id)
			_ = p.Jitter(0, time.Millisecond)
		}()
	}
	wg.Wait()
}

func TestHostThrottle_SpacesSameHost(t *testing.T) {
	th := NewHostThrottle(40 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, th.Wait(ctx, "https://a.example/x"))
	require.NoError(t, th.Wait(ctx, "https://a.example/y"))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)

	// A different host has its own budget.
	start = time.Now()
	require.NoError(t, th.Wait(ctx, "https://b.example/"))
	assert.Less(t, time.Since(start), 30*time.Millisecond)
}

func TestHostThrottle_DisabledAndCancelled(t *testing.T) {
	off := NewHostThrottle(0)
	assert.NoError(t, off.Wait(context.Background(), "https://a.example"))

	th := NewHostThrottle(time.Hour)
	require.NoError(t, th.Wait(context.Background(), "https://a.example"))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.Error(t, th.Wait(ctx, "https://a.example"))
}

func TestAdaptiveLimiter_Bounds(t *testing.T) {
	a := NewAdaptiveLimiter(8, 1)
	a.OnSuccess()
	assert.InDelta(t, 8.0, float64(a.Limit()), 0.001)

	a.OnRateLimit()
	assert.InDelta(t, 4.0, float64(a.Limit()), 0.001)
	a.OnRateLimit()
	a.OnRateLimit()
	assert.InDelta(t, 2.0, float64(a.Limit()), 0.001)

	a.OnSuccess()
	assert.InDelta(t, 2.4, float64(a.Limit()), 0.001)
}

func TestHostOf(t *testing.T) {
	assert.Equal(t, "a.example:8080", hostOf("http://a.example:8080/path"))
	assert.Equal(t, "not a url", hostOf("not a url"))
}

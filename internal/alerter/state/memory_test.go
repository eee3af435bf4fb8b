// filename: internal/alerter/state/memory_test.go
package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryThrottle_Allow(t *testing.T) {
	ctx := context.Background()
	throttle := NewMemoryThrottle(3 * time.Second)
	now := time.Now()

	ok, err := throttle.Allow(ctx, "frost/kitchen", now)
	require.NoError(t, err)
	assert.True(t, ok)

	// повторный запуск в пределах интервала отклоняется
	ok, _ = throttle.Allow(ctx, "frost/kitchen", now.Add(time.Second))
	assert.False(t, ok)

	// другой экземпляр не затронут
	ok, _ = throttle.Allow(ctx, "frost/bath", now.Add(time.Second))
	assert.True(t, ok)

	// после интервала снова разрешено
	ok, _ = throttle.Allow(ctx, "frost/kitchen", now.Add(3*time.Second))
	assert.True(t, ok)

	stats := throttle.GetStats()
	assert.Equal(t, int64(1), stats["rejected"])
	assert.Equal(t, 2, stats["tracked"])
}

func TestMemoryThrottle_RejectedDoesNotExtendWindow(t *testing.T) {
	ctx := context.Background()
	throttle := NewMemoryThrottle(3 * time.Second)
	now := time.Now()

	ok, _ := throttle.Allow(ctx, "k", now)
	require.True(t, ok)
	ok, _ = throttle.Allow(ctx, "k", now.Add(2*time.Second))
	require.False(t, ok)

	ok, _ = throttle.Allow(ctx, "k", now.Add(3*time.Second))
	assert.True(t, ok)
}

func TestMemoryThrottle_Forget(t *testing.T) {
	ctx := context.Background()
	throttle := NewMemoryThrottle(time.Minute)
	now := time.Now()

	_, _ = throttle.Allow(ctx, "k", now)
	require.NoError(t, throttle.Forget(ctx, "k"))

	ok, _ := throttle.Allow(ctx, "k", now)
	assert.True(t, ok)
}

func TestMemoryThrottle_ZeroInterval(t *testing.T) {
	ctx := context.Background()
	throttle := NewMemoryThrottle(0)
	now := time.Now()

	for i := 0; i < 3; i++ {
		ok, _ := throttle.Allow(ctx, "k", now)
		assert.True(t, ok)
	}
}

func TestMemoryThrottle_Cleanup(t *testing.T) {
	ctx := context.Background()
	throttle := NewMemoryThrottle(time.Second)
	now := time.Now()

	_, _ = throttle.Allow(ctx, "old", now)
	_, _ = throttle.Allow(ctx, "fresh", now.Add(900*time.Millisecond))

	removed := throttle.Cleanup(now.Add(time.Second))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, throttle.GetStats()["tracked"])
}

//go:build integration

// filename: internal/alerter/state/redis_integration_test.go
package state

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/myhouse/alerter/internal/common/logging"
)

// setupRedis поднимает Redis в контейнере и возвращает его адрес
func setupRedis(t *testing.T) string {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate redis container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	return fmt.Sprintf("%s:%s", host, port.Port())
}

func TestRedisThrottle_Integration(t *testing.T) {
	addr := setupRedis(t)
	ctx := context.Background()

	throttle, err := NewRedisThrottle(RedisConfig{
		Addr:      addr,
		Timeout:   2 * time.Second,
		KeyPrefix: "test:",
		Interval:  time.Second,
	}, logging.NewNopLogger())
	require.NoError(t, err)
	defer throttle.Close()

	now := time.Now()
	ok, err := throttle.Allow(ctx, "frost/kitchen", now)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = throttle.Allow(ctx, "frost/kitchen", now)
	require.NoError(t, err)
	assert.False(t, ok)

	// второй экземпляр сервиса видит ту же отметку
	other, err := NewRedisThrottle(RedisConfig{Addr: addr, KeyPrefix: "test:", Interval: time.Second}, logging.NewNopLogger())
	require.NoError(t, err)
	defer other.Close()

	ok, err = other.Allow(ctx, "frost/kitchen", now)
	require.NoError(t, err)
	assert.False(t, ok)

	// ключ истекает через интервал
	assert.Eventually(t, func() bool {
		ok, err := throttle.Allow(ctx, "frost/kitchen", time.Now())
		return err == nil && ok
	}, 3*time.Second, 100*time.Millisecond)

	require.NoError(t, throttle.Forget(ctx, "frost/kitchen"))
	ok, err = throttle.Allow(ctx, "frost/kitchen", time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	assert.GreaterOrEqual(t, throttle.GetStats()["rejected"].(int64), int64(1))
}

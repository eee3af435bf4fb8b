// filename: internal/alerter/state/redis.go
package state

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/myhouse/alerter/internal/common/errors"
	"github.com/myhouse/alerter/internal/common/logging"
)

// RedisThrottle хранит отметки запуска в Redis, чтобы несколько копий сервиса
// не запускали один экземпляр правила одновременно // v1.0
type RedisThrottle struct {
	client   redis.UniversalClient
	config   RedisConfig
	logger   *logging.Logger
	rejected atomic.Int64
}

// RedisConfig конфигурация Redis throttle // v1.0
type RedisConfig struct {
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	Database  int           `yaml:"database"`
	Timeout   time.Duration `yaml:"timeout"`
	KeyPrefix string        `yaml:"key_prefix"`
	Interval  time.Duration `yaml:"interval"`
}

// NewRedisThrottle подключается к Redis и проверяет соединение // v1.0
func NewRedisThrottle(config RedisConfig, logger *logging.Logger) (*RedisThrottle, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.Database,
		DialTimeout:  config.Timeout,
		ReadTimeout:  config.Timeout,
		WriteTimeout: config.Timeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, errors.Wrap(err, errors.ErrorCodeRedisConnection, "failed to ping redis")
	}

	return NewRedisThrottleWithClient(client, config, logger), nil
}

// NewRedisThrottleWithClient использует готовый клиент // v1.0
func NewRedisThrottleWithClient(client redis.UniversalClient, config RedisConfig, logger *logging.Logger) *RedisThrottle {
	return &RedisThrottle{
		client: client,
		config: config,
		logger: logger,
	}
}

// Allow использует SET NX PX: ключ живет ровно минимальный интервал // v1.0
func (r *RedisThrottle) Allow(ctx context.Context, key string, now time.Time) (bool, error) {
	if r.config.Interval <= 0 {
		return true, nil
	}

	ok, err := r.client.SetNX(ctx, r.makeKey(key), now.UnixMilli(), r.config.Interval).Result()
	if err != nil {
		return false, errors.Wrap(err, errors.ErrorCodeRedisCommand, "throttle check failed").
			AddDetail("key", key)
	}

	if !ok {
		r.rejected.Add(1)
		r.logger.WithField("key", key).Debug("Throttled by redis")
	}
	return ok, nil
}

// Forget удаляет отметку экземпляра // v1.0
func (r *RedisThrottle) Forget(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.makeKey(key)).Err(); err != nil {
		return errors.Wrap(err, errors.ErrorCodeRedisCommand, "throttle delete failed").
			AddDetail("key", key)
	}
	return nil
}

// Interval возвращает минимальный интервал // v1.0
func (r *RedisThrottle) Interval() time.Duration {
	return r.config.Interval
}

// GetStats возвращает статистику // v1.0
func (r *RedisThrottle) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"type":       "redis",
		"addr":       r.config.Addr,
		"database":   r.config.Database,
		"key_prefix": r.config.KeyPrefix,
		"interval":   r.config.Interval.String(),
		"rejected":   r.rejected.Load(),
	}
}

// Ping проверяет соединение с Redis // v1.0
func (r *RedisThrottle) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close закрывает клиент // v1.0
func (r *RedisThrottle) Close() error {
	return r.client.Close()
}

// makeKey создает ключ Redis для экземпляра // v1.0
func (r *RedisThrottle) makeKey(key string) string {
	return fmt.Sprintf("%sthrottle:%s", r.config.KeyPrefix, key)
}

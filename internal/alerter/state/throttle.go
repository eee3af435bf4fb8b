// filename: internal/alerter/state/throttle.go
package state

import (
	"context"
	"time"
)

// Throttle отклоняет повторный запуск экземпляра правила чаще минимального интервала // v1.0
type Throttle interface {
	// Allow атомарно проверяет и фиксирует запуск; false означает, что запуск отклонен
	Allow(ctx context.Context, key string, now time.Time) (bool, error)
	// Forget удаляет запись экземпляра
	Forget(ctx context.Context, key string) error
	// Interval возвращает минимальный интервал между запусками
	Interval() time.Duration
	GetStats() map[string]interface{}
}

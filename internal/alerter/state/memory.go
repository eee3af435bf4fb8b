// filename: internal/alerter/state/memory.go
package state

import (
	"context"
	"sync"
	"time"
)

// MemoryThrottle хранит время последнего запуска в памяти процесса // v1.0
type MemoryThrottle struct {
	mu       sync.Mutex
	interval time.Duration
	lastRun  map[string]time.Time
	rejected int64
}

// NewMemoryThrottle создает новый MemoryThrottle // v1.0
func NewMemoryThrottle(interval time.Duration) *MemoryThrottle {
	return &MemoryThrottle{
		interval: interval,
		lastRun:  make(map[string]time.Time),
	}
}

// Allow проверяет и фиксирует запуск // v1.0
func (m *MemoryThrottle) Allow(_ context.Context, key string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.lastRun[key]; ok && now.Sub(last) < m.interval {
		m.rejected++
		return false, nil
	}

	m.lastRun[key] = now
	return true, nil
}

// Forget удаляет запись экземпляра // v1.0
func (m *MemoryThrottle) Forget(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.lastRun, key)
	return nil
}

// Interval возвращает минимальный интервал // v1.0
func (m *MemoryThrottle) Interval() time.Duration {
	return m.interval
}

// Cleanup удаляет записи старше интервала, они уже ничего не блокируют // v1.0
func (m *MemoryThrottle) Cleanup(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, last := range m.lastRun {
		if now.Sub(last) >= m.interval {
			delete(m.lastRun, key)
			removed++
		}
	}
	return removed
}

// GetStats возвращает статистику // v1.0
func (m *MemoryThrottle) GetStats() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()

	return map[string]interface{}{
		"type":     "memory",
		"interval": m.interval.String(),
		"tracked":  len(m.lastRun),
		"rejected": m.rejected,
	}
}

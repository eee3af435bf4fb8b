// filename: internal/adminapi/routes/health.go
package routes

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"sort"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/myhouse/alerter/internal/common/logging"
)

// ServiceName имя сервиса в ответах API
const ServiceName = "myhouse-alerter"

// Check проверяет одну зависимость сервиса
type Check func(ctx context.Context) error

// HealthHandler обработчик для проверки здоровья сервиса // v1.0
type HealthHandler struct {
	logger    *logging.Logger
	startTime time.Time
	checks    map[string]Check
	timeout   time.Duration
}

// NewHealthHandler создает новый обработчик здоровья. checks проверяются в /health/ready // v1.0
func NewHealthHandler(logger *logging.Logger, checks map[string]Check) *HealthHandler {
	if checks == nil {
		checks = make(map[string]Check)
	}
	return &HealthHandler{
		logger:    logger,
		startTime: time.Now(),
		checks:    checks,
		timeout:   2 * time.Second,
	}
}

// HealthCheck проверяет общее состояние сервиса // v1.0
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"service":   ServiceName,
		"timestamp": time.Now().Format(time.RFC3339),
		"uptime":    formatDuration(time.Since(h.startTime)),
	})
}

// ReadinessCheck проверяет зависимости сервиса // v1.0
func (h *HealthHandler) ReadinessCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	ready := true
	dependencies := gin.H{}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			ready = false
			dependencies[name] = gin.H{"status": "unavailable", "details": err.Error()}
			h.logger.WithField("dependency", name).WithError(err).Warn("Dependency check failed")
			continue
		}
		dependencies[name] = gin.H{"status": "ready"}
	}

	httpStatus := http.StatusOK
	if !ready {
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, gin.H{
		"ready":        ready,
		"service":      ServiceName,
		"timestamp":    time.Now().Format(time.RFC3339),
		"dependencies": dependencies,
	})
}

// LivenessCheck проверяет, что процесс отвечает // v1.0
func (h *HealthHandler) LivenessCheck(c *gin.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	c.JSON(http.StatusOK, gin.H{
		"alive":      true,
		"service":    ServiceName,
		"timestamp":  time.Now().Format(time.RFC3339),
		"pid":        os.Getpid(),
		"goroutines": runtime.NumGoroutine(),
		"memory":     formatBytes(m.Alloc),
	})
}

// formatBytes форматирует байты в читаемый вид // v1.0
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

// formatDuration форматирует duration в читаемый вид // v1.0
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60
	return fmt.Sprintf("%dh %dm", hours, minutes)
}

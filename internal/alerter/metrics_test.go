// filename: internal/alerter/metrics_test.go
package alerter

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/myhouse/alerter/internal/alerter/dsl"
	"github.com/myhouse/alerter/internal/alerter/state"
	"github.com/myhouse/alerter/internal/common/logging"
)

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.Nil(t, NewMetrics(nil))

	m.activationStarted("rule")
	m.activationFinished("rule", "triggered", time.Second)
	m.catalogSize(1, 1, 0)
}

func TestMetrics_EngineCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewMetrics(registry)

	bus := &recordingBus{}
	engine := NewEngine(Config{Module: testModule}, bus, newFakeScheduler(),
		state.NewMemoryThrottle(time.Hour), nil, metrics, logging.NewNopLogger())

	def, err := dsl.DecodeDefinition("hello", helloRule)
	assert.NoError(t, err)
	assert.NoError(t, engine.ApplyDefinition(def))

	engine.Fire(key("hello", dsl.DefaultMacro))
	engine.Fire(key("hello", dsl.DefaultMacro))

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.activationsStarted.WithLabelValues("hello")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.activationsThrottled.WithLabelValues("hello")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.activationsFinished.WithLabelValues("hello", "triggered")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.alertsTotal.WithLabelValues("warning")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.rulesLoaded))
	assert.Equal(t, 0.0, testutil.ToFloat64(metrics.activationsInFlight))
}

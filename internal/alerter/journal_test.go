// filename: internal/alerter/journal_test.go
package alerter

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myhouse/alerter/internal/common/logging"
	"github.com/myhouse/alerter/internal/models"
)

type mockWriter struct {
	mu      sync.Mutex
	batches [][]*models.ActivationRecord
	err     error
}

func (w *mockWriter) InsertActivations(_ context.Context, records []*models.ActivationRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.batches = append(w.batches, records)
	return nil
}

func (w *mockWriter) total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func record(id string) *models.ActivationRecord {
	return &models.ActivationRecord{ID: id, RuleID: "rule", Macro: "_default_", Outcome: models.OutcomeTriggered}
}

func TestBatchJournal_FlushesBySize(t *testing.T) {
	writer := &mockWriter{}
	journal := NewBatchJournal(JournalConfig{BatchSize: 2, BatchTimeout: time.Hour}, writer, logging.NewNopLogger())
	journal.Start(context.Background())

	journal.Record(record("1"))
	journal.Record(record("2"))
	journal.Record(record("3"))

	require.Eventually(t, func() bool { return writer.total() >= 2 }, time.Second, 10*time.Millisecond)

	journal.Stop()
	assert.Equal(t, 3, writer.total())
	assert.Equal(t, int64(3), journal.GetStats()["written"])
}

func TestBatchJournal_FlushesByTimeout(t *testing.T) {
	writer := &mockWriter{}
	journal := NewBatchJournal(JournalConfig{BatchSize: 100, BatchTimeout: 20 * time.Millisecond}, writer, logging.NewNopLogger())
	journal.Start(context.Background())
	defer journal.Stop()

	journal.Record(record("1"))
	require.Eventually(t, func() bool { return writer.total() == 1 }, time.Second, 10*time.Millisecond)
}

func TestBatchJournal_DropsWhenFull(t *testing.T) {
	writer := &mockWriter{}
	journal := NewBatchJournal(JournalConfig{BatchSize: 10, QueueSize: 1}, writer, logging.NewNopLogger())

	// воркер не запущен, очередь заполняется
	journal.Record(record("1"))
	journal.Record(record("2"))
	assert.Equal(t, int64(1), journal.GetStats()["dropped"])
}

func TestBatchJournal_CountsFailures(t *testing.T) {
	writer := &mockWriter{err: fmt.Errorf("clickhouse down")}
	journal := NewBatchJournal(JournalConfig{BatchSize: 1, BatchTimeout: time.Hour}, writer, logging.NewNopLogger())
	journal.Start(context.Background())

	journal.Record(record("1"))
	require.Eventually(t, func() bool {
		return journal.GetStats()["failed"] == int64(1)
	}, time.Second, 10*time.Millisecond)
	journal.Stop()
}

// filename: internal/alerter/journal.go
package alerter

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/myhouse/alerter/internal/common/logging"
	"github.com/myhouse/alerter/internal/models"
)

// ActivationWriter пишет пачку итогов активаций; реализуется ch.Client
type ActivationWriter interface {
	InsertActivations(ctx context.Context, records []*models.ActivationRecord) error
}

// JournalConfig конфигурация журнала активаций
type JournalConfig struct {
	BatchSize    int
	BatchTimeout time.Duration
	QueueSize    int
}

// BatchJournal накапливает итоги активаций и пишет их пачками.
// Record не блокирует цикл движка: при переполнении запись отбрасывается // v1.0
type BatchJournal struct {
	config   JournalConfig
	writer   ActivationWriter
	logger   *logging.Logger
	queue    chan *models.ActivationRecord
	stopChan chan struct{}
	wg       sync.WaitGroup
	written  atomic.Int64
	dropped  atomic.Int64
	failed   atomic.Int64
}

// NewBatchJournal создает журнал // v1.0
func NewBatchJournal(config JournalConfig, writer ActivationWriter, logger *logging.Logger) *BatchJournal {
	if config.BatchSize <= 0 {
		config.BatchSize = 100
	}
	if config.BatchTimeout <= 0 {
		config.BatchTimeout = 5 * time.Second
	}
	if config.QueueSize <= 0 {
		config.QueueSize = 10 * config.BatchSize
	}

	return &BatchJournal{
		config:   config,
		writer:   writer,
		logger:   logger,
		queue:    make(chan *models.ActivationRecord, config.QueueSize),
		stopChan: make(chan struct{}),
	}
}

// Record ставит запись в очередь // v1.0
func (j *BatchJournal) Record(rec *models.ActivationRecord) {
	select {
	case j.queue <- rec:
	default:
		j.dropped.Add(1)
		j.logger.WithField("activation_id", rec.ID).Warn("Activation journal queue is full, dropping record")
	}
}

// Start запускает воркер записи // v1.0
func (j *BatchJournal) Start(ctx context.Context) {
	j.wg.Add(1)
	go j.worker(ctx)
}

// Stop останавливает воркер, дописав накопленное // v1.0
func (j *BatchJournal) Stop() {
	close(j.stopChan)
	j.wg.Wait()
}

// worker собирает пачку по размеру или таймауту
func (j *BatchJournal) worker(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(j.config.BatchTimeout)
	defer ticker.Stop()

	batch := make([]*models.ActivationRecord, 0, j.config.BatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		j.flush(batch)
		batch = make([]*models.ActivationRecord, 0, j.config.BatchSize)
	}

	for {
		select {
		case rec := <-j.queue:
			batch = append(batch, rec)
			if len(batch) >= j.config.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			j.drain(&batch)
			flush()
			return
		case <-j.stopChan:
			j.drain(&batch)
			flush()
			return
		}
	}
}

func (j *BatchJournal) drain(batch *[]*models.ActivationRecord) {
	for {
		select {
		case rec := <-j.queue:
			*batch = append(*batch, rec)
		default:
			return
		}
	}
}

func (j *BatchJournal) flush(batch []*models.ActivationRecord) {
	// контекст воркера может быть уже отменен, последнюю пачку пишем со своим таймаутом
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := j.writer.InsertActivations(ctx, batch); err != nil {
		j.failed.Add(int64(len(batch)))
		j.logger.WithError(err).WithField("records", len(batch)).Error("Failed to write activation journal")
		return
	}
	j.written.Add(int64(len(batch)))
}

// GetStats возвращает статистику журнала // v1.0
func (j *BatchJournal) GetStats() map[string]interface{} {
	return map[string]interface{}{
		"batch_size":    j.config.BatchSize,
		"batch_timeout": j.config.BatchTimeout.String(),
		"queued":        len(j.queue),
		"written":       j.written.Load(),
		"dropped":       j.dropped.Load(),
		"failed":        j.failed.Load(),
	}
}

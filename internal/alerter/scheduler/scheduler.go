// filename: internal/alerter/scheduler/scheduler.go
package scheduler

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/myhouse/alerter/internal/common/logging"
)

// JobID идентификатор задания планировщика
type JobID int

// Job описание зарегистрированного задания
type Job struct {
	ID   JobID     `json:"id"`
	Name string    `json:"name"`
	Spec string    `json:"spec"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev,omitempty"`
}

// parser принимает 5 или 6 полей (секунды опциональны) и дескрипторы @every/@daily
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Scheduler оборачивает cron и хранит имена заданий // v1.0
type Scheduler struct {
	cron   *cron.Cron
	logger *logging.Logger

	mu   sync.Mutex
	jobs map[JobID]Job
}

// New создает новый планировщик // v1.0
func New(logger *logging.Logger, location *time.Location) *Scheduler {
	if location == nil {
		location = time.Local
	}

	cl := cronLogger{entry: logger.WithField("component", "scheduler")}
	c := cron.New(
		cron.WithParser(parser),
		cron.WithLocation(location),
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl)),
	)

	return &Scheduler{
		cron:   c,
		logger: logger,
		jobs:   make(map[JobID]Job),
	}
}

// Validate проверяет cron выражение // v1.0
func Validate(spec string) error {
	if _, err := parser.Parse(spec); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}
	return nil
}

// AddJob регистрирует задание; fn вызывается в горутине cron // v1.0
func (s *Scheduler) AddJob(name, spec string, fn func()) (JobID, error) {
	entryID, err := s.cron.AddFunc(spec, fn)
	if err != nil {
		return 0, fmt.Errorf("failed to schedule %s: %w", name, err)
	}

	id := JobID(entryID)
	s.mu.Lock()
	s.jobs[id] = Job{ID: id, Name: name, Spec: spec}
	s.mu.Unlock()

	s.logger.WithFields(logrus.Fields{
		"job":  name,
		"spec": spec,
	}).Debug("Scheduled job")
	return id, nil
}

// RemoveJob снимает задание с расписания // v1.0
func (s *Scheduler) RemoveJob(id JobID) {
	s.cron.Remove(cron.EntryID(id))

	s.mu.Lock()
	delete(s.jobs, id)
	s.mu.Unlock()
}

// Jobs возвращает список заданий с ближайшим временем запуска // v1.0
func (s *Scheduler) Jobs() []Job {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]Job, 0, len(s.jobs))
	for id, job := range s.jobs {
		entry := s.cron.Entry(cron.EntryID(id))
		job.Next = entry.Next
		job.Prev = entry.Prev
		result = append(result, job)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Len возвращает количество заданий // v1.0
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Start запускает планировщик // v1.0
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop останавливает планировщик и ждет завершения запущенных заданий // v1.0
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.logger.Warn("Scheduler stop timed out")
	}
}

// cronLogger адаптирует logrus к интерфейсу cron.Logger
type cronLogger struct {
	entry *logrus.Entry
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.entry.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.entry.WithError(err).WithFields(kvFields(keysAndValues)).Error(msg)
}

func kvFields(keysAndValues []interface{}) logrus.Fields {
	fields := logrus.Fields{}
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}

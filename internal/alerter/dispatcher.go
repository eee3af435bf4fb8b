// filename: internal/alerter/dispatcher.go
package alerter

import (
	"github.com/myhouse/alerter/internal/alerter/dsl"
	"github.com/myhouse/alerter/internal/alerter/scheduler"
	"github.com/myhouse/alerter/internal/common/errors"
	"github.com/myhouse/alerter/internal/common/logging"
)

// JobScheduler планировщик cron заданий; реализуется scheduler.Scheduler
type JobScheduler interface {
	AddJob(name, spec string, fn func()) (scheduler.JobID, error)
	RemoveJob(id scheduler.JobID)
}

// Dispatcher связывает экземпляры с заданиями планировщика или триггерами // v1.0
type Dispatcher struct {
	catalog   *Catalog
	scheduler JobScheduler
	fire      func(key dsl.InstanceKey)
	jobs      map[dsl.InstanceKey]scheduler.JobID
	realtime  map[dsl.InstanceKey]bool
	logger    *logging.Logger
}

// NewDispatcher создает диспетчер. fire вызывается из горутины планировщика
// и должен только ставить событие в очередь // v1.0
func NewDispatcher(catalog *Catalog, sched JobScheduler, fire func(key dsl.InstanceKey), logger *logging.Logger) *Dispatcher {
	return &Dispatcher{
		catalog:   catalog,
		scheduler: sched,
		fire:      fire,
		jobs:      make(map[dsl.InstanceKey]scheduler.JobID),
		realtime:  make(map[dsl.InstanceKey]bool),
		logger:    logger,
	}
}

// Arm включает экземпляр // v1.0
func (d *Dispatcher) Arm(inst *dsl.Instance) error {
	log := d.logger.WithRule(inst.Key.RuleID, inst.Key.Macro)

	switch inst.Type {
	case dsl.TypeRecurrent:
		key := inst.Key
		id, err := d.scheduler.AddJob(key.String(), inst.Spec, func() { d.fire(key) })
		if err != nil {
			return errors.Wrap(err, errors.ErrorCodeScheduleInvalid, "cannot schedule instance").
				AddDetail("instance", key.String())
		}
		d.jobs[key] = id
		log.WithField("schedule", inst.Spec).Debug("Instance scheduled")

	case dsl.TypeRealtime:
		d.realtime[inst.Key] = true
		if len(inst.Triggers) == 0 {
			log.Warn("Realtime rule has no triggers and will never fire")
			return nil
		}
		for _, trigger := range inst.Triggers {
			d.catalog.Triggers().Add(trigger, inst.Key)
		}
		log.WithField("triggers", inst.Triggers).Debug("Instance watching triggers")

	default:
		return errors.Newf(errors.ErrorCodeRuleInvalid, "unknown rule type %q", inst.Type)
	}

	return nil
}

// Disarm отключает экземпляр // v1.0
func (d *Dispatcher) Disarm(key dsl.InstanceKey) {
	if id, ok := d.jobs[key]; ok {
		d.scheduler.RemoveJob(id)
		delete(d.jobs, key)
	}
	if d.realtime[key] {
		d.catalog.Triggers().Remove(key)
		delete(d.realtime, key)
	}
}

// Match возвращает экземпляры, которые нужно запустить по объявлению SAVED // v1.0
func (d *Dispatcher) Match(announced string) []dsl.InstanceKey {
	return d.catalog.Triggers().Match(announced)
}

// IsArmed сообщает, включен ли экземпляр // v1.0
func (d *Dispatcher) IsArmed(key dsl.InstanceKey) bool {
	_, scheduled := d.jobs[key]
	return scheduled || d.realtime[key]
}

// JobOf возвращает задание планировщика экземпляра // v1.0
func (d *Dispatcher) JobOf(key dsl.InstanceKey) (scheduler.JobID, bool) {
	id, ok := d.jobs[key]
	return id, ok
}

// Counts возвращает число включенных recurrent и realtime экземпляров // v1.0
func (d *Dispatcher) Counts() (recurrent int, realtime int) {
	return len(d.jobs), len(d.realtime)
}

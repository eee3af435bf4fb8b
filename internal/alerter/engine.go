// filename: internal/alerter/engine.go
package alerter

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/myhouse/alerter/internal/alerter/dsl"
	"github.com/myhouse/alerter/internal/alerter/state"
	"github.com/myhouse/alerter/internal/common/errors"
	"github.com/myhouse/alerter/internal/common/logging"
	"github.com/myhouse/alerter/internal/models"
)

// Входящие команды
const (
	CommandRun   = "RUN"
	CommandConf  = "CONF"
	CommandSaved = "SAVED"
)

// Префиксы аргументов CONF
const (
	confRules   = "rules"
	confSensors = "sensors"
)

// storeTimeout ограничивает обращения к хранилищу ограничителя частоты
const storeTimeout = 2 * time.Second

// Bus отправляет сообщения другим модулям
type Bus interface {
	Publish(msg *models.Message) error
}

// Journal принимает итоги активаций
type Journal interface {
	Record(rec *models.ActivationRecord)
}

// Config конфигурация движка
type Config struct {
	Module        string
	ActivationTTL time.Duration
	SweepInterval time.Duration
	RetentionDays int
	EventBuffer   int
}

// Engine владеет каталогом, трекером и диспетчером и обрабатывает события
// последовательно в одной горутине // v1.0
type Engine struct {
	config     Config
	bus        Bus
	scheduler  JobScheduler
	compiler   *dsl.Compiler
	catalog    *Catalog
	tracker    *Tracker
	resolver   *Resolver
	executor   *Executor
	dispatcher *Dispatcher
	journal    Journal
	metrics    *Metrics
	logger     *logging.Logger

	events chan func()
	done   chan struct{}
	now    func() time.Time
}

// NewEngine создает движок правил. journal и metrics могут быть nil // v1.0
func NewEngine(config Config, bus Bus, sched JobScheduler, throttle state.Throttle, journal Journal, metrics *Metrics, logger *logging.Logger) *Engine {
	if config.EventBuffer <= 0 {
		config.EventBuffer = 1024
	}
	if config.ActivationTTL <= 0 {
		config.ActivationTTL = 5 * time.Minute
	}
	if config.SweepInterval <= 0 {
		config.SweepInterval = 30 * time.Second
	}

	e := &Engine{
		config:    config,
		bus:       bus,
		scheduler: sched,
		compiler:  dsl.NewCompiler(logger),
		catalog:   NewCatalog(),
		tracker:   NewTracker(throttle),
		journal:   journal,
		metrics:   metrics,
		logger:    logger,
		events:    make(chan func(), config.EventBuffer),
		done:      make(chan struct{}),
		now:       time.Now,
	}

	e.resolver = NewResolver(bus, config.Module, e.tracker, metrics, logger)
	e.executor = NewExecutor(bus, config.Module, e.catalog, metrics, logger)
	e.dispatcher = NewDispatcher(e.catalog, sched, func(key dsl.InstanceKey) {
		e.enqueue("fire", func() { e.Fire(key) })
	}, logger)

	return e
}

// Run обрабатывает события до отмены контекста // v1.0
func (e *Engine) Run(ctx context.Context) error {
	if err := e.scheduleMaintenance(); err != nil {
		return err
	}
	defer close(e.done)

	e.logger.WithField("module", e.config.Module).Info("Rule engine started")

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Rule engine stopped")
			return nil
		case fn := <-e.events:
			e.safely(fn)
		}
	}
}

// scheduleMaintenance ставит очистку алертов и истечение активаций
func (e *Engine) scheduleMaintenance() error {
	// 01:00 со случайной секундой, чтобы не совпадать с другими модулями
	purgeSpec := fmt.Sprintf("%d 0 1 * * *", 1+rand.Intn(59))
	if _, err := e.scheduler.AddJob("purge_alerts", purgeSpec, func() {
		e.enqueue("purge", e.Purge)
	}); err != nil {
		return fmt.Errorf("failed to schedule alert purge: %w", err)
	}

	sweepSpec := "@every " + e.config.SweepInterval.String()
	if _, err := e.scheduler.AddJob("expire_activations", sweepSpec, func() {
		e.enqueue("sweep", func() { e.Sweep(e.now()) })
	}); err != nil {
		return fmt.Errorf("failed to schedule activation sweep: %w", err)
	}

	return nil
}

func (e *Engine) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.WithField("panic", r).Error("Recovered from panic in engine event")
		}
	}()
	fn()
}

// enqueue ставит событие в очередь цикла. После остановки события отбрасываются
func (e *Engine) enqueue(kind string, fn func()) bool {
	select {
	case e.events <- func() {
		e.metrics.eventProcessed(kind)
		fn()
	}:
		return true
	case <-e.done:
		return false
	}
}

// Submit ставит сообщение шины в очередь; подходит как обработчик подписки // v1.0
func (e *Engine) Submit(msg *models.Message) {
	e.enqueue("message", func() { e.Handle(msg) })
}

// Do выполняет fn в цикле движка и ждет завершения // v1.0
func (e *Engine) Do(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	task := func() {
		defer close(finished)
		fn()
	}

	select {
	case e.events <- func() { e.metrics.eventProcessed("query"); task() }:
	case <-e.done:
		return errors.New(errors.ErrorCodeInternal, "rule engine is stopped")
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.ErrorCodeTimeout, "rule engine is busy")
	}

	select {
	case <-finished:
		return nil
	case <-e.done:
		return errors.New(errors.ErrorCodeInternal, "rule engine is stopped")
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), errors.ErrorCodeTimeout, "rule engine did not answer in time")
	}
}

// Handle обрабатывает одно сообщение шины синхронно // v1.0
func (e *Engine) Handle(msg *models.Message) {
	if msg == nil {
		return
	}

	if msg.Reply {
		// ответы на GET адресуются модулю, широковещательный ответ чужой
		if msg.IsBroadcast() {
			e.logger.WithMessage(msg.Sender, msg.Command, msg.Args).Debug("Ignoring broadcast reply")
			return
		}
		if msg.RequestID != "" && strings.HasPrefix(msg.Command, "GET") {
			e.handleReply(msg)
		}
		return
	}

	switch msg.Command {
	case CommandRun:
		e.handleRun(msg)
	case CommandSaved:
		e.handleSaved(msg)
	case CommandConf:
		e.handleConf(msg)
	default:
		e.logger.WithMessage(msg.Sender, msg.Command, msg.Args).Debug("Ignoring message")
	}
}

// handleReply сохраняет значение переменной и оценивает правило, когда собраны все значения
func (e *Engine) handleReply(msg *models.Message) {
	act, ok := e.tracker.Resolve(msg.RequestID, msg.GetData())
	if !ok {
		e.logger.WithMessage(msg.Sender, msg.Command, msg.Args).
			WithField("request_id", msg.RequestID).
			Debug("Discarding reply for unknown activation")
		e.metrics.replyDiscarded()
		return
	}

	if e.tracker.Ready(act) {
		e.complete(act)
	}
}

// handleRun запускает правило по команде RUN
func (e *Engine) handleRun(msg *models.Message) {
	ruleID, macro := msg.SplitArgs()
	if macro == "" {
		macro = msg.GetString("macro")
	}

	var caller *models.Message
	if msg.RequestID != "" && msg.Sender != e.config.Module {
		caller = msg
	}

	instances, err := e.selectInstances(ruleID, macro)
	if err != nil {
		e.logger.WithMessage(msg.Sender, msg.Command, msg.Args).WithError(err).Warn("Cannot run rule")
		e.executor.ReplyError(caller, err)
		return
	}

	for _, inst := range instances {
		if _, err := e.start(inst, caller); err != nil {
			e.executor.ReplyError(caller, err)
		}
	}
}

// handleSaved запускает realtime правила, наблюдающие объявленный идентификатор
func (e *Engine) handleSaved(msg *models.Message) {
	announced := msg.Args
	if group := msg.GetString("group_by"); group != "" {
		announced += "/" + group
	}
	if announced == "" {
		return
	}

	for _, key := range e.dispatcher.Match(announced) {
		e.Fire(key)
	}
}

// handleConf применяет изменения конфигурации правил и справочника датчиков
func (e *Engine) handleConf(msg *models.Message) {
	scope, id, _ := strings.Cut(msg.Args, "/")
	if id == "" {
		e.logger.WithMessage(msg.Sender, msg.Command, msg.Args).Warn("Configuration event without identifier")
		return
	}

	data := msg.GetData()
	switch scope {
	case confRules:
		if data == nil {
			e.RemoveRule(id)
			return
		}
		def, err := dsl.DecodeDefinition(id, data)
		if err != nil {
			e.logger.WithRule(id, "").WithError(err).Error("Rejecting rule definition")
			e.metrics.ruleRejected()
			e.RemoveRule(id)
			return
		}
		_ = e.ApplyDefinition(def)

	case confSensors:
		if data == nil {
			e.catalog.RemoveSensor(id)
			return
		}
		fields, ok := data.(map[string]interface{})
		if !ok {
			e.logger.WithField("sensor", id).Warn("Sensor metadata is not an object")
			return
		}
		info := SensorInfo{}
		info.Description, _ = fields["description"].(string)
		info.Unit, _ = fields["unit"].(string)
		e.catalog.SetSensor(id, info)

	default:
		e.logger.WithMessage(msg.Sender, msg.Command, msg.Args).Debug("Ignoring configuration event")
	}
}

// ApplyDefinition полностью заменяет экземпляры правила. Отключенное или
// некорректное определение оставляет правило снятым // v1.0
func (e *Engine) ApplyDefinition(def *dsl.Definition) error {
	e.RemoveRule(def.ID)

	if def.Disabled {
		e.logger.WithRule(def.ID, "").Info("Rule disabled")
		return nil
	}

	instances, err := e.compiler.Compile(def)
	if err != nil {
		e.logger.WithRule(def.ID, "").WithError(err).Error("Rejecting rule definition")
		e.metrics.ruleRejected()
		return err
	}

	e.catalog.Put(def, instances, e.now())
	for _, inst := range instances {
		if err := e.dispatcher.Arm(inst); err != nil {
			e.logger.WithRule(inst.Key.RuleID, inst.Key.Macro).WithError(err).Error("Failed to arm instance")
		}
	}

	e.logger.WithRule(def.ID, "").WithField("instances", len(instances)).Info("Rule loaded")
	e.updateCatalogMetrics()
	return nil
}

// RemoveRule снимает правило: задания, триггеры и активации в полете // v1.0
func (e *Engine) RemoveRule(ruleID string) bool {
	instances := e.catalog.Remove(ruleID)
	if instances == nil {
		return false
	}

	now := e.now()
	for _, inst := range instances {
		e.dispatcher.Disarm(inst.Key)

		for _, act := range e.tracker.Cancel(inst.Key) {
			e.finished(act, models.OutcomeCancelled, now)
			e.executor.ReplyError(act.Caller, errors.Newf(errors.ErrorCodeRuleNotFound, "rule '%s' was removed", ruleID))
		}

		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		if err := e.tracker.Forget(ctx, inst.Key); err != nil {
			e.logger.WithRule(inst.Key.RuleID, inst.Key.Macro).WithError(err).Warn("Failed to reset throttle")
		}
		cancel()
	}

	e.logger.WithRule(ruleID, "").Info("Rule removed")
	e.updateCatalogMetrics()
	return true
}

// Fire запускает экземпляр по расписанию или триггеру // v1.0
func (e *Engine) Fire(key dsl.InstanceKey) {
	inst, ok := e.catalog.Instance(key)
	if !ok {
		// задание успело сработать до снятия правила
		return
	}
	_, _ = e.start(inst, nil)
}

// start создает активацию и отправляет запросы переменных
func (e *Engine) start(inst *dsl.Instance, caller *models.Message) (*Activation, error) {
	log := e.logger.WithRule(inst.Key.RuleID, inst.Key.Macro)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	act, err := e.tracker.Start(ctx, inst, caller, e.now())
	cancel()
	if err != nil {
		if errors.IsErrorCode(err, errors.ErrorCodeThrottled) {
			log.Debug("Instance ran too recently, skipping")
			e.metrics.activationThrottled(inst.Key.RuleID)
		} else {
			log.WithError(err).Error("Failed to start activation")
		}
		return nil, err
	}

	e.metrics.activationStarted(inst.Key.RuleID)
	log.WithField("activation_id", act.ID).Debug("Activation started")

	if act.Stalled {
		log.Warn("No variable of the instance can be resolved, activation will expire")
	}

	e.resolver.Request(act)

	if e.tracker.Ready(act) {
		e.complete(act)
	}
	return act, nil
}

// complete оценивает условия, выполняет действия и освобождает активацию
func (e *Engine) complete(act *Activation) {
	inst := act.Instance
	log := e.logger.WithActivation(act.ID, inst.Key.RuleID, inst.Key.Macro)

	e.tracker.Advance(act)
	triggered := inst.Conditions.Evaluate(act.Values, func(expr string, result interface{}) {
		log.WithField("expr", expr).WithField("result", result).Debug("Evaluated")
	})

	act.Phase = PhaseActing
	e.executor.Execute(act, triggered)

	outcome := models.OutcomeNotTriggered
	if triggered {
		outcome = models.OutcomeTriggered
	}
	now := e.now()
	e.tracker.Finish(act)
	e.finished(act, outcome, now)
}

// Sweep уничтожает активации, не получившие все значения за activation_ttl // v1.0
func (e *Engine) Sweep(now time.Time) int {
	expired := e.tracker.Expire(now, e.config.ActivationTTL)
	for _, act := range expired {
		e.logger.WithActivation(act.ID, act.Instance.Key.RuleID, act.Instance.Key.Macro).
			WithField("age", now.Sub(act.CreatedAt).String()).
			Warn("Activation expired before all values arrived")
		e.finished(act, models.OutcomeExpired, now)
		e.executor.ReplyError(act.Caller, errors.New(errors.ErrorCodeTimeout, "variables were not resolved in time"))
	}

	if cleaner, ok := e.tracker.Throttle().(interface{ Cleanup(time.Time) int }); ok {
		cleaner.Cleanup(now)
	}
	return len(expired)
}

// Purge просит хранилище удалить старые алерты // v1.0
func (e *Engine) Purge() {
	msg := models.NewMessage(e.config.Module, StorageModule, CommandPurgeAlerts, "")
	msg.SetData(e.config.RetentionDays)
	if err := e.bus.Publish(msg); err != nil {
		e.logger.WithError(err).Error("Failed to request alert purge")
		return
	}
	e.logger.WithField("retention_days", e.config.RetentionDays).Info("Requested alert purge")
}

func (e *Engine) finished(act *Activation, outcome models.Outcome, now time.Time) {
	e.metrics.activationFinished(act.Instance.Key.RuleID, string(outcome), now.Sub(act.CreatedAt))
	if e.journal != nil {
		e.journal.Record(act.Record(outcome, now))
	}
}

func (e *Engine) selectInstances(ruleID, macro string) ([]*dsl.Instance, error) {
	entry, ok := e.catalog.Rule(ruleID)
	if !ok {
		return nil, errors.RuleNotFoundError(ruleID)
	}
	if macro == "" {
		return entry.Instances, nil
	}

	inst, ok := e.catalog.Instance(dsl.InstanceKey{RuleID: ruleID, Macro: macro})
	if !ok {
		return nil, errors.Newf(errors.ErrorCodeNotFound, "rule '%s' has no macro '%s'", ruleID, macro)
	}
	return []*dsl.Instance{inst}, nil
}

func (e *Engine) updateCatalogMetrics() {
	rules, _ := e.catalog.Len()
	recurrent, realtime := e.dispatcher.Counts()
	e.metrics.catalogSize(rules, recurrent, realtime)
}

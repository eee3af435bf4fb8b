// filename: internal/alerter/executor.go
package alerter

import (
	"github.com/myhouse/alerter/internal/alerter/dsl"
	"github.com/myhouse/alerter/internal/common/logging"
	"github.com/myhouse/alerter/internal/models"
)

// HubModule модуль, исполняющий SET и POLL
const HubModule = "controller/hub"

// Команды, которые движок отправляет другим модулям
const (
	CommandSaveAlert   = "SAVE_ALERT"
	CommandNotify      = "NOTIFY"
	CommandPurgeAlerts = "PURGE_ALERTS"
)

// Executor выполняет действия, формирует алерты и отвечает на on-demand запросы // v1.0
type Executor struct {
	bus     Bus
	module  string
	catalog *Catalog
	metrics *Metrics
	logger  *logging.Logger
}

// NewExecutor создает исполнитель действий // v1.0
func NewExecutor(bus Bus, module string, catalog *Catalog, metrics *Metrics, logger *logging.Logger) *Executor {
	return &Executor{
		bus:     bus,
		module:  module,
		catalog: catalog,
		metrics: metrics,
		logger:  logger,
	}
}

// Execute завершает оцененную активацию и возвращает сформированный алерт // v1.0
func (x *Executor) Execute(act *Activation, triggered bool) *models.Alert {
	inst := act.Instance
	log := x.logger.WithActivation(act.ID, inst.Key.RuleID, inst.Key.Macro)

	if triggered {
		for _, raw := range inst.Actions {
			x.runAction(act, raw)
		}
	}

	alert := models.NewAlert(inst.Key.RuleID, inst.Key.Macro, inst.Severity, x.Text(act))

	if act.OnDemand() {
		x.reply(act, alert, triggered)
		return alert
	}

	if !triggered || alert.IsSilent() {
		return alert
	}

	if !alert.IsPersisted() {
		log.WithField("severity", alert.Severity).Debug(alert.Text)
		x.metrics.alertEmitted(string(alert.Severity))
		return alert
	}

	log.WithField("severity", alert.Severity).Info(alert.Text)

	save := models.NewMessage(x.module, StorageModule, CommandSaveAlert, string(alert.Severity))
	save.SetData(alert.Text)
	x.publish(save)

	notify := models.NewMessage(x.module, models.BroadcastRecipient, CommandNotify, alert.NotifyArgs())
	notify.SetData(alert.Text)
	x.publish(notify)

	x.metrics.alertEmitted(string(alert.Severity))
	return alert
}

// Text формирует текст алерта: %i% заменяется описанием макроса,
// %name% значением с единицей измерения цели // v1.0
func (x *Executor) Text(act *Activation) string {
	inst := act.Instance
	text := dsl.ExpandMacro(inst.Text, x.catalog.Describe(inst.Key.Macro))
	return dsl.FormatPlaceholders(text, act.Values, func(name string) string {
		v, ok := inst.Variable(name)
		if !ok || v.Function != "" {
			return ""
		}
		return x.catalog.UnitOf(v.Target)
	})
}

// runAction выполняет одно действие; ошибки не прерывают остальные
func (x *Executor) runAction(act *Activation, raw string) {
	inst := act.Instance
	log := x.logger.WithActivation(act.ID, inst.Key.RuleID, inst.Key.Macro)

	action, err := dsl.ParseAction(dsl.FormatPlaceholders(raw, act.Values, nil))
	if err != nil {
		log.WithError(err).Warn("Skipping malformed action")
		x.metrics.actionSkipped()
		return
	}

	var msg *models.Message
	switch action.Command {
	case dsl.ActionSet:
		msg = models.NewMessage(x.module, HubModule, dsl.ActionSet, action.Target)
		msg.SetData(action.Value)
	case dsl.ActionPoll:
		msg = models.NewMessage(x.module, HubModule, dsl.ActionPoll, action.Target)
	case dsl.ActionRun:
		msg = models.NewMessage(x.module, x.module, dsl.ActionRun, action.Target)
		if action.Value != "" {
			msg.Set("macro", action.Value)
		}
	}

	log.WithField("action", action.String()).Debug("Executing action")
	if x.publish(msg) {
		x.metrics.actionExecuted(action.Command)
	}
}

// reply отвечает вызывающему on-demand запуска
func (x *Executor) reply(act *Activation, alert *models.Alert, triggered bool) {
	reply := act.Caller.NewReply(x.module)
	reply.SetData(alert.Text)
	reply.Set("triggered", triggered)
	reply.Set("rule_id", alert.RuleID)
	reply.Set("macro", alert.Macro)
	x.publish(reply)
}

// ReplyError отвечает вызывающему ошибкой // v1.0
func (x *Executor) ReplyError(caller *models.Message, err error) {
	if caller == nil {
		return
	}
	reply := caller.NewReply(x.module)
	reply.Set("error", err.Error())
	x.publish(reply)
}

func (x *Executor) publish(msg *models.Message) bool {
	if err := x.bus.Publish(msg); err != nil {
		x.logger.WithMessage(msg.Sender, msg.Command, msg.Args).
			WithError(err).
			Error("Failed to publish message")
		return false
	}
	return true
}

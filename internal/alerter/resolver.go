// filename: internal/alerter/resolver.go
package alerter

import (
	"github.com/myhouse/alerter/internal/alerter/dsl"
	"github.com/myhouse/alerter/internal/common/logging"
	"github.com/myhouse/alerter/internal/models"
)

// StorageModule модуль хранилища, отвечающий на GET запросы
const StorageModule = "controller/db"

// Resolver превращает переменные экземпляра в запросы к хранилищу // v1.0
type Resolver struct {
	bus     Bus
	module  string
	tracker *Tracker
	metrics *Metrics
	logger  *logging.Logger
}

// NewResolver создает резолвер переменных // v1.0
func NewResolver(bus Bus, module string, tracker *Tracker, metrics *Metrics, logger *logging.Logger) *Resolver {
	return &Resolver{
		bus:     bus,
		module:  module,
		tracker: tracker,
		metrics: metrics,
		logger:  logger,
	}
}

// BuildQuery строит запрос к хранилищу для переменной // v1.0
func BuildQuery(sender string, v dsl.Variable) *models.Message {
	msg := models.NewRequest(sender, StorageModule, v.Command(), v.Target)
	msg.Set("start", v.Start)
	msg.Set("end", v.End)
	return msg
}

// Request отправляет по одному запросу на переменную. Токен регистрируется до отправки;
// если отправка не удалась, активация дождется истечения // v1.0
func (r *Resolver) Request(act *Activation) int {
	sent := 0
	for _, v := range act.Instance.Variables {
		query := BuildQuery(r.module, v)
		r.tracker.Expect(act, query.RequestID, v.Name)

		if err := r.bus.Publish(query); err != nil {
			r.logger.WithActivation(act.ID, act.Instance.Key.RuleID, act.Instance.Key.Macro).
				WithError(err).
				WithField("variable", v.Name).
				Error("Failed to send variable query")
			continue
		}
		r.metrics.queriesSent(query.Command)
		sent++
	}
	return sent
}

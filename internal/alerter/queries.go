// filename: internal/alerter/queries.go
package alerter

import (
	"context"
	"time"

	"github.com/myhouse/alerter/internal/alerter/dsl"
	"github.com/myhouse/alerter/internal/alerter/scheduler"
	"github.com/myhouse/alerter/internal/common/errors"
)

// RuleView правило в каталоге
type RuleView struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Severity  string    `json:"severity"`
	Text      string    `json:"text"`
	Macros    []string  `json:"macros"`
	Instances int       `json:"instances"`
	LoadedAt  time.Time `json:"loaded_at"`
}

// InstanceView экземпляр правила
type InstanceView struct {
	Key        string          `json:"key"`
	RuleID     string          `json:"rule_id"`
	Macro      string          `json:"macro"`
	Type       string          `json:"type"`
	Schedule   string          `json:"schedule,omitempty"`
	Triggers   []string        `json:"triggers,omitempty"`
	Variables  []dsl.Variable  `json:"variables"`
	Declared   int             `json:"declared_variables"`
	Actions    []string        `json:"actions,omitempty"`
	Armed      bool            `json:"armed"`
	Job        scheduler.JobID `json:"job_id,omitempty"`
	Conditions int             `json:"condition_blocks"`
}

// Stats сводка состояния движка
type Stats struct {
	Rules         int                    `json:"rules"`
	Instances     int                    `json:"instances"`
	Recurrent     int                    `json:"recurrent"`
	Realtime      int                    `json:"realtime"`
	Triggers      int                    `json:"triggers"`
	Activations   int                    `json:"activations"`
	PendingTokens int                    `json:"pending_tokens"`
	QueueLength   int                    `json:"queue_length"`
	Throttle      map[string]interface{} `json:"throttle"`
}

// ListRules возвращает правила каталога // v1.0
func (e *Engine) ListRules(ctx context.Context) ([]RuleView, error) {
	var views []RuleView
	err := e.Do(ctx, func() {
		for _, entry := range e.catalog.Rules() {
			views = append(views, ruleView(entry))
		}
	})
	return views, err
}

// GetRule возвращает правило и его экземпляры // v1.0
func (e *Engine) GetRule(ctx context.Context, ruleID string) (*RuleView, []InstanceView, error) {
	var (
		view      *RuleView
		instances []InstanceView
		found     bool
	)
	err := e.Do(ctx, func() {
		entry, ok := e.catalog.Rule(ruleID)
		if !ok {
			return
		}
		found = true
		v := ruleView(entry)
		view = &v
		for _, inst := range entry.Instances {
			instances = append(instances, e.instanceView(inst))
		}
	})
	if err != nil {
		return nil, nil, err
	}
	if !found {
		return nil, nil, errors.RuleNotFoundError(ruleID)
	}
	return view, instances, nil
}

// PutRule применяет определение правила // v1.0
func (e *Engine) PutRule(ctx context.Context, def *dsl.Definition) error {
	var applyErr error
	if err := e.Do(ctx, func() { applyErr = e.ApplyDefinition(def) }); err != nil {
		return err
	}
	return applyErr
}

// DeleteRule снимает правило // v1.0
func (e *Engine) DeleteRule(ctx context.Context, ruleID string) error {
	var removed bool
	if err := e.Do(ctx, func() { removed = e.RemoveRule(ruleID) }); err != nil {
		return err
	}
	if !removed {
		return errors.RuleNotFoundError(ruleID)
	}
	return nil
}

// RunRule запускает правило вручную, как команда RUN без ответа // v1.0
func (e *Engine) RunRule(ctx context.Context, ruleID, macro string) ([]string, error) {
	var (
		started []string
		runErr  error
	)
	err := e.Do(ctx, func() {
		instances, err := e.selectInstances(ruleID, macro)
		if err != nil {
			runErr = err
			return
		}
		for _, inst := range instances {
			act, err := e.start(inst, nil)
			if err != nil {
				runErr = err
				continue
			}
			started = append(started, act.ID)
		}
	})
	if err != nil {
		return nil, err
	}
	if len(started) == 0 && runErr != nil {
		return nil, runErr
	}
	return started, nil
}

// ListActivations возвращает активации в полете // v1.0
func (e *Engine) ListActivations(ctx context.Context) ([]ActivationView, error) {
	var views []ActivationView
	err := e.Do(ctx, func() { views = e.tracker.Snapshot() })
	return views, err
}

// ListTriggers возвращает индекс триггеров // v1.0
func (e *Engine) ListTriggers(ctx context.Context) (map[string][]string, error) {
	var snapshot map[string][]string
	err := e.Do(ctx, func() { snapshot = e.catalog.Triggers().Snapshot() })
	return snapshot, err
}

// SetSensor обновляет справочник датчиков // v1.0
func (e *Engine) SetSensor(ctx context.Context, id string, info SensorInfo) error {
	return e.Do(ctx, func() { e.catalog.SetSensor(id, info) })
}

// GetStats возвращает сводку состояния движка // v1.0
func (e *Engine) GetStats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := e.Do(ctx, func() {
		stats.Rules, stats.Instances = e.catalog.Len()
		stats.Recurrent, stats.Realtime = e.dispatcher.Counts()
		stats.Triggers = e.catalog.Triggers().Len()
		stats.Activations, stats.PendingTokens = e.tracker.Len()
		stats.QueueLength = len(e.events)
		stats.Throttle = e.tracker.Throttle().GetStats()
	})
	return stats, err
}

func ruleView(entry *RuleEntry) RuleView {
	def := entry.Definition
	macros := make([]string, 0, len(entry.Instances))
	for _, inst := range entry.Instances {
		macros = append(macros, inst.Key.Macro)
	}
	return RuleView{
		ID:        def.ID,
		Type:      def.Type,
		Severity:  def.Severity,
		Text:      def.Text,
		Macros:    macros,
		Instances: len(entry.Instances),
		LoadedAt:  entry.LoadedAt,
	}
}

func (e *Engine) instanceView(inst *dsl.Instance) InstanceView {
	job, _ := e.dispatcher.JobOf(inst.Key)
	return InstanceView{
		Key:        inst.Key.String(),
		RuleID:     inst.Key.RuleID,
		Macro:      inst.Key.Macro,
		Type:       inst.Type,
		Schedule:   inst.Spec,
		Triggers:   inst.Triggers,
		Variables:  inst.Variables,
		Declared:   inst.Declared,
		Actions:    inst.Actions,
		Armed:      e.dispatcher.IsArmed(inst.Key),
		Job:        job,
		Conditions: len(inst.Conditions.Blocks),
	}
}

// filename: internal/alerter/tracker.go
package alerter

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/myhouse/alerter/internal/alerter/dsl"
	"github.com/myhouse/alerter/internal/alerter/state"
	"github.com/myhouse/alerter/internal/common/errors"
	"github.com/myhouse/alerter/internal/models"
)

// Sentinel последний токен активации; снимается только при оценке
const Sentinel = "LAST"

// Phase состояние активации
type Phase string

const (
	PhaseGathering  Phase = "gathering"
	PhaseEvaluating Phase = "evaluating"
	PhaseActing     Phase = "acting"
	PhaseDone       Phase = "done"
)

// Activation одна оценка экземпляра правила
type Activation struct {
	ID       string
	Instance *dsl.Instance
	Values   dsl.Values
	Phase    Phase
	// Outstanding токены ожидаемых ответов и Sentinel
	Outstanding map[string]struct{}
	// Caller запрос on-demand запуска, на который нужно ответить
	Caller    *models.Message
	CreatedAt time.Time
	// Stalled ни одна из объявленных переменных не разобрана; ждет истечения
	Stalled bool
}

// Key возвращает ключ экземпляра // v1.0
func (a *Activation) Key() dsl.InstanceKey {
	return a.Instance.Key
}

// OnDemand сообщает, что активация запущена по запросу // v1.0
func (a *Activation) OnDemand() bool {
	return a.Caller != nil
}

// Record возвращает запись для журнала // v1.0
func (a *Activation) Record(outcome models.Outcome, finishedAt time.Time) *models.ActivationRecord {
	return &models.ActivationRecord{
		ID:         a.ID,
		RuleID:     a.Instance.Key.RuleID,
		Macro:      a.Instance.Key.Macro,
		Outcome:    outcome,
		OnDemand:   a.OnDemand(),
		Values:     map[string]interface{}(a.Values.Clone()),
		StartedAt:  a.CreatedAt,
		FinishedAt: finishedAt,
	}
}

// ActivationView снимок активации для admin API
type ActivationView struct {
	ID          string    `json:"id"`
	RuleID      string    `json:"rule_id"`
	Macro       string    `json:"macro"`
	Phase       Phase     `json:"phase"`
	Outstanding int       `json:"outstanding"`
	OnDemand    bool      `json:"on_demand"`
	Stalled     bool      `json:"stalled"`
	CreatedAt   time.Time `json:"created_at"`
}

// correlation запись ожидаемого ответа хранилища
type correlation struct {
	activationID string
	key          dsl.InstanceKey
	variable     string
}

// Tracker ведет активации от запуска до завершения.
// Не потокобезопасен: им владеет цикл движка // v1.0
type Tracker struct {
	throttle    state.Throttle
	activations map[string]*Activation
	tokens      map[string]correlation
}

// NewTracker создает трекер с заданным ограничителем частоты // v1.0
func NewTracker(throttle state.Throttle) *Tracker {
	return &Tracker{
		throttle:    throttle,
		activations: make(map[string]*Activation),
		tokens:      make(map[string]correlation),
	}
}

// Start создает активацию, если экземпляр не запускался в пределах минимального интервала.
// Константы копируются в значения, Sentinel добавляется сразу // v1.0
func (t *Tracker) Start(ctx context.Context, inst *dsl.Instance, caller *models.Message, now time.Time) (*Activation, error) {
	allowed, err := t.throttle.Allow(ctx, inst.Key.String(), now)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, errors.ThrottledError(inst.Key.String())
	}

	act := &Activation{
		ID:          uuid.New().String(),
		Instance:    inst,
		Values:      inst.Constants.Clone(),
		Phase:       PhaseGathering,
		Outstanding: map[string]struct{}{Sentinel: {}},
		Caller:      caller,
		CreatedAt:   now,
		Stalled:     inst.Declared > 0 && len(inst.Variables) == 0,
	}
	t.activations[act.ID] = act
	return act, nil
}

// Expect регистрирует токен запроса переменной до его отправки // v1.0
func (t *Tracker) Expect(act *Activation, token, variable string) {
	act.Outstanding[token] = struct{}{}
	t.tokens[token] = correlation{
		activationID: act.ID,
		key:          act.Instance.Key,
		variable:     variable,
	}
}

// Resolve сохраняет значение по токену. Возвращает false, если токен неизвестен
// или активация уже уничтожена // v1.0
func (t *Tracker) Resolve(token string, value interface{}) (*Activation, bool) {
	corr, ok := t.tokens[token]
	if !ok {
		return nil, false
	}
	delete(t.tokens, token)

	act, ok := t.activations[corr.activationID]
	if !ok || act.Phase != PhaseGathering {
		return nil, false
	}
	if _, pending := act.Outstanding[token]; !pending {
		return nil, false
	}

	act.Values[corr.variable] = value
	delete(act.Outstanding, token)
	return act, true
}

// Ready сообщает, что остался только Sentinel // v1.0
func (t *Tracker) Ready(act *Activation) bool {
	if act.Stalled || act.Phase != PhaseGathering {
		return false
	}
	_, hasSentinel := act.Outstanding[Sentinel]
	return hasSentinel && len(act.Outstanding) == 1
}

// Advance снимает Sentinel и переводит активацию к оценке // v1.0
func (t *Tracker) Advance(act *Activation) {
	delete(act.Outstanding, Sentinel)
	act.Phase = PhaseEvaluating
}

// Finish освобождает состояние активации // v1.0
func (t *Tracker) Finish(act *Activation) {
	for token := range act.Outstanding {
		delete(t.tokens, token)
	}
	act.Outstanding = nil
	act.Phase = PhaseDone
	delete(t.activations, act.ID)
}

// Cancel уничтожает активации экземпляра; поздние ответы будут отброшены // v1.0
func (t *Tracker) Cancel(key dsl.InstanceKey) []*Activation {
	var cancelled []*Activation
	for _, act := range t.activations {
		if act.Instance.Key == key {
			cancelled = append(cancelled, act)
		}
	}
	for _, act := range cancelled {
		t.Finish(act)
	}
	return cancelled
}

// Expire уничтожает активации старше ttl // v1.0
func (t *Tracker) Expire(now time.Time, ttl time.Duration) []*Activation {
	var expired []*Activation
	for _, act := range t.activations {
		if now.Sub(act.CreatedAt) >= ttl {
			expired = append(expired, act)
		}
	}
	for _, act := range expired {
		t.Finish(act)
	}
	return expired
}

// Forget сбрасывает ограничитель частоты экземпляра // v1.0
func (t *Tracker) Forget(ctx context.Context, key dsl.InstanceKey) error {
	return t.throttle.Forget(ctx, key.String())
}

// Get возвращает активацию по идентификатору // v1.0
func (t *Tracker) Get(id string) (*Activation, bool) {
	act, ok := t.activations[id]
	return act, ok
}

// Len возвращает число активаций и ожидаемых ответов // v1.0
func (t *Tracker) Len() (activations int, tokens int) {
	return len(t.activations), len(t.tokens)
}

// Snapshot возвращает активации, отсортированные по времени создания // v1.0
func (t *Tracker) Snapshot() []ActivationView {
	views := make([]ActivationView, 0, len(t.activations))
	for _, act := range t.activations {
		views = append(views, ActivationView{
			ID:          act.ID,
			RuleID:      act.Instance.Key.RuleID,
			Macro:       act.Instance.Key.Macro,
			Phase:       act.Phase,
			Outstanding: len(act.Outstanding),
			OnDemand:    act.OnDemand(),
			Stalled:     act.Stalled,
			CreatedAt:   act.CreatedAt,
		})
	}
	sort.Slice(views, func(i, j int) bool {
		if views[i].CreatedAt.Equal(views[j].CreatedAt) {
			return views[i].ID < views[j].ID
		}
		return views[i].CreatedAt.Before(views[j].CreatedAt)
	})
	return views
}

// Throttle возвращает ограничитель частоты // v1.0
func (t *Tracker) Throttle() state.Throttle {
	return t.throttle
}

// filename: internal/alerter/dsl/types.go
package dsl

import (
	"fmt"

	"github.com/myhouse/alerter/internal/alerter/scheduler"
	"github.com/myhouse/alerter/internal/models"
)

// DefaultMacro макрос экземпляра правила без списка macros
const DefaultMacro = "_default_"

// MacroPlaceholder подставляется значением макроса
const MacroPlaceholder = "%i%"

// Типы исполнения правила
const (
	TypeRecurrent = "recurrent"
	TypeRealtime  = "realtime"
)

// Definition определение правила в том виде, в каком оно приходит из конфигурации // v1.0
type Definition struct {
	ID         string                 `yaml:"id,omitempty" json:"id" validate:"required"`
	Text       string                 `yaml:"text" json:"text" validate:"required"`
	Type       string                 `yaml:"type" json:"type" validate:"required,oneof=recurrent realtime"`
	Severity   string                 `yaml:"severity" json:"severity" validate:"required,oneof=info warning alert debug none"`
	Macros     []string               `yaml:"macros,omitempty" json:"macros,omitempty" validate:"dive,required"`
	Constants  map[string]interface{} `yaml:"constants,omitempty" json:"constants,omitempty"`
	Variables  map[string]string      `yaml:"variables,omitempty" json:"variables,omitempty"`
	Conditions [][]string             `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	Actions    []string               `yaml:"actions,omitempty" json:"actions,omitempty"`
	Triggers   []string               `yaml:"triggers,omitempty" json:"triggers,omitempty"`
	Schedule   *Schedule              `yaml:"schedule,omitempty" json:"schedule,omitempty" validate:"required_if=Type recurrent"`
	Disabled   bool                   `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// Schedule расписание recurrent правила: cron выражение, интервал или поля apscheduler // v1.0
type Schedule struct {
	Cron      string `yaml:"cron,omitempty" json:"cron,omitempty"`
	Every     string `yaml:"every,omitempty" json:"every,omitempty"`
	Trigger   string `yaml:"trigger,omitempty" json:"trigger,omitempty"`
	Second    string `yaml:"second,omitempty" json:"second,omitempty"`
	Minute    string `yaml:"minute,omitempty" json:"minute,omitempty"`
	Hour      string `yaml:"hour,omitempty" json:"hour,omitempty"`
	Day       string `yaml:"day,omitempty" json:"day,omitempty"`
	Month     string `yaml:"month,omitempty" json:"month,omitempty"`
	DayOfWeek string `yaml:"day_of_week,omitempty" json:"day_of_week,omitempty"`
	Weeks     int    `yaml:"weeks,omitempty" json:"weeks,omitempty"`
	Days      int    `yaml:"days,omitempty" json:"days,omitempty"`
	Hours     int    `yaml:"hours,omitempty" json:"hours,omitempty"`
	Minutes   int    `yaml:"minutes,omitempty" json:"minutes,omitempty"`
	Seconds   int    `yaml:"seconds,omitempty" json:"seconds,omitempty"`
}

// CronSpec возвращает выражение для планировщика // v1.0
func (s *Schedule) CronSpec() (string, error) {
	if s == nil {
		return "", fmt.Errorf("schedule is missing")
	}
	if s.Cron != "" {
		return s.Cron, nil
	}
	if s.Every != "" {
		return "@every " + s.Every, nil
	}
	return scheduler.Fields{
		Trigger:   s.Trigger,
		Second:    s.Second,
		Minute:    s.Minute,
		Hour:      s.Hour,
		Day:       s.Day,
		Month:     s.Month,
		DayOfWeek: s.DayOfWeek,
		Weeks:     s.Weeks,
		Days:      s.Days,
		Hours:     s.Hours,
		Minutes:   s.Minutes,
		Seconds:   s.Seconds,
	}.CronSpec()
}

// InstanceKey идентифицирует экземпляр правила // v1.0
type InstanceKey struct {
	RuleID string `json:"rule_id"`
	Macro  string `json:"macro"`
}

// String возвращает ключ в виде rule_id/macro // v1.0
func (k InstanceKey) String() string {
	return k.RuleID + "/" + k.Macro
}

// Instance скомпилированный экземпляр правила для одного макроса // v1.0
type Instance struct {
	Key       InstanceKey
	Type      string
	Severity  models.Severity
	Spec      string
	Constants Values
	// Variables содержит только разобранные переменные
	Variables []Variable
	// Declared число объявленных переменных, включая отброшенные
	Declared   int
	Conditions ConditionTree
	Actions    []string
	Text       string
	Triggers   []string
}

// HasDroppedVariables сообщает, что часть переменных не разобрана // v1.0
func (i *Instance) HasDroppedVariables() bool {
	return len(i.Variables) < i.Declared
}

// UnknownPlaceholders возвращает имена %name% из текста, которым не соответствует
// ни переменная, ни константа. Такие места остаются в тексте алерта как есть // v1.0
func (i *Instance) UnknownPlaceholders() []string {
	var unknown []string
	for _, name := range Placeholders(i.Text) {
		if "%"+name+"%" == MacroPlaceholder {
			continue
		}
		if _, ok := i.Variable(name); ok {
			continue
		}
		if _, ok := i.Constants[name]; ok {
			continue
		}
		unknown = append(unknown, name)
	}
	return unknown
}

// Variable возвращает переменную по имени // v1.0
func (i *Instance) Variable(name string) (Variable, bool) {
	for _, v := range i.Variables {
		if v.Name == name {
			return v, true
		}
	}
	return Variable{}, false
}

// Values значения переменных, констант и подвыражений по имени
type Values map[string]interface{}

// Clone возвращает поверхностную копию // v1.0
func (v Values) Clone() Values {
	clone := make(Values, len(v))
	for k, val := range v {
		clone[k] = val
	}
	return clone
}

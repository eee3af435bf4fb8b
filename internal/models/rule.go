// filename: internal/models/rule.go
package models

import (
	"time"
)

// RuleRecord представляет сохраненное определение правила (таблица rules)
type RuleRecord struct {
	ID        string    `json:"id" db:"id"`
	YAML      string    `json:"yaml" db:"yaml"`
	Enabled   bool      `json:"enabled" db:"enabled"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Outcome результат активации правила
type Outcome string

const (
	OutcomeTriggered    Outcome = "triggered"
	OutcomeNotTriggered Outcome = "not_triggered"
	OutcomeExpired      Outcome = "expired"
	OutcomeCancelled    Outcome = "cancelled"
)

// ActivationRecord представляет итог одной активации для журнала
type ActivationRecord struct {
	ID         string                 `json:"id" db:"id"`
	RuleID     string                 `json:"rule_id" db:"rule_id"`
	Macro      string                 `json:"macro" db:"macro"`
	Outcome    Outcome                `json:"outcome" db:"outcome"`
	OnDemand   bool                   `json:"on_demand" db:"on_demand"`
	Values     map[string]interface{} `json:"values" db:"values"`
	StartedAt  time.Time              `json:"started_at" db:"started_at"`
	FinishedAt time.Time              `json:"finished_at" db:"finished_at"`
}

// Duration возвращает длительность активации // v1.0
func (r *ActivationRecord) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

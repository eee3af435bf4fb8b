// filename: internal/models/alert.go
package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Severity уровень важности алерта
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityAlert   Severity = "alert"
	// SeverityDebug вычисляется и пишется в лог, но не сохраняется и не рассылается
	SeverityDebug Severity = "debug"
	// SeverityNone отключает алерт полностью
	SeverityNone Severity = "none"
)

// Alert представляет алерт, сгенерированный правилом
type Alert struct {
	ID       string    `json:"id" db:"id"`
	TS       time.Time `json:"ts" db:"ts"`
	RuleID   string    `json:"rule_id" db:"rule_id"`
	Macro    string    `json:"macro" db:"macro"`
	Severity Severity  `json:"severity" db:"severity"`
	Text     string    `json:"text" db:"text"`
}

// NewAlert создает новый алерт // v1.0
func NewAlert(ruleID, macro string, severity Severity, text string) *Alert {
	return &Alert{
		ID:       uuid.New().String(),
		TS:       time.Now(),
		RuleID:   ruleID,
		Macro:    macro,
		Severity: severity,
		Text:     text,
	}
}

// ToJSON возвращает алерт в JSON формате // v1.0
func (a *Alert) ToJSON() ([]byte, error) {
	return json.Marshal(a)
}

// IsSilent проверяет, отключен ли алерт // v1.0
func (a *Alert) IsSilent() bool {
	return a.Severity == SeverityNone
}

// IsPersisted проверяет, нужно ли сохранять и рассылать алерт // v1.0
func (a *Alert) IsPersisted() bool {
	return a.Severity != SeverityNone && a.Severity != SeverityDebug
}

// NotifyArgs возвращает аргументы рассылки NOTIFY // v1.0
func (a *Alert) NotifyArgs() string {
	return fmt.Sprintf("%s/%s", a.Severity, a.RuleID)
}

// filename: internal/alerter/dsl/actions.go
package dsl

import (
	"fmt"
	"strings"
)

// Команды действий
const (
	ActionSet  = "SET"
	ActionPoll = "POLL"
	ActionRun  = "RUN"
)

// Action разобранное действие правила // v1.0
type Action struct {
	Command string
	Target  string
	// Value литерал SET или макрос RUN
	Value string
}

// ParseAction разбирает строку действия после подстановки плейсхолдеров // v1.0
func ParseAction(raw string) (Action, error) {
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		return Action{}, fmt.Errorf("empty action")
	}

	action := Action{Command: parts[0]}
	switch action.Command {
	case ActionSet:
		if len(parts) < 3 {
			return Action{}, fmt.Errorf("action %q: SET needs a target and a value", raw)
		}
		action.Target = parts[1]
		// значение может содержать пробелы
		action.Value = strings.Join(parts[2:], " ")
	case ActionPoll:
		if len(parts) != 2 {
			return Action{}, fmt.Errorf("action %q: POLL needs exactly one target", raw)
		}
		action.Target = parts[1]
	case ActionRun:
		if len(parts) < 2 || len(parts) > 3 {
			return Action{}, fmt.Errorf("action %q: RUN needs a rule id and an optional macro", raw)
		}
		action.Target = parts[1]
		if len(parts) == 3 {
			action.Value = parts[2]
		}
	default:
		return Action{}, fmt.Errorf("action %q: unknown command %s", raw, action.Command)
	}

	return action, nil
}

// String возвращает действие в исходной форме // v1.0
func (a Action) String() string {
	if a.Value == "" {
		return a.Command + " " + a.Target
	}
	return a.Command + " " + a.Target + " " + a.Value
}

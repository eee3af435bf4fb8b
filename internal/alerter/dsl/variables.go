// filename: internal/alerter/dsl/variables.go
package dsl

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Unbounded граница окна запроса без ограничения
const Unbounded = -1

var variablePattern = regexp.MustCompile(`^(DISTANCE|TIMESTAMP|ELAPSED|COUNT|SCHEDULE|POSITION_LABEL|POSITION_TEXT|)\s*(-\d+)?(,-\d+)?\s*(\S+)$`)

// Variable разобранная спецификация переменной "FUNC -start,-end target" // v1.0
type Variable struct {
	Name     string `json:"name"`
	Raw      string `json:"raw"`
	Function string `json:"function,omitempty"`
	Start    int    `json:"start"`
	End      int    `json:"end"`
	Target   string `json:"target"`
}

// ParseVariable разбирает строку переменной // v1.0
func ParseVariable(name, raw string) (Variable, error) {
	m := variablePattern.FindStringSubmatch(strings.TrimSpace(raw))
	if m == nil {
		return Variable{}, fmt.Errorf("variable %s: cannot parse %q", name, raw)
	}

	v := Variable{
		Name:     name,
		Raw:      raw,
		Function: m[1],
		Start:    Unbounded,
		End:      Unbounded,
		Target:   m[4],
	}

	if m[2] != "" {
		start, err := strconv.Atoi(m[2])
		if err != nil {
			return Variable{}, fmt.Errorf("variable %s: bad start %q", name, m[2])
		}
		v.Start = start
	}

	if m[3] != "" {
		end, err := strconv.Atoi(strings.TrimPrefix(m[3], ","))
		if err != nil {
			return Variable{}, fmt.Errorf("variable %s: bad end %q", name, m[3])
		}
		v.End = end
	}

	return v, nil
}

// Command возвращает команду запроса к хранилищу // v1.0
func (v Variable) Command() string {
	if v.Function == "" {
		return "GET"
	}
	return "GET_" + v.Function
}

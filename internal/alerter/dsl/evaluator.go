// filename: internal/alerter/dsl/evaluator.go
package dsl

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Операторы сравнения
const (
	OpEqual    = "=="
	OpNotEqual = "!="
	OpGreater  = ">"
	OpLess     = "<"
	OpIn       = "in"
)

// Арифметические операторы подвыражений
const (
	OpAdd = "+"
	OpSub = "-"
	OpMul = "*"
	OpDiv = "/"
)

// IsComparison проверяет оператор сравнения // v1.0
func IsComparison(op string) bool {
	switch op {
	case OpEqual, OpNotEqual, OpGreater, OpLess, OpIn:
		return true
	}
	return false
}

// IsArithmetic проверяет арифметический оператор // v1.0
func IsArithmetic(op string) bool {
	switch op {
	case OpAdd, OpSub, OpMul, OpDiv:
		return true
	}
	return false
}

// Normalize приводит операнд к скаляру: список дает первый элемент,
// пара [timestamp, value] дает value. ok == false для пустого списка // v1.0
func Normalize(v interface{}) (interface{}, bool) {
	list, isList := v.([]interface{})
	if !isList {
		return v, true
	}
	if len(list) == 0 {
		return nil, false
	}
	first := list[0]
	if pair, isPair := first.([]interface{}); isPair {
		if len(pair) == 2 {
			return pair[1], true
		}
		if len(pair) == 0 {
			return nil, false
		}
		return pair[0], true
	}
	return first, true
}

// ToNumber пытается представить значение числом // v1.0
func ToNumber(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		// "inf" и "nan" разбираются ParseFloat, но числами показаний не являются
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// FormatValue возвращает строковое представление значения // v1.0
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(val)
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, FormatValue(item))
		}
		return strings.Join(parts, ",")
	default:
		return fmt.Sprint(val)
	}
}

// Calculate вычисляет арифметическое подвыражение; nil если операнды не числа
// или деление на ноль. Никогда не паникует // v1.0
func Calculate(a interface{}, op string, b interface{}) interface{} {
	a, _ = Normalize(a)
	b, _ = Normalize(b)
	if a == nil || b == nil {
		return nil
	}

	x, ok := ToNumber(a)
	if !ok {
		return nil
	}
	y, ok := ToNumber(b)
	if !ok {
		return nil
	}

	switch op {
	case OpAdd:
		return x + y
	case OpSub:
		return x - y
	case OpMul:
		return x * y
	case OpDiv:
		if y == 0 {
			return nil
		}
		return x / y
	}
	return nil
}

// Compare вычисляет атом условия "a op b". Если b список, условие должно
// выполняться для каждого его элемента // v1.0
func Compare(a interface{}, op string, b interface{}) bool {
	left, ok := Normalize(a)
	if !ok || left == nil {
		return false
	}

	if op == OpIn {
		if b == nil {
			return false
		}
		return strings.Contains(FormatValue(b), FormatValue(left))
	}

	rights, isList := b.([]interface{})
	if !isList {
		rights = []interface{}{b}
	}
	if len(rights) == 0 {
		return false
	}

	for _, r := range rights {
		// элементы-пары [timestamp, value] сравниваются по значению
		if pair, isPair := r.([]interface{}); isPair {
			r, _ = Normalize([]interface{}{pair})
		}
		if !compareScalar(left, op, r) {
			return false
		}
	}
	return true
}

func compareScalar(a interface{}, op string, b interface{}) bool {
	if b == nil {
		return false
	}

	switch op {
	case OpEqual:
		return equal(a, b)
	case OpNotEqual:
		return !equal(a, b)
	case OpGreater, OpLess:
		x, ok := ToNumber(a)
		if !ok {
			return false
		}
		y, ok := ToNumber(b)
		if !ok {
			return false
		}
		if op == OpGreater {
			return x > y
		}
		return x < y
	}
	return false
}

// equal сравнивает числа численно, остальное по строковому представлению
func equal(a, b interface{}) bool {
	x, okA := ToNumber(a)
	y, okB := ToNumber(b)
	if okA && okB {
		return x == y
	}
	return FormatValue(a) == FormatValue(b)
}

// filename: internal/alerter/dsl/conditions.go
package dsl

import (
	"fmt"
	"regexp"
	"strings"
)

// innermost подвыражение в скобках без вложенных скобок
var subExpressionPattern = regexp.MustCompile(`\(([^()]+)\)`)

var spaces = regexp.MustCompile(`\s+`)

// SubExpression арифметическое подвыражение, вычисляемое в синтетическую переменную
type SubExpression struct {
	Name  string `json:"name"`
	Left  string `json:"left"`
	Op    string `json:"op"`
	Right string `json:"right"`
}

// Atom атом условия "left op right" с подвыражениями в порядке вычисления
type Atom struct {
	Raw   string          `json:"raw"`
	Subs  []SubExpression `json:"subs,omitempty"`
	Left  string          `json:"left"`
	Op    string          `json:"op"`
	Right string          `json:"right"`
}

// Conjunction блок AND. Invalid означает, что все атомы блока были отброшены
type Conjunction struct {
	Atoms   []Atom `json:"atoms"`
	Invalid bool   `json:"invalid,omitempty"`
}

// ConditionTree дизъюнкция конъюнкций; пустое дерево истинно
type ConditionTree struct {
	Blocks []Conjunction `json:"blocks"`
}

// Trace получает результат каждого шага вычисления для отладочного лога
type Trace func(expr string, result interface{})

// CompileConditions разбирает блоки условий. Некорректные атомы отбрасываются,
// а ошибки возвращаются для журналирования // v1.0
func CompileConditions(blocks [][]string) (ConditionTree, []error) {
	var (
		tree    ConditionTree
		errs    []error
		counter int
	)

	for _, block := range blocks {
		var conj Conjunction
		for _, raw := range block {
			atom, err := compileAtom(raw, &counter)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			conj.Atoms = append(conj.Atoms, atom)
		}
		if len(block) > 0 && len(conj.Atoms) == 0 {
			conj.Invalid = true
		}
		tree.Blocks = append(tree.Blocks, conj)
	}

	return tree, errs
}

func compileAtom(raw string, counter *int) (Atom, error) {
	expr := strings.TrimSpace(spaces.ReplaceAllString(raw, " "))
	atom := Atom{Raw: raw}

	for {
		loc := subExpressionPattern.FindStringSubmatchIndex(expr)
		if loc == nil {
			break
		}
		inner := strings.TrimSpace(expr[loc[2]:loc[3]])
		parts := strings.Split(inner, " ")
		if len(parts) != 3 || !IsArithmetic(parts[1]) {
			return Atom{}, fmt.Errorf("condition %q: bad sub-expression %q", raw, inner)
		}

		name := fmt.Sprintf("%%exp_%d%%", *counter)
		*counter++
		atom.Subs = append(atom.Subs, SubExpression{
			Name:  name,
			Left:  parts[0],
			Op:    parts[1],
			Right: parts[2],
		})
		expr = expr[:loc[0]] + name + expr[loc[1]:]
	}

	if strings.ContainsAny(expr, "()") {
		return Atom{}, fmt.Errorf("condition %q: unbalanced parentheses", raw)
	}

	parts := strings.Split(expr, " ")
	if len(parts) != 3 || !IsComparison(parts[1]) {
		return Atom{}, fmt.Errorf("condition %q: expected \"left op right\"", raw)
	}

	atom.Left, atom.Op, atom.Right = parts[0], parts[1], parts[2]
	return atom, nil
}

// Evaluate вычисляет дерево над значениями активации // v1.0
func (t ConditionTree) Evaluate(values Values, trace Trace) bool {
	if len(t.Blocks) == 0 {
		return true
	}

	scratch := values.Clone()
	for _, block := range t.Blocks {
		if block.evaluate(scratch, trace) {
			return true
		}
	}
	return false
}

// IsEmpty сообщает, что условия не объявлены // v1.0
func (t ConditionTree) IsEmpty() bool {
	return len(t.Blocks) == 0
}

func (c Conjunction) evaluate(values Values, trace Trace) bool {
	if c.Invalid {
		return false
	}

	for _, atom := range c.Atoms {
		if !atom.evaluate(values, trace) {
			return false
		}
	}
	return true
}

func (a Atom) evaluate(values Values, trace Trace) bool {
	for _, sub := range a.Subs {
		result := Calculate(resolve(values, sub.Left), sub.Op, resolve(values, sub.Right))
		values[sub.Name] = result
		if trace != nil {
			trace(fmt.Sprintf("%s %s %s", sub.Left, sub.Op, sub.Right), result)
		}
	}

	result := Compare(resolve(values, a.Left), a.Op, resolve(values, a.Right))
	if trace != nil {
		trace(a.Raw, result)
	}
	return result
}

// resolve ищет операнд среди значений; числовой литерал возвращается как есть
func resolve(values Values, name string) interface{} {
	if v, ok := values[name]; ok {
		return v
	}
	if n, ok := ToNumber(name); ok {
		return n
	}
	return nil
}

// filename: internal/alerter/dsl/placeholders.go
package dsl

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`%([^%\s]+)%`)

// UnitFunc возвращает единицу измерения для имени переменной или ""
type UnitFunc func(name string) string

// ExpandMacro подставляет макрос вместо %i% // v1.0
func ExpandMacro(s, macro string) string {
	return strings.ReplaceAll(s, MacroPlaceholder, macro)
}

// FormatPlaceholders заменяет %name% значением с единицей измерения.
// Неизвестные имена остаются как есть // v1.0
func FormatPlaceholders(text string, values Values, unit UnitFunc) string {
	return placeholderPattern.ReplaceAllStringFunc(text, func(match string) string {
		name := match[1 : len(match)-1]
		raw, ok := values[name]
		if !ok {
			return match
		}

		value, ok := Normalize(raw)
		if !ok {
			return ""
		}

		formatted := FormatValue(value)
		if unit != nil && formatted != "" {
			formatted += unit(name)
		}
		return formatted
	})
}

// Placeholders возвращает имена всех %name% в тексте // v1.0
func Placeholders(text string) []string {
	matches := placeholderPattern.FindAllStringSubmatch(text, -1)
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		names = append(names, m[1])
	}
	return names
}

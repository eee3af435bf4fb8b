// filename: internal/alerter/scheduler/spec.go
package scheduler

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Fields расписание в стиле apscheduler: trigger cron с полями или trigger interval
type Fields struct {
	Trigger   string
	Second    string
	Minute    string
	Hour      string
	Day       string
	Month     string
	DayOfWeek string
	Weeks     int
	Days      int
	Hours     int
	Minutes   int
	Seconds   int
}

// CronSpec переводит поля в выражение cron с секундами // v1.0
func (f Fields) CronSpec() (string, error) {
	switch f.Trigger {
	case "interval":
		return f.intervalSpec()
	case "", "cron":
		return f.cronSpec()
	default:
		return "", fmt.Errorf("unsupported trigger: %s", f.Trigger)
	}
}

func (f Fields) intervalSpec() (string, error) {
	d := time.Duration(f.Weeks)*7*24*time.Hour +
		time.Duration(f.Days)*24*time.Hour +
		time.Duration(f.Hours)*time.Hour +
		time.Duration(f.Minutes)*time.Minute +
		time.Duration(f.Seconds)*time.Second
	if d <= 0 {
		return "", fmt.Errorf("interval must be positive")
	}
	return "@every " + d.String(), nil
}

// cronSpec: поля старше самого младшего заданного равны "*", младше равны минимуму
func (f Fields) cronSpec() (string, error) {
	values := []string{f.Second, f.Minute, f.Hour, f.Day, f.Month}
	minimums := []string{"0", "0", "0", "1", "1"}

	lowest := -1
	for i, v := range values {
		if strings.TrimSpace(v) != "" {
			lowest = i
			break
		}
	}
	if lowest == -1 && strings.TrimSpace(f.DayOfWeek) == "" {
		return "", fmt.Errorf("cron trigger needs at least one field")
	}

	out := make([]string, 0, 6)
	for i, v := range values {
		v = strings.TrimSpace(v)
		switch {
		case v != "":
			out = append(out, v)
		case lowest == -1 || i < lowest:
			out = append(out, minimums[i])
		default:
			out = append(out, "*")
		}
	}

	dow, err := convertDayOfWeek(strings.TrimSpace(f.DayOfWeek))
	if err != nil {
		return "", err
	}
	out = append(out, dow)

	// При заданном только дне недели время по умолчанию полночь
	if lowest == -1 {
		out[0], out[1], out[2] = "0", "0", "0"
		out[3], out[4] = "*", "*"
	}

	return strings.Join(out, " "), nil
}

// convertDayOfWeek переводит нумерацию apscheduler (0 = понедельник) в cron (0 = воскресенье).
// Диапазон, заканчивающийся воскресеньем, в cron переходит через 0 и раскрывается в список
func convertDayOfWeek(v string) (string, error) {
	if v == "" {
		return "*", nil
	}

	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		converted, err := convertDayItem(strings.TrimSpace(part))
		if err != nil {
			return "", fmt.Errorf("invalid day_of_week %q: %w", v, err)
		}
		out = append(out, converted)
	}
	return strings.Join(out, ","), nil
}

// convertDayItem переводит один элемент списка: "*", "*/n", имя, "a", "a-b", "a-b/n"
func convertDayItem(item string) (string, error) {
	if item == "" {
		return "", fmt.Errorf("empty element")
	}
	if strings.HasPrefix(item, "*") || item[0] < '0' || item[0] > '9' {
		// имена дней в cron совпадают с apscheduler
		return item, nil
	}

	rng, stepText, hasStep := strings.Cut(item, "/")
	step := 1
	if hasStep {
		n, err := strconv.Atoi(stepText)
		if err != nil || n <= 0 {
			return "", fmt.Errorf("bad step %q", stepText)
		}
		step = n
	}

	lowText, highText, isRange := strings.Cut(rng, "-")
	low, err := parseDay(lowText)
	if err != nil {
		return "", err
	}
	if !isRange {
		if hasStep {
			return "", fmt.Errorf("step without range in %q", item)
		}
		return strconv.Itoa(cronDay(low)), nil
	}

	high, err := parseDay(highText)
	if err != nil {
		return "", err
	}
	if low > high {
		return "", fmt.Errorf("range %q goes backwards", rng)
	}

	if cronDay(low) <= cronDay(high) {
		spec := fmt.Sprintf("%d-%d", cronDay(low), cronDay(high))
		if hasStep {
			spec += "/" + stepText
		}
		return spec, nil
	}

	days := make([]string, 0, 7)
	for d := low; d <= high; d += step {
		days = append(days, strconv.Itoa(cronDay(d)))
	}
	return strings.Join(days, ","), nil
}

func parseDay(v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 || n > 6 {
		return 0, fmt.Errorf("day %q is out of 0-6", v)
	}
	return n, nil
}

// cronDay номер дня apscheduler в нумерации cron
func cronDay(n int) int {
	return (n + 1) % 7
}

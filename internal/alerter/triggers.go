// filename: internal/alerter/triggers.go
package alerter

import (
	"sort"
	"strings"

	"github.com/myhouse/alerter/internal/alerter/dsl"
)

// TriggerIndex отображает наблюдаемый идентификатор на экземпляры realtime правил.
// Пустые списки удаляются // v1.0
type TriggerIndex struct {
	entries map[string][]dsl.InstanceKey
}

// NewTriggerIndex создает пустой индекс // v1.0
func NewTriggerIndex() *TriggerIndex {
	return &TriggerIndex{entries: make(map[string][]dsl.InstanceKey)}
}

// Add регистрирует экземпляр под ключом; повторная регистрация игнорируется // v1.0
func (t *TriggerIndex) Add(trigger string, key dsl.InstanceKey) {
	for _, existing := range t.entries[trigger] {
		if existing == key {
			return
		}
	}
	t.entries[trigger] = append(t.entries[trigger], key)
}

// Remove удаляет экземпляр из всех ключей // v1.0
func (t *TriggerIndex) Remove(key dsl.InstanceKey) {
	for trigger, keys := range t.entries {
		kept := keys[:0]
		for _, k := range keys {
			if k != key {
				kept = append(kept, k)
			}
		}
		if len(kept) == 0 {
			delete(t.entries, trigger)
		} else {
			t.entries[trigger] = kept
		}
	}
}

// Match возвращает экземпляры, чей ключ равен объявленному идентификатору
// или является его префиксом по пути. Каждый экземпляр возвращается один раз // v1.0
func (t *TriggerIndex) Match(announced string) []dsl.InstanceKey {
	seen := make(map[dsl.InstanceKey]bool)
	var matched []dsl.InstanceKey

	for trigger, keys := range t.entries {
		if announced != trigger && !strings.HasPrefix(announced, trigger+"/") {
			continue
		}
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				matched = append(matched, k)
			}
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].String() < matched[j].String()
	})
	return matched
}

// Keys возвращает зарегистрированные ключи // v1.0
func (t *TriggerIndex) Keys() []string {
	keys := make([]string, 0, len(t.entries))
	for k := range t.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Snapshot возвращает копию индекса с ключами экземпляров в виде строк // v1.0
func (t *TriggerIndex) Snapshot() map[string][]string {
	out := make(map[string][]string, len(t.entries))
	for trigger, keys := range t.entries {
		names := make([]string, 0, len(keys))
		for _, k := range keys {
			names = append(names, k.String())
		}
		out[trigger] = names
	}
	return out
}

// Len возвращает число ключей // v1.0
func (t *TriggerIndex) Len() int {
	return len(t.entries)
}

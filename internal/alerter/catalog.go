// filename: internal/alerter/catalog.go
package alerter

import (
	"sort"
	"strings"
	"time"

	"github.com/myhouse/alerter/internal/alerter/dsl"
)

// SensorInfo описание датчика из справочника
type SensorInfo struct {
	Description string `json:"description" yaml:"description"`
	Unit        string `json:"unit" yaml:"unit"`
}

// RuleEntry загруженное правило и его экземпляры
type RuleEntry struct {
	Definition *dsl.Definition
	Instances  []*dsl.Instance
	LoadedAt   time.Time
}

// Catalog хранит скомпилированные правила, индекс триггеров и справочник датчиков.
// Не потокобезопасен: им владеет цикл движка // v1.0
type Catalog struct {
	rules     map[string]*RuleEntry
	instances map[dsl.InstanceKey]*dsl.Instance
	triggers  *TriggerIndex
	sensors   map[string]SensorInfo
}

// NewCatalog создает пустой каталог // v1.0
func NewCatalog() *Catalog {
	return &Catalog{
		rules:     make(map[string]*RuleEntry),
		instances: make(map[dsl.InstanceKey]*dsl.Instance),
		triggers:  NewTriggerIndex(),
		sensors:   make(map[string]SensorInfo),
	}
}

// Put регистрирует правило. Предыдущие экземпляры правила должны быть удалены через Remove // v1.0
func (c *Catalog) Put(def *dsl.Definition, instances []*dsl.Instance, now time.Time) {
	c.rules[def.ID] = &RuleEntry{
		Definition: def,
		Instances:  instances,
		LoadedAt:   now,
	}
	for _, inst := range instances {
		c.instances[inst.Key] = inst
	}
}

// Remove удаляет правило и возвращает его экземпляры // v1.0
func (c *Catalog) Remove(ruleID string) []*dsl.Instance {
	entry, ok := c.rules[ruleID]
	if !ok {
		return nil
	}
	delete(c.rules, ruleID)
	for _, inst := range entry.Instances {
		delete(c.instances, inst.Key)
		c.triggers.Remove(inst.Key)
	}
	return entry.Instances
}

// Rule возвращает правило по идентификатору // v1.0
func (c *Catalog) Rule(ruleID string) (*RuleEntry, bool) {
	entry, ok := c.rules[ruleID]
	return entry, ok
}

// Rules возвращает правила, отсортированные по идентификатору // v1.0
func (c *Catalog) Rules() []*RuleEntry {
	entries := make([]*RuleEntry, 0, len(c.rules))
	for _, entry := range c.rules {
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Definition.ID < entries[j].Definition.ID
	})
	return entries
}

// Instance возвращает экземпляр по ключу // v1.0
func (c *Catalog) Instance(key dsl.InstanceKey) (*dsl.Instance, bool) {
	inst, ok := c.instances[key]
	return inst, ok
}

// Len возвращает число правил и экземпляров // v1.0
func (c *Catalog) Len() (rules int, instances int) {
	return len(c.rules), len(c.instances)
}

// Triggers возвращает индекс триггеров // v1.0
func (c *Catalog) Triggers() *TriggerIndex {
	return c.triggers
}

// SetSensor сохраняет описание датчика // v1.0
func (c *Catalog) SetSensor(id string, info SensorInfo) {
	c.sensors[id] = info
}

// RemoveSensor удаляет описание датчика // v1.0
func (c *Catalog) RemoveSensor(id string) {
	delete(c.sensors, id)
}

// Sensor возвращает описание датчика // v1.0
func (c *Catalog) Sensor(id string) (SensorInfo, bool) {
	info, ok := c.sensors[id]
	return info, ok
}

// Describe возвращает описание макроса или сам макрос // v1.0
func (c *Catalog) Describe(macro string) string {
	if info, ok := c.sensors[macro]; ok && info.Description != "" {
		return info.Description
	}
	return macro
}

// UnitOf ищет единицу измерения по цели переменной, поднимаясь по пути
// (outdoor/temperature/day/avg -> outdoor/temperature) // v1.0
func (c *Catalog) UnitOf(target string) string {
	for key := target; key != ""; {
		if info, ok := c.sensors[key]; ok && info.Unit != "" {
			return info.Unit
		}
		idx := strings.LastIndex(key, "/")
		if idx < 0 {
			break
		}
		key = key[:idx]
	}
	return ""
}

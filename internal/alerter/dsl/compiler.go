// filename: internal/alerter/dsl/compiler.go
package dsl

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/myhouse/alerter/internal/alerter/scheduler"
	"github.com/myhouse/alerter/internal/common/errors"
	"github.com/myhouse/alerter/internal/common/logging"
	"github.com/myhouse/alerter/internal/models"
)

// Compiler проверяет определения правил и раскрывает их в экземпляры // v1.0
type Compiler struct {
	validate *validator.Validate
	logger   *logging.Logger
}

// NewCompiler создает новый компилятор DSL // v1.0
func NewCompiler(logger *logging.Logger) *Compiler {
	return &Compiler{
		validate: validator.New(),
		logger:   logger,
	}
}

// DecodeDefinition разбирает определение из YAML строки или из payload сообщения.
// Неизвестные поля считаются ошибкой // v1.0
func DecodeDefinition(id string, data interface{}) (*Definition, error) {
	var raw []byte
	switch d := data.(type) {
	case nil:
		return nil, errors.New(errors.ErrorCodeRuleInvalid, "definition is empty")
	case string:
		raw = []byte(d)
	case []byte:
		raw = d
	default:
		out, err := yaml.Marshal(d)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorCodeRuleInvalid, "cannot encode definition")
		}
		raw = out
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, errors.Wrap(err, errors.ErrorCodeRuleInvalid, "cannot decode definition").
			AddDetail("rule_id", id)
	}

	if id != "" {
		def.ID = id
	}
	return &def, nil
}

// Validate проверяет обязательные поля, тип, важность и расписание // v1.0
func (c *Compiler) Validate(def *Definition) error {
	if err := c.validate.Struct(def); err != nil {
		return errors.Wrap(err, errors.ErrorCodeRuleInvalid, describeValidation(err)).
			AddDetail("rule_id", def.ID)
	}

	if def.Type == TypeRecurrent {
		spec, err := def.Schedule.CronSpec()
		if err != nil {
			return errors.Wrap(err, errors.ErrorCodeScheduleInvalid, "cannot build schedule").
				AddDetail("rule_id", def.ID)
		}
		if err := scheduler.Validate(spec); err != nil {
			return errors.Wrap(err, errors.ErrorCodeScheduleInvalid, "invalid schedule").
				AddDetail("rule_id", def.ID)
		}
	}

	return nil
}

// describeValidation превращает ошибки validator в короткий текст
func describeValidation(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}

	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return "invalid definition: " + strings.Join(parts, ", ")
}

// Compile проверяет определение и раскрывает его по макросам.
// Некорректные переменные, условия и действия отбрасываются с предупреждением // v1.0
func (c *Compiler) Compile(def *Definition) ([]*Instance, error) {
	if err := c.Validate(def); err != nil {
		return nil, err
	}

	var spec string
	if def.Type == TypeRecurrent {
		// Validate уже проверил расписание
		spec, _ = def.Schedule.CronSpec()
	}

	tree, condErrs := CompileConditions(def.Conditions)
	for _, err := range condErrs {
		c.logger.WithRule(def.ID, "").WithError(err).Warn("Dropping malformed condition")
	}

	names := make([]string, 0, len(def.Variables))
	for name := range def.Variables {
		names = append(names, name)
	}
	sort.Strings(names)

	macros := def.Macros
	if len(macros) == 0 {
		macros = []string{DefaultMacro}
	}

	seen := make(map[string]bool, len(macros))
	instances := make([]*Instance, 0, len(macros))
	for _, macro := range macros {
		if seen[macro] {
			c.logger.WithRule(def.ID, macro).Warn("Duplicate macro ignored")
			continue
		}
		seen[macro] = true
		instances = append(instances, c.expand(def, macro, spec, names, tree))
	}

	return instances, nil
}

// expand строит экземпляр правила для одного макроса
func (c *Compiler) expand(def *Definition, macro, spec string, names []string, tree ConditionTree) *Instance {
	log := c.logger.WithRule(def.ID, macro)

	inst := &Instance{
		Key:        InstanceKey{RuleID: def.ID, Macro: macro},
		Type:       def.Type,
		Severity:   models.Severity(def.Severity),
		Spec:       spec,
		Constants:  make(Values, len(def.Constants)),
		Declared:   len(names),
		Conditions: tree,
		Text:       def.Text,
	}

	for name, value := range def.Constants {
		if text, ok := value.(string); ok {
			value = ExpandMacro(text, macro)
		}
		inst.Constants[name] = value
	}

	for _, name := range names {
		v, err := ParseVariable(name, ExpandMacro(def.Variables[name], macro))
		if err != nil {
			log.WithError(err).Warn("Dropping malformed variable")
			continue
		}
		inst.Variables = append(inst.Variables, v)
	}

	for _, raw := range def.Actions {
		action := ExpandMacro(strings.Join(strings.Fields(raw), " "), macro)
		if _, err := ParseAction(action); err != nil {
			log.WithError(err).Warn("Dropping malformed action")
			continue
		}
		inst.Actions = append(inst.Actions, action)
	}

	if unknown := inst.UnknownPlaceholders(); len(unknown) > 0 {
		log.WithField("placeholders", unknown).Warn("Text references unknown placeholders")
	}

	if def.Type == TypeRealtime {
		for _, trigger := range def.Triggers {
			inst.Triggers = append(inst.Triggers, ExpandMacro(trigger, macro))
		}
	}

	return inst
}

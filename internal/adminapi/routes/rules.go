// filename: internal/adminapi/routes/rules.go
package routes

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gopkg.in/yaml.v3"

	"github.com/myhouse/alerter/internal/alerter"
	"github.com/myhouse/alerter/internal/alerter/dsl"
	"github.com/myhouse/alerter/internal/common/errors"
	"github.com/myhouse/alerter/internal/common/logging"
	"github.com/myhouse/alerter/internal/models"
)

// maxRuleSize ограничивает тело запроса с определением правила
const maxRuleSize = 1 << 20

// Engine операции движка правил, доступные через API; реализуется alerter.Engine
type Engine interface {
	ListRules(ctx context.Context) ([]alerter.RuleView, error)
	GetRule(ctx context.Context, ruleID string) (*alerter.RuleView, []alerter.InstanceView, error)
	PutRule(ctx context.Context, def *dsl.Definition) error
	DeleteRule(ctx context.Context, ruleID string) error
	RunRule(ctx context.Context, ruleID, macro string) ([]string, error)
	ListActivations(ctx context.Context) ([]alerter.ActivationView, error)
	ListTriggers(ctx context.Context) (map[string][]string, error)
	GetStats(ctx context.Context) (alerter.Stats, error)
	SetSensor(ctx context.Context, id string, info alerter.SensorInfo) error
}

// RuleStore сохраняет определения правил; реализуется pg.Client
type RuleStore interface {
	UpsertRule(ctx context.Context, rec models.RuleRecord) error
	DeleteRule(ctx context.Context, id string) error
}

// ActivationCounter считает активации в журнале; реализуется ch.Client
type ActivationCounter interface {
	CountActivations(ctx context.Context, ruleID string, outcome models.Outcome) (uint64, error)
}

// RulesHandler обработчик для работы с правилами // v1.0
type RulesHandler struct {
	logger   *logging.Logger
	engine   Engine
	compiler *dsl.Compiler
	store    RuleStore
	counter  ActivationCounter
	timeout  time.Duration
}

// NewRulesHandler создает новый обработчик правил. store и counter могут быть nil // v1.0
func NewRulesHandler(logger *logging.Logger, engine Engine, store RuleStore, counter ActivationCounter) *RulesHandler {
	return &RulesHandler{
		logger:   logger,
		engine:   engine,
		compiler: dsl.NewCompiler(logger),
		store:    store,
		counter:  counter,
		timeout:  5 * time.Second,
	}
}

// GetRules возвращает список загруженных правил // v1.0
func (h *RulesHandler) GetRules(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	rules, err := h.engine.ListRules(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if rules == nil {
		rules = []alerter.RuleView{}
	}

	c.JSON(http.StatusOK, gin.H{
		"rules": rules,
		"total": len(rules),
	})
}

// GetRuleByID возвращает правило и его экземпляры // v1.0
func (h *RulesHandler) GetRuleByID(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	rule, instances, err := h.engine.GetRule(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"rule":      rule,
		"instances": instances,
	})
}

// PutRule создает или заменяет правило. Тело: YAML или JSON определение // v1.0
func (h *RulesHandler) PutRule(c *gin.Context) {
	ruleID := c.Param("id")
	def, raw, err := h.readDefinition(c, ruleID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.engine.PutRule(ctx, def); err != nil {
		h.respondError(c, err)
		return
	}

	if h.store != nil {
		rec := models.RuleRecord{
			ID:        ruleID,
			YAML:      raw,
			Enabled:   !def.Disabled,
			UpdatedAt: time.Now().UTC(),
		}
		if err := h.store.UpsertRule(ctx, rec); err != nil {
			h.respondError(c, errors.Wrap(err, errors.ErrorCodePGQuery, "rule applied but not persisted"))
			return
		}
	}

	h.logger.WithRule(ruleID, "").Info("Rule updated through admin API")
	c.JSON(http.StatusOK, gin.H{
		"id":       ruleID,
		"disabled": def.Disabled,
	})
}

// DeleteRule снимает правило // v1.0
func (h *RulesHandler) DeleteRule(c *gin.Context) {
	ruleID := c.Param("id")

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	engineErr := h.engine.DeleteRule(ctx, ruleID)
	if engineErr != nil && !errors.IsErrorCode(engineErr, errors.ErrorCodeRuleNotFound) {
		h.respondError(c, engineErr)
		return
	}

	if h.store != nil {
		if err := h.store.DeleteRule(ctx, ruleID); err != nil {
			h.respondError(c, errors.Wrap(err, errors.ErrorCodePGQuery, "failed to delete stored rule"))
			return
		}
	} else if engineErr != nil {
		h.respondError(c, engineErr)
		return
	}

	c.Status(http.StatusNoContent)
}

// ValidateRule проверяет определение без загрузки // v1.0
func (h *RulesHandler) ValidateRule(c *gin.Context) {
	def, _, err := h.readDefinition(c, c.Query("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	if def.ID == "" {
		def.ID = "validate"
	}

	instances, err := h.compiler.Compile(def)
	if err != nil {
		h.respondError(c, err)
		return
	}

	dropped := 0
	keys := make([]string, 0, len(instances))
	unknown := []string{}
	for _, inst := range instances {
		keys = append(keys, inst.Key.String())
		if inst.HasDroppedVariables() {
			dropped += inst.Declared - len(inst.Variables)
		}
	}
	// текст общий для всех экземпляров
	if len(instances) > 0 {
		unknown = append(unknown, instances[0].UnknownPlaceholders()...)
	}

	c.JSON(http.StatusOK, gin.H{
		"valid":                true,
		"instances":            keys,
		"dropped_variables":    dropped,
		"unknown_placeholders": unknown,
	})
}

// RunRule запускает правило вручную // v1.0
func (h *RulesHandler) RunRule(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	started, err := h.engine.RunRule(ctx, c.Param("id"), c.Query("macro"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"activations": started,
	})
}

// GetRuleStats возвращает число активаций правила по итогам из журнала // v1.0
func (h *RulesHandler) GetRuleStats(c *gin.Context) {
	if h.counter == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error":   "JOURNAL_DISABLED",
			"message": "activation journal is not configured",
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	ruleID := c.Param("id")
	outcomes := []models.Outcome{
		models.OutcomeTriggered,
		models.OutcomeNotTriggered,
		models.OutcomeExpired,
		models.OutcomeCancelled,
	}

	counts := gin.H{}
	for _, outcome := range outcomes {
		n, err := h.counter.CountActivations(ctx, ruleID, outcome)
		if err != nil {
			h.respondError(c, errors.Wrap(err, errors.ErrorCodeInternal, "failed to count activations"))
			return
		}
		counts[string(outcome)] = n
	}

	c.JSON(http.StatusOK, gin.H{
		"rule_id":     ruleID,
		"activations": counts,
	})
}

// GetActivations возвращает активации в полете // v1.0
func (h *RulesHandler) GetActivations(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	activations, err := h.engine.ListActivations(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if activations == nil {
		activations = []alerter.ActivationView{}
	}

	c.JSON(http.StatusOK, gin.H{
		"activations": activations,
		"total":       len(activations),
	})
}

// GetTriggers возвращает индекс триггеров realtime правил // v1.0
func (h *RulesHandler) GetTriggers(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	triggers, err := h.engine.ListTriggers(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"triggers": triggers})
}

// GetStats возвращает сводку состояния движка // v1.0
func (h *RulesHandler) GetStats(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	stats, err := h.engine.GetStats(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// PutSensor обновляет описание и единицу измерения датчика. Тело: JSON SensorInfo.
// Запись живет до следующего чтения источника конфигурации // v1.0
func (h *RulesHandler) PutSensor(c *gin.Context) {
	sensorID := strings.Trim(c.Param("id"), "/")
	if sensorID == "" {
		h.respondError(c, errors.ValidationError("id", "sensor id is required"))
		return
	}

	var info alerter.SensorInfo
	if err := c.ShouldBindJSON(&info); err != nil {
		h.respondError(c, errors.Wrap(err, errors.ErrorCodeValidation, "invalid sensor metadata"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	if err := h.engine.SetSensor(ctx, sensorID, info); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":     sensorID,
		"sensor": info,
	})
}

// readDefinition читает определение из тела запроса; YAML покрывает и JSON
func (h *RulesHandler) readDefinition(c *gin.Context, ruleID string) (*dsl.Definition, string, error) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxRuleSize))
	if err != nil {
		return nil, "", errors.Wrap(err, errors.ErrorCodeValidation, "cannot read request body")
	}
	if len(body) == 0 {
		return nil, "", errors.ValidationError("body", "rule definition is required")
	}

	def, err := dsl.DecodeDefinition(ruleID, string(body))
	if err != nil {
		return nil, "", err
	}

	// храним нормализованный YAML, чтобы источник из PostgreSQL читал тот же формат
	normalized := *def
	normalized.ID = ""
	out, err := yaml.Marshal(&normalized)
	if err != nil {
		return nil, "", errors.Wrap(err, errors.ErrorCodeInternal, "cannot encode definition")
	}

	return def, string(out), nil
}

// respondError отвечает ошибкой с HTTP статусом по коду ошибки
func (h *RulesHandler) respondError(c *gin.Context, err error) {
	status := errors.GetStatusCode(err)
	if status >= http.StatusInternalServerError {
		h.logger.WithField("path", c.Request.URL.Path).WithError(err).Error("Admin API request failed")
	}

	c.JSON(status, gin.H{
		"error":   errors.GetErrorCode(err),
		"message": err.Error(),
	})
}

// filename: internal/adminapi/routes/rules_test.go
package routes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myhouse/alerter/internal/alerter"
	"github.com/myhouse/alerter/internal/alerter/dsl"
	"github.com/myhouse/alerter/internal/common/errors"
	"github.com/myhouse/alerter/internal/common/logging"
	"github.com/myhouse/alerter/internal/models"
)

const frostRule = `
text: "Frost outside: %t%"
type: recurrent
severity: alert
schedule:
  every: 5m
variables:
  t: "sensors/outside/temperature"
conditions:
  - ["t < 0"]
`

// fakeEngine движок с правилами в памяти
type fakeEngine struct {
	rules   map[string]*dsl.Definition
	runErr  error
	started []string
	acts    []alerter.ActivationView
	sensors map[string]alerter.SensorInfo
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		rules:   make(map[string]*dsl.Definition),
		sensors: make(map[string]alerter.SensorInfo),
	}
}

func (f *fakeEngine) ListRules(ctx context.Context) ([]alerter.RuleView, error) {
	var views []alerter.RuleView
	for id, def := range f.rules {
		views = append(views, alerter.RuleView{ID: id, Type: def.Type, Severity: def.Severity, Text: def.Text})
	}
	return views, nil
}

func (f *fakeEngine) GetRule(ctx context.Context, ruleID string) (*alerter.RuleView, []alerter.InstanceView, error) {
	def, ok := f.rules[ruleID]
	if !ok {
		return nil, nil, errors.RuleNotFoundError(ruleID)
	}
	return &alerter.RuleView{ID: ruleID, Type: def.Type}, []alerter.InstanceView{{Key: ruleID + "/" + dsl.DefaultMacro}}, nil
}

func (f *fakeEngine) PutRule(ctx context.Context, def *dsl.Definition) error {
	if _, err := dsl.NewCompiler(logging.NewNopLogger()).Compile(def); err != nil {
		return err
	}
	f.rules[def.ID] = def
	return nil
}

func (f *fakeEngine) DeleteRule(ctx context.Context, ruleID string) error {
	if _, ok := f.rules[ruleID]; !ok {
		return errors.RuleNotFoundError(ruleID)
	}
	delete(f.rules, ruleID)
	return nil
}

func (f *fakeEngine) RunRule(ctx context.Context, ruleID, macro string) ([]string, error) {
	if f.runErr != nil {
		return nil, f.runErr
	}
	return f.started, nil
}

func (f *fakeEngine) ListActivations(ctx context.Context) ([]alerter.ActivationView, error) {
	return f.acts, nil
}

func (f *fakeEngine) ListTriggers(ctx context.Context) (map[string][]string, error) {
	return map[string][]string{"sensors/door": {"door/_default_"}}, nil
}

func (f *fakeEngine) GetStats(ctx context.Context) (alerter.Stats, error) {
	return alerter.Stats{Rules: len(f.rules)}, nil
}

func (f *fakeEngine) SetSensor(ctx context.Context, id string, info alerter.SensorInfo) error {
	f.sensors[id] = info
	return nil
}

// fakeStore хранилище правил в памяти
type fakeStore struct {
	records map[string]models.RuleRecord
	deleted []string
}

func (s *fakeStore) UpsertRule(ctx context.Context, rec models.RuleRecord) error {
	s.records[rec.ID] = rec
	return nil
}

func (s *fakeStore) DeleteRule(ctx context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	delete(s.records, id)
	return nil
}

type fakeCounter map[models.Outcome]uint64

func (f fakeCounter) CountActivations(ctx context.Context, ruleID string, outcome models.Outcome) (uint64, error) {
	return f[outcome], nil
}

type rulesFixture struct {
	engine *fakeEngine
	store  *fakeStore
	router *gin.Engine
}

func newRulesFixture(t *testing.T, counter ActivationCounter) *rulesFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &rulesFixture{
		engine: newFakeEngine(),
		store:  &fakeStore{records: make(map[string]models.RuleRecord)},
		router: gin.New(),
	}

	h := NewRulesHandler(createTestLogger(t), f.engine, f.store, counter)
	f.router.GET("/rules", h.GetRules)
	f.router.POST("/rules/validate", h.ValidateRule)
	f.router.GET("/rules/:id", h.GetRuleByID)
	f.router.PUT("/rules/:id", h.PutRule)
	f.router.DELETE("/rules/:id", h.DeleteRule)
	f.router.POST("/rules/:id/run", h.RunRule)
	f.router.GET("/rules/:id/stats", h.GetRuleStats)
	f.router.GET("/activations", h.GetActivations)
	f.router.GET("/triggers", h.GetTriggers)
	f.router.PUT("/sensors/*id", h.PutSensor)
	return f
}

func (f *rulesFixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestRulesHandler_PutAndGet(t *testing.T) {
	f := newRulesFixture(t, nil)

	w := f.do(http.MethodPut, "/rules/frost", frostRule)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	rec, ok := f.store.records["frost"]
	require.True(t, ok)
	assert.True(t, rec.Enabled)
	assert.Contains(t, rec.YAML, "sensors/outside/temperature")
	assert.NotContains(t, rec.YAML, "id:")

	w = f.do(http.MethodGet, "/rules/frost", "")
	require.Equal(t, http.StatusOK, w.Code)
	response := decodeBody(t, w)
	assert.Equal(t, "frost", response["rule"].(map[string]interface{})["id"])

	w = f.do(http.MethodGet, "/rules", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decodeBody(t, w)["total"])
}

func TestRulesHandler_GetMissing(t *testing.T) {
	f := newRulesFixture(t, nil)

	w := f.do(http.MethodGet, "/rules/ghost", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(errors.ErrorCodeRuleNotFound), decodeBody(t, w)["error"])
}

func TestRulesHandler_PutInvalid(t *testing.T) {
	f := newRulesFixture(t, nil)

	tests := []struct {
		name string
		body string
	}{
		{"empty body", ""},
		{"unknown field", "text: a\ntype: realtime\nseverity: info\ncolour: red\n"},
		{"bad severity", "text: a\ntype: realtime\nseverity: loud\n"},
		{"recurrent without schedule", "text: a\ntype: recurrent\nseverity: info\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(http.MethodPut, "/rules/broken", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
	assert.Empty(t, f.store.records)
}

func TestRulesHandler_Delete(t *testing.T) {
	f := newRulesFixture(t, nil)
	require.Equal(t, http.StatusOK, f.do(http.MethodPut, "/rules/frost", frostRule).Code)

	w := f.do(http.MethodDelete, "/rules/frost", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"frost"}, f.store.deleted)

	// правило уже снято с движка, но запись в хранилище удаляется
	w = f.do(http.MethodDelete, "/rules/frost", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Len(t, f.store.deleted, 2)
}

func TestRulesHandler_DeleteWithoutStore(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewRulesHandler(createTestLogger(t), newFakeEngine(), nil, nil)
	router.DELETE("/rules/:id", h.DeleteRule)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/rules/ghost", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRulesHandler_Validate(t *testing.T) {
	f := newRulesFixture(t, nil)

	body := frostRule + "macros: [north, south]\n"
	w := f.do(http.MethodPost, "/rules/validate?id=frost", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	response := decodeBody(t, w)
	assert.Equal(t, true, response["valid"])
	assert.ElementsMatch(t, []interface{}{"frost/north", "frost/south"}, response["instances"])
	assert.EqualValues(t, 0, response["dropped_variables"])
	assert.Equal(t, []interface{}{}, response["unknown_placeholders"])
	assert.Empty(t, f.engine.rules)
}

func TestRulesHandler_ValidateReportsProblems(t *testing.T) {
	f := newRulesFixture(t, nil)

	body := `
text: "%i%: %t% below %limit%, wind %wind%"
type: recurrent
severity: info
macros: [north, south]
schedule:
  every: 5m
constants:
  limit: 0
variables:
  t: "%i%/temperature"
  broken: "two words here"
conditions:
  - ["t < limit"]
`
	w := f.do(http.MethodPost, "/rules/validate?id=frost", body)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	response := decodeBody(t, w)
	// одна битая переменная в каждом из двух экземпляров
	assert.EqualValues(t, 2, response["dropped_variables"])
	assert.Equal(t, []interface{}{"wind"}, response["unknown_placeholders"])
}

func TestRulesHandler_PutSensor(t *testing.T) {
	f := newRulesFixture(t, nil)

	w := f.do(http.MethodPut, "/sensors/outdoor/temperature", `{"description":"Outdoor","unit":"°C"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, alerter.SensorInfo{Description: "Outdoor", Unit: "°C"}, f.engine.sensors["outdoor/temperature"])
	assert.Equal(t, "outdoor/temperature", decodeBody(t, w)["id"])

	w = f.do(http.MethodPut, "/sensors/kitchen", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPut, "/sensors/", `{"description":"x"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, f.engine.sensors, 1)
}

func TestRulesHandler_Run(t *testing.T) {
	f := newRulesFixture(t, nil)
	f.engine.started = []string{"act-1"}

	w := f.do(http.MethodPost, "/rules/frost/run", "")
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []interface{}{"act-1"}, decodeBody(t, w)["activations"])

	f.engine.runErr = errors.ThrottledError("frost/_default_")
	w = f.do(http.MethodPost, "/rules/frost/run", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, string(errors.ErrorCodeThrottled), decodeBody(t, w)["error"])
}

func TestRulesHandler_StatsWithoutJournal(t *testing.T) {
	f := newRulesFixture(t, nil)

	w := f.do(http.MethodGet, "/rules/frost/stats", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "JOURNAL_DISABLED", decodeBody(t, w)["error"])
}

func TestRulesHandler_Stats(t *testing.T) {
	f := newRulesFixture(t, fakeCounter{models.OutcomeTriggered: 3, models.OutcomeExpired: 1})

	w := f.do(http.MethodGet, "/rules/frost/stats", "")
	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		RuleID      string            `json:"rule_id"`
		Activations map[string]uint64 `json:"activations"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "frost", response.RuleID)
	assert.Equal(t, uint64(3), response.Activations[string(models.OutcomeTriggered)])
	assert.Equal(t, uint64(1), response.Activations[string(models.OutcomeExpired)])
	assert.Equal(t, uint64(0), response.Activations[string(models.OutcomeCancelled)])
}

func TestRulesHandler_ActivationsAndTriggers(t *testing.T) {
	f := newRulesFixture(t, nil)

	w := f.do(http.MethodGet, "/activations", "")
	require.Equal(t, http.StatusOK, w.Code)
	response := decodeBody(t, w)
	assert.EqualValues(t, 0, response["total"])
	assert.Equal(t, []interface{}{}, response["activations"])

	f.engine.acts = []alerter.ActivationView{{ID: "a1", RuleID: "frost", Phase: alerter.PhaseGathering, Outstanding: 2}}
	w = f.do(http.MethodGet, "/activations", "")
	assert.EqualValues(t, 1, decodeBody(t, w)["total"])

	w = f.do(http.MethodGet, "/triggers", "")
	require.Equal(t, http.StatusOK, w.Code)
	triggers := decodeBody(t, w)["triggers"].(map[string]interface{})
	assert.Contains(t, triggers, "sensors/door")
}

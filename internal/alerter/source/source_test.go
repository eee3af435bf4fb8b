// filename: internal/alerter/source/source_test.go
package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/myhouse/alerter/internal/alerter/dsl"
	"github.com/myhouse/alerter/internal/common/logging"
	"github.com/myhouse/alerter/internal/models"
)

const rulesFile = `
rules:
  frost:
    text: "Frost in %i%"
    type: recurrent
    severity: warning
    macros: [garden]
    schedule:
      minute: "*/5"
  door:
    text: "Door opened"
    type: realtime
    severity: info
    triggers: [hall/door]
sensors:
  garden:
    description: Garden
    unit: "°C"
`

type collector struct {
	messages []*models.Message
}

func (c *collector) emit(msg *models.Message) {
	c.messages = append(c.messages, msg)
}

func (c *collector) args() []string {
	out := make([]string, 0, len(c.messages))
	for _, m := range c.messages {
		out = append(out, m.Args)
	}
	return out
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestFileLoader_Load(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "house.yaml", rulesFile)
	writeFile(t, dir, "notes.txt", "ignored")

	docs, err := NewFileLoader(dir).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 3)

	def, err := dsl.DecodeDefinition("frost", docs["rules/frost"])
	require.NoError(t, err)
	assert.Equal(t, "frost", def.ID)
	assert.Equal(t, []string{"garden"}, def.Macros)
	assert.Equal(t, "*/5", def.Schedule.Minute)

	assert.Contains(t, docs["sensors/garden"], "Garden")
}

func TestFileLoader_DuplicateIDs(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", rulesFile)
	writeFile(t, dir, "b.yml", rulesFile)

	_, err := NewFileLoader(dir).Load(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "defined in both")
}

func TestFileLoader_Malformed(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.yaml", "rules: [not, a, map]")

	_, err := NewFileLoader(dir).Load(context.Background())
	assert.Error(t, err)
}

func TestPoller_SyncEmitsDiff(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "house.yaml", rulesFile)

	out := &collector{}
	poller := NewPoller(NewFileLoader(dir), "controller/alerter", 0, out.emit, logging.NewNopLogger())
	assert.False(t, poller.Populated())
	assert.Error(t, poller.Ready(context.Background()))

	changes, err := poller.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, changes)
	assert.True(t, poller.Populated())
	assert.NoError(t, poller.Ready(context.Background()))
	assert.Equal(t, []string{"rules/door", "rules/frost", "sensors/garden"}, out.args())

	for _, msg := range out.messages {
		assert.Equal(t, "CONF", msg.Command)
		assert.Equal(t, "controller/alerter", msg.Recipient)
	}
	sensor, ok := out.messages[2].GetData().(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Garden", sensor["description"])

	// без изменений ничего не отправляется
	out.messages = nil
	changes, err = poller.Sync(context.Background())
	require.NoError(t, err)
	assert.Zero(t, changes)

	// удаление правила отправляет CONF с пустыми данными
	writeFile(t, dir, "house.yaml", `
rules:
  frost:
    text: "Frost in %i% again"
    type: recurrent
    severity: warning
    schedule:
      minute: "*/5"
`)
	changes, err = poller.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, changes)

	byArgs := make(map[string]*models.Message)
	for _, msg := range out.messages {
		byArgs[msg.Args] = msg
	}
	assert.Nil(t, byArgs["rules/door"].GetData())
	assert.Nil(t, byArgs["sensors/garden"].GetData())
	assert.Contains(t, byArgs["rules/frost"].GetData(), "again")
}

type fakeLister struct {
	records []models.RuleRecord
	err     error
}

func (f *fakeLister) ListRules(_ context.Context) ([]models.RuleRecord, error) {
	return f.records, f.err
}

func TestPostgresLoader_SkipsDisabled(t *testing.T) {
	lister := &fakeLister{records: []models.RuleRecord{
		{ID: "on", YAML: "text: a", Enabled: true, UpdatedAt: time.Now()},
		{ID: "off", YAML: "text: b", Enabled: false, UpdatedAt: time.Now()},
	}}

	docs, err := NewPostgresLoader(lister).Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"rules/on": "text: a"}, docs)

	lister.err = fmt.Errorf("connection refused")
	_, err = NewPostgresLoader(lister).Load(context.Background())
	assert.Error(t, err)
}

func TestPoller_DisablingRowRemovesRule(t *testing.T) {
	lister := &fakeLister{records: []models.RuleRecord{
		{ID: "on", YAML: "text: a", Enabled: true},
	}}
	out := &collector{}
	poller := NewPoller(NewPostgresLoader(lister), "controller/alerter", 0, out.emit, logging.NewNopLogger())

	_, err := poller.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, out.messages, 1)
	assert.Equal(t, "alerter/postgres", out.messages[0].Sender)

	lister.records[0].Enabled = false
	_, err = poller.Sync(context.Background())
	require.NoError(t, err)
	require.Len(t, out.messages, 2)
	assert.Equal(t, "rules/on", out.messages[1].Args)
	assert.Nil(t, out.messages[1].GetData())

	// ошибка источника не меняет известное состояние
	lister.err = fmt.Errorf("timeout")
	_, err = poller.Sync(context.Background())
	assert.Error(t, err)
	assert.Len(t, out.messages, 2)
}

//go:build integration

// filename: internal/common/pg/client_integration_test.go
package pg

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/myhouse/alerter/internal/models"
)

// setupPostgres поднимает PostgreSQL в контейнере и возвращает клиента
func setupPostgres(t *testing.T) *Client {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "myhouse_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate PostgreSQL container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	var client *Client
	for i := 0; i < 30; i++ {
		client, err = NewClient(Config{
			Host:            host,
			Port:            portNum,
			Database:        "myhouse_test",
			Username:        "test",
			Password:        "test",
			SSLMode:         "disable",
			MaxOpenConns:    2,
			MaxIdleConns:    1,
			ConnMaxLifetime: time.Minute,
		})
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	require.NoError(t, client.EnsureSchema(ctx))
	return client
}

func TestClient_RulesRoundTrip(t *testing.T) {
	client := setupPostgres(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, client.UpsertRule(ctx, models.RuleRecord{ID: "frost", YAML: "text: a", Enabled: true, UpdatedAt: now}))
	require.NoError(t, client.UpsertRule(ctx, models.RuleRecord{ID: "door", YAML: "text: b", Enabled: false, UpdatedAt: now}))
	require.NoError(t, client.UpsertRule(ctx, models.RuleRecord{ID: "frost", YAML: "text: c", Enabled: true, UpdatedAt: now.Add(time.Minute)}))

	records, err := client.ListRules(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "door", records[0].ID)
	assert.False(t, records[0].Enabled)
	assert.Equal(t, "frost", records[1].ID)
	assert.Equal(t, "text: c", records[1].YAML)
	assert.True(t, records[1].UpdatedAt.Equal(now.Add(time.Minute)))

	require.NoError(t, client.DeleteRule(ctx, "door"))
	records, err = client.ListRules(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

// filename: internal/common/ch/client.go
package ch

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/myhouse/alerter/internal/models"
)

// Client представляет клиент ClickHouse для журнала активаций
type Client struct {
	conn   clickhouse.Conn
	config Config
}

// Config представляет конфигурацию ClickHouse
type Config struct {
	Hosts    []string      `yaml:"hosts"`
	Database string        `yaml:"database"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	Port     int           `yaml:"port"`
	Secure   bool          `yaml:"secure"`
	Compress bool          `yaml:"compress"`
	MaxOpen  int           `yaml:"max_open"`
	MaxIdle  int           `yaml:"max_idle"`
	Timeout  time.Duration `yaml:"timeout"`
}

const activationsSchema = `
CREATE TABLE IF NOT EXISTS activations (
	id          String,
	rule_id     LowCardinality(String),
	macro       String,
	outcome     LowCardinality(String),
	on_demand   UInt8,
	values      String,
	started_at  DateTime64(3),
	finished_at DateTime64(3)
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(started_at)
ORDER BY (rule_id, started_at)`

// NewClient создает новый клиент ClickHouse // v1.0
func NewClient(config Config) (*Client, error) {
	if len(config.Hosts) == 0 {
		return nil, fmt.Errorf("at least one ClickHouse host is required")
	}

	addrs := make([]string, 0, len(config.Hosts))
	for _, host := range config.Hosts {
		addrs = append(addrs, fmt.Sprintf("%s:%d", host, config.Port))
	}

	opts := &clickhouse.Options{
		Addr: addrs,
		Auth: clickhouse.Auth{
			Database: config.Database,
			Username: config.Username,
			Password: config.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:  config.Timeout,
		MaxOpenConns: config.MaxOpen,
		MaxIdleConns: config.MaxIdle,
	}

	if config.Compress {
		opts.Compression = &clickhouse.Compression{Method: clickhouse.CompressionLZ4}
	}

	conn, err := clickhouse.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &Client{
		conn:   conn,
		config: config,
	}, nil
}

// Close закрывает соединение с ClickHouse // v1.0
func (c *Client) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Ping проверяет соединение с ClickHouse // v1.0
func (c *Client) Ping(ctx context.Context) error {
	return c.conn.Ping(ctx)
}

// EnsureSchema создает таблицу журнала активаций // v1.0
func (c *Client) EnsureSchema(ctx context.Context) error {
	if err := c.conn.Exec(ctx, activationsSchema); err != nil {
		return fmt.Errorf("failed to create activations table: %w", err)
	}
	return nil
}

// InsertActivations вставляет записи журнала пакетом // v1.0
func (c *Client) InsertActivations(ctx context.Context, records []*models.ActivationRecord) error {
	if len(records) == 0 {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO activations")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	for _, rec := range records {
		values, err := json.Marshal(rec.Values)
		if err != nil {
			return fmt.Errorf("failed to marshal values of %s: %w", rec.ID, err)
		}

		var onDemand uint8
		if rec.OnDemand {
			onDemand = 1
		}

		if err := batch.Append(
			rec.ID, rec.RuleID, rec.Macro, string(rec.Outcome), onDemand,
			string(values), rec.StartedAt, rec.FinishedAt,
		); err != nil {
			return fmt.Errorf("failed to append activation %s: %w", rec.ID, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch: %w", err)
	}
	return nil
}

// CountActivations возвращает число активаций правила с заданным итогом // v1.0
func (c *Client) CountActivations(ctx context.Context, ruleID string, outcome models.Outcome) (uint64, error) {
	var count uint64
	row := c.conn.QueryRow(ctx,
		"SELECT count() FROM activations WHERE rule_id = ? AND outcome = ?", ruleID, string(outcome))
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count activations: %w", err)
	}
	return count, nil
}

// IsConnected проверяет, подключен ли клиент // v1.0
func (c *Client) IsConnected() bool {
	if c.conn == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.conn.Ping(ctx) == nil
}

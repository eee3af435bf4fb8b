// internal/common/pg/client.go
package pg

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/myhouse/alerter/internal/models"
)

// Client представляет клиент PostgreSQL
type Client struct {
	db     *sql.DB
	config Config
}

// Config представляет конфигурацию PostgreSQL
type Config struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

const rulesSchema = `
CREATE TABLE IF NOT EXISTS rules (
	id         TEXT PRIMARY KEY,
	yaml       TEXT NOT NULL,
	enabled    BOOLEAN NOT NULL DEFAULT TRUE,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// NewClient создает новый клиент PostgreSQL // v1.0
func NewClient(config Config) (*Client, error) {
	dsn := fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		config.Host, config.Port, config.Database, config.Username, config.Password, config.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Настраиваем пул соединений
	db.SetMaxOpenConns(config.MaxOpenConns)
	db.SetMaxIdleConns(config.MaxIdleConns)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Client{
		db:     db,
		config: config,
	}, nil
}

// Close закрывает соединение с PostgreSQL // v1.0
func (c *Client) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Ping проверяет соединение с PostgreSQL // v1.0
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// EnsureSchema создает таблицу правил, если ее нет // v1.0
func (c *Client) EnsureSchema(ctx context.Context) error {
	if _, err := c.db.ExecContext(ctx, rulesSchema); err != nil {
		return fmt.Errorf("failed to create rules table: %w", err)
	}
	return nil
}

// ListRules возвращает все сохраненные определения правил // v1.0
func (c *Client) ListRules(ctx context.Context) ([]models.RuleRecord, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, yaml, enabled, updated_at FROM rules ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query rules: %w", err)
	}
	defer rows.Close()

	var records []models.RuleRecord
	for rows.Next() {
		var rec models.RuleRecord
		if err := rows.Scan(&rec.ID, &rec.YAML, &rec.Enabled, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}
	return records, nil
}

// UpsertRule сохраняет определение правила // v1.0
func (c *Client) UpsertRule(ctx context.Context, rec models.RuleRecord) error {
	_, err := c.db.ExecContext(ctx, `
		INSERT INTO rules (id, yaml, enabled, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET yaml = EXCLUDED.yaml, enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at`,
		rec.ID, rec.YAML, rec.Enabled, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert rule %s: %w", rec.ID, err)
	}
	return nil
}

// DeleteRule удаляет определение правила // v1.0
func (c *Client) DeleteRule(ctx context.Context, id string) error {
	if _, err := c.db.ExecContext(ctx, `DELETE FROM rules WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete rule %s: %w", id, err)
	}
	return nil
}

// GetConnectionInfo возвращает информацию о соединении // v1.0
func (c *Client) GetConnectionInfo() map[string]interface{} {
	info := map[string]interface{}{
		"database": c.config.Database,
		"host":     c.config.Host,
		"port":     c.config.Port,
	}
	if c.db != nil {
		stats := c.db.Stats()
		info["open_connections"] = stats.OpenConnections
		info["in_use"] = stats.InUse
		info["idle"] = stats.Idle
	}
	return info
}

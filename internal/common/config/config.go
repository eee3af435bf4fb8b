// filename: internal/common/config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix префикс переменных окружения, переопределяющих файл конфигурации
const EnvPrefix = "MYHOUSE"

// Config представляет основную конфигурацию приложения
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	NATS       NATSConfig       `mapstructure:"nats"`
	ClickHouse ClickHouseConfig `mapstructure:"clickhouse"`
	PostgreSQL PostgreSQLConfig `mapstructure:"postgresql"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	TLS        TLSConfig        `mapstructure:"tls"`
	Alerter    AlerterConfig    `mapstructure:"alerter"`
}

// ServerConfig представляет конфигурацию admin API
type ServerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// NATSConfig представляет конфигурацию NATS
type NATSConfig struct {
	URLs          []string      `mapstructure:"urls"`
	ClientID      string        `mapstructure:"client_id"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	Credentials   string        `mapstructure:"credentials"`
	NKeySeedFile  string        `mapstructure:"nkey_seed_file"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// ClickHouseConfig представляет конфигурацию ClickHouse
type ClickHouseConfig struct {
	Hosts    []string      `mapstructure:"hosts"`
	Database string        `mapstructure:"database"`
	Username string        `mapstructure:"username"`
	Password string        `mapstructure:"password"`
	Port     int           `mapstructure:"port"`
	Secure   bool          `mapstructure:"secure"`
	Compress bool          `mapstructure:"compress"`
	MaxOpen  int           `mapstructure:"max_open"`
	MaxIdle  int           `mapstructure:"max_idle"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// PostgreSQLConfig представляет конфигурацию PostgreSQL
type PostgreSQLConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Database        string        `mapstructure:"database"`
	Username        string        `mapstructure:"username"`
	Password        string        `mapstructure:"password"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig представляет конфигурацию Redis
type RedisConfig struct {
	Host     string        `mapstructure:"host"`
	Port     int           `mapstructure:"port"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Timeout  time.Duration `mapstructure:"timeout"`
	Prefix   string        `mapstructure:"prefix"`
}

// LoggingConfig представляет конфигурацию логирования
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// TLSConfig представляет конфигурацию TLS
type TLSConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	CAFile     string `mapstructure:"ca_file"`
	CertFile   string `mapstructure:"cert_file"`
	KeyFile    string `mapstructure:"key_file"`
	MinVersion string `mapstructure:"min_version"`
	ClientAuth string `mapstructure:"client_auth"`
}

// AlerterConfig представляет конфигурацию движка правил
type AlerterConfig struct {
	Module            string        `mapstructure:"module"`
	MinInterval       time.Duration `mapstructure:"min_interval"`
	ActivationTTL     time.Duration `mapstructure:"activation_ttl"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	RetentionDays     int           `mapstructure:"retention_days"`
	ThrottleBackend   string        `mapstructure:"throttle_backend"`
	RulesDir          string        `mapstructure:"rules_dir"`
	RulesPollInterval time.Duration `mapstructure:"rules_poll_interval"`
	JournalEnabled    bool          `mapstructure:"journal_enabled"`
	EventBuffer       int           `mapstructure:"event_buffer"`
}

// LoadConfig загружает конфигурацию из файла // v1.0
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	// Переменные окружения MYHOUSE_ALERTER_MIN_INTERVAL и т.п.
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Устанавливаем значения по умолчанию
	setDefaults(v)

	// Читаем конфигурацию
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return unmarshal(v)
}

// Default возвращает конфигурацию только из значений по умолчанию // v1.0
func Default() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Валидируем конфигурацию
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults устанавливает значения по умолчанию // v1.0
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")

	// NATS defaults
	v.SetDefault("nats.urls", []string{"nats://localhost:4222"})
	v.SetDefault("nats.client_id", "myhouse-alerter")
	v.SetDefault("nats.subject_prefix", "myhouse")
	v.SetDefault("nats.timeout", "5s")

	// ClickHouse defaults
	v.SetDefault("clickhouse.hosts", []string{"localhost"})
	v.SetDefault("clickhouse.database", "myhouse")
	v.SetDefault("clickhouse.port", 9000)
	v.SetDefault("clickhouse.secure", false)
	v.SetDefault("clickhouse.compress", true)
	v.SetDefault("clickhouse.max_open", 10)
	v.SetDefault("clickhouse.max_idle", 5)
	v.SetDefault("clickhouse.timeout", "30s")

	// PostgreSQL defaults
	v.SetDefault("postgresql.enabled", false)
	v.SetDefault("postgresql.host", "localhost")
	v.SetDefault("postgresql.port", 5432)
	v.SetDefault("postgresql.database", "myhouse")
	v.SetDefault("postgresql.ssl_mode", "disable")
	v.SetDefault("postgresql.max_open_conns", 10)
	v.SetDefault("postgresql.max_idle_conns", 2)
	v.SetDefault("postgresql.conn_max_lifetime", "1h")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.timeout", "5s")
	v.SetDefault("redis.prefix", "myhouse:alerter:")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	// TLS defaults
	v.SetDefault("tls.enabled", false)
	v.SetDefault("tls.min_version", "1.2")

	// Alerter defaults
	v.SetDefault("alerter.module", "controller/alerter")
	v.SetDefault("alerter.min_interval", "3s")
	v.SetDefault("alerter.activation_ttl", "5m")
	v.SetDefault("alerter.sweep_interval", "30s")
	v.SetDefault("alerter.retention_days", 30)
	v.SetDefault("alerter.throttle_backend", "memory")
	v.SetDefault("alerter.rules_dir", "")
	v.SetDefault("alerter.rules_poll_interval", "30s")
	v.SetDefault("alerter.journal_enabled", false)
	v.SetDefault("alerter.event_buffer", 1024)
}

// Validate валидирует конфигурацию // v1.0
func (c *Config) Validate() error {
	if c.Server.Enabled && (c.Server.Port <= 0 || c.Server.Port > 65535) {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if len(c.NATS.URLs) == 0 {
		return fmt.Errorf("at least one NATS URL is required")
	}

	if c.Alerter.Module == "" || !strings.Contains(c.Alerter.Module, "/") {
		return fmt.Errorf("alerter module must look like <scope>/<name>, got %q", c.Alerter.Module)
	}

	if c.Alerter.MinInterval < 0 {
		return fmt.Errorf("alerter min_interval must not be negative")
	}

	if c.Alerter.ActivationTTL <= 0 {
		return fmt.Errorf("alerter activation_ttl must be positive")
	}

	if c.Alerter.SweepInterval <= 0 {
		return fmt.Errorf("alerter sweep_interval must be positive")
	}

	if c.Alerter.EventBuffer <= 0 {
		return fmt.Errorf("alerter event_buffer must be positive")
	}

	switch c.Alerter.ThrottleBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown throttle backend: %s", c.Alerter.ThrottleBackend)
	}

	if c.Alerter.JournalEnabled {
		if len(c.ClickHouse.Hosts) == 0 {
			return fmt.Errorf("at least one ClickHouse host is required for the journal")
		}
		if c.ClickHouse.Database == "" {
			return fmt.Errorf("ClickHouse database name is required for the journal")
		}
	}

	if c.PostgreSQL.Enabled && c.PostgreSQL.Database == "" {
		return fmt.Errorf("PostgreSQL database name is required")
	}

	return nil
}

// GetServerAddr возвращает адрес сервера // v1.0
func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// GetPostgreSQLDSN возвращает DSN для PostgreSQL // v1.0
func (c *Config) GetPostgreSQLDSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.PostgreSQL.Host, c.PostgreSQL.Port, c.PostgreSQL.Database,
		c.PostgreSQL.Username, c.PostgreSQL.Password, c.PostgreSQL.SSLMode)
}

// GetRedisAddr возвращает адрес Redis // v1.0
func (c *Config) GetRedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

// filename: internal/common/nats/client.go
package nats

import (
	"bytes"
	"crypto/tls"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nkeys"

	"github.com/myhouse/alerter/internal/common/logging"
	"github.com/myhouse/alerter/internal/models"
)

// broadcastToken заменяет "*/*" в имени субъекта: "*" зарезервирован в NATS
const broadcastToken = "broadcast"

// Client представляет клиент NATS для шины сообщений модулей
type Client struct {
	conn   *nats.Conn
	config Config
	logger *logging.Logger

	mu   sync.Mutex
	subs map[string]*nats.Subscription
}

// Config представляет конфигурацию NATS
type Config struct {
	URLs          []string      `yaml:"urls"`
	ClientID      string        `yaml:"client_id"`
	SubjectPrefix string        `yaml:"subject_prefix"`
	Credentials   string        `yaml:"credentials"`
	NKeySeedFile  string        `yaml:"nkey_seed_file"`
	Timeout       time.Duration `yaml:"timeout"`
	TLS           *tls.Config   `yaml:"-"`
}

// NewClient создает новый клиент NATS // v1.0
func NewClient(config Config, logger *logging.Logger) (*Client, error) {
	if len(config.URLs) == 0 {
		return nil, fmt.Errorf("at least one NATS URL is required")
	}

	opts := []nats.Option{
		nats.Name(config.ClientID),
		nats.ReconnectWait(1 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
		}),
	}

	if config.Timeout > 0 {
		opts = append(opts, nats.Timeout(config.Timeout))
	}

	// Добавляем аутентификацию если указана
	if config.Credentials != "" {
		opts = append(opts, nats.UserCredentials(config.Credentials))
	}

	if config.NKeySeedFile != "" {
		opt, err := nkeyOption(config.NKeySeedFile)
		if err != nil {
			return nil, err
		}
		opts = append(opts, opt)
	}

	if config.TLS != nil {
		opts = append(opts, nats.Secure(config.TLS))
	}

	// Подключаемся к NATS
	conn, err := nats.Connect(strings.Join(config.URLs, ","), opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &Client{
		conn:   conn,
		config: config,
		logger: logger,
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

// nkeyOption создает опцию аутентификации по seed файлу NKey // v1.0
func nkeyOption(seedFile string) (nats.Option, error) {
	raw, err := os.ReadFile(seedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read nkey seed: %w", err)
	}

	kp, err := nkeys.FromSeed(bytes.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse nkey seed: %w", err)
	}

	pub, err := kp.PublicKey()
	if err != nil {
		return nil, fmt.Errorf("failed to derive nkey public key: %w", err)
	}

	return nats.Nkey(pub, func(nonce []byte) ([]byte, error) {
		return kp.Sign(nonce)
	}), nil
}

// SubjectFor возвращает субъект NATS для адресата вида "controller/db" // v1.0
func SubjectFor(prefix, recipient string) string {
	name := recipient
	if recipient == models.BroadcastRecipient {
		name = broadcastToken
	} else {
		name = strings.ReplaceAll(recipient, "/", ".")
	}
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// Publish публикует сообщение адресату // v1.0
func (c *Client) Publish(msg *models.Message) error {
	data, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	subject := SubjectFor(c.config.SubjectPrefix, msg.Recipient)
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	c.logger.WithFields(map[string]interface{}{
		"subject": subject,
		"command": msg.Command,
		"args":    msg.Args,
	}).Debug("Published message")
	return nil
}

// Subscribe подписывается на сообщения для адресата // v1.0
func (c *Client) Subscribe(recipient string, handler func(*models.Message)) error {
	subject := SubjectFor(c.config.SubjectPrefix, recipient)

	sub, err := c.conn.Subscribe(subject, func(m *nats.Msg) {
		msg, err := models.MessageFromJSON(m.Data)
		if err != nil {
			// Битые сообщения не должны ронять обработчик
			c.logger.WithError(err).WithField("subject", subject).Warn("Dropping malformed message")
			return
		}
		handler(msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()
	return nil
}

// Unsubscribe отписывается от адресата // v1.0
func (c *Client) Unsubscribe(recipient string) error {
	subject := SubjectFor(c.config.SubjectPrefix, recipient)

	c.mu.Lock()
	defer c.mu.Unlock()

	if sub, exists := c.subs[subject]; exists {
		if err := sub.Unsubscribe(); err != nil {
			return fmt.Errorf("failed to unsubscribe from %s: %w", subject, err)
		}
		delete(c.subs, subject)
	}
	return nil
}

// Close закрывает соединение с NATS // v1.0
func (c *Client) Close() error {
	c.mu.Lock()
	for subject, sub := range c.subs {
		if err := sub.Unsubscribe(); err != nil {
			c.logger.WithError(err).WithField("subject", subject).Warn("Failed to unsubscribe")
		}
		delete(c.subs, subject)
	}
	c.mu.Unlock()

	if c.conn != nil {
		// Drain дожидается отправки исходящих сообщений
		if err := c.conn.Drain(); err != nil {
			c.conn.Close()
			return fmt.Errorf("failed to drain NATS connection: %w", err)
		}
	}

	return nil
}

// IsConnected проверяет, подключен ли клиент // v1.0
func (c *Client) IsConnected() bool {
	return c.conn != nil && c.conn.IsConnected()
}

// GetConnectionInfo возвращает информацию о соединении // v1.0
func (c *Client) GetConnectionInfo() map[string]interface{} {
	if c.conn == nil {
		return nil
	}

	stats := c.conn.Stats()
	return map[string]interface{}{
		"connected":      c.conn.IsConnected(),
		"url":            c.conn.ConnectedUrl(),
		"server_id":      c.conn.ConnectedServerId(),
		"server_version": c.conn.ConnectedServerVersion(),
		"in_msgs":        stats.InMsgs,
		"out_msgs":       stats.OutMsgs,
	}
}

// Flush выполняет flush буферов // v1.0
func (c *Client) Flush() error {
	return c.conn.Flush()
}

// filename: internal/alerter/source/poller.go
package source

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/myhouse/alerter/internal/common/logging"
	"github.com/myhouse/alerter/internal/models"
)

// Префиксы ключей конфигурации, совпадают с аргументами CONF
const (
	PrefixRules   = "rules/"
	PrefixSensors = "sensors/"
)

// Loader читает текущее состояние источника: ключ CONF -> YAML документ
type Loader interface {
	Name() string
	Load(ctx context.Context) (map[string]string, error)
}

// Poller периодически читает источник и отправляет изменения как события CONF // v1.0
type Poller struct {
	loader    Loader
	module    string
	interval  time.Duration
	emit      func(*models.Message)
	logger    *logging.Logger
	known     map[string]string
	populated atomic.Bool
}

// NewPoller создает опросчик источника. emit получает CONF сообщения для модуля module // v1.0
func NewPoller(loader Loader, module string, interval time.Duration, emit func(*models.Message), logger *logging.Logger) *Poller {
	return &Poller{
		loader:   loader,
		module:   module,
		interval: interval,
		emit:     emit,
		logger:   logger,
		known:    make(map[string]string),
	}
}

// Sync читает источник один раз и отправляет разницу с прошлым чтением // v1.0
func (p *Poller) Sync(ctx context.Context) (int, error) {
	current, err := p.loader.Load(ctx)
	if err != nil {
		return 0, err
	}

	keys := make([]string, 0, len(current))
	for key := range current {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	changes := 0
	for _, key := range keys {
		doc := current[key]
		if prev, ok := p.known[key]; ok && prev == doc {
			continue
		}
		if msg := p.confMessage(key, doc); msg != nil {
			p.emit(msg)
			changes++
		}
	}

	for key := range p.known {
		if _, ok := current[key]; ok {
			continue
		}
		msg := models.NewMessage(p.loader.Name(), p.module, "CONF", key)
		msg.SetData(nil)
		p.emit(msg)
		changes++
	}

	p.known = current
	p.populated.Store(true)

	if changes > 0 {
		p.logger.WithField("source", p.loader.Name()).WithField("changes", changes).Info("Configuration changed")
	}
	return changes, nil
}

// confMessage строит CONF сообщение; датчики передаются объектом, правила YAML текстом
func (p *Poller) confMessage(key, doc string) *models.Message {
	msg := models.NewMessage(p.loader.Name(), p.module, "CONF", key)

	if strings.HasPrefix(key, PrefixSensors) {
		var info map[string]interface{}
		if err := yaml.Unmarshal([]byte(doc), &info); err != nil {
			p.logger.WithField("source", p.loader.Name()).WithField("key", key).WithError(err).
				Warn("Skipping malformed sensor metadata")
			return nil
		}
		msg.SetData(info)
		return msg
	}

	msg.SetData(doc)
	return msg
}

// Run синхронизирует источник до отмены контекста // v1.0
func (p *Poller) Run(ctx context.Context) {
	log := p.logger.WithField("source", p.loader.Name())

	if _, err := p.Sync(ctx); err != nil {
		log.WithError(err).Error("Failed to load configuration")
	}

	if p.interval <= 0 {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Sync(ctx); err != nil {
				log.WithError(err).Warn("Failed to reload configuration")
			}
		}
	}
}

// Populated сообщает, что источник прочитан хотя бы раз // v1.0
func (p *Poller) Populated() bool {
	return p.populated.Load()
}

// Name имя источника
func (p *Poller) Name() string {
	return p.loader.Name()
}

// Ready проверка готовности для admin API: источник должен быть прочитан
func (p *Poller) Ready(ctx context.Context) error {
	if !p.Populated() {
		return fmt.Errorf("source %s has not been read yet", p.loader.Name())
	}
	return nil
}

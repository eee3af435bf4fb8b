// filename: internal/alerter/service/service.go
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/myhouse/alerter/internal/adminapi/routes"
	"github.com/myhouse/alerter/internal/adminapi/server"
	"github.com/myhouse/alerter/internal/alerter"
	"github.com/myhouse/alerter/internal/alerter/scheduler"
	"github.com/myhouse/alerter/internal/alerter/source"
	"github.com/myhouse/alerter/internal/alerter/state"
	"github.com/myhouse/alerter/internal/common/ch"
	"github.com/myhouse/alerter/internal/common/config"
	"github.com/myhouse/alerter/internal/common/logging"
	"github.com/myhouse/alerter/internal/common/nats"
	"github.com/myhouse/alerter/internal/common/pg"
	tlsutil "github.com/myhouse/alerter/internal/common/tls"
	"github.com/myhouse/alerter/internal/models"
)

// shutdownTimeout ограничивает остановку admin API и планировщика
const shutdownTimeout = 10 * time.Second

// Service собирает движок правил и его окружение // v1.0
type Service struct {
	config *config.Config
	logger *logging.Logger

	nats       *nats.Client
	redis      *state.RedisThrottle
	throttle   state.Throttle
	scheduler  *scheduler.Scheduler
	engine     *alerter.Engine
	journal    *alerter.BatchJournal
	clickhouse *ch.Client
	postgres   *pg.Client
	pollers    []*source.Poller
	admin      *server.Server
	registry   *prometheus.Registry

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewService подключается к зависимостям и создает сервис.
// При ошибке уже открытые соединения закрываются // v1.0
func NewService(cfg *config.Config, logger *logging.Logger) (svc *Service, err error) {
	s := &Service{
		config:   cfg,
		logger:   logger,
		registry: prometheus.NewRegistry(),
		stopChan: make(chan struct{}),
	}
	defer func() {
		if err != nil {
			s.closeClients()
		}
	}()

	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tlsConfig := tlsutil.Config{
		Enabled:    cfg.TLS.Enabled,
		CAFile:     cfg.TLS.CAFile,
		CertFile:   cfg.TLS.CertFile,
		KeyFile:    cfg.TLS.KeyFile,
		MinVersion: cfg.TLS.MinVersion,
		ClientAuth: cfg.TLS.ClientAuth,
	}

	natsTLS, err := tlsutil.ClientTLSConfig(tlsConfig, "")
	if err != nil {
		return nil, fmt.Errorf("failed to build NATS TLS config: %w", err)
	}

	s.nats, err = nats.NewClient(nats.Config{
		URLs:          cfg.NATS.URLs,
		ClientID:      cfg.NATS.ClientID,
		SubjectPrefix: cfg.NATS.SubjectPrefix,
		Credentials:   cfg.NATS.Credentials,
		NKeySeedFile:  cfg.NATS.NKeySeedFile,
		Timeout:       cfg.NATS.Timeout,
		TLS:           natsTLS,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := s.setupThrottle(); err != nil {
		return nil, err
	}

	var journal alerter.Journal
	if cfg.Alerter.JournalEnabled {
		if err := s.setupJournal(); err != nil {
			return nil, err
		}
		journal = s.journal
	}

	s.scheduler = scheduler.New(logger, time.Local)
	s.engine = alerter.NewEngine(alerter.Config{
		Module:        cfg.Alerter.Module,
		ActivationTTL: cfg.Alerter.ActivationTTL,
		SweepInterval: cfg.Alerter.SweepInterval,
		RetentionDays: cfg.Alerter.RetentionDays,
		EventBuffer:   cfg.Alerter.EventBuffer,
	}, s.nats, s.scheduler, s.throttle, journal, alerter.NewMetrics(s.registry), logger)

	if err := s.setupSources(); err != nil {
		return nil, err
	}

	if cfg.Server.Enabled {
		serverTLS, err := tlsutil.ServerTLSConfig(tlsConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to build admin API TLS config: %w", err)
		}
		s.admin = server.NewServer(&server.Config{
			Host:         cfg.Server.Host,
			Port:         cfg.Server.Port,
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
			LogLevel:     cfg.Logging.Level,
			TLS:          serverTLS,
		}, s.adminDeps(), logger)
	}

	return s, nil
}

// setupThrottle выбирает хранилище отметок запуска
func (s *Service) setupThrottle() error {
	cfg := s.config
	if cfg.Alerter.ThrottleBackend != "redis" {
		s.throttle = state.NewMemoryThrottle(cfg.Alerter.MinInterval)
		return nil
	}

	redisThrottle, err := state.NewRedisThrottle(state.RedisConfig{
		Addr:      cfg.GetRedisAddr(),
		Password:  cfg.Redis.Password,
		Database:  cfg.Redis.DB,
		Timeout:   cfg.Redis.Timeout,
		KeyPrefix: cfg.Redis.Prefix,
		Interval:  cfg.Alerter.MinInterval,
	}, s.logger)
	if err != nil {
		return err
	}
	s.redis = redisThrottle
	s.throttle = redisThrottle
	return nil
}

// setupJournal подключает ClickHouse и создает журнал активаций
func (s *Service) setupJournal() error {
	cfg := s.config.ClickHouse
	client, err := ch.NewClient(ch.Config{
		Hosts:    cfg.Hosts,
		Database: cfg.Database,
		Username: cfg.Username,
		Password: cfg.Password,
		Port:     cfg.Port,
		Secure:   cfg.Secure,
		Compress: cfg.Compress,
		MaxOpen:  cfg.MaxOpen,
		MaxIdle:  cfg.MaxIdle,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return err
	}
	s.clickhouse = client

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("failed to prepare activation journal: %w", err)
	}

	s.journal = alerter.NewBatchJournal(alerter.JournalConfig{}, client, s.logger)
	return nil
}

// setupSources создает опросчики каталога правил
func (s *Service) setupSources() error {
	cfg := s.config
	emit := s.engine.Submit

	if cfg.Alerter.RulesDir != "" {
		s.pollers = append(s.pollers, source.NewPoller(
			source.NewFileLoader(cfg.Alerter.RulesDir),
			cfg.Alerter.Module, cfg.Alerter.RulesPollInterval, emit, s.logger))
	}

	if cfg.PostgreSQL.Enabled {
		client, err := pg.NewClient(pg.Config{
			Host:            cfg.PostgreSQL.Host,
			Port:            cfg.PostgreSQL.Port,
			Database:        cfg.PostgreSQL.Database,
			Username:        cfg.PostgreSQL.Username,
			Password:        cfg.PostgreSQL.Password,
			SSLMode:         cfg.PostgreSQL.SSLMode,
			MaxOpenConns:    cfg.PostgreSQL.MaxOpenConns,
			MaxIdleConns:    cfg.PostgreSQL.MaxIdleConns,
			ConnMaxLifetime: cfg.PostgreSQL.ConnMaxLifetime,
		})
		if err != nil {
			return err
		}
		s.postgres = client

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := client.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("failed to prepare rules table: %w", err)
		}

		s.pollers = append(s.pollers, source.NewPoller(
			source.NewPostgresLoader(client),
			cfg.Alerter.Module, cfg.Alerter.RulesPollInterval, emit, s.logger))
	}

	if len(s.pollers) == 0 {
		s.logger.Warn("No rule source configured, rules arrive only as CONF messages")
	}
	return nil
}

// adminDeps собирает зависимости admin API
func (s *Service) adminDeps() server.Deps {
	deps := server.Deps{
		Engine:   s.engine,
		Gatherer: s.registry,
		Checks: map[string]routes.Check{
			"nats": func(ctx context.Context) error {
				if !s.nats.IsConnected() {
					return fmt.Errorf("not connected")
				}
				return nil
			},
			"engine": func(ctx context.Context) error {
				return s.engine.Do(ctx, func() {})
			},
		},
	}

	for _, p := range s.pollers {
		deps.Checks["source:"+p.Name()] = p.Ready
	}
	if s.redis != nil {
		deps.Checks["redis"] = s.redis.Ping
	}
	if s.postgres != nil {
		deps.Store = s.postgres
		deps.Checks["postgres"] = s.postgres.Ping
	}
	if s.clickhouse != nil {
		deps.Counter = s.clickhouse
		deps.Checks["clickhouse"] = s.clickhouse.Ping
	}
	return deps
}

// Start запускает сервис и блокируется до отмены контекста или Stop // v1.0
func (s *Service) Start(ctx context.Context) error {
	s.logger.WithField("module", s.config.Alerter.Module).Info("Starting alerter service")

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if s.journal != nil {
		s.journal.Start(runCtx)
	}

	engineErr := make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		engineErr <- s.engine.Run(runCtx)
	}()
	s.scheduler.Start()

	// Адресные сообщения модулю и широковещательные SAVED
	for _, recipient := range []string{s.config.Alerter.Module, models.BroadcastRecipient} {
		if err := s.nats.Subscribe(recipient, s.engine.Submit); err != nil {
			cancel()
			s.shutdown()
			return err
		}
	}

	for _, p := range s.pollers {
		s.wg.Add(1)
		go func(p *source.Poller) {
			defer s.wg.Done()
			p.Run(runCtx)
		}(p)
	}

	serverErr := make(chan error, 1)
	if s.admin != nil {
		go func() {
			serverErr <- s.admin.Start()
		}()
	}

	var err error
	select {
	case <-ctx.Done():
		s.logger.Info("Context cancelled, stopping service")
	case <-s.stopChan:
		s.logger.Info("Stop signal received, stopping service")
	case err = <-engineErr:
		if err != nil {
			s.logger.WithError(err).Error("Rule engine exited")
		}
	case err = <-serverErr:
		if err != nil {
			s.logger.WithError(err).Error("Admin API exited")
		}
	}

	cancel()
	s.shutdown()
	return err
}

// Stop просит Start завершиться // v1.0
func (s *Service) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
}

// shutdown останавливает компоненты в обратном порядке
func (s *Service) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if s.admin != nil {
		if err := s.admin.Stop(ctx); err != nil {
			s.logger.WithError(err).Warn("Failed to stop admin API")
		}
	}

	s.scheduler.Stop(ctx)
	s.wg.Wait()

	if s.journal != nil {
		s.journal.Stop()
		s.logger.WithFields(s.journal.GetStats()).Info("Activation journal stopped")
	}

	s.closeClients()
	s.logger.Info("Alerter service stopped")
}

func (s *Service) closeClients() {
	if s.nats != nil {
		if err := s.nats.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close NATS connection")
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close Redis connection")
		}
	}
	if s.postgres != nil {
		if err := s.postgres.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close PostgreSQL connection")
		}
	}
	if s.clickhouse != nil {
		if err := s.clickhouse.Close(); err != nil {
			s.logger.WithError(err).Warn("Failed to close ClickHouse connection")
		}
	}
}

// filename: internal/adminapi/server/server.go
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/myhouse/alerter/internal/adminapi/routes"
	"github.com/myhouse/alerter/internal/common/logging"
)

// Server представляет HTTP сервер Admin API // v1.0
type Server struct {
	config *Config
	logger *logging.Logger
	router *gin.Engine
	server *http.Server
}

// Config конфигурация сервера // v1.0
type Config struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	LogLevel     string        `yaml:"log_level"`
	// TLS включает HTTPS, если задан
	TLS *tls.Config `yaml:"-"`
}

// Deps зависимости обработчиков
type Deps struct {
	Engine   routes.Engine
	Store    routes.RuleStore
	Counter  routes.ActivationCounter
	Checks   map[string]routes.Check
	Gatherer prometheus.Gatherer
}

// NewServer создает новый HTTP сервер // v1.0
func NewServer(config *Config, deps Deps, logger *logging.Logger) *Server {
	// Устанавливаем уровень логирования Gin
	if config.LogLevel == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Добавляем middleware
	router.Use(gin.Recovery())
	router.Use(loggingMiddleware(logger))

	server := &Server{
		config: config,
		logger: logger,
		router: router,
	}

	// Настраиваем роуты
	server.setupRoutes(deps)

	// Создаем HTTP сервер
	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
		TLSConfig:    config.TLS,
	}

	return server
}

// setupRoutes настраивает роуты API // v1.0
func (s *Server) setupRoutes(deps Deps) {
	healthHandler := routes.NewHealthHandler(s.logger, deps.Checks)
	rulesHandler := routes.NewRulesHandler(s.logger, deps.Engine, deps.Store, deps.Counter)

	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	v1 := s.router.Group("/api/v1")
	{
		// Health endpoints
		v1.GET("/health", healthHandler.HealthCheck)
		v1.GET("/health/ready", healthHandler.ReadinessCheck)
		v1.GET("/health/live", healthHandler.LivenessCheck)

		// Rules endpoints
		rules := v1.Group("/rules")
		{
			rules.GET("", rulesHandler.GetRules)
			rules.POST("/validate", rulesHandler.ValidateRule)
			rules.GET("/:id", rulesHandler.GetRuleByID)
			rules.PUT("/:id", rulesHandler.PutRule)
			rules.DELETE("/:id", rulesHandler.DeleteRule)
			rules.POST("/:id/run", rulesHandler.RunRule)
			rules.GET("/:id/stats", rulesHandler.GetRuleStats)
		}

		v1.PUT("/sensors/*id", rulesHandler.PutSensor)
		v1.GET("/activations", rulesHandler.GetActivations)
		v1.GET("/triggers", rulesHandler.GetTriggers)
		v1.GET("/stats", rulesHandler.GetStats)
	}

	s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))

	// Root endpoint
	s.router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"service":   routes.ServiceName,
			"status":    "running",
			"timestamp": time.Now().Format(time.RFC3339),
			"endpoints": gin.H{
				"health":      "/api/v1/health",
				"rules":       "/api/v1/rules",
				"activations": "/api/v1/activations",
				"metrics":     "/metrics",
			},
		})
	})

	// 404 handler
	s.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":     "NOT_FOUND",
			"message":   fmt.Sprintf("Method %s %s not found", c.Request.Method, c.Request.URL.Path),
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})
}

// Start запускает HTTP сервер и блокируется до остановки // v1.0
func (s *Server) Start() error {
	s.logger.Logger.WithFields(map[string]interface{}{
		"host": s.config.Host,
		"port": s.config.Port,
		"tls":  s.config.TLS != nil,
	}).Info("Starting Admin API server")

	var err error
	if s.config.TLS != nil {
		// сертификаты уже загружены в TLSConfig
		err = s.server.ListenAndServeTLS("", "")
	} else {
		err = s.server.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return nil
}

// Stop останавливает HTTP сервер // v1.0
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Logger.Info("Stopping Admin API server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	return nil
}

// GetRouter возвращает роутер для тестирования // v1.0
func (s *Server) GetRouter() *gin.Engine {
	return s.router
}

// loggingMiddleware добавляет логирование запросов // v1.0
func loggingMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		logger.Logger.WithFields(map[string]interface{}{
			"method":     param.Method,
			"path":       param.Path,
			"status":     param.StatusCode,
			"latency":    param.Latency,
			"client_ip":  param.ClientIP,
			"user_agent": param.Request.UserAgent(),
		}).Debug("HTTP request")

		return ""
	})
}

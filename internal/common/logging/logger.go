// filename: internal/common/logging/logger.go
package logging

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// Logger представляет логгер приложения
type Logger struct {
	*logrus.Logger
}

// Config представляет конфигурацию логирования
type Config struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// NewLogger создает новый логгер // v1.0
func NewLogger(config Config) (*Logger, error) {
	logger := logrus.New()

	level := config.Level
	if level == "" {
		level = "info"
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logger.SetLevel(parsed)

	switch config.Format {
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	default:
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	if err := setOutput(logger, config); err != nil {
		return nil, err
	}

	return &Logger{Logger: logger}, nil
}

// NewNopLogger создает логгер, который ничего не пишет (для тестов) // v1.0
func NewNopLogger() *Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.DebugLevel)
	return &Logger{Logger: logger}
}

// setOutput устанавливает вывод для логгера // v1.0
func setOutput(logger *logrus.Logger, config Config) error {
	switch config.Output {
	case "", "stdout":
		logger.SetOutput(os.Stdout)
	case "stderr":
		logger.SetOutput(os.Stderr)
	default:
		// Любое другое значение трактуем как путь к файлу
		return setFileOutput(logger, config.Output)
	}
	return nil
}

// setFileOutput устанавливает файловый вывод // v1.0
func setFileOutput(logger *logrus.Logger, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	logger.SetOutput(io.MultiWriter(os.Stdout, file))
	return nil
}

// WithField добавляет поле к логгеру // v1.0
func (l *Logger) WithField(key string, value interface{}) *logrus.Entry {
	return l.Logger.WithField(key, value)
}

// WithFields добавляет поля к логгеру // v1.0
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	return l.Logger.WithFields(fields)
}

// WithError добавляет ошибку к логгеру // v1.0
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithError(err)
}

// WithRule добавляет информацию об экземпляре правила к логгеру // v1.0
func (l *Logger) WithRule(ruleID, macro string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"rule_id": ruleID,
		"macro":   macro,
	})
}

// WithActivation добавляет информацию об активации к логгеру // v1.0
func (l *Logger) WithActivation(activationID, ruleID, macro string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"activation_id": activationID,
		"rule_id":       ruleID,
		"macro":         macro,
	})
}

// WithMessage добавляет информацию о сообщении шины к логгеру // v1.0
func (l *Logger) WithMessage(sender, command, args string) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"sender":  sender,
		"command": command,
		"args":    args,
	})
}

// SetLevel устанавливает уровень логирования // v1.0
func (l *Logger) SetLevel(level string) error {
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	l.Logger.SetLevel(logLevel)
	return nil
}

// GetLevel возвращает текущий уровень логирования // v1.0
func (l *Logger) GetLevel() string {
	return l.Logger.GetLevel().String()
}

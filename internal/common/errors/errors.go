// internal/common/errors/errors.go
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode представляет код ошибки
type ErrorCode string

const (
	// Общие ошибки
	ErrorCodeInternal   ErrorCode = "INTERNAL_ERROR"
	ErrorCodeValidation ErrorCode = "VALIDATION_ERROR"
	ErrorCodeNotFound   ErrorCode = "NOT_FOUND"
	ErrorCodeTimeout    ErrorCode = "TIMEOUT"
	ErrorCodeThrottled  ErrorCode = "THROTTLED"

	// Ошибки правил
	ErrorCodeRuleInvalid      ErrorCode = "RULE_INVALID"
	ErrorCodeRuleNotFound     ErrorCode = "RULE_NOT_FOUND"
	ErrorCodeVariableInvalid  ErrorCode = "VARIABLE_INVALID"
	ErrorCodeConditionInvalid ErrorCode = "CONDITION_INVALID"
	ErrorCodeActionInvalid    ErrorCode = "ACTION_INVALID"
	ErrorCodeScheduleInvalid  ErrorCode = "SCHEDULE_INVALID"

	// Ошибки сообщений шины
	ErrorCodeMessageInvalid ErrorCode = "MESSAGE_INVALID"

	// Ошибки NATS
	ErrorCodeNATSConnection ErrorCode = "NATS_CONNECTION_ERROR"
	ErrorCodeNATSPublish    ErrorCode = "NATS_PUBLISH_ERROR"
	ErrorCodeNATSSubscribe  ErrorCode = "NATS_SUBSCRIBE_ERROR"

	// Ошибки Redis
	ErrorCodeRedisConnection ErrorCode = "REDIS_CONNECTION_ERROR"
	ErrorCodeRedisCommand    ErrorCode = "REDIS_COMMAND_ERROR"

	// Ошибки PostgreSQL
	ErrorCodePGConnection ErrorCode = "PG_CONNECTION_ERROR"
	ErrorCodePGQuery      ErrorCode = "PG_QUERY_ERROR"

	// Ошибки ClickHouse
	ErrorCodeCHConnection ErrorCode = "CH_CONNECTION_ERROR"
	ErrorCodeCHInsert     ErrorCode = "CH_INSERT_ERROR"
)

// AlerterError представляет ошибку сервиса правил
type AlerterError struct {
	Code       ErrorCode              `json:"code"`
	Message    string                 `json:"message"`
	Details    map[string]interface{} `json:"details,omitempty"`
	Internal   error                  `json:"-"`
	StatusCode int                    `json:"status_code"`
}

// Error возвращает строковое представление ошибки // v1.0
func (e *AlerterError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Code, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap возвращает внутреннюю ошибку // v1.0
func (e *AlerterError) Unwrap() error {
	return e.Internal
}

// New создает новую ошибку // v1.0
func New(code ErrorCode, message string) *AlerterError {
	return &AlerterError{
		Code:       code,
		Message:    message,
		Details:    make(map[string]interface{}),
		StatusCode: getStatusCode(code),
	}
}

// Newf создает новую ошибку с форматированием сообщения // v1.0
func Newf(code ErrorCode, format string, args ...interface{}) *AlerterError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap оборачивает существующую ошибку // v1.0
func Wrap(err error, code ErrorCode, message string) *AlerterError {
	return &AlerterError{
		Code:       code,
		Message:    message,
		Internal:   err,
		Details:    make(map[string]interface{}),
		StatusCode: getStatusCode(code),
	}
}

// AddDetail добавляет деталь к ошибке // v1.0
func (e *AlerterError) AddDetail(key string, value interface{}) *AlerterError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// IsErrorCode проверяет, является ли ошибка (или любая из обернутых) ошибкой с кодом // v1.0
func IsErrorCode(err error, code ErrorCode) bool {
	var alerterErr *AlerterError
	if errors.As(err, &alerterErr) {
		return alerterErr.Code == code
	}
	return false
}

// GetErrorCode возвращает код ошибки // v1.0
func GetErrorCode(err error) ErrorCode {
	var alerterErr *AlerterError
	if errors.As(err, &alerterErr) {
		return alerterErr.Code
	}
	return ErrorCodeInternal
}

// GetStatusCode возвращает HTTP статус для произвольной ошибки // v1.0
func GetStatusCode(err error) int {
	var alerterErr *AlerterError
	if errors.As(err, &alerterErr) {
		return alerterErr.StatusCode
	}
	return 500
}

// getStatusCode возвращает HTTP статус код для кода ошибки // v1.0
func getStatusCode(code ErrorCode) int {
	switch code {
	case ErrorCodeValidation, ErrorCodeRuleInvalid, ErrorCodeVariableInvalid,
		ErrorCodeConditionInvalid, ErrorCodeActionInvalid, ErrorCodeScheduleInvalid,
		ErrorCodeMessageInvalid:
		return 400
	case ErrorCodeNotFound, ErrorCodeRuleNotFound:
		return 404
	case ErrorCodeTimeout:
		return 408
	case ErrorCodeThrottled:
		return 429
	default:
		return 500
	}
}

// ValidationError создает ошибку валидации // v1.0
func ValidationError(field, message string) *AlerterError {
	return New(ErrorCodeValidation, fmt.Sprintf("validation failed for field '%s': %s", field, message))
}

// RuleNotFoundError создает ошибку "правило не найдено" // v1.0
func RuleNotFoundError(ruleID string) *AlerterError {
	return New(ErrorCodeRuleNotFound, fmt.Sprintf("rule '%s' not found", ruleID))
}

// ThrottledError создает ошибку слишком частого запуска // v1.0
func ThrottledError(instance string) *AlerterError {
	return New(ErrorCodeThrottled, fmt.Sprintf("rule instance '%s' ran too recently", instance))
}

// AggregateErrors объединяет несколько ошибок в одну // v1.0
func AggregateErrors(errs []error) *AlerterError {
	if len(errs) == 0 {
		return nil
	}

	if len(errs) == 1 {
		var alerterErr *AlerterError
		if errors.As(errs[0], &alerterErr) {
			return alerterErr
		}
		return Wrap(errs[0], ErrorCodeInternal, "aggregated error")
	}

	messages := make([]string, 0, len(errs))
	for _, err := range errs {
		messages = append(messages, err.Error())
	}

	return New(ErrorCodeInternal, fmt.Sprintf("multiple errors occurred: %s", strings.Join(messages, "; ")))
}

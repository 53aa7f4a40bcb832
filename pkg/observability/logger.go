package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel represents the severity of a log message
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l LogLevel) String() string {
	if l < DebugLevel || l > ErrorLevel {
		return "INFO"
	}
	return levelNames[l]
}

// ParseLogLevel maps a config string to a LogLevel, defaulting to InfoLevel
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return DebugLevel
	case "warn", "warning":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case DebugLevel:
		return slog.LevelDebug
	case WarnLevel:
		return slog.LevelWarn
	case ErrorLevel:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FieldLogger is implemented by errors that carry structured context worth
// logging next to the message, such as *analytics.Error.
type FieldLogger interface {
	LogFields() map[string]interface{}
}

// Logger provides structured JSON logging for the API and analytics service
type Logger struct {
	logger *slog.Logger
	level  LogLevel
}

// NewLogger creates a JSON logger writing to output, stdout when nil
func NewLogger(level LogLevel, output io.Writer) *Logger {
	if output == nil {
		output = os.Stdout
	}
	handler := slog.NewJSONHandler(output, &slog.HandlerOptions{Level: level.slogLevel()})
	return &Logger{logger: slog.New(handler), level: level}
}

// Enabled reports whether messages at level are written
func (l *Logger) Enabled(level LogLevel) bool {
	return level >= l.level
}

func (l *Logger) with(args ...interface{}) *Logger {
	return &Logger{logger: l.logger.With(args...), level: l.level}
}

// WithField adds a field to the logger context
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.with(key, value)
}

// WithFields adds multiple fields to the logger context
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l.with(args...)
}

// WithError adds the error message and, for errors in the chain that
// implement FieldLogger, their fields.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	out := l.with("error", err.Error())
	var fl FieldLogger
	if errors.As(err, &fl) {
		out = out.WithFields(fl.LogFields())
	}
	return out
}

// WithWindow adds the analysed date window as RFC3339 from/to fields
func (l *Logger) WithWindow(from, to time.Time) *Logger {
	return l.with("from", from.Format(time.RFC3339), "to", to.Format(time.RFC3339))
}

func (l *Logger) log(level LogLevel, message string) {
	if !l.Enabled(level) {
		return
	}
	l.logger.Log(context.Background(), level.slogLevel(), message)
}

func (l *Logger) logf(level LogLevel, format string, args ...interface{}) {
	if !l.Enabled(level) {
		return
	}
	l.logger.Log(context.Background(), level.slogLevel(), fmt.Sprintf(format, args...))
}

func (l *Logger) Debug(message string) { l.log(DebugLevel, message) }
func (l *Logger) Debugf(format string, args ...interface{}) { l.logf(DebugLevel, format, args...) }
func (l *Logger) Info(message string) { l.log(InfoLevel, message) }
func (l *Logger) Infof(format string, args ...interface{}) { l.logf(InfoLevel, format, args...) }
func (l *Logger) Warn(message string) { l.log(WarnLevel, message) }
func (l *Logger) Warnf(format string, args ...interface{}) { l.logf(WarnLevel, format, args...) }
func (l *Logger) Error(message string) { l.log(ErrorLevel, message) }
func (l *Logger) Errorf(format string, args ...interface{}) { l.logf(ErrorLevel, format, args...) }

type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// ShopIDKey is the context key for the shop being analysed
	ShopIDKey contextKey = "shop_id"
	// LoggerKey is the context key for the logger
	LoggerKey contextKey = "logger"
)

var defaultLogger = NewLogger(InfoLevel, os.Stdout)

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from context
func GetRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(RequestIDKey).(string)
	return requestID
}

// WithShopID adds a shop ID to the context
func WithShopID(ctx context.Context, shopID string) context.Context {
	return context.WithValue(ctx, ShopIDKey, shopID)
}

// GetShopID retrieves the shop ID from context
func GetShopID(ctx context.Context) string {
	shopID, _ := ctx.Value(ShopIDKey).(string)
	return shopID
}

// WithLogger adds a logger to the context
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// GetLogger retrieves the logger from context, or an info-level stdout logger
func GetLogger(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerKey).(*Logger); ok && logger != nil {
		return logger
	}
	return defaultLogger
}

// FromContext returns the context logger tagged with the request and shop IDs
func FromContext(ctx context.Context) *Logger {
	logger := GetLogger(ctx)
	if requestID := GetRequestID(ctx); requestID != "" {
		logger = logger.WithField("request_id", requestID)
	}
	if shopID := GetShopID(ctx); shopID != "" {
		logger = logger.WithField("shop_id", shopID)
	}
	return logger
}

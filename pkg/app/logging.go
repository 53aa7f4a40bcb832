package app

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/queuekit/queue-analytics/pkg/observability"
)

// NewLogrus returns a JSON logrus logger at the level matching level
func NewLogrus(level observability.LogLevel) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stdout)
	log.SetFormatter(&logrus.JSONFormatter{})
	log.SetLevel(logrusLevel(level))
	return log
}

func logrusLevel(level observability.LogLevel) logrus.Level {
	switch level {
	case observability.DebugLevel:
		return logrus.DebugLevel
	case observability.WarnLevel:
		return logrus.WarnLevel
	case observability.ErrorLevel:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// Package logging provides structured logging for the attestation verifier.
package logging

import (
	"os"
	"time"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with a fixed component/service label.
type Logger struct {
	*logrus.Logger
	service string
}

// New creates a new Logger instance. format selects "json" or text output;
// level is parsed with logrus.ParseLevel and falls back to Info on failure.
func New(service, level, format string) *Logger {
	logger := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "timestamp",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			TimestampFormat: time.RFC3339,
			FullTimestamp:   true,
		})
	}

	logger.SetOutput(os.Stdout)

	return &Logger{
		Logger:  logger,
		service: service,
	}
}

// WithFields creates a new logger entry with custom fields.
func (l *Logger) WithFields(fields map[string]interface{}) *logrus.Entry {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["service"] = l.service
	return l.Logger.WithFields(fields)
}

// WithError creates a new logger entry with an error field.
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithFields(logrus.Fields{
		"service": l.service,
		"error":   err.Error(),
	})
}

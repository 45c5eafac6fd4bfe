package logger

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger with helpers for the sync engine's
// structured events.
type Logger struct {
	*logrus.Logger
}

// New creates a new logger instance
func New(level string) *Logger {
	log := logrus.New()

	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	log.SetLevel(logLevel)

	log.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: "2006-01-02T15:04:05.000Z07:00",
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "timestamp",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "message",
		},
	})

	log.SetOutput(os.Stdout)

	return &Logger{Logger: log}
}

// Discard returns a logger that drops everything, for tests.
func Discard() *Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	log.SetLevel(logrus.PanicLevel)
	return &Logger{Logger: log}
}

// WithComponent creates a new logger entry with a component name field
func (l *Logger) WithComponent(component string) *logrus.Entry {
	return l.Logger.WithField("component", component)
}

// WithDevice creates a new logger entry tagged with the device identity
func (l *Logger) WithDevice(deviceID string) *logrus.Entry {
	return l.Logger.WithField("device_id", deviceID)
}

// WithError creates a new logger entry with an error field
func (l *Logger) WithError(err error) *logrus.Entry {
	return l.Logger.WithError(err)
}

// SyncEvent logs one structured line per sync attempt.
func (l *Logger) SyncEvent(mode string, rows int, success bool, details map[string]interface{}) {
	entry := l.Logger.WithFields(logrus.Fields{
		"sync":    true,
		"mode":    mode,
		"rows":    rows,
		"success": success,
		"details": details,
	})

	if success {
		entry.Info("Sync attempt completed")
	} else {
		entry.Warn("Sync attempt failed")
	}
}

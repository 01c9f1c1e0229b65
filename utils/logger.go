package utils

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig controls the named loggers returned by GetLogger
type LogConfig struct {
	Level      string
	Format     string // text or json
	File       string // optional, rotated by lumberjack
	MaxSizeMB  int
	MaxBackups int
}

var (
	loggers   = make(map[string]*logrus.Logger)
	loggersMu sync.Mutex
	logConfig = LogConfig{Level: "info", Format: "text"}
	logFile   io.Writer
)

// InitLogging replaces the logging configuration. Loggers created before the
// call are reconfigured.
func InitLogging(cfg LogConfig) {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	logConfig = cfg
	logFile = nil
	if cfg.File != "" {
		logFile = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
	}
	for _, l := range loggers {
		configure(l)
	}
	configure(logrus.StandardLogger())
}

// GetLogger returns the logger registered under name, creating it on first use
func GetLogger(name string) *logrus.Logger {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if l, ok := loggers[name]; ok {
		return l
	}
	l := logrus.New()
	configure(l)
	loggers[name] = l
	return l
}

func configure(l *logrus.Logger) {
	level, err := logrus.ParseLevel(logConfig.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if logConfig.Format == "json" {
		l.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05.000",
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	} else {
		l.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05.000",
		})
	}

	if logFile != nil {
		l.SetOutput(io.MultiWriter(os.Stdout, logFile))
	} else {
		l.SetOutput(os.Stdout)
	}
}

// InitSentry configures error reporting. An empty dsn disables it.
func InitSentry(dsn, environment string) error {
	if dsn == "" {
		return nil
	}
	return sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		AttachStacktrace: true,
	})
}

// FlushSentry waits for buffered events to be delivered.
func FlushSentry() {
	sentry.Flush(2 * time.Second)
}

// LogError logs an error with context and reports it to Sentry
func LogError(errorType string, err error, context map[string]interface{}) {
	log := GetLogger("app").WithFields(logrus.Fields{
		"error_type": errorType,
		"error":      err.Error(),
	})
	for k, v := range context {
		log = log.WithField(k, v)
	}
	log.Error("Operation failed")

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_type", errorType)
		for k, v := range context {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(err)
	})
}

// LogEvent logs an event with structured data and leaves a Sentry breadcrumb
func LogEvent(eventType string, data map[string]interface{}) {
	log := GetLogger("app").WithField("event_type", eventType)
	for k, v := range data {
		log = log.WithField(k, v)
	}
	log.Info("Event occurred")

	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Type:      "info",
		Category:  eventType,
		Data:      data,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	})
}

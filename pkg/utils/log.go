package utils

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/ghettovoice/gosip/log"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

const timestampFormat = "2006-01-02 15:04:05.000"

type namedLogger struct {
	Logger *log.LogrusLogger
	level  log.Level
}

func (nl *namedLogger) Level() string {
	return LevelName(nl.level)
}

var (
	loggersMu       sync.Mutex
	loggers         = make(map[string]*namedLogger)
	DefaultLogLevel = log.InfoLevel
)

// NewLogrusLogger returns the shared logger for prefix, creating it on first
// use. Later calls with the same prefix reuse the existing level.
func NewLogrusLogger(level log.Level, prefix string, fields log.Fields) log.Logger {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if nl, found := loggers[prefix]; found {
		return nl.Logger.WithPrefix(prefix).WithFields(fields)
	}
	l := logrus.New()
	l.Formatter = &prefixed.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
		ForceColors:     true,
		ForceFormatting: true,
	}
	logger := log.NewLogrusLogger(l, "main", fields)
	logger.SetLevel(level)
	loggers[prefix] = &namedLogger{
		Logger: logger,
		level:  level,
	}
	return logger.WithPrefix(prefix)
}

// NewWriterLogger builds an unregistered, uncoloured debug logger writing to w.
func NewWriterLogger(w io.Writer, prefix string) log.Logger {
	l := logrus.New()
	l.Out = w
	l.Formatter = &prefixed.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: timestampFormat,
		DisableColors:   true,
		ForceFormatting: true,
	}
	logger := log.NewLogrusLogger(l, "main", nil)
	logger.SetLevel(log.DebugLevel)
	return logger.WithPrefix(prefix)
}

func SetLogLevel(prefix string, level log.Level) error {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	if nl, found := loggers[prefix]; found {
		nl.level = level
		nl.Logger.SetLevel(level)
		return nil
	}
	return fmt.Errorf("logger [%v] not found", prefix)
}

// LogLevels reports the level of every registered logger, keyed by prefix.
func LogLevels() map[string]string {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	levels := make(map[string]string, len(loggers))
	for prefix, nl := range loggers {
		levels[prefix] = nl.Level()
	}
	return levels
}

// LoggerPrefixes returns the registered prefixes in sorted order.
func LoggerPrefixes() []string {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	prefixes := make([]string, 0, len(loggers))
	for prefix := range loggers {
		prefixes = append(prefixes, prefix)
	}
	sort.Strings(prefixes)
	return prefixes
}

func LevelName(level log.Level) string {
	switch level {
	case log.PanicLevel:
		return "Panic"
	case log.FatalLevel:
		return "Fatal"
	case log.ErrorLevel:
		return "Error"
	case log.WarnLevel:
		return "Warn"
	case log.InfoLevel:
		return "Info"
	case log.DebugLevel:
		return "Debug"
	case log.TraceLevel:
		return "Trace"
	}
	return "Unknown"
}

// ParseLevel accepts the names produced by LevelName, case-insensitively.
func ParseLevel(name string) (log.Level, error) {
	switch strings.ToLower(name) {
	case "panic":
		return log.PanicLevel, nil
	case "fatal":
		return log.FatalLevel, nil
	case "error":
		return log.ErrorLevel, nil
	case "warn", "warning":
		return log.WarnLevel, nil
	case "info":
		return log.InfoLevel, nil
	case "debug":
		return log.DebugLevel, nil
	case "trace":
		return log.TraceLevel, nil
	}
	return log.InfoLevel, fmt.Errorf("unknown log level %q", name)
}

// Package logger provides the structured logger used across every
// subsystem of the digital twin engine.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps logrus.Logger so call sites can attach component-scoped
// fields without reaching for the global logger.
type Logger struct {
	*logrus.Logger
	component string
}

// Config controls logger construction.
type Config struct {
	Level      string `json:"level" env:"LOG_LEVEL"`
	Format     string `json:"format" env:"LOG_FORMAT"`
	Output     string `json:"output" env:"LOG_OUTPUT"`
	FilePrefix string `json:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// New builds a Logger for the named component from the given configuration.
func New(component string, cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch strings.ToLower(cfg.Output) {
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "digitaltwin"
		}
		if err := os.MkdirAll("logs", 0o755); err != nil {
			l.Errorf("failed to create log directory: %v", err)
		} else {
			path := filepath.Join("logs", prefix+".log")
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				l.Errorf("failed to open log file %s: %v", path, err)
			} else {
				l.SetOutput(io.MultiWriter(os.Stdout, f))
			}
		}
	default:
		l.SetOutput(os.Stdout)
	}

	return &Logger{Logger: l, component: component}
}

// NewDefault builds a Logger with sane defaults for tests and examples.
func NewDefault(component string) *Logger {
	return New(component, Config{Level: "info", Format: "text", Output: "stdout"})
}

// WithField attaches one field, pre-seeded with the component name.
func (l *Logger) WithField(key string, value any) *logrus.Entry {
	return l.Logger.WithField("component", l.component).WithField(key, value)
}

// WithFields attaches several fields, pre-seeded with the component name.
func (l *Logger) WithFields(fields logrus.Fields) *logrus.Entry {
	fields["component"] = l.component
	return l.Logger.WithFields(fields)
}

// Component returns the component name this logger was created for.
func (l *Logger) Component() string { return l.component }

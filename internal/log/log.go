// Package log provides the process-wide structured logger used by every
// Reynard daemon: a logrus logger fanned out to stdout plus an optional
// rotating file sink. Get and Component hand out *logrus.Entry values.
package log

import (
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls logger construction. Mirrors the corpus's
// pattern/appender split (internal/log in the teacher).
type Config struct {
	Level   string       `mapstructure:"level"`
	Pattern string        `mapstructure:"pattern"`
	File    *FileConfig  `mapstructure:"file"`
}

// FileConfig configures the rotating file appender.
type FileConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

var (
	mu     sync.RWMutex
	logger *logrus.Entry
)

func init() {
	logger = logrus.NewEntry(logrus.New())
}

// Init (re)configures the process-wide logger from cfg. Safe to call
// again on SIGHUP-driven reload.
func Init(cfg Config) error {
	level, err := logrus.ParseLevel(defaultString(cfg.Level, "info"))
	if err != nil {
		return err
	}

	l := logrus.New()
	l.SetLevel(level)
	l.SetFormatter(&patternFormatter{pattern: defaultString(cfg.Pattern, "%time [%level] %field %msg")})

	writers := []io.Writer{os.Stdout}
	if cfg.File != nil && cfg.File.Filename != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File.Filename,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
			Compress:   cfg.File.Compress,
		})
	}
	l.SetOutput(newMultiWriter(writers...))

	mu.Lock()
	logger = logrus.NewEntry(l)
	mu.Unlock()
	return nil
}

// Get returns the process-wide logger, optionally scoped with fields.
func Get(fields ...string) *logrus.Entry {
	mu.RLock()
	defer mu.RUnlock()
	e := logger
	for i := 0; i+1 < len(fields); i += 2 {
		e = e.WithField(fields[i], fields[i+1])
	}
	return e
}

// Component returns the process-wide logger scoped to a named component,
// the convention every Reynard service uses for its first log field.
func Component(name string) *logrus.Entry {
	return Get("component", name)
}

func defaultString(s, d string) string {
	if strings.TrimSpace(s) == "" {
		return d
	}
	return s
}

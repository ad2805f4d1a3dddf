package httpserver

import (
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/CePseudoBE/digitaltwin-sub001/pkg/logger"
)

// NewAccessLogger builds the lightweight per-request zerolog.Logger the
// access-log middleware writes to, grounded on the teacher's pkg/log/log.go
// (rs/zerolog, level parsed from config, console or JSON output). It is
// deliberately separate from pkg/logger's logrus-backed service logger: the
// teacher reserves zerolog for its own high-volume per-request audit lines.
func NewAccessLogger(cfg logger.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = zerolog.InfoLevel
	}
	base := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	if strings.ToLower(cfg.Format) != "json" {
		base = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).Level(level).With().Timestamp().Logger()
	}
	return base
}

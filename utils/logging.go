package utils

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig controls where and how verbosely the process logs
type LogConfig struct {
	Level   string
	File    string
	Console bool
}

// NewLogger builds the root logger. Console output is human readable; the log
// file (rotated by lumberjack) receives JSON lines.
func NewLogger(cfg LogConfig) (zerolog.Logger, io.Closer) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}

	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime})
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    20, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		writers = append(writers, file)
		closer = file
	}
	if len(writers) == 0 {
		writers = append(writers, io.Discard)
	}

	logger := zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(level).
		With().
		Timestamp().
		Logger()
	return logger, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

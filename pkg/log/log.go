// Package log provides ingestord's process-wide structured logger, a thin
// zerolog wrapper with ingestion-domain field helpers.
package log

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// FileConfig rotates the log file the way a long-running daemon needs to;
// container-style stdout-only logging doesn't bound file growth.
type FileConfig struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
	File       *FileConfig
}

// Init initializes the global logger
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}

	zerolog.SetGlobalLevel(level)

	var writers []io.Writer
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	writers = append(writers, output)

	if cfg.File != nil && cfg.File.Path != "" {
		writers = append(writers, &lumberjack.Logger{
			Filename:   cfg.File.Path,
			MaxSize:    cfg.File.MaxSizeMB,
			MaxBackups: cfg.File.MaxBackups,
			MaxAge:     cfg.File.MaxAgeDays,
		})
	}

	var out io.Writer = io.MultiWriter(writers...)
	if !cfg.JSONOutput {
		out = io.MultiWriter(consoleWriters(writers)...)
	}

	Logger = zerolog.New(out).With().Timestamp().Logger()
}

func consoleWriters(writers []io.Writer) []io.Writer {
	out := make([]io.Writer, len(writers))
	for i, w := range writers {
		out[i] = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return out
}

// WithComponent creates a child logger with component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithOrg creates a child logger with org_id field
func WithOrg(orgID string) zerolog.Logger {
	return Logger.With().Str("org_id", orgID).Logger()
}

// WithStream creates a child logger with the stream identity fields
func WithStream(orgID, streamType, stream string) zerolog.Logger {
	return Logger.With().
		Str("org_id", orgID).
		Str("stream_type", streamType).
		Str("stream", stream).
		Logger()
}

// WithThread creates a child logger with thread_id field
func WithThread(threadID int) zerolog.Logger {
	return Logger.With().Int("thread_id", threadID).Logger()
}

// WithFile creates a child logger with file_key field
func WithFile(fileKey string) zerolog.Logger {
	return Logger.With().Str("file_key", fileKey).Logger()
}

func Info(msg string) { Logger.Info().Msg(msg) }

func Debug(msg string) { Logger.Debug().Msg(msg) }

func Warn(msg string) { Logger.Warn().Msg(msg) }

func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(format string, err error) { Logger.Error().Err(err).Msg(format) }

func Fatal(msg string) { Logger.Fatal().Msg(msg) }

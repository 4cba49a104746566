// Package logging provides structured logging functionality.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Console    bool   `mapstructure:"console"`
	File       bool   `mapstructure:"file"`
	FilePath   string `mapstructure:"file_path"`
	MaxSize    int    `mapstructure:"max_size"` // megabytes
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"` // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "stock-pattern", "logs", "scanner.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig builds a logger that writes to the console, a rotating
// file, or both. With neither enabled it falls back to stderr.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer
	if cfg.Console {
		writers = append(writers, consoleWriter(os.Stderr))
	}
	if cfg.File && cfg.FilePath != "" {
		if w, err := fileWriter(cfg); err == nil {
			writers = append(writers, w)
		}
	}

	var out io.Writer = os.Stderr
	if len(writers) == 1 {
		out = writers[0]
	} else if len(writers) > 1 {
		out = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	return zerolog.New(out).With().Timestamp().Caller().Logger()
}

type levelLabel struct {
	text  string
	color *color.Color
}

var levelLabels = map[string]levelLabel{
	zerolog.LevelTraceValue: {"TRC", color.New(color.FgMagenta)},
	zerolog.LevelDebugValue: {"DBG", color.New(color.FgCyan)},
	zerolog.LevelInfoValue:  {"INF", color.New(color.FgGreen)},
	zerolog.LevelWarnValue:  {"WRN", color.New(color.FgYellow)},
	zerolog.LevelErrorValue: {"ERR", color.New(color.FgRed)},
	zerolog.LevelFatalValue: {"FTL", color.New(color.FgRed, color.Bold)},
	zerolog.LevelPanicValue: {"PNC", color.New(color.FgRed, color.Bold)},
}

// formatLevel renders a level as its three-letter console label.
func formatLevel(i interface{}) string {
	level, ok := i.(string)
	if !ok {
		return "???"
	}
	if l, ok := levelLabels[level]; ok {
		return l.color.Sprint(l.text)
	}
	return strings.ToUpper(level)
}

func consoleWriter(w io.Writer) zerolog.ConsoleWriter {
	return zerolog.ConsoleWriter{
		Out:         w,
		TimeFormat:  time.RFC3339,
		FormatLevel: formatLevel,
	}
}

// fileWriter opens the rotating log file, creating its directory.
func fileWriter(cfg LogConfig) (io.Writer, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
		return nil, err
	}
	return &lumberjack.Logger{
		Filename:   cfg.FilePath,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}, nil
}

// ParseLevel maps a level name to a zerolog level. Empty or unknown names
// mean info.
func ParseLevel(level string) zerolog.Level {
	l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || l == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return l
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

type loggerKey struct{}

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext retrieves the logger from context.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}

// WithTicker adds a ticker to the logger context.
func WithTicker(logger zerolog.Logger, ticker string) zerolog.Logger {
	return logger.With().Str("ticker", ticker).Logger()
}

// WithOperation adds an operation name to the logger context.
func WithOperation(logger zerolog.Logger, operation string) zerolog.Logger {
	return logger.With().Str("operation", operation).Logger()
}

// LogSetup logs a detected setup.
func LogSetup(logger zerolog.Logger, ticker, signal string, date time.Time, entry, rr float64) {
	logger.Info().
		Str("event", "setup").
		Str("ticker", ticker).
		Str("signal", signal).
		Time("date", date).
		Float64("entry", entry).
		Float64("reward_to_risk", rr).
		Msg("Setup detected")
}

// LogAPICall logs an outbound API call.
func LogAPICall(logger zerolog.Logger, method, endpoint string, duration time.Duration, err error) {
	event := logger.Debug().
		Str("event", "api_call").
		Str("method", method).
		Str("endpoint", endpoint).
		Dur("duration", duration)

	if err != nil {
		event.Err(err).Msg("API call failed")
	} else {
		event.Msg("API call completed")
	}
}

// Package logger wraps zerolog with the process-wide accessor pattern used
// throughout this daemon: configure once at startup, then call logger.Get()
// anywhere a component needs a logger.
package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

func init() {
	zerolog.TimeFieldFormat = time.RFC3339Nano
}

var (
	globalLogger *Logger
	once         sync.Once

	defaultConfig = Config{
		Level:      "info",
		Format:     FormatConsole,
		TimeFormat: time.RFC3339,
	}
)

// Logger embeds zerolog.Logger so callers can use the normal chained
// zerolog event API (log.Info().Str(...).Msg(...)) everywhere.
type Logger struct {
	zerolog.Logger
}

// LogFormat is the available log output formats.
type LogFormat string

const (
	FormatJSON    LogFormat = "json"
	FormatConsole LogFormat = "console"
)

func (f LogFormat) String() string { return string(f) }

// ParseLogFormat parses a string into a LogFormat, defaulting to JSON.
func ParseLogFormat(format string) LogFormat {
	switch strings.ToLower(format) {
	case "console":
		return FormatConsole
	case "json":
		return FormatJSON
	default:
		return FormatJSON
	}
}

// Config holds logger construction options.
type Config struct {
	Level      string
	Format     LogFormat
	Output     io.Writer
	TimeFormat string
}

// Get returns the process-wide logger, initializing it with defaults on
// first use if Setup was never called.
func Get() *Logger {
	once.Do(func() {
		if globalLogger == nil {
			setupLogger(defaultConfig)
		}
	})
	return globalLogger
}

// Setup initializes the global logger. Only the first call takes effect.
func Setup(cfg Config) {
	once.Do(func() {
		setupLogger(cfg)
	})
}

// ResetForTesting clears the global logger so a test can call Setup again.
func ResetForTesting() {
	globalLogger = nil
	once = sync.Once{}
}

func setupLogger(cfg Config) {
	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	var zl zerolog.Logger
	switch cfg.Format {
	case FormatConsole:
		zl = zerolog.New(zerolog.ConsoleWriter{Out: output, TimeFormat: cfg.TimeFormat})
	default:
		zl = zerolog.New(output)
	}
	zl = zl.Level(level).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(level)

	globalLogger = &Logger{Logger: zl}
	globalLogger.Info().Str("format", string(cfg.Format)).Str("level", level.String()).Msg("logger initialized")
}

// With returns a child logger with the given fields attached, useful when a
// component (a provider adapter, a layer) wants a stable set of fields
// (e.g. "component", "provider") on every subsequent log line.
func (l *Logger) With(fields map[string]interface{}) *Logger {
	if l == nil {
		return Get()
	}
	if len(fields) == 0 {
		return l
	}
	ctx := l.Logger.With()
	for k, v := range fields {
		ctx = ctx.Interface(k, v)
	}
	return &Logger{Logger: ctx.Logger()}
}

// loggerKey is the context key used by WithContext/FromContext.
type loggerKey struct{}

// WithContext attaches a logger to a context.
func WithContext(ctx context.Context, l *Logger) context.Context {
	if l == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey{}, l)
}

// FromContext retrieves the logger attached to a context, falling back to
// the global logger if none was attached.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey{}).(*Logger); ok {
			return l
		}
	}
	return Get()
}

// Package klog is the process-wide structured logger shared by every KOS
// subsystem.
package klog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var (
	// Logger is the global logger instance
	Logger zerolog.Logger

	// componentLevels holds per-component level overrides (e.g. "scheduler"
	// logging at debug while the rest of the process stays at info), set by
	// Init from Config.ComponentLevels.
	componentLevels map[string]zerolog.Level
)

// Level represents log level
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer

	// ComponentLevels overrides Level for specific WithComponent names, so a
	// single noisy subsystem (e.g. "scheduler" while chasing a cron bug) can
	// run at debug without turning on debug logging process-wide.
	ComponentLevels map[string]Level
}

func parseLevel(l Level) zerolog.Level {
	switch l {
	case DebugLevel:
		return zerolog.DebugLevel
	case InfoLevel:
		return zerolog.InfoLevel
	case WarnLevel:
		return zerolog.WarnLevel
	case ErrorLevel:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Init initializes the global logger
func Init(cfg Config) {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	componentLevels = make(map[string]zerolog.Level, len(cfg.ComponentLevels))
	for component, l := range cfg.ComponentLevels {
		componentLevels[component] = parseLevel(l)
	}

	// Configure output
	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	// Use JSON or console output
	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent creates a child logger scoped to a subsystem name, e.g.
// "ipc.pipe", "service", "scheduler". If Config.ComponentLevels set an
// override for this name, the child logger runs at that level instead of
// the process-wide level.
func WithComponent(component string) zerolog.Logger {
	l := Logger.With().Str("component", component).Logger()
	if override, ok := componentLevels[component]; ok {
		l = l.Level(override)
	}
	return l
}

// WithServiceName creates a child logger scoped to a supervised service.
func WithServiceName(name string) zerolog.Logger {
	return Logger.With().Str("service", name).Logger()
}

// WithJobName creates a child logger scoped to a scheduled job.
func WithJobName(name string) zerolog.Logger {
	return Logger.With().Str("job", name).Logger()
}

// WithPID creates a child logger scoped to a managed process.
func WithPID(pid int) zerolog.Logger {
	return Logger.With().Int("pid", pid).Logger()
}

// Helper functions for common logging patterns
func Info(msg string) {
	Logger.Info().Msg(msg)
}

func Debug(msg string) {
	Logger.Debug().Msg(msg)
}

func Warn(msg string) {
	Logger.Warn().Msg(msg)
}

func Error(msg string) {
	Logger.Error().Msg(msg)
}

func Errorf(format string, err error) {
	Logger.Error().Err(err).Msg(format)
}

func Fatal(msg string) {
	Logger.Fatal().Msg(msg)
}

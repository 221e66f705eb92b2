// Package logger configures the runtime's phuslu/log loggers.
//
// The runtime is a guest inside an instrumented host program, so logging goes
// to stderr only and defaults to the warn level: the host's stdout belongs to
// the host.
package logger

import (
	"os"

	"github.com/phuslu/log"

	"regionprof/internal/config"
)

// parseLogLevel converts a string log level to log.Level.
func parseLogLevel(levelStr string) log.Level {
	switch levelStr {
	case "trace":
		return log.TraceLevel
	case "debug":
		return log.DebugLevel
	case "info":
		return log.InfoLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.WarnLevel
	}
}

// Setup configures the global default logger from the logging configuration.
// Component loggers created afterwards inherit these settings.
func Setup(cfg config.LoggingConfig) {
	log.DefaultLogger = log.Logger{
		Level:      parseLogLevel(cfg.Level),
		Caller:     0,
		TimeField:  "time",
		TimeFormat: log.TimeFormatUnixMs,
		Writer:     &log.IOWriter{Writer: os.Stderr},
		Context:    log.NewContext(nil).Str("app", "regionprof").Value(),
	}
}

// NewLoggerWithContext creates a new logger by copying the global default
// logger (which carries the user configuration) and adding component context.
func NewLoggerWithContext(component string) log.Logger {
	bl := &log.DefaultLogger
	return log.Logger{
		Level:        bl.Level,
		Caller:       0,
		TimeField:    bl.TimeField,
		TimeFormat:   bl.TimeFormat,
		TimeLocation: bl.TimeLocation,
		Writer:       bl.Writer,
		Context:      log.NewContext(bl.Context).Str("component", component).Value(),
	}
}

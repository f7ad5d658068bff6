// Package util provides shared logging and statistics helpers.
package util

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
)

func init() {
	pterm.DefaultLogger.ShowTime = true
	pterm.DefaultLogger.TimeFormat = "02 Jan 15:04:05"
	pterm.DefaultLogger.MaxWidth = 1000
}

// Leveled logging functions backed by pterm prefixed printers.
// All output goes to stderr by default (pterm's default).

func LogTrace(format string, args ...interface{}) {
	pterm.DefaultLogger.Trace(fmt.Sprintf(format, args...))
}

func LogDebug(format string, args ...interface{}) {
	pterm.DefaultLogger.Debug(fmt.Sprintf(format, args...))
}

func LogInfo(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogSuccess(format string, args ...interface{}) {
	pterm.DefaultLogger.Info(fmt.Sprintf(format, args...))
}

func LogWarning(format string, args ...interface{}) {
	pterm.DefaultLogger.Warn(fmt.Sprintf(format, args...))
}

func LogError(format string, args ...interface{}) {
	pterm.DefaultLogger.Error(fmt.Sprintf(format, args...))
}

// EnableDebug configures the logger to show debug messages.
func EnableDebug() {
	pterm.DefaultLogger.Level = pterm.LogLevelDebug
}

// SetLevel configures the logger from a level name. Valid names are
// "none", "error", "warn", "info", "debug" and "trace".
func SetLevel(name string) error {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none":
		pterm.DefaultLogger.Level = pterm.LogLevelDisabled
	case "error":
		pterm.DefaultLogger.Level = pterm.LogLevelError
	case "warn":
		pterm.DefaultLogger.Level = pterm.LogLevelWarn
	case "info", "":
		pterm.DefaultLogger.Level = pterm.LogLevelInfo
	case "debug":
		pterm.DefaultLogger.Level = pterm.LogLevelDebug
	case "trace":
		pterm.DefaultLogger.Level = pterm.LogLevelTrace
	default:
		return fmt.Errorf("unexpected log level %q", name)
	}
	return nil
}

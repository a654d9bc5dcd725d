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

// StdLogger routes Print-style logging from third-party libraries (the WAMP
// router and client) to the debug level, tagged with a component prefix.
type StdLogger struct {
	Prefix string
}

func (l StdLogger) Print(v ...interface{}) {
	l.emit(fmt.Sprint(v...))
}

func (l StdLogger) Println(v ...interface{}) {
	l.emit(fmt.Sprintln(v...))
}

func (l StdLogger) Printf(format string, v ...interface{}) {
	l.emit(fmt.Sprintf(format, v...))
}

func (l StdLogger) emit(msg string) {
	msg = strings.TrimRight(msg, "\n")
	if l.Prefix != "" {
		msg = l.Prefix + ": " + msg
	}
	pterm.DefaultLogger.Debug(msg)
}

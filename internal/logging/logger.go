// Copyright (c) 2026 ToeiRei
// cachesweep - remote cache purge orchestrator
// This source code is licensed under the MIT license found in the LICENSE file.

package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	clog "github.com/charmbracelet/log"
)

// L is the package-level logger. Components derive their own logger from it
// with With so that key/value context is carried on every line.
var L = clog.NewWithOptions(os.Stderr, clog.Options{ReportTimestamp: true})

// Setup configures L from the log.level and log.format settings. An empty
// level keeps the current one; format is "text" (default) or "json".
func Setup(w io.Writer, level, format string) error {
	if w == nil {
		w = os.Stderr
	}
	l := clog.NewWithOptions(w, clog.Options{ReportTimestamp: true})
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "", "text":
	case "json":
		l.SetFormatter(clog.JSONFormatter)
	case "logfmt":
		l.SetFormatter(clog.LogfmtFormatter)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	if strings.TrimSpace(level) != "" {
		lvl, err := clog.ParseLevel(level)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", level, err)
		}
		l.SetLevel(lvl)
	}
	L = l
	return nil
}

// IsDebug reports whether L emits debug lines.
func IsDebug() bool {
	return L.GetLevel() <= clog.DebugLevel
}

// Component returns a child of L tagged with the component name.
func Component(name string) *clog.Logger {
	return L.With("component", name)
}

// Debugf logs a debug-level formatted message.
func Debugf(format string, v ...interface{}) {
	L.Debug(fmt.Sprintf(format, v...))
}

// Infof logs an info-level formatted message.
func Infof(format string, v ...interface{}) {
	L.Info(fmt.Sprintf(format, v...))
}

// Warnf logs a warning-level formatted message.
func Warnf(format string, v ...interface{}) {
	L.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs an error-level formatted message.
func Errorf(format string, v ...interface{}) {
	L.Error(fmt.Sprintf(format, v...))
}

package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelTrace is a custom slog level below [slog.LevelDebug], intended
// for wire-level forensics (full JSON request/response payloads). The
// numeric value -8 follows the convention used by Go projects that
// extend slog with a Trace level.
//
// Use sparingly — Trace output is extremely verbose and should only be
// enabled when diagnosing gateway-specific bugs.
const LevelTrace = slog.Level(-8)

// LevelFatal sits above Error. Records at this level precede a
// non-zero exit; the level exists so SMARTFOLDER_LOG_LEVEL=fatal can
// silence everything else.
const LevelFatal = slog.Level(12)

// ParseLogLevel converts a case-insensitive string to an [slog.Level].
//
// Accepted values: trace, debug, info (or empty), warn, error, fatal.
// Leading and trailing whitespace is trimmed before matching.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	case "fatal":
		return LevelFatal, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error, fatal)", s)
	}
}

// ReplaceLogLevelNames is an [slog.HandlerOptions.ReplaceAttr] function
// that renders the custom levels as "TRACE" and "FATAL" in log output.
// Without it, slog would render them as "DEBUG-4" and "ERROR+4".
func ReplaceLogLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok {
			switch level {
			case LevelTrace:
				a.Value = slog.StringValue("TRACE")
			case LevelFatal:
				a.Value = slog.StringValue("FATAL")
			}
		}
	}
	return a
}

// LogLevelFromEnv reads SMARTFOLDER_LOG_LEVEL, defaulting to info.
// Unknown values fall back to info with no error; the daemon should
// never refuse to start over a typo in a log knob.
func LogLevelFromEnv() slog.Level {
	level, err := ParseLogLevel(os.Getenv("SMARTFOLDER_LOG_LEVEL"))
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

// NewLogger builds the process logger. JSON output is used when w is
// not a terminal or when SMARTFOLDER_LOG_JSON is set; a TTY gets the
// text handler.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: ReplaceLogLevelNames,
	}

	if os.Getenv("SMARTFOLDER_LOG_JSON") != "" || !isTerminal(w) {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// Package record defines the log record that flows through the pipeline and
// the eight ordered severity levels it carries.
package record

import (
	"fmt"
	"log/slog"
	"strings"
)

// Level is a PSR-3 compatible severity. Higher values are more severe.
type Level int

const (
	LevelDebug     Level = 100
	LevelInfo      Level = 200
	LevelNotice    Level = 250
	LevelWarning   Level = 300
	LevelError     Level = 400
	LevelCritical  Level = 500
	LevelAlert     Level = 550
	LevelEmergency Level = 600
)

// Levels lists every level in ascending order.
var Levels = []Level{
	LevelDebug, LevelInfo, LevelNotice, LevelWarning,
	LevelError, LevelCritical, LevelAlert, LevelEmergency,
}

// String returns the upper-case level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelNotice:
		return "NOTICE"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	case LevelAlert:
		return "ALERT"
	case LevelEmergency:
		return "EMERGENCY"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// ParseLevel converts a level name to a Level. Matching is case-insensitive
// and accepts "warn" as an alias of WARNING.
func ParseLevel(name string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(name)) {
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "NOTICE":
		return LevelNotice, nil
	case "WARNING", "WARN":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "CRITICAL":
		return LevelCritical, nil
	case "ALERT":
		return LevelAlert, nil
	case "EMERGENCY":
		return LevelEmergency, nil
	default:
		return 0, fmt.Errorf("unknown log level: %q", name)
	}
}

// MustParseLevel is ParseLevel for constants known to be valid.
func MustParseLevel(name string) Level {
	l, err := ParseLevel(name)
	if err != nil {
		panic(err)
	}
	return l
}

// MinLevel returns the less severe of a and b.
func MinLevel(a, b Level) Level {
	if a < b {
		return a
	}
	return b
}

// Color returns the Discord embed colour for the level.
func (l Level) Color() int {
	switch {
	case l <= LevelInfo:
		return 3447003 // blue
	case l <= LevelWarning:
		return 15105642 // orange
	case l == LevelError:
		return 15158332 // red
	case l > LevelError:
		return 15548997 // dark red
	default:
		return 9807270
	}
}

// HexColor returns the HTML colour used by the email template.
func (l Level) HexColor() string {
	switch {
	case l <= LevelInfo:
		return "#3498db"
	case l <= LevelWarning:
		return "#f39c12"
	case l == LevelError:
		return "#e74c3c"
	case l > LevelError:
		return "#c0392b"
	default:
		return "#95a5a6"
	}
}

// SlogLevel maps the level onto the nearest log/slog level.
func (l Level) SlogLevel() slog.Level {
	switch {
	case l < LevelInfo:
		return slog.LevelDebug
	case l < LevelWarning:
		return slog.LevelInfo
	case l < LevelError:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// FromSlog maps a slog level onto a record level. Levels above slog.LevelError
// are treated as CRITICAL.
func FromSlog(l slog.Level) Level {
	switch {
	case l < slog.LevelInfo:
		return LevelDebug
	case l < slog.LevelWarn:
		return LevelInfo
	case l < slog.LevelError:
		return LevelWarning
	case l == slog.LevelError:
		return LevelError
	default:
		return LevelCritical
	}
}

// Logpond - Buffered Structured Log Sink
// Copyright 2026 The Logpond Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/logpond/logpond

package models

import (
	"fmt"
	"strings"
)

// Level is the ordered severity of a log entry.
// Trace < Debug < Information < Warning < Error < Critical < None.
type Level int32

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInformation
	LevelWarning
	LevelError
	LevelCritical
	// LevelNone disables logging when used as a filter threshold. It is also
	// the decode fallback: unrecognized stored values map here instead of
	// failing the row.
	LevelNone
)

// String returns the canonical name of the level.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInformation:
		return "information"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelCritical:
		return "critical"
	case LevelNone:
		return "none"
	default:
		return fmt.Sprintf("level(%d)", int32(l))
	}
}

// IsValid reports whether l is one of the declared levels.
func (l Level) IsValid() bool {
	return l >= LevelTrace && l <= LevelNone
}

// LevelFromInt converts a stored integer to a Level. Unknown values decode
// to LevelNone rather than failing, so a row written by a newer schema with
// extra levels still reads back.
func LevelFromInt(v int32) Level {
	l := Level(v)
	if !l.IsValid() {
		return LevelNone
	}
	return l
}

// ParseLevel converts a level name to a Level. Matching is case-insensitive.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace, nil
	case "debug":
		return LevelDebug, nil
	case "information", "info":
		return LevelInformation, nil
	case "warning", "warn":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	case "critical":
		return LevelCritical, nil
	case "none":
		return LevelNone, nil
	default:
		return LevelNone, fmt.Errorf("unknown log level %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler so levels serialize as names
// in JSON payloads.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

package cfg

import (
	"fmt"
	"strings"
)

// Mode names the run's overall disposition toward problems, mirroring
// internal/problem.Mode one level up: a string the user can set directly
// in a YAML config file or have derived from the -a/-y/-b/-n flags by
// Rationalize.
type Mode string

const (
	ModeNormal  Mode = "normal"
	ModeSafe    Mode = "safe"
	ModeDanger0 Mode = "danger-0"
	ModeDanger1 Mode = "danger-1"
	ModeCheck   Mode = "check"
)

var validModes = map[Mode]bool{
	ModeNormal: true, ModeSafe: true, ModeDanger0: true, ModeDanger1: true, ModeCheck: true,
}

// UnmarshalText lets a YAML config file or a mapstructure decode hook set
// Mode directly, normalizing case the way LogSeverity does below.
func (m *Mode) UnmarshalText(text []byte) error {
	v := Mode(strings.ToLower(string(text)))
	if !validModes[v] {
		return fmt.Errorf("invalid mode: %s", text)
	}
	*m = v
	return nil
}

// LogSeverity is the logging verbosity, the config-file/env equivalent of
// the -g debug level.
type LogSeverity string

const (
	TraceLogSeverity   LogSeverity = "TRACE"
	DebugLogSeverity   LogSeverity = "DEBUG"
	InfoLogSeverity    LogSeverity = "INFO"
	WarningLogSeverity LogSeverity = "WARNING"
	ErrorLogSeverity   LogSeverity = "ERROR"
	OffLogSeverity     LogSeverity = "OFF"
)

var severityRanking = map[LogSeverity]int{
	TraceLogSeverity:   0,
	DebugLogSeverity:   1,
	InfoLogSeverity:    2,
	WarningLogSeverity: 3,
	ErrorLogSeverity:   4,
	OffLogSeverity:     5,
}

func (l *LogSeverity) UnmarshalText(text []byte) error {
	v := LogSeverity(strings.ToUpper(string(text)))
	if _, ok := severityRanking[v]; !ok {
		return fmt.Errorf("invalid log severity: %s. Must be one of [TRACE, DEBUG, INFO, WARNING, ERROR, OFF]", text)
	}
	*l = v
	return nil
}

// Rank returns the integer representation of the severity rank, lower is
// louder. Returns -1 for an unrecognized value.
func (l LogSeverity) Rank() int {
	if r, ok := severityRanking[l]; ok {
		return r
	}
	return -1
}

// levelFromDebug maps the CLI's -g 0..4 scale onto a LogSeverity,
// skipping OFF (a batch checker always logs at least errors).
func levelFromDebug(g int) LogSeverity {
	switch {
	case g <= 0:
		return ErrorLogSeverity
	case g == 1:
		return WarningLogSeverity
	case g == 2:
		return InfoLogSeverity
	case g == 3:
		return DebugLogSeverity
	default:
		return TraceLogSeverity
	}
}

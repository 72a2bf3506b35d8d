package logformat

import (
	"strings"

	"github.com/TimelordUK/mview/internal/config"
)

// Level represents a log severity level
type Level int

const (
	LevelUnknown Level = iota
	LevelTrace
	LevelDebug
	LevelInfo
	LevelStats
	LevelNotice
	LevelWarning
	LevelError
	LevelCritical
	LevelFatal
)

// String returns the display name for a level
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "trace"
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelStats:
		return "stats"
	case LevelNotice:
		return "notice"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelCritical:
		return "critical"
	case LevelFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// LevelDetector detects log levels from line content
type LevelDetector struct {
	patterns map[Level][]string
}

// NewLevelDetector creates a detector from config
func NewLevelDetector(cfg *config.LogLevelConfig) *LevelDetector {
	return &LevelDetector{
		patterns: map[Level][]string{
			LevelTrace:    cfg.TracePatterns,
			LevelDebug:    cfg.DebugPatterns,
			LevelInfo:     cfg.InfoPatterns,
			LevelStats:    cfg.StatsPatterns,
			LevelNotice:   cfg.NoticePatterns,
			LevelWarning:  cfg.WarnPatterns,
			LevelError:    cfg.ErrorPatterns,
			LevelCritical: cfg.CriticalPatterns,
			LevelFatal:    cfg.FatalPatterns,
		},
	}
}

// detectOrder lists levels most severe first so the strongest marker
// wins when a line carries several.
var detectOrder = []Level{
	LevelFatal,
	LevelCritical,
	LevelError,
	LevelWarning,
	LevelNotice,
	LevelStats,
	LevelInfo,
	LevelDebug,
	LevelTrace,
}

// Detect returns the log level for a line
func (d *LevelDetector) Detect(content []byte) Level {
	line := string(content)

	for _, level := range detectOrder {
		for _, pattern := range d.patterns[level] {
			if strings.Contains(line, pattern) {
				return level
			}
		}
	}

	return LevelUnknown
}

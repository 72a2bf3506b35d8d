package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mattn/go-isatty"
)

// Setup configures the default slog logger. While the TUI owns the
// terminal, writing to stderr would corrupt the alternate screen, so
// logs go to a timestamped file in the temp dir instead — unless the
// user redirected stderr, which we respect.
//
// Returns the log file path, or "" when logging to stderr.
func Setup(interactive bool, level slog.Level) (string, error) {
	var output io.Writer
	var logFilePath string

	if interactive && isatty.IsTerminal(os.Stderr.Fd()) {
		timestamp := time.Now().Format("2006-01-02T15-04-05")
		logFilePath = filepath.Join(os.TempDir(), fmt.Sprintf("mview-debug-%s.log", timestamp))

		logFile, err := os.OpenFile(logFilePath, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			return "", err
		}
		output = logFile
	} else {
		output = os.Stderr
	}

	handler := slog.NewTextHandler(output, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))

	return logFilePath, nil
}

// ParseLevel maps a config string to a slog level.
func ParseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

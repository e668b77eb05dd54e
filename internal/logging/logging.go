// Package logging configures the process-wide slog logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"research-cli/internal/config"
)

// LogFileName is the TUI log written inside the config directory.
const LogFileName = "research.log"

// Mode selects where log output goes.
type Mode int

const (
	// ModeCLI writes to stderr so stdout stays clean for command output.
	ModeCLI Mode = iota
	// ModeTUI writes to a file; anything on the terminal would corrupt the UI.
	ModeTUI
)

// ParseLevel maps debug/info/warn/error to a slog level. Unknown names are
// info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Setup installs the default logger for mode and returns it together with a
// func that closes the log file, if one was opened.
func Setup(rt config.Runtime, mode Mode) (*slog.Logger, func() error, error) {
	var (
		w       io.Writer = os.Stderr
		closeFn           = func() error { return nil }
	)

	path := rt.LogFile
	if path == "" && mode == ModeTUI {
		dir, err := config.Dir()
		if err != nil {
			return nil, nil, err
		}
		path = filepath.Join(dir, LogFileName)
	}
	if path != "" {
		f, err := openLogFile(path)
		if err != nil {
			return nil, nil, err
		}
		w, closeFn = f, f.Close
	}

	logger := New(w, ParseLevel(rt.LogLevel))
	slog.SetDefault(logger)
	return logger, closeFn, nil
}

// New returns a text logger writing to w.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	return f, nil
}

// Package logging builds the slog logger shared by the Photon binaries.
//
// Records go to stdout and, when Options.File is set, are appended to that
// file as well:
//
//	logger, closeLog, err := logging.Setup(logging.Options{Level: "debug", File: "photon.log"})
//	defer closeLog()
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Options controls how logging is configured.
type Options struct {
	Level  string    // debug, info, warn or error; empty means info
	Format string    // text or json; empty means text
	Output io.Writer // defaults to os.Stdout
	File   string    // optional path, opened for append and written alongside Output

	// QuietInfo raises a debug or info level to warn. It backs the
	// infoLoggingEnabled=false setting.
	QuietInfo bool
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"":        slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLevel maps a level name to slog.Level. Unknown names map to info.
func ParseLevel(level string) slog.Level {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(level))]; ok {
		return l
	}
	return slog.LevelInfo
}

// LevelNames lists the accepted level names for flag help.
func LevelNames() string {
	return "debug, info, warn, error"
}

// Setup builds a logger, installs it as the slog default and returns a func
// that closes the log file, if one was opened.
func Setup(opts Options) (*slog.Logger, func(), error) {
	closeFn := func() {}
	if opts.File != "" {
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // operator-supplied path
		if err != nil {
			return nil, nil, fmt.Errorf("logging: open %s: %w", opts.File, err)
		}
		out := opts.Output
		if out == nil {
			out = os.Stdout
		}
		opts.Output = io.MultiWriter(out, f)
		closeFn = func() { _ = f.Close() }
	}
	logger, err := New(opts)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return logger, closeFn, nil
}

// New builds a logger from opts without touching the slog default.
// Options.File is ignored; use Setup for file output.
func New(opts Options) (*slog.Logger, error) {
	level, ok := levels[strings.ToLower(strings.TrimSpace(opts.Level))]
	if !ok {
		return nil, fmt.Errorf("logging: unknown level %q (valid: %s)", opts.Level, LevelNames())
	}
	if opts.QuietInfo && level < slog.LevelWarn {
		level = slog.LevelWarn
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	handlerOpts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	switch strings.ToLower(opts.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(out, handlerOpts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(out, handlerOpts)), nil
	default:
		return nil, fmt.Errorf("logging: unknown format %q (valid: text, json)", opts.Format)
	}
}

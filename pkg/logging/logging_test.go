package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	type tcase struct {
		in   string
		want slog.Level
	}
	tests := map[string]tcase{
		"debug":   {in: "debug", want: slog.LevelDebug},
		"empty":   {in: "", want: slog.LevelInfo},
		"warning": {in: " WARNING ", want: slog.LevelWarn},
		"error":   {in: "error", want: slog.LevelError},
		"unknown": {in: "verbose", want: slog.LevelInfo},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			if got := ParseLevel(tc.in); got != tc.want {
				t.Fatalf("ParseLevel(%q) = %v, want %v", tc.in, got, tc.want)
			}
		})
	}
}

func TestNewRejectsUnknownOptions(t *testing.T) {
	if _, err := New(Options{Level: "loud"}); err == nil {
		t.Error("New accepted an unknown level")
	}
	if _, err := New(Options{Format: "xml"}); err == nil {
		t.Error("New accepted an unknown format")
	}
}

func TestSetupTeesToFile(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "photon.log")
	var buf bytes.Buffer
	logger, closeLog, err := Setup(Options{Output: &buf, File: path})
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	logger.Info("user joined", "user", "alice")
	closeLog()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "user joined") {
		t.Errorf("log file = %q", data)
	}
	if buf.String() != string(data) {
		t.Errorf("output %q differs from file %q", buf.String(), data)
	}
	if slog.Default() != logger {
		t.Error("Setup did not install the default logger")
	}
}

func TestSetupBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "photon.log")
	if _, _, err := Setup(Options{File: path}); err == nil {
		t.Fatal("Setup opened a file in a missing directory")
	}
}

func TestQuietInfo(t *testing.T) {
	type tcase struct {
		opts     Options
		wantInfo bool
		wantWarn bool
	}
	tests := map[string]tcase{
		"info enabled":        {opts: Options{Level: "info"}, wantInfo: true, wantWarn: true},
		"info disabled":       {opts: Options{Level: "info", QuietInfo: true}, wantWarn: true},
		"debug disabled info": {opts: Options{Level: "debug", QuietInfo: true}, wantWarn: true},
		"error level":         {opts: Options{Level: "error", QuietInfo: true}},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			tc.opts.Output = &buf
			logger, err := New(tc.opts)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			logger.Info("info line")
			logger.Warn("warn line")
			out := buf.String()
			if got := strings.Contains(out, "info line"); got != tc.wantInfo {
				t.Errorf("info logged = %v, want %v", got, tc.wantInfo)
			}
			if got := strings.Contains(out, "warn line"); got != tc.wantWarn {
				t.Errorf("warn logged = %v, want %v", got, tc.wantWarn)
			}
		})
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Options{Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("hello", "user", "alice")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v: %q", err, buf.String())
	}
	if rec["msg"] != "hello" || rec["user"] != "alice" {
		t.Fatalf("record = %v", rec)
	}
}

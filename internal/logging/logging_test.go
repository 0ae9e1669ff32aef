package logging

import (
	"bytes"
	"os"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != WarnLevel {
		t.Errorf("expected Level to be WarnLevel, got %v", cfg.Level)
	}
	if cfg.Output != os.Stderr {
		t.Errorf("expected Output to be os.Stderr")
	}
	if cfg.TimeFormat != time.RFC3339 {
		t.Errorf("expected TimeFormat to be RFC3339, got %s", cfg.TimeFormat)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"DEBUG", DebugLevel},
		{"debug", DebugLevel},
		{"  DEBUG  ", DebugLevel},
		{"INFO", InfoLevel},
		{"info", InfoLevel},
		{"WARN", WarnLevel},
		{"warning", WarnLevel},
		{"ERROR", ErrorLevel},
		{"error", ErrorLevel},
		{"", WarnLevel},
		{"INVALID", WarnLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, expected %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestLevelFromEnv(t *testing.T) {
	env := map[string]string{EnvLevel: "debug"}
	if got := LevelFromEnv(func(k string) string { return env[k] }); got != DebugLevel {
		t.Errorf("LevelFromEnv = %v, want debug", got)
	}
}

func TestNew_FiltersBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: WarnLevel, Output: &buf})

	log.Info().Msg("hidden")
	log.Warn().Str("lock", "/tmp/x").Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Errorf("info message written at warn level: %s", out)
	}
	if !strings.Contains(out, `"message":"shown"`) || !strings.Contains(out, `"lock":"/tmp/x"`) {
		t.Errorf("warn message missing: %s", out)
	}
}

func TestNew_Pretty(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: DebugLevel, Output: &buf, Pretty: true})
	log.Debug().Msg("waiting for lock")

	out := buf.String()
	if !strings.Contains(out, "waiting for lock") {
		t.Errorf("expected message in console output: %s", out)
	}
	if strings.Contains(out, "\x1b[") {
		t.Errorf("colors written to a non-terminal: %q", out)
	}
}

func TestIsTerminal(t *testing.T) {
	if isTerminal(&bytes.Buffer{}) {
		t.Error("buffer reported as terminal")
	}

	r, w, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	defer r.Close()
	defer w.Close()
	if isTerminal(w) {
		t.Error("pipe reported as terminal")
	}
}

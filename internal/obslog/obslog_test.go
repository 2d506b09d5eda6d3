package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewWritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "h2h.log")
	logger, err := New(Options{Level: "debug", File: path, Format: "json"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Info("ledger_add")
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(raw), `"msg":"ledger_add"`) {
		t.Fatalf("log line missing: %s", raw)
	}
}

func TestNewWithoutOutputsIsNop(t *testing.T) {
	logger, err := New(Options{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if logger.Core().Enabled(parseLevel("error")) {
		t.Fatalf("expected nop core")
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]string{"": "info", "DEBUG": "debug", "warning": "warn", "error": "error", "bogus": "info"}
	for in, want := range cases {
		if got := parseLevel(in).String(); got != want {
			t.Fatalf("parseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

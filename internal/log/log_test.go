package log

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
)

func TestNewJSONLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	l := NewJSONLogger(&buf, "warn")

	l.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}

	l.Warn().Str("address", "5Abc").Msg("visible")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["message"] != "visible" || entry["address"] != "5Abc" {
		t.Errorf("unexpected entry: %v", entry)
	}
}

func TestInit_WithFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dexstate.log")
	if err := Init("debug", true, path); err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer Init("info", false, "")

	if Signers.GetLevel() != Logger.GetLevel() {
		t.Error("component loggers should share the global level")
	}
}

func TestParseLevel_Default(t *testing.T) {
	if got := parseLevel("bogus"); got.String() != "info" {
		t.Errorf("parseLevel(bogus) = %s, want info", got)
	}
}

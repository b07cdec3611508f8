package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

// TestJSON verifies JSON output carries the level and fields
func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	log := New(&buf, Options{JSON: true})
	log.Info().Str("configuration", "O4x/air").Msg("measured")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected a JSON line, got %q: %v", buf.String(), err)
	}
	if entry["level"] != "info" || entry["configuration"] != "O4x/air" || entry["message"] != "measured" {
		t.Errorf("Unexpected entry %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("Expected a timestamp")
	}
}

// TestLevel verifies debug messages are only written when verbose
func TestLevel(t *testing.T) {
	var quiet, verbose bytes.Buffer
	quietLog := New(&quiet, Options{})
	quietLog.Debug().Msg("hidden")
	verboseLog := New(&verbose, Options{Verbose: true})
	verboseLog.Debug().Msg("shown")

	if quiet.Len() != 0 {
		t.Errorf("Expected no debug output, got %q", quiet.String())
	}
	if !strings.Contains(verbose.String(), "shown") {
		t.Errorf("Expected debug output, got %q", verbose.String())
	}
}

// TestNewKeepsGlobals verifies building a logger leaves zerolog's package
// settings alone
func TestNewKeepsGlobals(t *testing.T) {
	before := zerolog.DurationFieldInteger
	New(&bytes.Buffer{}, Options{JSON: true})
	New(&bytes.Buffer{}, Options{})
	if zerolog.DurationFieldInteger != before {
		t.Errorf("Expected DurationFieldInteger to stay %v", before)
	}
}

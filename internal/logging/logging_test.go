package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewJSONLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := New("debug", "json", &buf)
	if logger.Level != logrus.DebugLevel {
		t.Fatalf("expected debug level, got %v", logger.Level)
	}
	logger.WithField("quiz_id", 7).Info("session started")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "session started" || entry["quiz_id"] != float64(7) {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestNewFallsBackToInfo(t *testing.T) {
	logger := New("loud", "", &bytes.Buffer{})
	if logger.Level != logrus.InfoLevel {
		t.Fatalf("expected info fallback, got %v", logger.Level)
	}
}

package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"testing"
)

func TestRedactEmail(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"jane.roe@example.com", "ja***@example.com"},
		{"ab@example.com", "***@example.com"},
		{"a@example.com", "***@example.com"},
		{"not-an-email", "***@***"},
		{"", "***@***"},
		{"trailing@", "***@***"},
	}
	for _, tt := range tests {
		if got := RedactEmail(tt.in); got != tt.want {
			t.Errorf("RedactEmail(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestLogRedactsRecipientFields(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	SetRedactPII(true)

	Info("send complete", "recipient", "jane.roe@example.com", "status", "sent")

	var entry map[string]string
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("invalid JSON entry: %v", err)
	}
	if entry["recipient"] != "ja***@example.com" {
		t.Errorf("recipient not redacted: %q", entry["recipient"])
	}
	if entry["status"] != "sent" {
		t.Errorf("status = %q, want sent", entry["status"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %q, want INFO", entry["level"])
	}
}

func TestLogLevelGate(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	SetLevel(WARN)
	defer SetLevel(INFO)

	Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("INFO entry emitted below WARN level: %s", buf.String())
	}

	Warn("kept")
	if buf.Len() == 0 {
		t.Error("WARN entry not emitted")
	}
}

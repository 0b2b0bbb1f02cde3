package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew(t *testing.T) {
	log, err := New("debug", false)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	if log.GetLevel() != zerolog.DebugLevel {
		t.Errorf("level = %v, want debug", log.GetLevel())
	}

	if _, err := New("loud", false); err == nil {
		t.Error("New() expected error for unknown level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"disabled", zerolog.Disabled},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil {
			t.Errorf("ParseLevel(%q) failed: %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Str("invoice_id", "42").Msg("invoice closed")

	output := buf.String()
	if !strings.Contains(output, "invoice closed") {
		t.Errorf("expected output to contain message, got: %s", output)
	}
	if !strings.Contains(output, `"invoice_id":"42"`) {
		t.Errorf("expected output to contain field, got: %s", output)
	}
}

func TestFromContext(t *testing.T) {
	buf := &bytes.Buffer{}
	ctx := WithContext(context.Background(), NewWithWriter(buf))

	log := FromContext(ctx)
	log.Info().Msg("test")

	if buf.Len() == 0 {
		t.Error("expected log output from retrieved logger")
	}
}

func TestFromContext_Missing(t *testing.T) {
	log := FromContext(context.Background())
	if log.GetLevel() != zerolog.Disabled {
		t.Errorf("level = %v, want disabled", log.GetLevel())
	}
}

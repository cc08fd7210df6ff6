package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestComponentAndContext(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, slog.LevelInfo, false)

	Component("archiver").Info("window written")
	if !strings.Contains(buf.String(), "component=archiver") {
		t.Errorf("expected component attribute, got %q", buf.String())
	}

	buf.Reset()
	ctx := ContextWithCategory(context.Background(), "database")
	WithContext(Component("sampler"), ctx).Info("appended")

	out := buf.String()
	if !strings.Contains(out, "category=database") || !strings.Contains(out, "component=sampler") {
		t.Errorf("expected context attributes, got %q", out)
	}
}

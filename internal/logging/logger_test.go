package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLevels(t *testing.T) {
	for _, lvl := range []string{"", "debug", "INFO", "warn", "error"} {
		if _, err := New(lvl, "production"); err != nil {
			t.Errorf("New(%q): %v", lvl, err)
		}
	}
	if _, err := New("loud", "production"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestNamedKeepsComponent(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := NewZapLogger(zap.New(core).Sugar()).Named("scheduler")
	l.Infof("sent reminder %d", 4)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("entries = %d, want 1", len(entries))
	}
	if entries[0].LoggerName != "scheduler" || entries[0].Message != "sent reminder 4" {
		t.Errorf("entry = %+v", entries[0].Entry)
	}
}

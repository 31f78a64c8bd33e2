package logger

import (
	"testing"
)

func TestWithComponent(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("test")
	if v, ok := entry.Entry.Data["component"]; !ok || v != "test" {
		t.Fatalf("component field missing: %v", entry.Entry.Data)
	}
}

func TestConfigureInvalidLevel(t *testing.T) {
	// Ensure environment variables do not override the provided level
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("invalid", "json", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid level")
	}
}

func TestConfigureInvalidFormat(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")

	log := Logger()
	if err := log.Configure("info", "xml", "stdout", 0); err == nil {
		t.Fatalf("expected error for invalid format")
	}
}

func TestEntryChaining(t *testing.T) {
	log := Logger()
	entry := log.WithComponent("feed").WithFields(Fields{"stream": "btcusdt@trade"})
	if v := entry.Entry.Data["stream"]; v != "btcusdt@trade" {
		t.Errorf("unexpected stream field: %v", v)
	}
	if v := entry.Entry.Data["component"]; v != "feed" {
		t.Errorf("unexpected component field: %v", v)
	}
}

package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_NilConfig(t *testing.T) {
	l, err := New(nil)
	if err != nil {
		t.Fatalf("New(nil) failed: %v", err)
	}
	if l == nil {
		t.Fatal("New(nil) returned nil logger")
	}
	l.Info("test")
	_ = l.Sync()
}

func TestNew_PartialConfig(t *testing.T) {
	cfg := &Config{Level: "debug"}
	l, err := New(cfg)
	if err != nil {
		t.Fatalf("New with partial config failed: %v", err)
	}
	if l == nil {
		t.Fatal("New returned nil logger")
	}
	if cfg.Encoding != "json" {
		t.Errorf("expected encoding to default to json, got %q", cfg.Encoding)
	}
	if len(cfg.OutputPaths) != 1 || cfg.OutputPaths[0] != "stdout" {
		t.Errorf("expected output paths to default to stdout, got %v", cfg.OutputPaths)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Level: "info", Encoding: "json"}, false},
		{"console", Config{Level: "debug", Encoding: "console"}, false},
		{"invalid level", Config{Level: "verbose", Encoding: "json"}, true},
		{"invalid encoding", Config{Level: "info", Encoding: "xml"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_InvalidEncoding(t *testing.T) {
	_, err := New(&Config{Level: "info", Encoding: "invalid"})
	if err == nil {
		t.Fatal("Expected error for invalid encoding, got nil")
	}
}

func TestNamedAndWith(t *testing.T) {
	core, recorded := observer.New(zapcore.DebugLevel)
	l := Wrap(zap.New(core)).Named("mdns").With(zap.String("service", "_http._tcp"))

	l.Debug("browsing")

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].LoggerName != "mdns" {
		t.Errorf("expected logger name 'mdns', got %q", entries[0].LoggerName)
	}
	if entries[0].ContextMap()["service"] != "_http._tcp" {
		t.Errorf("expected service field, got %v", entries[0].ContextMap())
	}
}

func TestNewNop(t *testing.T) {
	l := NewNop()
	l.Error("discarded")
	if Unwrap(l) == nil {
		t.Fatal("Unwrap returned nil")
	}
}

package logger

import "testing"

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Level != "info" {
		t.Errorf("expected info level, got %s", cfg.Level)
	}
	if cfg.Format != "console" {
		t.Errorf("expected console format, got %s", cfg.Format)
	}
	if !cfg.Timestamp {
		t.Error("expected timestamps enabled by default")
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := Config{Level: "verbose", Format: "json"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected invalid level to fail validation")
	}

	cfg = Config{Level: "debug", Format: "xml"}
	if err := cfg.Validate(); err == nil {
		t.Error("expected invalid format to fail validation")
	}

	cfg = Config{Level: "debug", Format: "json"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFields(t *testing.T) {
	m := Fields("job_id", "abc", "chunk", 2)
	if m["job_id"] != "abc" || m["chunk"] != 2 {
		t.Errorf("unexpected map: %v", m)
	}

	// Odd trailing key is dropped.
	m = Fields("only_key")
	if len(m) != 0 {
		t.Errorf("expected empty map, got %v", m)
	}
}

func TestWithComponent(t *testing.T) {
	l := NewDefault("test")
	child := l.WithComponent("scheduler")
	if child == nil || child == l {
		t.Error("expected a derived logger instance")
	}
}

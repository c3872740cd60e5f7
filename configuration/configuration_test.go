package configuration

import (
	"testing"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(``))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.HTTP.Addr != ":5454" {
		t.Fatalf("HTTP.Addr = %q, want default", cfg.HTTP.Addr)
	}
	if cfg.Redis.Addr != "localhost:6379" {
		t.Fatalf("Redis.Addr = %q, want default", cfg.Redis.Addr)
	}
}

func TestParseOverridesFromYAML(t *testing.T) {
	yamlDoc := []byte(`
version: "0.1"
http:
  addr: ":9090"
redis:
  addr: "redis.internal:6379"
storage:
  prefix: "deckstore:"
thumbnails:
  disabled: true
`)
	cfg, err := Parse(yamlDoc)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("HTTP.Addr = %q, want :9090", cfg.HTTP.Addr)
	}
	if cfg.Redis.Addr != "redis.internal:6379" {
		t.Fatalf("Redis.Addr = %q, want redis.internal:6379", cfg.Redis.Addr)
	}
	if cfg.Storage.Prefix != "deckstore:" {
		t.Fatalf("Storage.Prefix = %q, want deckstore:", cfg.Storage.Prefix)
	}
	if !cfg.Thumbnails.Disabled {
		t.Fatalf("expected Thumbnails.Disabled = true")
	}
}

func TestParseRejectsInvalidLoglevel(t *testing.T) {
	_, err := Parse([]byte("log:\n  level: verbose\n"))
	if err == nil {
		t.Fatalf("expected error for invalid loglevel")
	}
}

func TestEnvironmentOverridesReplaceDefaults(t *testing.T) {
	cfg := DefaultConfiguration()
	env := []string{"DECKSTORE_HTTP_ADDR=:7070", "DECKSTORE_REDIS_ADDR=override:6379"}
	if err := overrideFromEnvironment(&cfg, "DECKSTORE", env); err != nil {
		t.Fatalf("overrideFromEnvironment: %v", err)
	}
	if cfg.HTTP.Addr != ":7070" {
		t.Fatalf("HTTP.Addr = %q, want :7070", cfg.HTTP.Addr)
	}
	if cfg.Redis.Addr != "override:6379" {
		t.Fatalf("Redis.Addr = %q, want override:6379", cfg.Redis.Addr)
	}
}

package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/recondite-labs/scholarpipe/internal/config"
	"github.com/recondite-labs/scholarpipe/internal/research"
)

func TestLoadFromReaderOverlaysDefaults(t *testing.T) {
	t.Parallel()

	in := strings.NewReader(`
server:
  listen_addr: ":9090"
  log_level: debug
llm:
  model: llama3.1:8b
  temperature: 0.2
research:
  default_depth: comprehensive
  max_sources: 40
`)
	cfg, err := config.LoadFromReader(in)
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" || cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.LLM.Model != "llama3.1:8b" || cfg.LLM.Temperature != 0.2 {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.Research.DefaultDepth != research.DepthComprehensive || cfg.Research.MaxSources != 40 {
		t.Errorf("Research = %+v", cfg.Research)
	}

	// Untouched sections keep their defaults.
	if cfg.Fetch.Timeout != 10*time.Second {
		t.Errorf("Fetch.Timeout = %s, want default", cfg.Fetch.Timeout)
	}
	if cfg.Auth.TokenTTL != 30*time.Minute {
		t.Errorf("Auth.TokenTTL = %s, want default", cfg.Auth.TokenTTL)
	}
}

func TestLoadFromReaderEmptyInput(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Server.ListenAddr != ":8080" {
		t.Errorf("ListenAddr = %q, want default", cfg.Server.ListenAddr)
	}
}

func TestLoadFromReaderRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := config.LoadFromReader(strings.NewReader("server:\n  listne_addr: \":9090\"\n"))
	if err == nil {
		t.Fatal("expected an error for a misspelled field")
	}
	if !strings.Contains(err.Error(), "not found") && !strings.Contains(err.Error(), "unknown") {
		t.Errorf("err = %v, want unknown-field complaint", err)
	}
}

func TestValidateCollectsAllFailures(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Server.ListenAddr = ""
	cfg.Database.URL = ""
	cfg.LLM.Model = ""
	cfg.LLM.Temperature = 3.5
	cfg.Fetch.MaxConcurrent = 0
	cfg.Research.DefaultDepth = "exhaustive"
	cfg.Auth.RefreshTTL = cfg.Auth.TokenTTL

	err := config.Validate(cfg)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"server.listen_addr",
		"database.url",
		"llm.model",
		"llm.temperature",
		"fetch.max_concurrent",
		"research.default_depth",
		"auth.refresh_ttl",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error does not mention %s: %v", want, err)
		}
	}
}

func TestValidateRequiresSearchBackend(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Search.Command = ""
	cfg.Search.SearxngURL = ""

	err := config.Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "search") {
		t.Errorf("err = %v, want search backend complaint", err)
	}

	cfg.Search.Command = "mcp-searxng"
	if err := config.Validate(cfg); err != nil {
		t.Errorf("command alone should suffice: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  listen_addr: \":7070\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.ListenAddr != ":7070" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

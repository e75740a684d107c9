package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/recondite-labs/scholarpipe/internal/config"
)

func TestDiffNoChanges(t *testing.T) {
	t.Parallel()

	old, new := config.Default(), config.Default()
	d := config.Diff(old, new)
	if d.Changed() {
		t.Errorf("identical configs reported changed: %+v", d)
	}
}

func TestDiffHotReloadable(t *testing.T) {
	t.Parallel()

	old := config.Default()
	new := config.Default()
	new.Server.LogLevel = config.LogDebug
	new.Research.MaxSources = 50
	new.Auth.TokenTTL = time.Hour

	d := config.Diff(old, new)
	if !d.LogLevelChanged || d.NewLogLevel != config.LogDebug {
		t.Errorf("log level change not detected: %+v", d)
	}
	if !d.ResearchChanged {
		t.Error("research change not detected")
	}
	if !d.AuthChanged {
		t.Error("auth change not detected")
	}
	if len(d.RestartRequired) != 0 {
		t.Errorf("RestartRequired = %v, want none", d.RestartRequired)
	}
}

func TestDiffRestartRequired(t *testing.T) {
	t.Parallel()

	old := config.Default()
	new := config.Default()
	new.Server.ListenAddr = ":9999"
	new.Database.URL = "postgres://other/db"
	new.LLM.Model = "mistral"
	new.Embeddings.Model = "nomic-embed-text"
	new.Search.Args = []string{"--quiet"}
	new.Fetch.MaxConcurrent = 10

	d := config.Diff(old, new)
	for _, group := range []string{"server", "database", "llm", "embeddings", "search", "fetch"} {
		if !slices.Contains(d.RestartRequired, group) {
			t.Errorf("RestartRequired missing %q: %v", group, d.RestartRequired)
		}
	}
}

func TestDiffSearchEnvCompared(t *testing.T) {
	t.Parallel()

	old := config.Default()
	old.Search.Env = map[string]string{"SEARXNG_URL": "http://a"}
	new := config.Default()
	new.Search.Env = map[string]string{"SEARXNG_URL": "http://b"}

	d := config.Diff(old, new)
	if !slices.Contains(d.RestartRequired, "search") {
		t.Errorf("env change not detected: %v", d.RestartRequired)
	}

	new.Search.Env["SEARXNG_URL"] = "http://a"
	if d := config.Diff(old, new); d.Changed() {
		t.Errorf("equal env maps reported changed: %+v", d)
	}
}

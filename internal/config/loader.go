package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known backend names per provider kind.
// Used by [Validate] to warn about unrecognised names.
var ValidProviderNames = map[string][]string{
	"llm": {
		"ollama", "openai", "anthropic", "gemini",
		"deepseek", "mistral", "groq", "llamacpp", "llamafile",
	},
	"embeddings": {"ollama", "openai"},
}

// Load reads the YAML configuration file at path, overlays it onto the
// defaults, applies environment overrides, and validates the result.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r over the defaults, applies
// environment overrides, and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	ApplyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Database.URL == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if cfg.Database.EmbeddingDimensions <= 0 {
		errs = append(errs, fmt.Errorf("database.embedding_dimensions %d must be positive", cfg.Database.EmbeddingDimensions))
	}

	validateProviderName("llm", cfg.LLM.Provider)
	validateProviderName("embeddings", cfg.Embeddings.Provider)
	if cfg.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}
	if cfg.LLM.Temperature < 0 || cfg.LLM.Temperature > 2 {
		errs = append(errs, fmt.Errorf("llm.temperature %.2f is out of range [0, 2]", cfg.LLM.Temperature))
	}
	if cfg.LLM.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("llm.max_retries %d must not be negative", cfg.LLM.MaxRetries))
	}

	if cfg.Search.Command == "" && cfg.Search.SearxngURL == "" {
		errs = append(errs, errors.New("search: either search.command or search.searxng_url is required"))
	}
	if cfg.Search.QueryDelay < 0 {
		errs = append(errs, fmt.Errorf("search.query_delay %s must not be negative", cfg.Search.QueryDelay))
	}

	if cfg.Fetch.MaxConcurrent <= 0 {
		errs = append(errs, fmt.Errorf("fetch.max_concurrent %d must be positive", cfg.Fetch.MaxConcurrent))
	}
	if cfg.Fetch.MaxContentSize <= 0 {
		errs = append(errs, fmt.Errorf("fetch.max_content_size %d must be positive", cfg.Fetch.MaxContentSize))
	}
	if cfg.Fetch.BackoffFactor < 1 {
		errs = append(errs, fmt.Errorf("fetch.backoff_factor %.2f must be at least 1", cfg.Fetch.BackoffFactor))
	}

	if cfg.Research.DefaultDepth != "" && !cfg.Research.DefaultDepth.IsValid() {
		errs = append(errs, fmt.Errorf("research.default_depth %q is invalid; valid values: quick, standard, comprehensive", cfg.Research.DefaultDepth))
	}
	if cfg.Research.MaxSources <= 0 {
		errs = append(errs, fmt.Errorf("research.max_sources %d must be positive", cfg.Research.MaxSources))
	}

	if cfg.Auth.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("auth.token_ttl %s must be positive", cfg.Auth.TokenTTL))
	}
	if cfg.Auth.RefreshTTL <= cfg.Auth.TokenTTL {
		errs = append(errs, fmt.Errorf("auth.refresh_ttl %s must exceed auth.token_ttl %s", cfg.Auth.RefreshTTL, cfg.Auth.TokenTTL))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// Command researchd runs the research pipeline daemon: the HTTP API, the
// task orchestrator, and the chat/retrieval services, all wired from a
// single YAML configuration file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"github.com/recondite-labs/scholarpipe/internal/api"
	"github.com/recondite-labs/scholarpipe/internal/chat"
	"github.com/recondite-labs/scholarpipe/internal/config"
	"github.com/recondite-labs/scholarpipe/internal/graph"
	"github.com/recondite-labs/scholarpipe/internal/health"
	"github.com/recondite-labs/scholarpipe/internal/observe"
	"github.com/recondite-labs/scholarpipe/internal/orchestrator"
	"github.com/recondite-labs/scholarpipe/internal/rag"
	"github.com/recondite-labs/scholarpipe/internal/report"
	"github.com/recondite-labs/scholarpipe/internal/store/postgres"
	"github.com/recondite-labs/scholarpipe/internal/synthesis"
	"github.com/recondite-labs/scholarpipe/pkg/embed"
	ollamaembed "github.com/recondite-labs/scholarpipe/pkg/embed/ollama"
	oaembed "github.com/recondite-labs/scholarpipe/pkg/embed/openai"
	"github.com/recondite-labs/scholarpipe/pkg/llm"
	"github.com/recondite-labs/scholarpipe/pkg/llm/anyllm"
	ollamallm "github.com/recondite-labs/scholarpipe/pkg/llm/ollama"
	"github.com/recondite-labs/scholarpipe/pkg/search"
	"github.com/recondite-labs/scholarpipe/pkg/webfetch"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "researchd: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "researchd: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("researchd starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName: "scholarpipe",
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Store ─────────────────────────────────────────────────────────────────
	st, err := postgres.NewStore(ctx, cfg.Database.URL, cfg.Database.EmbeddingDimensions)
	if err != nil {
		slog.Error("failed to connect to database", "err", err)
		return 1
	}
	defer st.Close()
	slog.Info("database connected", "embedding_dimensions", cfg.Database.EmbeddingDimensions)

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	llmProvider, err := reg.CreateLLM(cfg.LLM)
	if err != nil {
		slog.Error("failed to create llm provider", "name", cfg.LLM.Provider, "err", err)
		return 1
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.LLM.Provider, "model", cfg.LLM.Model)

	embedder, err := reg.CreateEmbeddings(cfg.Embeddings)
	if err != nil {
		slog.Error("failed to create embeddings provider", "name", cfg.Embeddings.Provider, "err", err)
		return 1
	}
	slog.Info("provider created", "kind", "embeddings", "name", cfg.Embeddings.Provider, "model", cfg.Embeddings.Model)

	// ── Pipeline collaborators ────────────────────────────────────────────────
	searchCfg := search.Config{
		MCPCommand: cfg.Search.Command,
		MCPArgs:    cfg.Search.Args,
		MCPEnv:     cfg.Search.Env,
		SearxURL:   cfg.Search.SearxngURL,
		Timeout:    cfg.Search.Timeout,
	}
	if cfg.Search.QueryDelay > 0 {
		searchCfg.Pace = rate.Every(cfg.Search.QueryDelay)
	}
	searchClient, err := search.New(searchCfg)
	if err != nil {
		slog.Error("failed to create search client", "err", err)
		return 1
	}

	fetcher := webfetch.New(webfetch.Config{
		MaxConcurrent:  cfg.Fetch.MaxConcurrent,
		Timeout:        cfg.Fetch.Timeout,
		MaxContentSize: cfg.Fetch.MaxContentSize,
		UserAgent:      cfg.Fetch.UserAgent,
		MaxRetries:     cfg.Fetch.MaxRetries,
		BackoffFactor:  cfg.Fetch.BackoffFactor,
	})

	orch := orchestrator.New(orchestrator.Config{
		Store:      st,
		Search:     searchClient,
		Fetcher:    fetcher,
		Engine:     synthesis.New(llmProvider),
		Embedder:   embedder,
		Graph:      graph.New(st, embedder),
		MaxTaskAge: cfg.Research.MaxTaskAge,
	})

	retriever := rag.New(st, embedder)
	chatService := chat.NewService(st, chat.NewResponder(retriever, llmProvider))

	// ── HTTP surface ──────────────────────────────────────────────────────────
	server := api.NewServer(api.Config{
		Store:        st,
		Runner:       orch,
		Chat:         chatService,
		Retriever:    retriever,
		Reports:      report.New(st),
		Auth:         api.NewAuth(st, cfg.Auth.TokenTTL, cfg.Auth.RefreshTTL),
		DefaultDepth: cfg.Research.DefaultDepth,
	})

	mux := http.NewServeMux()
	server.Routes(mux)
	health.New(
		health.Checker{Name: "database", Check: st.Ping},
		health.Checker{Name: "llm", Check: llmProvider.Health},
		health.Checker{Name: "search", Check: searchClient.Health},
	).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Config watcher ────────────────────────────────────────────────────────
	// Log level applies live; everything else needs a restart.
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		diff := config.Diff(old, new)
		if diff.LogLevelChanged {
			level.Set(slogLevel(diff.NewLogLevel))
			slog.Info("log level changed", "level", diff.NewLogLevel)
		}
		if len(diff.RestartRequired) > 0 {
			slog.Warn("config changes need a restart to apply",
				"sections", strings.Join(diff.RestartRequired, ", "))
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	slog.Info("server ready — press Ctrl+C to shut down")

	select {
	case err := <-serveErr:
		slog.Error("http server error", "err", err)
		return 1
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown error", "err", err)
	}

	// Drain in-flight research tasks so their final status reaches the store.
	orch.Close()

	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// hostedLLMProviders are the any-llm-go backends that share the APIKey +
// BaseURL construction pattern.
var hostedLLMProviders = []string{
	"openai", "anthropic", "gemini",
	"deepseek", "mistral", "groq", "llamacpp", "llamafile",
}

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── LLM ───────────────────────────────────────────────────────────────────
	// ollama talks the native transport; everything else goes through any-llm-go.
	reg.RegisterLLM("ollama", func(c config.LLMConfig) (llm.Provider, error) {
		var opts []ollamallm.Option
		if c.Timeout > 0 {
			opts = append(opts, ollamallm.WithTimeout(c.Timeout))
		}
		return ollamallm.New(c.BaseURL, c.Model, opts...)
	})

	for _, providerName := range hostedLLMProviders {
		reg.RegisterLLM(providerName, func(c config.LLMConfig) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if c.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(c.APIKey))
			}
			if c.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(c.BaseURL))
			}
			return anyllm.New(providerName, c.Model, opts...)
		})
	}

	// ── Embeddings ────────────────────────────────────────────────────────────
	reg.RegisterEmbeddings("ollama", func(c config.EmbeddingsConfig) (embed.Provider, error) {
		return ollamaembed.New(c.BaseURL, c.Model)
	})

	reg.RegisterEmbeddings("openai", func(c config.EmbeddingsConfig) (embed.Provider, error) {
		var opts []oaembed.Option
		if c.BaseURL != "" {
			opts = append(opts, oaembed.WithBaseURL(c.BaseURL))
		}
		return oaembed.New(c.APIKey, c.Model, opts...)
	})
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       scholarpipe — startup summary   ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printEntry("LLM", cfg.LLM.Provider+" / "+cfg.LLM.Model)
	printEntry("Embeddings", cfg.Embeddings.Provider+" / "+cfg.Embeddings.Model)
	if cfg.Search.Command != "" {
		printEntry("Search", "mcp + searxng")
	} else {
		printEntry("Search", "searxng")
	}
	printEntry("Default depth", string(cfg.Research.DefaultDepth))
	printEntry("Listen addr", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printEntry(kind, value string) {
	if value == "" {
		value = "(not configured)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-13s   : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

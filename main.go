package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"

	"github.com/voice-assistant/server/internal/assistant"
	"github.com/voice-assistant/server/internal/assistant/checkpoint"
	"github.com/voice-assistant/server/internal/assistant/graph"
	"github.com/voice-assistant/server/internal/assistant/llm"
	"github.com/voice-assistant/server/internal/assistant/model"
	"github.com/voice-assistant/server/internal/assistant/services/browser"
	"github.com/voice-assistant/server/internal/assistant/services/calendar"
	"github.com/voice-assistant/server/internal/assistant/services/files"
	"github.com/voice-assistant/server/internal/assistant/services/keyboard"
	"github.com/voice-assistant/server/internal/assistant/services/search"
	"github.com/voice-assistant/server/internal/assistant/services/software"
	"github.com/voice-assistant/server/internal/assistant/services/system"
	"github.com/voice-assistant/server/internal/core"
	logx "github.com/voice-assistant/server/pkg/logger"
	"github.com/voice-assistant/server/pkg/metrics"
	pkgredis "github.com/voice-assistant/server/pkg/redis"
)

// AppConfig defines all configurable parameters of the assistant,
// sourced from environment variables (loaded from .env for local runs).
type AppConfig struct {
	Environment string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL"`

	// Infrastructure
	Redis      pkgredis.Config
	Checkpoint model.CheckpointConfig

	// LLM provider
	LLM model.LLMConfig

	// Assistant and collaborators
	Assistant model.AssistantConfig
	Search    model.SearchConfig
	Browser   model.BrowserConfig
	Files     model.FilesConfig
	Keyboard  model.KeyboardConfig
}

func loadConfig() (AppConfig, error) {
	// Load .env file
	if err := godotenv.Load(".env"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Could not load .env file: %v\n", err)
	}

	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return cfg, fmt.Errorf("failed to process environment config: %w", err)
	}
	return cfg, nil
}

// app is everything one process needs; close releases it in reverse order.
type app struct {
	cfg       AppConfig
	assistant *assistant.Assistant
	closers   []func() error
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			logx.Warn().Err(err).Msg("Shutdown step failed")
		}
	}
}

func newApp(ctx context.Context, withGraph bool) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logx.Init(logx.LoggerOpts{
		Environment: core.ParseEnvironment(cfg.Environment),
		Level:       cfg.LogLevel,
	})

	store, closeStore, err := checkpoint.Open(ctx, cfg.Checkpoint, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint store: %w", err)
	}
	a := &app{cfg: cfg, closers: []func() error{closeStore}}
	if !withGraph {
		a.assistant = assistant.New(nil, store, cfg.Assistant)
		return a, nil
	}

	models, err := llm.NewChatModels(ctx, cfg.LLM)
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to create chat models: %w", err)
	}

	collaborators := newCollaborators(cfg)
	a.closers = append(a.closers, func() error {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return collaborators.Browser.Close(cctx)
	})

	runner, err := graph.Build(ctx, graph.Config{
		Models:        models,
		Assistant:     cfg.Assistant,
		Collaborators: collaborators,
	})
	if err != nil {
		a.close()
		return nil, fmt.Errorf("failed to build graph: %w", err)
	}

	a.assistant = assistant.New(runner, store, cfg.Assistant)
	return a, nil
}

// newCollaborators wires the host-side services. A collaborator that cannot
// start is left nil and its tools report it as unavailable.
func newCollaborators(cfg AppConfig) graph.Collaborators {
	b := browser.NewRodBrowser(cfg.Browser)
	c := graph.Collaborators{
		Search:   search.New(cfg.Search, search.DefaultEndpoints),
		Browser:  b,
		System:   system.NewHost(),
		Software: software.NewDesktop(),
		Calendar: calendar.NewMemory(),
		Keyboard: keyboard.NewXdotool(cfg.Keyboard),
		Media:    browser.NewYouTube(b),
	}

	fm, err := files.NewLocal(cfg.Files)
	if err != nil {
		logx.Warn().Err(err).Msg("File manager unavailable")
	} else {
		c.Files = fm
	}
	return c
}

// serveMetrics exposes Prometheus metrics until ctx ends.
func serveMetrics(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Error().Err(err).Str("addr", addr).Msg("Metrics server stopped")
		}
	}()
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()
	logx.Info().Str("addr", addr).Msg("Serving metrics")
}

func newRootCmd() *cobra.Command {
	var (
		threadID    string
		metricsAddr string
	)

	root := &cobra.Command{
		Use:           "assistant",
		Short:         "Personal voice assistant (text mode)",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, true)
			if err != nil {
				return err
			}
			defer a.close()

			if metricsAddr != "" {
				serveMetrics(ctx, metricsAddr)
			}
			if threadID == "" {
				threadID = uuid.NewString()
			}
			return runREPL(ctx, a.assistant, a.cfg.Assistant.Name, threadID)
		},
	}
	root.Flags().StringVar(&threadID, "thread", "", "conversation thread id (random when empty)")
	root.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9090")

	reset := &cobra.Command{
		Use:   "reset",
		Short: "Delete the stored session of a thread",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.assistant.Reset(cmd.Context(), threadID); err != nil {
				return err
			}
			fmt.Printf("Thread %s reset.\n", threadID)
			return nil
		},
	}
	reset.Flags().StringVar(&threadID, "thread", "", "conversation thread id")
	_ = reset.MarkFlagRequired("thread")
	root.AddCommand(reset)

	return root
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	amodel "github.com/voice-assistant/server/internal/assistant/model"
	logx "github.com/voice-assistant/server/pkg/logger"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
)

// ChatModels holds the router model (classifier edges) and the worker model
// (processing nodes). Both are safe for concurrent use; tools are passed per call.
type ChatModels struct {
	Router          model.BaseChatModel
	Worker          model.BaseChatModel
	RouterModelName string
	WorkerModelName string
}

// NewChatModels creates both chat models for the configured provider.
func NewChatModels(ctx context.Context, cfg amodel.LLMConfig) (*ChatModels, error) {
	var (
		router, worker model.BaseChatModel
		err            error
	)

	switch strings.ToLower(cfg.Provider) {
	case "", ProviderGemini:
		router, worker, err = newGeminiModels(ctx, cfg)
	case ProviderOpenAI:
		router, worker, err = newOpenAIModels(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	// one bucket shared by both models: they hit the same provider quota
	limiter := newLimiter(cfg.RequestsPerSecond)
	return &ChatModels{
		Router:          NewGuarded(router, cfg.Router.Model, cfg.Timeout, limiter),
		Worker:          NewGuarded(worker, cfg.Worker.Model, cfg.Timeout, limiter),
		RouterModelName: cfg.Router.Model,
		WorkerModelName: cfg.Worker.Model,
	}, nil
}

func newGeminiModels(ctx context.Context, cfg amodel.LLMConfig) (model.BaseChatModel, model.BaseChatModel, error) {
	if cfg.GeminiAPIKey == "" {
		return nil, nil, fmt.Errorf("GEMINI_API_KEY is required for the gemini provider")
	}
	clientCfg := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if cfg.GeminiBaseURL != "" {
		clientCfg.HTTPOptions.BaseURL = cfg.GeminiBaseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("Error creating Gemini client")
		return nil, nil, fmt.Errorf("error creating Gemini client: %w", err)
	}

	// Router answers with a single label; thinking would only add latency.
	router, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Router.Model,
		Temperature: &cfg.Router.Temperature,
		MaxTokens:   &cfg.Router.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(0)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating router model")
		return nil, nil, fmt.Errorf("error creating router model: %w", err)
	}

	worker, err := gemini.NewChatModel(ctx, &gemini.Config{
		Client:      client,
		Model:       cfg.Worker.Model,
		Temperature: &cfg.Worker.Temperature,
		MaxTokens:   &cfg.Worker.MaxTokens,
		ThinkingConfig: &genai.ThinkingConfig{
			IncludeThoughts: false,
			ThinkingBudget:  genai.Ptr(int32(1024)),
		},
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating worker model")
		return nil, nil, fmt.Errorf("error creating worker model: %w", err)
	}
	return router, worker, nil
}

func newOpenAIModels(ctx context.Context, cfg amodel.LLMConfig) (model.BaseChatModel, model.BaseChatModel, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, nil, fmt.Errorf("OPENAI_API_KEY is required for the openai provider")
	}

	router, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.Router.Model,
		MaxTokens:   &cfg.Router.MaxTokens,
		Temperature: &cfg.Router.Temperature,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating router model")
		return nil, nil, fmt.Errorf("error creating router model: %w", err)
	}

	worker, err := openai.NewChatModel(ctx, &openai.ChatModelConfig{
		APIKey:      cfg.OpenAIAPIKey,
		BaseURL:     cfg.OpenAIBaseURL,
		Model:       cfg.Worker.Model,
		MaxTokens:   &cfg.Worker.MaxTokens,
		Temperature: &cfg.Worker.Temperature,
	})
	if err != nil {
		logx.Error().Err(err).Msg("Error creating worker model")
		return nil, nil, fmt.Errorf("error creating worker model: %w", err)
	}
	return router, worker, nil
}

func newLimiter(rps float64) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

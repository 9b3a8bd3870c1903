package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/Retr0-XD/FInance-Monkey/pkg/gemini"
	"github.com/Retr0-XD/FInance-Monkey/pkg/retry"
)

// Config holds AI provider configuration
type Config struct {
	Provider ProviderType // "gemini", "ollama", "auto" or "none"

	// Gemini config
	GeminiAPIKey string
	GeminiModel  string

	// Ollama config
	OllamaBaseURL string // e.g., "http://localhost:11434"
	OllamaModel   string // e.g., "llama3", "mistral"

	Retry   retry.Policy
	Timeout time.Duration
}

// NewTextGenerator creates a TextGenerator based on the config.
// Returns (nil, nil) when no provider is configured.
func NewTextGenerator(ctx context.Context, cfg Config) (TextGenerator, error) {
	switch cfg.Provider {
	case ProviderNone:
		return nil, nil

	case ProviderGemini:
		return gemini.NewGeminiService(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)

	case ProviderOllama:
		return NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel), nil

	case ProviderAuto, "":
		// Gemini if an API key is available, then Ollama if one was pointed at
		if cfg.GeminiAPIKey != "" {
			return gemini.NewGeminiService(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		}
		if cfg.OllamaBaseURL != "" {
			return NewOllamaService(cfg.OllamaBaseURL, cfg.OllamaModel), nil
		}
		return nil, nil

	default:
		return nil, fmt.Errorf("unknown AI provider %q", cfg.Provider)
	}
}

// NewExtractor builds the extraction strategy: the AI classifier when one is
// configured, backed by the heuristic extractor.
func NewExtractor(ctx context.Context, cfg Config) (Extractor, error) {
	gen, err := NewTextGenerator(ctx, cfg)
	if err != nil {
		return nil, err
	}
	heuristic := NewHeuristicExtractor()
	if gen == nil {
		return NewFallbackExtractor(nil, heuristic), nil
	}
	return NewFallbackExtractor(NewAIExtractor(gen, cfg.Retry, cfg.Timeout), heuristic), nil
}

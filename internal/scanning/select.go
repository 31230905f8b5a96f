package scanning

import (
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Provider names accepted by New
const (
	ProviderOpenAI  = "openai"
	ProviderGemini  = "gemini"
	ProviderOllama  = "ollama"
	ProviderOffline = "offline"
)

// Config selects and configures the analysis provider
type Config struct {
	Provider        string
	APIKey          string
	Organization    string
	BaseURL         string
	Model           string
	OllamaURL       string
	Timeout         time.Duration
	DefaultCurrency string
	// Categories is the vocabulary the vision model prompts ask for
	Categories []string
}

// New constructs the configured analyzer, failing when it cannot be built
func New(cfg Config, logger *slog.Logger) (Analyzer, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderOpenAI:
		client, err := NewOpenAI(OpenAIConfig{
			APIKey:       cfg.APIKey,
			Organization: cfg.Organization,
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
			Timeout:      cfg.Timeout,
		}, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	case ProviderGemini:
		client, err := NewGemini(cfg.APIKey, cfg.Model, cfg.Categories, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	case ProviderOllama:
		client, err := NewOllama(cfg.OllamaURL, cfg.Model, cfg.Categories, logger)
		if err != nil {
			return nil, err
		}
		return client, nil
	case ProviderOffline:
		return NewOffline(cfg.DefaultCurrency), nil
	default:
		return nil, fmt.Errorf("unknown analysis provider %q", cfg.Provider)
	}
}

// Select builds the configured analyzer once. When that fails the offline
// analyzer is returned and used for the rest of the process lifetime.
func Select(cfg Config, logger *slog.Logger) Analyzer {
	if logger == nil {
		logger = slog.Default()
	}

	analyzer, err := New(cfg, logger)
	if err != nil {
		logger.Warn("Analysis provider unavailable, using offline mode", "provider", cfg.Provider, "error", err)
		return NewOffline(cfg.DefaultCurrency)
	}
	logger.Info("Analysis provider ready", "provider", cfg.Provider)
	return analyzer
}

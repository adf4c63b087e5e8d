package factory

import (
	"fmt"
	"sort"
	"time"

	"github.com/BaSui01/captain/llm"
	"github.com/BaSui01/captain/llm/providers"
	claude "github.com/BaSui01/captain/llm/providers/anthropic"
	"github.com/BaSui01/captain/llm/providers/openaicompat"
	"go.uber.org/zap"
)

// Provider names accepted by NewProviderFromConfig.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderFireworks = "fireworks"
	ProviderCustom    = "custom"
)

// 各内置提供商的 OpenAI 兼容端点
var builtinEndpoints = map[string]struct {
	baseURL      string
	endpointPath string
	model        string
}{
	ProviderOpenAI:    {baseURL: "https://api.openai.com", endpointPath: "/v1/chat/completions", model: "gpt-4o-mini"},
	ProviderGoogle:    {baseURL: "https://generativelanguage.googleapis.com", endpointPath: "/v1beta/openai/chat/completions", model: "gemini-1.5-flash"},
	ProviderFireworks: {baseURL: "https://api.fireworks.ai/inference", endpointPath: "/v1/chat/completions", model: "accounts/fireworks/models/llama-v3p1-70b-instruct"},
}

// ProviderConfig is the generic configuration accepted by the factory function.
type ProviderConfig struct {
	APIKey  string        `json:"api_key" yaml:"api_key"`
	BaseURL string        `json:"base_url" yaml:"base_url"`
	Model   string        `json:"model,omitempty" yaml:"model,omitempty"`
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// SupportedProviders returns the closed set of provider names, sorted.
func SupportedProviders() []string {
	names := []string{ProviderAnthropic, ProviderCustom}
	for name := range builtinEndpoints {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewProviderFromConfig creates a Provider instance based on the provider name.
//
// Supported names: openai, anthropic, google, fireworks, custom. "custom"
// talks to any OpenAI-compatible server and requires BaseURL.
func NewProviderFromConfig(name string, cfg ProviderConfig, logger *zap.Logger) (llm.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	switch name {
	case ProviderAnthropic:
		return claude.NewClaudeProvider(providers.ClaudeConfig{BaseProviderConfig: providers.BaseProviderConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		}}, logger), nil

	case ProviderOpenAI, ProviderGoogle, ProviderFireworks:
		ep := builtinEndpoints[name]
		baseURL := cfg.BaseURL
		if baseURL == "" {
			baseURL = ep.baseURL
		}
		return openaicompat.New(openaicompat.Config{
			ProviderName:  name,
			APIKey:        cfg.APIKey,
			BaseURL:       baseURL,
			DefaultModel:  cfg.Model,
			FallbackModel: ep.model,
			Timeout:       cfg.Timeout,
			EndpointPath:  ep.endpointPath,
		}, logger), nil

	case ProviderCustom:
		if cfg.BaseURL == "" {
			return nil, fmt.Errorf("provider %q requires base_url", name)
		}
		return openaicompat.New(openaicompat.Config{
			ProviderName: name,
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			DefaultModel: cfg.Model,
			Timeout:      cfg.Timeout,
		}, logger), nil

	default:
		return nil, fmt.Errorf("unknown provider %q (supported: %v)", name, SupportedProviders())
	}
}

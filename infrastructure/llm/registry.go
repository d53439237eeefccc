package llm

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"sync"
	"time"
)

// ProviderConfig describes how the registry builds clients for a provider.
type ProviderConfig struct {
	// Type selects the provider factory.
	Type string
	// EnvVar names the environment variable holding the API key.
	EnvVar string
	// DefaultModel is used when a reference names only the provider.
	DefaultModel string
	// SupportedModels restricts the models that may be requested. Empty
	// allows any model.
	SupportedModels []string
	// BaseURL overrides the provider endpoint.
	BaseURL string
	// Middleware is applied inside the registry-wide middleware.
	Middleware []Middleware
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Providers         map[string]ProviderConfig
	DefaultProvider   string
	DefaultTimeout    time.Duration
	DefaultMiddleware []Middleware

	// Getenv reads API keys. Defaults to os.Getenv.
	Getenv func(string) string
}

// DefaultProviders lists the providers available for scoring and analysis.
var DefaultProviders = map[string]ProviderConfig{
	"anthropic": {
		Type:         "anthropic",
		EnvVar:       "ANTHROPIC_API_KEY",
		DefaultModel: AnthropicDefaultModel,
		SupportedModels: []string{
			"claude-sonnet-4-5-20250929", "claude-opus-4-1-20250805",
			"claude-sonnet-4-20250514", "claude-3-7-sonnet-20250219",
			"claude-3-5-haiku-20241022",
		},
	},
	"openai": {
		Type:         "openai",
		EnvVar:       "OPENAI_API_KEY",
		DefaultModel: OpenAIDefaultModel,
		SupportedModels: []string{
			"gpt-4.1", "gpt-4.1-mini", "gpt-4o", "gpt-4o-mini", "o3", "o4-mini",
		},
	},
	"google": {
		Type:         "google",
		EnvVar:       "GOOGLE_API_KEY",
		DefaultModel: GoogleDefaultModel,
		SupportedModels: []string{
			"gemini-2.5-pro", "gemini-2.5-flash", "gemini-2.5-flash-lite", "gemini-2.0-flash",
		},
	},
}

// Registry builds and caches clients addressed as "provider" or
// "provider/model".
type Registry struct {
	mu                sync.RWMutex
	providers         map[string]ProviderConfig
	clients           map[string]*Client
	defaultProvider   string
	defaultMiddleware []Middleware
	defaultTimeout    time.Duration
	getenv            func(string) string
}

// NewRegistry validates config and returns an empty registry.
func NewRegistry(config RegistryConfig) (*Registry, error) {
	if config.DefaultProvider == "" {
		return nil, fmt.Errorf("default provider cannot be empty")
	}
	if _, ok := config.Providers[config.DefaultProvider]; !ok {
		return nil, fmt.Errorf("default provider %q not found in providers configuration", config.DefaultProvider)
	}

	getenv := config.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}

	return &Registry{
		providers:         config.Providers,
		clients:           make(map[string]*Client),
		defaultProvider:   config.DefaultProvider,
		defaultMiddleware: config.DefaultMiddleware,
		defaultTimeout:    config.DefaultTimeout,
		getenv:            getenv,
	}, nil
}

// GetDefaultClient returns the client for the default provider and model.
func (r *Registry) GetDefaultClient() (*Client, error) {
	return r.GetClient(r.defaultProvider)
}

// GetClient returns the client for ref ("provider/model"), creating it on first use.
func (r *Registry) GetClient(ref string) (*Client, error) {
	if ref == "" {
		return nil, fmt.Errorf("provider reference cannot be empty")
	}

	provider, model := r.parseRef(ref)
	key := provider + "/" + model

	r.mu.RLock()
	client, ok := r.clients[key]
	r.mu.RUnlock()
	if ok {
		return client, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if client, ok := r.clients[key]; ok {
		return client, nil
	}

	client, err := r.createClient(provider, model)
	if err != nil {
		return nil, err
	}
	r.clients[key] = client
	return client, nil
}

func (r *Registry) parseRef(ref string) (provider, model string) {
	provider, model, _ = strings.Cut(ref, "/")
	if model == "" {
		model = r.providers[provider].DefaultModel
	}
	return provider, model
}

func (r *Registry) createClient(provider, model string) (*Client, error) {
	pc, ok := r.providers[provider]
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", provider)
	}
	if len(pc.SupportedModels) > 0 && !slices.Contains(pc.SupportedModels, model) {
		return nil, fmt.Errorf("model %q is not supported by provider %q. Supported models: %v",
			model, provider, pc.SupportedModels)
	}

	apiKey := r.getenv(pc.EnvVar)
	if apiKey == "" {
		return nil, fmt.Errorf("%s environment variable not set for provider %q", pc.EnvVar, provider)
	}

	middleware := slices.Concat(r.defaultMiddleware, pc.Middleware)
	return NewClient(pc.Type, ClientConfig{
		APIKey:     apiKey,
		Model:      model,
		BaseURL:    pc.BaseURL,
		Timeout:    r.defaultTimeout,
		Middleware: middleware,
	})
}

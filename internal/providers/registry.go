package providers

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Registry holds references to OCR and NER providers.
// It supports config-driven instantiation and hot-reload, and provides
// thread-safe access. Provider selection is always by configured name,
// never by runtime type inspection.
type Registry struct {
	mu           sync.RWMutex
	ocrProviders map[string]OCRProvider
	nerProviders map[string]NERProvider
	limiters     map[string]*RateLimiter
	logger       *slog.Logger
}

// NewRegistry creates a new empty provider registry.
func NewRegistry() *Registry {
	return &Registry{
		ocrProviders: make(map[string]OCRProvider),
		nerProviders: make(map[string]NERProvider),
		limiters:     make(map[string]*RateLimiter),
		logger:       slog.Default(),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger *slog.Logger) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logger = logger
}

// RegisterOCR registers an OCR provider by name.
func (r *Registry) RegisterOCR(name string, provider OCRProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ocrProviders[name] = provider
	r.limiters[name] = NewRateLimiter(provider.RequestsPerSecond())
	r.logger.Info("registered OCR provider", "name", name)
}

// RegisterNER registers an NER provider by name.
func (r *Registry) RegisterNER(name string, provider NERProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nerProviders[name] = provider
	r.limiters[name] = NewRateLimiter(provider.RequestsPerSecond())
	r.logger.Info("registered NER provider", "name", name)
}

// GetOCR returns an OCR provider by name.
func (r *Registry) GetOCR(name string) (OCRProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.ocrProviders[name]
	if !ok {
		return nil, fmt.Errorf("OCR provider not found: %s", name)
	}
	return provider, nil
}

// GetNER returns an NER provider by name.
func (r *Registry) GetNER(name string) (NERProvider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	provider, ok := r.nerProviders[name]
	if !ok {
		return nil, fmt.Errorf("NER provider not found: %s", name)
	}
	return provider, nil
}

// Limiter returns the rate limiter for a registered provider. A limiter
// is always returned; unknown names get a fresh unthrottled-ish default
// so callers don't need a nil check.
func (r *Registry) Limiter(name string) *RateLimiter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if l, ok := r.limiters[name]; ok {
		return l
	}
	return NewRateLimiter(1.0)
}

// ListOCR returns all registered OCR provider names, sorted.
func (r *Registry) ListOCR() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ocrProviders))
	for name := range r.ocrProviders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListNER returns all registered NER provider names, sorted.
func (r *Registry) ListNER() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.nerProviders))
	for name := range r.nerProviders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// HasOCR checks if an OCR provider is registered.
func (r *Registry) HasOCR(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.ocrProviders[name]
	return ok
}

// HasNER checks if an NER provider is registered.
func (r *Registry) HasNER(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.nerProviders[name]
	return ok
}

// RegistryConfig defines the providers to instantiate from config.
// API keys arrive already resolved; the registry and adapters never read
// credential material from the environment themselves.
type RegistryConfig struct {
	OCRProviders map[string]OCRProviderConfig
	NERProviders map[string]NERProviderConfig
}

// OCRProviderConfig matches config.OCRProviderCfg with resolved API key.
type OCRProviderConfig struct {
	Type                string // "vision"
	Endpoint            string
	APIKey              string
	RateLimit           float64
	ConfidenceThreshold float64
	LanguageHints       []string
	Enabled             bool
}

// NERProviderConfig matches config.NERProviderCfg with resolved API key.
type NERProviderConfig struct {
	Type      string // "medner", "llm"
	Endpoint  string
	Model     string
	APIKey    string
	RateLimit float64
	Enabled   bool
}

// NewRegistryFromConfig creates a registry with providers based on
// configuration. Only enabled providers with valid API keys register.
func NewRegistryFromConfig(cfg RegistryConfig, logger *slog.Logger) *Registry {
	r := NewRegistry()
	if logger != nil {
		r.logger = logger
	}
	r.Reload(cfg)
	return r
}

// Reload replaces the provider set based on new configuration.
// Providers that are no longer configured are dropped.
func (r *Registry) Reload(cfg RegistryConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.ocrProviders = make(map[string]OCRProvider)
	r.nerProviders = make(map[string]NERProvider)
	r.limiters = make(map[string]*RateLimiter)

	for name, provCfg := range cfg.OCRProviders {
		if !provCfg.Enabled || provCfg.APIKey == "" {
			continue
		}
		provider, err := createOCRProvider(provCfg)
		if err != nil {
			r.logger.Warn("skipping OCR provider", "name", name, "error", err)
			continue
		}
		r.ocrProviders[name] = provider
		r.limiters[name] = NewRateLimiter(provider.RequestsPerSecond())
		r.logger.Info("registered OCR provider", "name", name, "type", provCfg.Type)
	}

	for name, provCfg := range cfg.NERProviders {
		if !provCfg.Enabled || provCfg.APIKey == "" {
			continue
		}
		provider, err := createNERProvider(provCfg)
		if err != nil {
			r.logger.Warn("skipping NER provider", "name", name, "error", err)
			continue
		}
		r.nerProviders[name] = provider
		r.limiters[name] = NewRateLimiter(provider.RequestsPerSecond())
		r.logger.Info("registered NER provider", "name", name, "type", provCfg.Type)
	}
}

// createOCRProvider creates an OCR provider based on provider type.
func createOCRProvider(cfg OCRProviderConfig) (OCRProvider, error) {
	switch cfg.Type {
	case "vision":
		return NewVisionOCRClient(VisionOCRConfig{
			APIKey:              cfg.APIKey,
			BaseURL:             cfg.Endpoint,
			ConfidenceThreshold: cfg.ConfidenceThreshold,
			LanguageHints:       cfg.LanguageHints,
			RateLimit:           cfg.RateLimit,
		}), nil
	default:
		return nil, fmt.Errorf("unknown OCR provider type: %s", cfg.Type)
	}
}

// createNERProvider creates an NER provider based on provider type.
func createNERProvider(cfg NERProviderConfig) (NERProvider, error) {
	switch cfg.Type {
	case "medner":
		return NewMedNERClient(MedNERConfig{
			Endpoint:  cfg.Endpoint,
			APIKey:    cfg.APIKey,
			RateLimit: cfg.RateLimit,
		}), nil
	case "llm":
		return NewLLMNERClient(LLMNERConfig{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   cfg.Endpoint,
			RateLimit: cfg.RateLimit,
		})
	default:
		return nil, fmt.Errorf("unknown NER provider type: %s", cfg.Type)
	}
}

package config

import "time"

// Config holds medscan configuration.
// Stored at: ~/.medscan/config.yaml
type Config struct {
	OCRProviders map[string]OCRProviderCfg `mapstructure:"ocr_providers" yaml:"ocr_providers"`
	NERProviders map[string]NERProviderCfg `mapstructure:"ner_providers" yaml:"ner_providers"`
	Defaults     DefaultsCfg               `mapstructure:"defaults" yaml:"defaults"`
}

// OCRProviderCfg configures an OCR provider.
type OCRProviderCfg struct {
	Type                string   `mapstructure:"type" yaml:"type"`                                 // "vision"
	Endpoint            string   `mapstructure:"endpoint" yaml:"endpoint"`                         // Override API endpoint
	APIKey              string   `mapstructure:"api_key" yaml:"api_key"`                           // API key (supports ${ENV_VAR} syntax)
	RateLimit           float64  `mapstructure:"rate_limit" yaml:"rate_limit"`                     // Requests per second
	ConfidenceThreshold float64  `mapstructure:"confidence_threshold" yaml:"confidence_threshold"` // Minimum block confidence
	LanguageHints       []string `mapstructure:"language_hints" yaml:"language_hints"`             // BCP-47 language codes
	Enabled             bool     `mapstructure:"enabled" yaml:"enabled"`
}

// NERProviderCfg configures a named-entity recognition provider.
type NERProviderCfg struct {
	Type      string  `mapstructure:"type" yaml:"type"`             // "medner", "llm"
	Endpoint  string  `mapstructure:"endpoint" yaml:"endpoint"`     // Override API endpoint
	Model     string  `mapstructure:"model" yaml:"model"`           // Model name (for llm)
	APIKey    string  `mapstructure:"api_key" yaml:"api_key"`       // API key (supports ${ENV_VAR} syntax)
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"` // Requests per second
	Enabled   bool    `mapstructure:"enabled" yaml:"enabled"`
}

// DefaultsCfg specifies default provider selections and pipeline limits.
type DefaultsCfg struct {
	OCRProvider     string        `mapstructure:"ocr_provider" yaml:"ocr_provider"`         // Default OCR provider
	NERProvider     string        `mapstructure:"ner_provider" yaml:"ner_provider"`         // Default NER provider
	MaxWorkers      int           `mapstructure:"max_workers" yaml:"max_workers"`           // Max concurrent documents
	DocumentTimeout time.Duration `mapstructure:"document_timeout" yaml:"document_timeout"` // Per-document deadline
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		OCRProviders: map[string]OCRProviderCfg{
			"vision": {
				Type:                "vision",
				APIKey:              "${VISION_API_KEY}",
				RateLimit:           10.0,
				ConfidenceThreshold: 0.7,
				LanguageHints:       []string{"ja", "en"},
				Enabled:             true,
			},
		},
		NERProviders: map[string]NERProviderCfg{
			"medner": {
				Type:      "medner",
				APIKey:    "${MEDNER_API_KEY}",
				RateLimit: 5.0,
				Enabled:   true,
			},
			"llm": {
				Type:    "llm",
				Model:   "gpt-4o-mini",
				APIKey:  "${OPENAI_API_KEY}",
				Enabled: true,
			},
		},
		Defaults: DefaultsCfg{
			OCRProvider:     "vision",
			NERProvider:     "medner",
			MaxWorkers:      4,
			DocumentTimeout: 120 * time.Second,
		},
	}
}

// GetOCRProvider returns an OCR provider config by name.
func (c *Config) GetOCRProvider(name string) (OCRProviderCfg, bool) {
	cfg, ok := c.OCRProviders[name]
	return cfg, ok
}

// GetNERProvider returns a NER provider config by name.
func (c *Config) GetNERProvider(name string) (NERProviderCfg, bool) {
	cfg, ok := c.NERProviders[name]
	return cfg, ok
}

// EnabledOCRProviders returns all enabled OCR providers.
func (c *Config) EnabledOCRProviders() map[string]OCRProviderCfg {
	result := make(map[string]OCRProviderCfg)
	for name, cfg := range c.OCRProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

// EnabledNERProviders returns all enabled NER providers.
func (c *Config) EnabledNERProviders() map[string]NERProviderCfg {
	result := make(map[string]NERProviderCfg)
	for name, cfg := range c.NERProviders {
		if cfg.Enabled {
			result[name] = cfg
		}
	}
	return result
}

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if len(cfg.OCRProviders) == 0 {
		t.Error("expected default OCR providers")
	}
	vision, ok := cfg.GetOCRProvider("vision")
	if !ok {
		t.Fatal("expected vision OCR provider")
	}
	if vision.APIKey != "${VISION_API_KEY}" {
		t.Error("expected vision API key placeholder")
	}
	if vision.ConfidenceThreshold != 0.7 {
		t.Errorf("expected confidence threshold 0.7, got %v", vision.ConfidenceThreshold)
	}

	if _, ok := cfg.GetNERProvider("medner"); !ok {
		t.Error("expected medner NER provider")
	}
	if cfg.Defaults.DocumentTimeout != 120*time.Second {
		t.Errorf("expected 120s document timeout, got %v", cfg.Defaults.DocumentTimeout)
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		os.Setenv("TEST_API_KEY", "secret123")
		defer os.Unsetenv("TEST_API_KEY")

		result := ResolveEnvVars("${TEST_API_KEY}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func TestToProviderRegistryConfig(t *testing.T) {
	os.Setenv("TEST_VISION_KEY", "vk-123")
	defer os.Unsetenv("TEST_VISION_KEY")

	cfg := &Config{
		OCRProviders: map[string]OCRProviderCfg{
			"vision": {
				Type:                "vision",
				APIKey:              "${TEST_VISION_KEY}",
				RateLimit:           10,
				ConfidenceThreshold: 0.7,
				LanguageHints:       []string{"ja", "en"},
				Enabled:             true,
			},
		},
		NERProviders: map[string]NERProviderCfg{
			"medner": {
				Type:    "medner",
				APIKey:  "literal-key",
				Enabled: true,
			},
		},
	}

	rc := cfg.ToProviderRegistryConfig()

	ocr, ok := rc.OCRProviders["vision"]
	if !ok {
		t.Fatal("expected vision in registry config")
	}
	if ocr.APIKey != "vk-123" {
		t.Errorf("expected resolved API key vk-123, got %s", ocr.APIKey)
	}
	if len(ocr.LanguageHints) != 2 {
		t.Errorf("expected language hints carried over, got %v", ocr.LanguageHints)
	}

	ner, ok := rc.NERProviders["medner"]
	if !ok {
		t.Fatal("expected medner in registry config")
	}
	if ner.APIKey != "literal-key" {
		t.Errorf("literal API key should pass through, got %s", ner.APIKey)
	}
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configFile := filepath.Join(tmpDir, "config.yaml")

		configContent := `
defaults:
  ocr_provider: "vision"
  ner_provider: "llm"
  max_workers: 2
`
		if err := os.WriteFile(configFile, []byte(configContent), 0644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Defaults.NERProvider != "llm" {
			t.Errorf("expected llm, got %s", cfg.Defaults.NERProvider)
		}
		if cfg.Defaults.MaxWorkers != 2 {
			t.Errorf("expected 2 workers, got %d", cfg.Defaults.MaxWorkers)
		}
	})
}

func TestManager_OnChange(t *testing.T) {
	tmpDir := t.TempDir()
	configFile := filepath.Join(tmpDir, "config.yaml")

	if err := os.WriteFile(configFile, []byte("defaults:\n  ocr_provider: vision\n"), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	mgr.OnChange(func(cfg *Config) {})
	mgr.OnChange(func(cfg *Config) {})

	mgr.mu.RLock()
	if len(mgr.callbacks) != 2 {
		t.Errorf("expected 2 callbacks, got %d", len(mgr.callbacks))
	}
	mgr.mu.RUnlock()
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read written config: %v", err)
	}
	content := string(data)
	if len(content) == 0 {
		t.Fatal("written config is empty")
	}
	for _, want := range []string{"ocr_providers", "ner_providers", "${VISION_API_KEY}"} {
		if !strings.Contains(content, want) {
			t.Errorf("written config missing %q", want)
		}
	}
}

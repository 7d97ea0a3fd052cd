package providers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/ktanaka/medscan/internal/canonical"
)

const (
	LLMNERName         = "llm"
	llmNERDefaultModel = "gpt-4o-mini"

	llmNERSystemPrompt = "You extract medical entities from OCR text of clinical documents. " +
		"Reply with a JSON object only, no prose and no code fences."

	llmNERPromptTemplate = `Extract medical entities from the following document text.
Classify each entity as one of: diagnosis, medication, test, other.
Return JSON of the form {"entities":[{"kind":"...","value":"...","confidence":0.0}]}.
Confidence must be between 0 and 1.

Text:
%s`
)

// llmNERSchema validates the model's structured reply before any entity
// is admitted into the canonical document.
const llmNERSchema = `{
	"type": "object",
	"required": ["entities"],
	"properties": {
		"entities": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["kind", "value"],
				"properties": {
					"kind": {"type": "string", "enum": ["diagnosis", "medication", "test", "other"]},
					"value": {"type": "string", "minLength": 1},
					"confidence": {"type": "number", "minimum": 0, "maximum": 1}
				}
			}
		}
	}
}`

// LLMNERConfig holds configuration for the LLM NER client.
type LLMNERConfig struct {
	APIKey     string
	Model      string
	BaseURL    string // Any OpenAI-compatible endpoint
	Timeout    time.Duration
	RateLimit  float64 // Requests per second
	HTTPClient *http.Client
}

// LLMNERClient implements NERProvider with a chat model behind an
// OpenAI-compatible API. The model's JSON reply is validated against a
// fixed schema; replies that fail validation are rejected rather than
// partially accepted.
type LLMNERClient struct {
	model     string
	rateLimit float64
	client    openai.Client
	schema    *jsonschema.Schema
}

// NewLLMNERClient creates a new LLM NER client.
func NewLLMNERClient(cfg LLMNERConfig) (*LLMNERClient, error) {
	if cfg.Model == "" {
		cfg.Model = llmNERDefaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 2.0
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0), // retries belong to the pipeline
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	schema, err := jsonschema.CompileString("llmner.json", llmNERSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to compile entity schema: %w", err)
	}

	return &LLMNERClient{
		model:     cfg.Model,
		rateLimit: cfg.RateLimit,
		client:    openai.NewClient(opts...),
		schema:    schema,
	}, nil
}

// Name returns the provider identifier.
func (c *LLMNERClient) Name() string {
	return LLMNERName
}

// RequestsPerSecond returns the rate limit.
func (c *LLMNERClient) RequestsPerSecond() float64 {
	return c.rateLimit
}

// RunNER asks the model for entities in one chunk of page text.
func (c *LLMNERClient) RunNER(ctx context.Context, text string) ([]canonical.Entity, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &AdapterError{Kind: InvalidInput, Provider: LLMNERName,
			Err: fmt.Errorf("empty text")}
	}

	resp, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(llmNERSystemPrompt),
			openai.UserMessage(fmt.Sprintf(llmNERPromptTemplate, text)),
		},
		Temperature: openai.Float(0),
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no choices in completion response")
	}

	return c.parseEntities(resp.Choices[0].Message.Content)
}

// parseEntities validates and converts the model reply.
func (c *LLMNERClient) parseEntities(content string) ([]canonical.Entity, error) {
	content = stripCodeFences(content)

	var doc any
	if err := json.Unmarshal([]byte(content), &doc); err != nil {
		return nil, fmt.Errorf("model reply is not valid JSON: %w", err)
	}
	if err := c.schema.Validate(doc); err != nil {
		return nil, fmt.Errorf("model reply failed schema validation: %w", err)
	}

	obj := doc.(map[string]any)
	raw := obj["entities"].([]any)

	entities := make([]canonical.Entity, 0, len(raw))
	for _, item := range raw {
		m := item.(map[string]any)
		e := canonical.Entity{
			Kind:  canonical.EntityKind(m["kind"].(string)),
			Value: m["value"].(string),
		}
		if conf, ok := m["confidence"].(float64); ok {
			e.Confidence = clampConfidence(conf)
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// stripCodeFences removes a markdown fence if the model added one anyway.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// Verify interface
var _ NERProvider = (*LLMNERClient)(nil)

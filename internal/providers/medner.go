package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ktanaka/medscan/internal/canonical"
)

const (
	MedNERName = "medner"

	// Vendor limit on a single detect-entities request.
	medNERMaxTextBytes = 20000
)

// medNERKinds is the fixed vendor category → canonical kind table.
// Categories not listed here map to Other.
var medNERKinds = map[string]canonical.EntityKind{
	"MEDICAL_CONDITION":        canonical.KindDiagnosis,
	"MEDICATION":               canonical.KindMedication,
	"TEST_TREATMENT_PROCEDURE": canonical.KindTest,
}

// MedNERConfig holds configuration for the medical NER client.
type MedNERConfig struct {
	Endpoint   string // Vendor detect-entities endpoint, required
	APIKey     string
	Timeout    time.Duration
	RateLimit  float64 // Requests per second
	HTTPClient *http.Client
}

// MedNERClient implements NERProvider against a Comprehend-Medical-style
// detect-entities endpoint.
type MedNERClient struct {
	endpoint  string
	apiKey    string
	rateLimit float64
	client    *http.Client
}

// NewMedNERClient creates a new medical NER client.
func NewMedNERClient(cfg MedNERConfig) *MedNERClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 5.0
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &MedNERClient{
		endpoint:  cfg.Endpoint,
		apiKey:    cfg.APIKey,
		rateLimit: cfg.RateLimit,
		client:    client,
	}
}

// Name returns the provider identifier.
func (c *MedNERClient) Name() string {
	return MedNERName
}

// RequestsPerSecond returns the rate limit.
func (c *MedNERClient) RequestsPerSecond() float64 {
	return c.rateLimit
}

// RunNER detects medical entities in one chunk of page text. Page
// attribution is the caller's job: the pipeline invokes NER per page and
// stamps SourcePage on the returned entities.
func (c *MedNERClient) RunNER(ctx context.Context, text string) ([]canonical.Entity, error) {
	if text == "" {
		return nil, &AdapterError{Kind: InvalidInput, Provider: MedNERName,
			Err: fmt.Errorf("empty text")}
	}
	if len(text) > medNERMaxTextBytes {
		return nil, &AdapterError{Kind: InvalidInput, Provider: MedNERName,
			Err: fmt.Errorf("text exceeds %d bytes", medNERMaxTextBytes)}
	}

	reqBody := medNERRequest{Text: text}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &AdapterError{Kind: RateLimited, Provider: MedNERName,
			Err: fmt.Errorf("status 429: %s", string(respBody))}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("medical NER error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var nerResp medNERResponse
	if err := json.Unmarshal(respBody, &nerResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	entities := make([]canonical.Entity, 0, len(nerResp.Entities))
	for _, e := range nerResp.Entities {
		kind, ok := medNERKinds[e.Category]
		if !ok {
			kind = canonical.KindOther
		}
		entities = append(entities, canonical.Entity{
			Kind:       kind,
			Value:      e.Text,
			Confidence: clampConfidence(e.Score),
		})
	}
	return entities, nil
}

// Medical NER wire types, DetectEntitiesV2 response shape.

type medNERRequest struct {
	Text string `json:"Text"`
}

type medNERResponse struct {
	Entities []medNEREntity `json:"Entities"`
}

type medNEREntity struct {
	Text     string  `json:"Text"`
	Category string  `json:"Category"`
	Type     string  `json:"Type"`
	Score    float64 `json:"Score"`
}

// Verify interface
var _ NERProvider = (*MedNERClient)(nil)

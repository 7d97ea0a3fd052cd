package providers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ktanaka/medscan/internal/canonical"
)

const (
	VisionOCRName    = "vision"
	VisionOCRBaseURL = "https://vision.googleapis.com/v1"

	// Blocks below this confidence are dropped unless overridden in config.
	visionDefaultConfidenceThreshold = 0.7
)

// visionDefaultLanguageHints covers the Japanese medical documents this
// pipeline was built for, with English fallback.
var visionDefaultLanguageHints = []string{"ja", "en"}

// VisionOCRConfig holds configuration for the Vision OCR client.
type VisionOCRConfig struct {
	APIKey              string
	BaseURL             string
	Timeout             time.Duration
	ConfidenceThreshold float64  // Blocks below this are dropped (default 0.7)
	LanguageHints       []string // Default ["ja", "en"]
	RateLimit           float64  // Requests per second
	HTTPClient          *http.Client
}

// VisionOCRClient implements OCRProvider against a Cloud-Vision-style
// document text detection endpoint.
type VisionOCRClient struct {
	apiKey              string
	baseURL             string
	confidenceThreshold float64
	languageHints       []string
	rateLimit           float64
	client              *http.Client
}

// NewVisionOCRClient creates a new Vision OCR client.
func NewVisionOCRClient(cfg VisionOCRConfig) *VisionOCRClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = VisionOCRBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = visionDefaultConfidenceThreshold
	}
	if len(cfg.LanguageHints) == 0 {
		cfg.LanguageHints = visionDefaultLanguageHints
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 10.0
	}

	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}

	return &VisionOCRClient{
		apiKey:              cfg.APIKey,
		baseURL:             cfg.BaseURL,
		confidenceThreshold: cfg.ConfidenceThreshold,
		languageHints:       cfg.LanguageHints,
		rateLimit:           cfg.RateLimit,
		client:              client,
	}
}

// Name returns the provider identifier.
func (c *VisionOCRClient) Name() string {
	return VisionOCRName
}

// RequestsPerSecond returns the rate limit.
func (c *VisionOCRClient) RequestsPerSecond() float64 {
	return c.rateLimit
}

// RunOCR extracts text from one page image via document text detection.
func (c *VisionOCRClient) RunOCR(ctx context.Context, image []byte, pageNum int) (*canonical.PageText, error) {
	if len(image) == 0 {
		return nil, &AdapterError{Kind: InvalidInput, Provider: VisionOCRName,
			Err: fmt.Errorf("empty page image")}
	}

	reqBody := visionAnnotateRequest{
		Requests: []visionImageRequest{{
			Image: visionImage{Content: base64.StdEncoding.EncodeToString(image)},
			Features: []visionFeature{
				{Type: "DOCUMENT_TEXT_DETECTION"},
			},
			ImageContext: &visionImageContext{LanguageHints: c.languageHints},
		}},
	}

	resp, err := c.doRequest(ctx, "/images:annotate", reqBody)
	if err != nil {
		return nil, err
	}

	if len(resp.Responses) == 0 {
		return nil, fmt.Errorf("empty annotate response")
	}
	r := resp.Responses[0]
	if r.Error != nil {
		return nil, fmt.Errorf("vision error %d: %s", r.Error.Code, r.Error.Message)
	}

	page := &canonical.PageText{PageNumber: pageNum}
	if r.FullTextAnnotation == nil {
		// Blank page: valid, just no text.
		return page, nil
	}
	page.Text = r.FullTextAnnotation.Text

	for _, p := range r.FullTextAnnotation.Pages {
		for _, block := range p.Blocks {
			if block.Confidence < c.confidenceThreshold {
				continue
			}
			frag := block.text()
			if frag == "" {
				continue
			}
			x, y, w, h := block.BoundingBox.rect()
			page.Boxes = append(page.Boxes, canonical.BoundingBox{
				Fragment: frag,
				X:        x,
				Y:        y,
				Width:    w,
				Height:   h,
			})
		}
	}

	return page, nil
}

// doRequest posts a JSON body to the annotate endpoint.
func (c *VisionOCRClient) doRequest(ctx context.Context, path string, body any) (*visionAnnotateResponse, error) {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + path
	if c.apiKey != "" {
		url += "?key=" + c.apiKey
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

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
		return nil, &AdapterError{Kind: RateLimited, Provider: VisionOCRName,
			Err: fmt.Errorf("status 429: %s", string(respBody))}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vision OCR error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var annotateResp visionAnnotateResponse
	if err := json.Unmarshal(respBody, &annotateResp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return &annotateResp, nil
}

// Vision API wire types. Field coverage is limited to what the adapter reads.

type visionAnnotateRequest struct {
	Requests []visionImageRequest `json:"requests"`
}

type visionImageRequest struct {
	Image        visionImage         `json:"image"`
	Features     []visionFeature     `json:"features"`
	ImageContext *visionImageContext `json:"imageContext,omitempty"`
}

type visionImage struct {
	Content string `json:"content"`
}

type visionFeature struct {
	Type string `json:"type"`
}

type visionImageContext struct {
	LanguageHints []string `json:"languageHints,omitempty"`
}

type visionAnnotateResponse struct {
	Responses []visionImageResponse `json:"responses"`
}

type visionImageResponse struct {
	FullTextAnnotation *visionTextAnnotation `json:"fullTextAnnotation,omitempty"`
	Error              *visionStatus         `json:"error,omitempty"`
}

type visionStatus struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type visionTextAnnotation struct {
	Text  string       `json:"text"`
	Pages []visionPage `json:"pages"`
}

type visionPage struct {
	Blocks []visionBlock `json:"blocks"`
}

type visionBlock struct {
	Confidence  float64           `json:"confidence"`
	BoundingBox visionBoundingBox `json:"boundingBox"`
	Paragraphs  []visionParagraph `json:"paragraphs"`
}

type visionParagraph struct {
	Words []visionWord `json:"words"`
}

type visionWord struct {
	Symbols []visionSymbol `json:"symbols"`
}

type visionSymbol struct {
	Text string `json:"text"`
}

type visionBoundingBox struct {
	Vertices []visionVertex `json:"vertices"`
}

type visionVertex struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// text assembles the block's words, space separated.
func (b visionBlock) text() string {
	var parts []string
	for _, p := range b.Paragraphs {
		for _, w := range p.Words {
			var word strings.Builder
			for _, s := range w.Symbols {
				word.WriteString(s.Text)
			}
			if word.Len() > 0 {
				parts = append(parts, word.String())
			}
		}
	}
	return strings.Join(parts, " ")
}

// rect converts vertex coordinates to an absolute-pixel rectangle.
func (bb visionBoundingBox) rect() (x, y, w, h float64) {
	if len(bb.Vertices) == 0 {
		return 0, 0, 0, 0
	}
	minX, minY := bb.Vertices[0].X, bb.Vertices[0].Y
	maxX, maxY := minX, minY
	for _, v := range bb.Vertices[1:] {
		if v.X < minX {
			minX = v.X
		}
		if v.Y < minY {
			minY = v.Y
		}
		if v.X > maxX {
			maxX = v.X
		}
		if v.Y > maxY {
			maxY = v.Y
		}
	}
	return minX, minY, maxX - minX, maxY - minY
}

// Verify interface
var _ OCRProvider = (*VisionOCRClient)(nil)

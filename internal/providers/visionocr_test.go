package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const visionFixture = `{
	"responses": [{
		"fullTextAnnotation": {
			"text": "Lisinopril 10mg daily\nHbA1c 6.2%",
			"pages": [{
				"blocks": [
					{
						"confidence": 0.96,
						"boundingBox": {"vertices": [{"x": 10, "y": 20}, {"x": 210, "y": 20}, {"x": 210, "y": 48}, {"x": 10, "y": 48}]},
						"paragraphs": [{"words": [
							{"symbols": [{"text": "L"}, {"text": "i"}, {"text": "s"}, {"text": "i"}, {"text": "n"}, {"text": "o"}, {"text": "p"}, {"text": "r"}, {"text": "i"}, {"text": "l"}]},
							{"symbols": [{"text": "1"}, {"text": "0"}, {"text": "m"}, {"text": "g"}]}
						]}]
					},
					{
						"confidence": 0.42,
						"boundingBox": {"vertices": [{"x": 0, "y": 0}, {"x": 5, "y": 0}, {"x": 5, "y": 5}, {"x": 0, "y": 5}]},
						"paragraphs": [{"words": [{"symbols": [{"text": "?"}]}]}]
					}
				]
			}]
		}
	}]
}`

func TestVisionOCRClient_RunOCR(t *testing.T) {
	t.Run("successful OCR", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/images:annotate" {
				t.Errorf("unexpected path: %s", r.URL.Path)
			}
			if r.Method != "POST" {
				t.Errorf("unexpected method: %s", r.Method)
			}
			if key := r.URL.Query().Get("key"); key != "test-key" {
				t.Errorf("unexpected key: %s", key)
			}
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(visionFixture))
		}))
		defer server.Close()

		client := NewVisionOCRClient(VisionOCRConfig{
			APIKey:  "test-key",
			BaseURL: server.URL,
		})

		page, err := client.RunOCR(context.Background(), []byte("fake-png"), 3)
		if err != nil {
			t.Fatalf("RunOCR() error = %v", err)
		}
		if page.PageNumber != 3 {
			t.Errorf("PageNumber = %d, want 3", page.PageNumber)
		}
		if page.Text != "Lisinopril 10mg daily\nHbA1c 6.2%" {
			t.Errorf("Text = %q", page.Text)
		}

		// Low confidence block is filtered by the default 0.7 threshold.
		if len(page.Boxes) != 1 {
			t.Fatalf("boxes = %d, want 1", len(page.Boxes))
		}
		box := page.Boxes[0]
		if box.Fragment != "Lisinopril 10mg" {
			t.Errorf("Fragment = %q", box.Fragment)
		}
		if box.X != 10 || box.Y != 20 || box.Width != 200 || box.Height != 28 {
			t.Errorf("rect = (%v,%v,%v,%v)", box.X, box.Y, box.Width, box.Height)
		}
	})

	t.Run("blank page", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"responses": [{}]}`))
		}))
		defer server.Close()

		client := NewVisionOCRClient(VisionOCRConfig{BaseURL: server.URL})
		page, err := client.RunOCR(context.Background(), []byte("fake-png"), 1)
		if err != nil {
			t.Fatalf("RunOCR() error = %v", err)
		}
		if page.Text != "" || len(page.Boxes) != 0 {
			t.Errorf("blank page = %+v", page)
		}
	})

	t.Run("empty image rejected", func(t *testing.T) {
		client := NewVisionOCRClient(VisionOCRConfig{BaseURL: "http://unused"})
		_, err := client.RunOCR(context.Background(), nil, 1)
		if !IsKind(err, InvalidInput) {
			t.Errorf("error = %v, want InvalidInput", err)
		}
	})

	t.Run("rate limited", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}))
		defer server.Close()

		client := NewVisionOCRClient(VisionOCRConfig{BaseURL: server.URL})
		_, err := client.RunOCR(context.Background(), []byte("img"), 1)
		if !IsKind(err, RateLimited) {
			t.Errorf("error = %v, want RateLimited", err)
		}
		if !Retryable(err) {
			t.Error("rate limit errors should be retryable")
		}
	})

	t.Run("server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := NewVisionOCRClient(VisionOCRConfig{BaseURL: server.URL})
		_, err := client.RunOCR(context.Background(), []byte("img"), 1)
		if err == nil {
			t.Fatal("expected error")
		}
		if !Retryable(err) {
			t.Error("5xx errors should be retryable")
		}
	})

	t.Run("vendor error in body", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"responses": [{"error": {"code": 7, "message": "permission denied"}}]}`))
		}))
		defer server.Close()

		client := NewVisionOCRClient(VisionOCRConfig{BaseURL: server.URL})
		_, err := client.RunOCR(context.Background(), []byte("img"), 1)
		if err == nil {
			t.Fatal("expected error")
		}
	})
}

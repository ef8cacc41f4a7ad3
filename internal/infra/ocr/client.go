// Package ocr is the thin HTTP adapter for the external text-extraction
// vendor. The dispatch core treats it as opaque; every call goes through
// the retry executor.
package ocr

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ledgerly/dispatch/internal/core/domain"
)

// Config holds vendor endpoint configuration.
type Config struct {
	URL     string        `yaml:"url"`
	APIKey  string        `yaml:"api_key"`
	Timeout time.Duration `yaml:"timeout"`
}

// Client calls the vendor's text-detection endpoint.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a vendor client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type detectRequest struct {
	Image     string   `json:"image"`
	Languages []string `json:"language_hints,omitempty"`
	Features  []string `json:"features,omitempty"`
	Tier      string   `json:"tier,omitempty"`
}

type detectResponse struct {
	Text        string    `json:"text"`
	Confidences []float64 `json:"per_block_confidences"`
	Pages       int       `json:"pages"`
}

// DetectText extracts text from the image via the vendor API.
func (c *Client) DetectText(ctx context.Context, image []byte, opts domain.OCROptions) (*domain.OCRResult, error) {
	payload, err := json.Marshal(detectRequest{
		Image:     base64.StdEncoding.EncodeToString(image),
		Languages: opts.Languages,
		Features:  opts.Features,
		Tier:      string(opts.Tier),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect text call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(body))
	}

	var out detectResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	return &domain.OCRResult{
		Text:             out.Text,
		Confidence:       meanConfidence(out.Confidences),
		BlockConfidences: out.Confidences,
		Pages:            out.Pages,
		DetectedAt:       time.Now(),
	}, nil
}

func meanConfidence(confidences []float64) float64 {
	if len(confidences) == 0 {
		return 0
	}
	var sum float64
	for _, c := range confidences {
		sum += c
	}
	return sum / float64(len(confidences))
}

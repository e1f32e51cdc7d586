package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// GeminiConfig holds configuration for the Gemini backend.
type GeminiConfig struct {
	APIKey      string
	Model       string
	Temperature float64
	Timeout     time.Duration
	BaseURL     string
}

// DefaultGeminiConfig returns the defaults used for event enrichment.
func DefaultGeminiConfig() GeminiConfig {
	return GeminiConfig{
		Model:       "gemini-2.5-flash",
		Temperature: 0.2,
		Timeout:     45 * time.Second,
		BaseURL:     geminiBaseURL,
	}
}

// GeminiClient calls generateContent with a JSON response mime type.
type GeminiClient struct {
	httpClient *http.Client
	config     GeminiConfig
	logger     *slog.Logger
}

// NewGeminiClient creates a client for config.
func NewGeminiClient(config GeminiConfig, logger *slog.Logger) *GeminiClient {
	if logger == nil {
		logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = geminiBaseURL
	}
	return &GeminiClient{
		httpClient: &http.Client{Timeout: config.Timeout},
		config:     config,
		logger:     logger.With("component", "gemini_client"),
	}
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiGenerationConfig struct {
	ResponseMimeType string  `json:"response_mime_type"`
	Temperature      float64 `json:"temperature"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
	UsageMetadata *struct {
		PromptTokenCount     int `json:"promptTokenCount"`
		CandidatesTokenCount int `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
}

func (c *GeminiClient) Complete(ctx context.Context, prompt string) (*Completion, error) {
	body, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
		GenerationConfig: geminiGenerationConfig{
			ResponseMimeType: "application/json",
			Temperature:      c.config.Temperature,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode gemini request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s",
		c.config.BaseURL, url.PathEscape(c.config.Model), url.QueryEscape(c.config.APIKey))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build gemini request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		// The URL carries the API key; keep it out of the error text.
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			return nil, fmt.Errorf("gemini request failed: %w", urlErr.Err)
		}
		return nil, fmt.Errorf("gemini request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read gemini response: %w", err)
	}
	c.logger.Debug("gemini call complete",
		"model", c.config.Model,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("gemini API request failed with status %d: %s", resp.StatusCode, raw)
	}

	var decoded geminiResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, fmt.Errorf("failed to decode gemini response: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 ||
		decoded.Candidates[0].Content.Parts[0].Text == "" {
		return nil, fmt.Errorf("%w: %s", ErrEmptyResponse, raw)
	}

	completion := &Completion{Content: decoded.Candidates[0].Content.Parts[0].Text}
	if decoded.UsageMetadata != nil {
		promptTokens := decoded.UsageMetadata.PromptTokenCount
		completionTokens := decoded.UsageMetadata.CandidatesTokenCount
		completion.PromptTokens = &promptTokens
		completion.CompletionTokens = &completionTokens
	}
	return completion, nil
}

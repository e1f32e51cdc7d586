package enrichment

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const jsonOnlySystemPrompt = "Return ONLY valid JSON. No markdown. No extra keys."

// OpenAIConfig holds configuration for the OpenAI backend.
type OpenAIConfig struct {
	APIKey      string
	Model       string
	Temperature float32
	Timeout     time.Duration
	// BaseURL overrides the API endpoint, mainly for tests.
	BaseURL string
}

// DefaultOpenAIConfig returns the defaults used for event enrichment.
func DefaultOpenAIConfig() OpenAIConfig {
	return OpenAIConfig{
		Model:       openai.GPT4oMini,
		Temperature: 0.2,
		Timeout:     45 * time.Second,
	}
}

// OpenAIClient completes prompts with the chat completions API in JSON mode.
type OpenAIClient struct {
	client *openai.Client
	config OpenAIConfig
	logger *slog.Logger
}

// NewOpenAIClient creates a client for config.
func NewOpenAIClient(config OpenAIConfig, logger *slog.Logger) *OpenAIClient {
	if logger == nil {
		logger = slog.Default()
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
		logger: logger.With("component", "openai_client"),
	}
}

func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (*Completion, error) {
	apiCtx := ctx
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		apiCtx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(apiCtx, openai.ChatCompletionRequest{
		Model:       c.config.Model,
		Temperature: c.config.Temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: jsonOnlySystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	c.logger.Debug("openai call complete",
		"model", c.config.Model,
		"duration_ms", time.Since(start).Milliseconds(),
		"success", err == nil,
	)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API call failed: %w", err)
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, ErrEmptyResponse
	}

	promptTokens := resp.Usage.PromptTokens
	completionTokens := resp.Usage.CompletionTokens
	return &Completion{
		Content:          resp.Choices[0].Message.Content,
		PromptTokens:     &promptTokens,
		CompletionTokens: &completionTokens,
	}, nil
}

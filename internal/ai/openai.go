// ABOUTME: OpenAI-backed Gateway implementation using github.com/sashabaranov/go-openai
// ABOUTME: Works against api.openai.com or any OpenAI-compatible base URL

package ai

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/2389/persona-bot/internal/config"
)

// maxImageBytes caps downloads of generated images.
const maxImageBytes = 20 << 20

// OpenAIClient implements Gateway on the OpenAI chat and image APIs.
type OpenAIClient struct {
	client      *openai.Client
	httpClient  *http.Client
	model       string
	visionModel string
	imageModel  string
	imageSize   string
	timeout     time.Duration
	logger      *slog.Logger
}

// NewClient creates an OpenAIClient from the ai config section.
func NewClient(cfg config.AIConfig, logger *slog.Logger) *OpenAIClient {
	httpClient := &http.Client{}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	clientCfg.HTTPClient = httpClient

	return &OpenAIClient{
		client:      openai.NewClientWithConfig(clientCfg),
		httpClient:  httpClient,
		model:       cfg.Model,
		visionModel: cfg.VisionModel,
		imageModel:  cfg.ImageModel,
		imageSize:   cfg.ImageSize,
		timeout:     cfg.RequestTimeout,
		logger:      logger.With("component", "ai"),
	}
}

// New returns a MockGateway when cfg.Mock is set, otherwise an OpenAIClient.
func New(cfg config.AIConfig, logger *slog.Logger) Gateway {
	if cfg.Mock {
		logger.Warn("ai.mock enabled, using canned AI responses")
		return NewMockGateway()
	}
	return NewClient(cfg, logger)
}

func (c *OpenAIClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.timeout)
}

// Complete sends a single user-role prompt.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}

	text, err := firstChoice(resp)
	if err != nil {
		return "", err
	}

	c.logger.Debug("chat completion done",
		"model", c.model,
		"duration", time.Since(start),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
	)
	return text, nil
}

// DescribeImage sends the image inline as a base64 data URL.
func (c *OpenAIClient) DescribeImage(ctx context.Context, image []byte, mimeType, question string) (string, error) {
	if question == "" {
		question = DefaultImageQuestion
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(image)
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	dataURL := "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(image)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.visionModel,
		Messages: []openai.ChatCompletionMessage{
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{Type: openai.ChatMessagePartTypeText, Text: question},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    dataURL,
							Detail: openai.ImageURLDetailAuto,
						},
					},
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("vision analysis: %w", err)
	}

	c.logger.Debug("vision analysis done", "model", c.visionModel, "image_bytes", len(image))
	return firstChoice(resp)
}

// GenerateImage requests a single image and returns its URL.
func (c *OpenAIClient) GenerateImage(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	resp, err := c.client.CreateImage(ctx, openai.ImageRequest{
		Prompt:         prompt,
		Model:          c.imageModel,
		Size:           c.imageSize,
		N:              1,
		ResponseFormat: openai.CreateImageResponseFormatURL,
	})
	if err != nil {
		return "", fmt.Errorf("image generation: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("image generated", "model", c.imageModel, "size", c.imageSize)
	return resp.Data[0].URL, nil
}

// FetchImage downloads a generated image over plain HTTP.
func (c *OpenAIClient) FetchImage(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating image request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("downloading image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("downloading image: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("image exceeds %d bytes", maxImageBytes)
	}
	return data, nil
}

func firstChoice(resp openai.ChatCompletionResponse) (string, error) {
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// Ensure OpenAIClient implements Gateway interface
var _ Gateway = (*OpenAIClient)(nil)

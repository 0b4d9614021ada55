// ABOUTME: Gateway interface for the generative AI service used by persona-bot
// ABOUTME: Covers text completion, vision analysis, image generation and image download

package ai

import (
	"context"
	"errors"
)

// DefaultImageQuestion is sent with a photo that has no caption.
const DefaultImageQuestion = "Describe this image in detail."

// ErrEmptyResponse is returned when the service answers without content.
var ErrEmptyResponse = errors.New("empty response from AI service")

// Gateway is the set of AI calls the conversation flows consume.
// Every call is a single request/response; nothing is retried.
type Gateway interface {
	// Complete sends one user-role prompt and returns the plain text answer.
	Complete(ctx context.Context, prompt string) (string, error)

	// DescribeImage asks a vision model about an image. An empty question
	// falls back to DefaultImageQuestion.
	DescribeImage(ctx context.Context, image []byte, mimeType, question string) (string, error)

	// GenerateImage creates an image from a prompt and returns its URL.
	GenerateImage(ctx context.Context, prompt string) (string, error)

	// FetchImage downloads a generated image.
	FetchImage(ctx context.Context, url string) ([]byte, error)
}

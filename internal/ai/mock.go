// ABOUTME: Mock Gateway implementation for testing and offline development
// ABOUTME: Records every call and returns canned or injected responses

package ai

import (
	"context"
	"fmt"
	"sync"
)

// MockCall records one Gateway invocation.
type MockCall struct {
	Method   string
	Prompt   string // Complete and GenerateImage prompt, DescribeImage question
	Image    []byte
	MIMEType string
}

// MockGateway is a Gateway that never touches the network.
// Set the *Err fields to make the matching call fail.
type MockGateway struct {
	mu    sync.Mutex
	calls []MockCall

	CompleteErr      error
	DescribeErr      error
	GenerateErr      error
	FetchErr         error
	CompleteResponse string // empty = echo of the prompt tail
	ImageURL         string
	ImageData        []byte
}

// NewMockGateway creates a MockGateway with canned image responses.
func NewMockGateway() *MockGateway {
	return &MockGateway{
		ImageURL: "https://images.invalid/mock.png",
		// 1x1 transparent PNG
		ImageData: []byte{
			0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
			0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
			0x08, 0x06, 0x00, 0x00, 0x00, 0x1f, 0x15, 0xc4, 0x89, 0x00, 0x00, 0x00,
			0x0d, 0x49, 0x44, 0x41, 0x54, 0x78, 0x9c, 0x63, 0x00, 0x01, 0x00, 0x00,
			0x05, 0x00, 0x01, 0x0d, 0x0a, 0x2d, 0xb4, 0x00, 0x00, 0x00, 0x00, 0x49,
			0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
		},
	}
}

func (m *MockGateway) record(call MockCall) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, call)
}

// Calls returns a copy of the recorded calls.
func (m *MockGateway) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallsTo returns the recorded calls of one method.
func (m *MockGateway) CallsTo(method string) []MockCall {
	var out []MockCall
	for _, c := range m.Calls() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

// Complete returns CompleteResponse or a short echo.
func (m *MockGateway) Complete(ctx context.Context, prompt string) (string, error) {
	m.record(MockCall{Method: "Complete", Prompt: prompt})
	if m.CompleteErr != nil {
		return "", m.CompleteErr
	}
	if m.CompleteResponse != "" {
		return m.CompleteResponse, nil
	}
	return fmt.Sprintf("(mock) received %d characters", len(prompt)), nil
}

// DescribeImage returns a canned description.
func (m *MockGateway) DescribeImage(ctx context.Context, image []byte, mimeType, question string) (string, error) {
	if question == "" {
		question = DefaultImageQuestion
	}
	m.record(MockCall{Method: "DescribeImage", Prompt: question, Image: image, MIMEType: mimeType})
	if m.DescribeErr != nil {
		return "", m.DescribeErr
	}
	return fmt.Sprintf("(mock) an image of %d bytes", len(image)), nil
}

// GenerateImage returns ImageURL.
func (m *MockGateway) GenerateImage(ctx context.Context, prompt string) (string, error) {
	m.record(MockCall{Method: "GenerateImage", Prompt: prompt})
	if m.GenerateErr != nil {
		return "", m.GenerateErr
	}
	return m.ImageURL, nil
}

// FetchImage returns ImageData.
func (m *MockGateway) FetchImage(ctx context.Context, url string) ([]byte, error) {
	m.record(MockCall{Method: "FetchImage", Prompt: url})
	if m.FetchErr != nil {
		return nil, m.FetchErr
	}
	return m.ImageData, nil
}

// Ensure MockGateway implements Gateway interface
var _ Gateway = (*MockGateway)(nil)

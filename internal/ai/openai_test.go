// ABOUTME: Tests for the OpenAI Gateway against an httptest server
// ABOUTME: Verifies request shapes for chat, vision and image calls plus error mapping

package ai

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/persona-bot/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeOpenAI captures the last decoded request body per path.
type fakeOpenAI struct {
	t        *testing.T
	bodies   map[string]map[string]any
	status   int
	chatText string
	imageURL string
}

func newFakeOpenAI(t *testing.T) (*fakeOpenAI, *httptest.Server) {
	f := &fakeOpenAI{
		t:        t,
		bodies:   make(map[string]map[string]any),
		status:   http.StatusOK,
		chatText: "Hello from the model",
	}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	f.imageURL = srv.URL + "/files/generated.png"
	return f, srv
}

func (f *fakeOpenAI) serve(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		if r.URL.Path != "/files/generated.png" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("PNGDATA"))
		return
	}

	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		f.t.Errorf("decoding request body: %v", err)
	}
	f.bodies[r.URL.Path] = body

	w.Header().Set("Content-Type", "application/json")
	if f.status != http.StatusOK {
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(`{"error":{"message":"quota exceeded","type":"insufficient_quota"}}`))
		return
	}

	switch r.URL.Path {
	case "/v1/chat/completions":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"created": time.Now().Unix(),
			"model":   body["model"],
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": f.chatText},
				"finish_reason": "stop",
			}},
			"usage": map[string]any{"prompt_tokens": 5, "completion_tokens": 4, "total_tokens": 9},
		})
	case "/v1/images/generations":
		_ = json.NewEncoder(w).Encode(map[string]any{
			"created": time.Now().Unix(),
			"data":    []map[string]any{{"url": f.imageURL}},
		})
	default:
		http.NotFound(w, r)
	}
}

func newTestClient(srv *httptest.Server) *OpenAIClient {
	return NewClient(config.AIConfig{
		APIKey:         "sk-test",
		BaseURL:        srv.URL + "/v1",
		Model:          "gpt-test",
		VisionModel:    "gpt-vision-test",
		ImageModel:     "dall-e-test",
		ImageSize:      "256x256",
		RequestTimeout: 5 * time.Second,
	}, testLogger())
}

func TestOpenAIClient_Complete(t *testing.T) {
	fake, srv := newFakeOpenAI(t)
	client := newTestClient(srv)

	got, err := client.Complete(context.Background(), "You are concise.\nUser: hi\nAI:")
	require.NoError(t, err)
	assert.Equal(t, "Hello from the model", got)

	body := fake.bodies["/v1/chat/completions"]
	require.NotNil(t, body)
	assert.Equal(t, "gpt-test", body["model"])

	messages := body["messages"].([]any)
	require.Len(t, messages, 1)
	msg := messages[0].(map[string]any)
	assert.Equal(t, "user", msg["role"])
	assert.Equal(t, "You are concise.\nUser: hi\nAI:", msg["content"])
}

func TestOpenAIClient_CompleteEmptyChoice(t *testing.T) {
	fake, srv := newFakeOpenAI(t)
	fake.chatText = ""
	client := newTestClient(srv)

	_, err := client.Complete(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestOpenAIClient_CompleteAPIError(t *testing.T) {
	fake, srv := newFakeOpenAI(t)
	fake.status = http.StatusTooManyRequests
	client := newTestClient(srv)

	_, err := client.Complete(context.Background(), "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat completion")
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestOpenAIClient_DescribeImage(t *testing.T) {
	fake, srv := newFakeOpenAI(t)
	client := newTestClient(srv)

	_, err := client.DescribeImage(context.Background(), []byte("jpegbytes"), "image/jpeg", "what breed is this?")
	require.NoError(t, err)

	body := fake.bodies["/v1/chat/completions"]
	assert.Equal(t, "gpt-vision-test", body["model"])

	msg := body["messages"].([]any)[0].(map[string]any)
	parts := msg["content"].([]any)
	require.Len(t, parts, 2)

	text := parts[0].(map[string]any)
	assert.Equal(t, "text", text["type"])
	assert.Equal(t, "what breed is this?", text["text"])

	image := parts[1].(map[string]any)
	assert.Equal(t, "image_url", image["type"])
	url := image["image_url"].(map[string]any)["url"].(string)
	assert.True(t, strings.HasPrefix(url, "data:image/jpeg;base64,"), "got %q", url)
	assert.True(t, strings.HasSuffix(url, "anBlZ2J5dGVz"), "got %q", url)
}

func TestOpenAIClient_DescribeImageDefaultQuestion(t *testing.T) {
	fake, srv := newFakeOpenAI(t)
	client := newTestClient(srv)

	_, err := client.DescribeImage(context.Background(), []byte("x"), "image/png", "")
	require.NoError(t, err)

	msg := fake.bodies["/v1/chat/completions"]["messages"].([]any)[0].(map[string]any)
	text := msg["content"].([]any)[0].(map[string]any)
	assert.Equal(t, DefaultImageQuestion, text["text"])
}

func TestOpenAIClient_GenerateAndFetchImage(t *testing.T) {
	fake, srv := newFakeOpenAI(t)
	client := newTestClient(srv)

	url, err := client.GenerateImage(context.Background(), "a lighthouse at dusk")
	require.NoError(t, err)
	assert.Equal(t, fake.imageURL, url)

	body := fake.bodies["/v1/images/generations"]
	assert.Equal(t, "a lighthouse at dusk", body["prompt"])
	assert.Equal(t, "dall-e-test", body["model"])
	assert.Equal(t, "256x256", body["size"])
	assert.Equal(t, "url", body["response_format"])

	data, err := client.FetchImage(context.Background(), url)
	require.NoError(t, err)
	assert.Equal(t, []byte("PNGDATA"), data)
}

func TestOpenAIClient_FetchImageBadStatus(t *testing.T) {
	_, srv := newFakeOpenAI(t)
	client := newTestClient(srv)

	_, err := client.FetchImage(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 404")
}

func TestNew_MockMode(t *testing.T) {
	gw := New(config.AIConfig{Mock: true}, testLogger())
	_, ok := gw.(*MockGateway)
	assert.True(t, ok, "mock mode should return a MockGateway")

	gw = New(config.AIConfig{APIKey: "sk"}, testLogger())
	_, ok = gw.(*OpenAIClient)
	assert.True(t, ok)
}

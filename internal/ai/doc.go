// Package ai wraps the generative AI service persona-bot relays to.
//
// Gateway is the narrow interface the conversation flows consume: one text
// completion, one vision call, one image generation and a download of the
// generated image. OpenAIClient implements it with go-openai against
// api.openai.com or any OpenAI-compatible base URL. MockGateway records calls
// and returns canned data; it backs unit tests and the ai.mock setting.
//
// Calls are never retried. Each one runs under ai.request_timeout.
package ai

// Package adapter builds outbound HTTP request bodies for a backend, so the
// core executor never has to know a particular provider's payload shape or
// concatenate URLs itself.
package adapter

import (
	"encoding/json"
	"fmt"

	"github.com/basetenlabs/loadbench/internal/model"
)

// RequestBuilder turns a UserRequest into a URL + JSON body for one backend.
type RequestBuilder interface {
	// BuildURL returns the full URL to POST to; the core never appends a
	// path to a host without going through this method.
	BuildURL(baseURL string) string
	// BuildBody returns the JSON-encodable request body.
	BuildBody(req model.UserRequest) (any, error)
}

// OpenAIChatAdapter builds OpenAI-compatible /v1/chat/completions and
// /v1/embeddings bodies.
type OpenAIChatAdapter struct {
	Temperature  float64
	IgnoreEOS    bool
	IncludeUsage bool
}

func (a OpenAIChatAdapter) BuildURL(baseURL string) string {
	return baseURL
}

func (a OpenAIChatAdapter) BuildBody(req model.UserRequest) (any, error) {
	switch req.Kind {
	case model.RequestEmbeddings:
		return map[string]any{
			"model": req.Model,
			"input": req.Prompt,
		}, nil
	case model.RequestChat, model.RequestImageChat:
		content := buildContent(req)
		body := map[string]any{
			"model": req.Model,
			"messages": []map[string]any{
				{"role": "user", "content": content},
			},
			"max_tokens":  req.MaxTokens,
			"temperature": a.Temperature,
			"ignore_eos":  a.IgnoreEOS,
			"stream":      true,
		}
		if a.IncludeUsage {
			body["stream_options"] = map[string]any{"include_usage": true}
		}
		for k, v := range req.AdditionalParams {
			body[k] = v
		}
		return body, nil
	default:
		return nil, fmt.Errorf("adapter: unsupported request kind %q", req.Kind)
	}
}

func buildContent(req model.UserRequest) any {
	if req.Kind != model.RequestImageChat || len(req.ImageContent) == 0 {
		return req.Prompt
	}
	parts := make([]map[string]any, 0, len(req.ImageContent)+1)
	for _, url := range req.ImageContent {
		parts = append(parts, map[string]any{
			"type":      "image_url",
			"image_url": map[string]string{"url": url},
		})
	}
	if req.Prompt != "" {
		parts = append(parts, map[string]any{"type": "text", "text": req.Prompt})
	}
	return parts
}

// PlainPromptAdapter builds the non-chat `{prompt, ...}` shape some backends
// expect.
type PlainPromptAdapter struct {
	Temperature float64
}

func (a PlainPromptAdapter) BuildURL(baseURL string) string { return baseURL }

func (a PlainPromptAdapter) BuildBody(req model.UserRequest) (any, error) {
	body := map[string]any{
		"prompt":      req.Prompt,
		"max_tokens":  req.MaxTokens,
		"temperature": a.Temperature,
		"stream":      true,
	}
	for k, v := range req.AdditionalParams {
		body[k] = v
	}
	return body, nil
}

// RequestBuilderFor picks the default adapter for a target backend: the
// OpenAI-chat shape, or the plain-prompt shape when the backend expects a
// bare `{prompt, ...}` body.
func RequestBuilderFor(plainText bool) RequestBuilder {
	if plainText {
		return PlainPromptAdapter{}
	}
	return OpenAIChatAdapter{}
}

// Marshal is a small helper so executors don't each re-implement the same
// json.Marshal-or-wrap-error dance.
func Marshal(body any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("adapter: marshal body: %w", err)
	}
	return b, nil
}

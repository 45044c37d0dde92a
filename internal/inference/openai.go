package inference

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// OpenAIClient speaks the OpenAI-compatible API served by vLLM and the
// MaaS gateway.
type OpenAIClient struct {
	baseURL string
	token   string
	hc      *http.Client
}

// NewOpenAIClient builds a client rooted at baseURL (without the /v1
// suffix).
func NewOpenAIClient(baseURL string, opts ClientOptions) *OpenAIClient {
	return &OpenAIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   opts.BearerToken,
		hc:      newHTTPClient(opts),
	}
}

// Model is one entry of the /v1/models listing.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by,omitempty"`
}

type modelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// ListModels returns the models the server advertises.
func (c *OpenAIClient) ListModels(ctx context.Context) ([]Model, error) {
	var list modelList
	if err := doJSON(ctx, c.hc, c.token, http.MethodGet, c.baseURL+"/v1/models", nil, &list); err != nil {
		return nil, err
	}
	return list.Data, nil
}

// ChatMessage is a single turn of a chat completion request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the subset of the chat completions API the suites
// exercise.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

// ChatResponse mirrors the chat completions response shape.
type ChatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      ChatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Usage carries token accounting, asserted on by the MaaS billing
// tests.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatCompletion sends a chat completion request.
func (c *OpenAIClient) ChatCompletion(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	var resp ChatResponse
	if err := doJSON(ctx, c.hc, c.token, http.MethodPost, c.baseURL+"/v1/chat/completions", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat completion for model %s returned no choices", req.Model)
	}
	return &resp, nil
}

// CompletionRequest is the legacy text completions payload.
type CompletionRequest struct {
	Model     string `json:"model"`
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// CompletionResponse mirrors the completions response shape.
type CompletionResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Text         string `json:"text"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage Usage `json:"usage"`
}

// Completion sends a text completion request.
func (c *OpenAIClient) Completion(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	var resp CompletionResponse
	if err := doJSON(ctx, c.hc, c.token, http.MethodPost, c.baseURL+"/v1/completions", req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("completion for model %s returned no choices", req.Model)
	}
	return &resp, nil
}

package guardrails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/opendatahub-io/odh-e2e/internal/inference"
)

// Client talks to the orchestrator routes: the health service, the
// standalone detections API and the gateway chat endpoints.
type Client struct {
	// BaseURL is the orchestrator (or gateway) route.
	baseURL string
	// HealthURL is the separate health route; falls back to BaseURL.
	healthURL string
	hc        *http.Client
}

// NewClient builds a guardrails client. healthURL may be empty.
func NewClient(baseURL, healthURL string, opts inference.ClientOptions) *Client {
	if healthURL == "" {
		healthURL = baseURL
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		healthURL: strings.TrimRight(healthURL, "/"),
		hc:        inference.NewRawHTTPClient(opts),
	}
}

// Health queries the orchestrator /health route.
func (c *Client) Health(ctx context.Context) (map[string]interface{}, error) {
	return c.getJSON(ctx, c.healthURL+"/health")
}

// Info queries /info, which reports per-service status.
func (c *Client) Info(ctx context.Context) (map[string]interface{}, error) {
	return c.getJSON(ctx, c.healthURL+"/info")
}

func (c *Client) getJSON(ctx context.Context, url string) (map[string]interface{}, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &inference.StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	var out map[string]interface{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", url, err)
	}
	return out, nil
}

// Detection is a single detector hit.
type Detection struct {
	Start         int     `json:"start"`
	End           int     `json:"end"`
	Text          string  `json:"text"`
	Detection     string  `json:"detection"`
	DetectionType string  `json:"detection_type"`
	DetectorID    string  `json:"detector_id"`
	Score         float64 `json:"score"`
}

// ContentDetectionRequest is the standalone detections payload.
type ContentDetectionRequest struct {
	Detectors map[string]map[string]interface{} `json:"detectors"`
	Content   string                            `json:"content"`
}

// ContentDetectionResponse lists the hits for the submitted content.
type ContentDetectionResponse struct {
	Detections []Detection `json:"detections"`
}

// DetectContent runs the standalone detection endpoint.
func (c *Client) DetectContent(ctx context.Context, req ContentDetectionRequest) (*ContentDetectionResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	url := c.baseURL + "/api/v2/text/detection/content"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("detection request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &inference.StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	var out ContentDetectionResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode detection response: %w", err)
	}
	return &out, nil
}

// GatewayChatResponse is a chat completion passed through the
// detection gateway: the usual OpenAI shape plus detection metadata
// when a detector fired.
type GatewayChatResponse struct {
	inference.ChatResponse
	Detections *struct {
		Input  []GatewayDetection `json:"input,omitempty"`
		Output []GatewayDetection `json:"output,omitempty"`
	} `json:"detections,omitempty"`
	Warnings []struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"warnings,omitempty"`
}

// GatewayDetection wraps detector hits with the message index they
// apply to.
type GatewayDetection struct {
	MessageIndex int         `json:"message_index"`
	Results      []Detection `json:"results"`
}

// GatewayChat posts a chat completion through a named gateway route
// ("pii", "passthrough", ...).
func (c *Client) GatewayChat(ctx context.Context, route string, req inference.ChatRequest) (*GatewayChatResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s/v1/chat/completions", c.baseURL, strings.Trim(route, "/"))
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("gateway chat request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &inference.StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	var out GatewayChatResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode gateway chat response: %w", err)
	}
	return &out, nil
}

// InputDetections flattens the input-side detector hits.
func (r *GatewayChatResponse) InputDetections() []Detection {
	if r.Detections == nil {
		return nil
	}
	var all []Detection
	for _, d := range r.Detections.Input {
		all = append(all, d.Results...)
	}
	return all
}

// OutputDetections flattens the output-side detector hits.
func (r *GatewayChatResponse) OutputDetections() []Detection {
	if r.Detections == nil {
		return nil
	}
	var all []Detection
	for _, d := range r.Detections.Output {
		all = append(all, d.Results...)
	}
	return all
}

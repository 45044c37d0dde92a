// Package llamastack deploys LlamaStackDistribution instances and
// exercises the LlamaStack REST API they serve.
package llamastack

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/client-go/dynamic"

	"github.com/opendatahub-io/odh-e2e/internal/inference"
	"github.com/opendatahub-io/odh-e2e/internal/resources"
	"github.com/opendatahub-io/odh-e2e/internal/wait"
)

// ReadyPhase is the terminal phase of a healthy distribution.
const ReadyPhase = "Ready"

// DistributionSpec describes a LlamaStackDistribution.
type DistributionSpec struct {
	Name      string
	Namespace string

	// Distribution selects the packaged distribution image name,
	// e.g. "rh-dev".
	Distribution string

	Replicas int64

	// InferenceProvider points the stack at a served model.
	VLLMURL   string
	ModelName string
}

// BuildDistribution assembles the LlamaStackDistribution object.
func BuildDistribution(spec DistributionSpec) *unstructured.Unstructured {
	replicas := spec.Replicas
	if replicas == 0 {
		replicas = 1
	}

	env := []interface{}{
		map[string]interface{}{"name": "VLLM_URL", "value": spec.VLLMURL},
		map[string]interface{}{"name": "INFERENCE_MODEL", "value": spec.ModelName},
	}

	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "llamastack.io/v1alpha1",
		"kind":       "LlamaStackDistribution",
		"metadata": map[string]interface{}{
			"name":      spec.Name,
			"namespace": spec.Namespace,
		},
		"spec": map[string]interface{}{
			"replicas": replicas,
			"server": map[string]interface{}{
				"distribution": map[string]interface{}{
					"name": spec.Distribution,
				},
				"containerSpec": map[string]interface{}{
					"env":  env,
					"port": int64(8321),
				},
			},
		},
	}}
}

// WaitForReady waits for status.phase == Ready.
func WaitForReady(ctx context.Context, dyn dynamic.Interface, namespace, name string, cfg wait.Config) (*unstructured.Unstructured, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Minute
	}
	return resources.WaitForStatusField(ctx, dyn, resources.LlamaStackDistributionGVR, namespace, name, ReadyPhase, cfg, "phase")
}

// Client talks to a LlamaStack server.
type Client struct {
	baseURL string
	hc      *http.Client
	openai  *inference.OpenAIClient
}

// NewClient builds a client rooted at the stack's base URL.
func NewClient(baseURL string, opts inference.ClientOptions) *Client {
	base := strings.TrimRight(baseURL, "/")
	return &Client{
		baseURL: base,
		hc:      inference.NewRawHTTPClient(opts),
		// LlamaStack exposes an OpenAI-compatible surface under
		// /v1/openai
		openai: inference.NewOpenAIClient(base+"/v1/openai", opts),
	}
}

// Model is one registered model of the stack.
type Model struct {
	Identifier string `json:"identifier"`
	ModelType  string `json:"model_type"`
	Provider   string `json:"provider_id"`
}

// ListModels returns the models registered with the stack.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	var out struct {
		Data []Model `json:"data"`
	}
	if err := getJSON(ctx, c.hc, c.baseURL+"/v1/models", &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// Health reports the stack's health status string.
func (c *Client) Health(ctx context.Context) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := getJSON(ctx, c.hc, c.baseURL+"/v1/health", &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// ChatCompletion runs a chat completion through the stack's
// OpenAI-compatible endpoint.
func (c *Client) ChatCompletion(ctx context.Context, req inference.ChatRequest) (*inference.ChatResponse, error) {
	return c.openai.ChatCompletion(ctx, req)
}

func getJSON(ctx context.Context, hc *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &inference.StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

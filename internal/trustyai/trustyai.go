// Package trustyai covers the TrustyAIService: CR construction, the
// bias/drift metrics API, and locally computed reference statistics
// the suites compare service answers against.
package trustyai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/opendatahub-io/odh-e2e/internal/inference"
)

// ServiceSpec describes a TrustyAIService instance.
type ServiceSpec struct {
	Name      string
	Namespace string

	// StorageFormat is "PVC" or "DATABASE".
	StorageFormat string
	PVCSize       string
	DatabaseCreds string
}

// BuildService assembles the TrustyAIService object.
func BuildService(spec ServiceSpec) *unstructured.Unstructured {
	format := spec.StorageFormat
	if format == "" {
		format = "PVC"
	}

	storage := map[string]interface{}{"format": format}
	switch format {
	case "PVC":
		size := spec.PVCSize
		if size == "" {
			size = "1Gi"
		}
		storage["folder"] = "/inputs"
		storage["size"] = size
	case "DATABASE":
		storage["databaseConfigurations"] = spec.DatabaseCreds
	}

	return &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "trustyai.opendatahub.io/v1alpha1",
		"kind":       "TrustyAIService",
		"metadata": map[string]interface{}{
			"name":      spec.Name,
			"namespace": spec.Namespace,
		},
		"spec": map[string]interface{}{
			"storage": storage,
			"data": map[string]interface{}{
				"filename": "data.csv",
				"format":   "CSV",
			},
			"metrics": map[string]interface{}{
				"schedule": "5s",
			},
		},
	}}
}

// Client talks to a TrustyAIService route.
type Client struct {
	baseURL string
	token   string
	hc      *http.Client
}

// NewClient builds a client against the service route.
func NewClient(baseURL string, opts inference.ClientOptions) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   opts.BearerToken,
		hc:      inference.NewRawHTTPClient(opts),
	}
}

// MetricRequest selects the model and attribute a metric is computed
// over.
type MetricRequest struct {
	ModelID             string   `json:"modelId"`
	ProtectedAttribute  string   `json:"protectedAttribute,omitempty"`
	PrivilegedAttribute any      `json:"privilegedAttribute,omitempty"`
	UnprivilegedAttr    any      `json:"unprivilegedAttribute,omitempty"`
	OutcomeName         string   `json:"outcomeName,omitempty"`
	FavorableOutcome    any      `json:"favorableOutcome,omitempty"`
	ReferenceTag        string   `json:"referenceTag,omitempty"`
	FitColumns          []string `json:"fitColumns,omitempty"`
}

// MetricResponse is the service's answer for a single metric request.
type MetricResponse struct {
	Type      string  `json:"type"`
	Value     float64 `json:"value"`
	Timestamp int64   `json:"timestamp"`
	Threshold struct {
		LowerBound    float64 `json:"lowerBound"`
		UpperBound    float64 `json:"upperBound"`
		OutsideBounds bool    `json:"outsideBounds"`
	} `json:"thresholds"`
}

// SPD requests the statistical parity difference metric.
func (c *Client) SPD(ctx context.Context, req MetricRequest) (*MetricResponse, error) {
	return c.requestMetric(ctx, "/metrics/group/fairness/spd", req)
}

// DIR requests the disparate impact ratio metric.
func (c *Client) DIR(ctx context.Context, req MetricRequest) (*MetricResponse, error) {
	return c.requestMetric(ctx, "/metrics/group/fairness/dir", req)
}

// Meanshift requests the drift meanshift metric against the reference
// tag.
func (c *Client) Meanshift(ctx context.Context, req MetricRequest) (*MetricResponse, error) {
	return c.requestMetric(ctx, "/metrics/drift/meanshift", req)
}

func (c *Client) requestMetric(ctx context.Context, path string, req MetricRequest) (*MetricResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("metric request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &inference.StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	var out MetricResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode metric response from %s: %w", path, err)
	}
	return &out, nil
}

// UploadPayload is the joint inference document the data upload
// endpoint accepts: model inputs and outputs as v2-style tensors,
// optionally tagged as reference data.
type UploadPayload struct {
	ModelName     string         `json:"model_name"`
	DataTag       string         `json:"data_tag,omitempty"`
	IsGroundTruth bool           `json:"is_ground_truth"`
	Request       UploadRequest  `json:"request"`
	Response      UploadResponse `json:"response"`
}

type UploadRequest struct {
	Inputs []inference.Tensor `json:"inputs"`
}

type UploadResponse struct {
	Outputs []inference.Tensor `json:"outputs"`
}

// UploadData posts observation data for a model to the service.
func (c *Client) UploadData(ctx context.Context, payload UploadPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/data/upload", bytes.NewReader(raw))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.hc.Do(httpReq)
	if err != nil {
		return fmt.Errorf("data upload failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &inference.StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return nil
}

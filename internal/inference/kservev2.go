package inference

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// V2Client speaks the KServe v2 open inference protocol.
type V2Client struct {
	baseURL string
	token   string
	hc      *http.Client
}

// NewV2Client builds a client rooted at baseURL (without the /v2
// suffix).
func NewV2Client(baseURL string, opts ClientOptions) *V2Client {
	return &V2Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   opts.BearerToken,
		hc:      newHTTPClient(opts),
	}
}

type readyResponse struct {
	Ready bool `json:"ready"`
}

// ServerReady checks /v2/health/ready.
func (c *V2Client) ServerReady(ctx context.Context) (bool, error) {
	var resp readyResponse
	err := doJSON(ctx, c.hc, c.token, http.MethodGet, c.baseURL+"/v2/health/ready", nil, &resp)
	if err != nil {
		return false, err
	}
	return resp.Ready, nil
}

// ModelReady checks /v2/models/{name}/ready. Some servers answer 200
// with an empty body instead of the documented JSON; a 2xx status is
// authoritative either way.
func (c *V2Client) ModelReady(ctx context.Context, model string) (bool, error) {
	url := fmt.Sprintf("%s/v2/models/%s/ready", c.baseURL, model)
	err := doJSON(ctx, c.hc, c.token, http.MethodGet, url, nil, nil)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.Code == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// TensorMetadata describes one input or output of a served model.
type TensorMetadata struct {
	Name     string  `json:"name"`
	Shape    []int64 `json:"shape"`
	Datatype string  `json:"datatype"`
}

// ModelMetadata is the answer of /v2/models/{name}.
type ModelMetadata struct {
	Name     string           `json:"name"`
	Platform string           `json:"platform"`
	Versions []string         `json:"versions,omitempty"`
	Inputs   []TensorMetadata `json:"inputs"`
	Outputs  []TensorMetadata `json:"outputs"`
}

// Metadata fetches the model's metadata document.
func (c *V2Client) Metadata(ctx context.Context, model string) (*ModelMetadata, error) {
	url := fmt.Sprintf("%s/v2/models/%s", c.baseURL, model)
	var meta ModelMetadata
	if err := doJSON(ctx, c.hc, c.token, http.MethodGet, url, nil, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Tensor is a single named input or output tensor.
type Tensor struct {
	Name     string        `json:"name"`
	Shape    []int64       `json:"shape"`
	Datatype string        `json:"datatype"`
	Data     []interface{} `json:"data"`
}

// InferRequest is the v2 inference payload.
type InferRequest struct {
	ID     string   `json:"id,omitempty"`
	Inputs []Tensor `json:"inputs"`
}

// InferResponse is the v2 inference response.
type InferResponse struct {
	ModelName    string   `json:"model_name"`
	ModelVersion string   `json:"model_version,omitempty"`
	ID           string   `json:"id,omitempty"`
	Outputs      []Tensor `json:"outputs"`
}

// Infer posts the request to /v2/models/{model}/infer.
func (c *V2Client) Infer(ctx context.Context, model string, req InferRequest) (*InferResponse, error) {
	url := fmt.Sprintf("%s/v2/models/%s/infer", c.baseURL, model)
	var resp InferResponse
	if err := doJSON(ctx, c.hc, c.token, http.MethodPost, url, req, &resp); err != nil {
		return nil, err
	}
	if len(resp.Outputs) == 0 {
		return nil, fmt.Errorf("inference on model %s returned no outputs", model)
	}
	return &resp, nil
}

// Output returns the named output tensor from the response.
func (r *InferResponse) Output(name string) (*Tensor, error) {
	for i := range r.Outputs {
		if r.Outputs[i].Name == name {
			return &r.Outputs[i], nil
		}
	}
	return nil, fmt.Errorf("response from %s has no output named %s", r.ModelName, name)
}

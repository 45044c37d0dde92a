// Package inference contains HTTP clients for the protocols exposed by
// deployed model servers: OpenAI-compatible completion endpoints and
// the KServe v2 open inference protocol.
package inference

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusError is returned when a server answers outside 2xx. Tests
// assert on Code for negative cases (401 unauthorized, 429 rate
// limited).
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// ClientOptions configure the shared HTTP transport.
type ClientOptions struct {
	// BearerToken is sent as an Authorization header when set.
	BearerToken string

	// CABundle adds a PEM bundle to the trusted roots, for routes
	// signed by the cluster ingress CA.
	CABundle []byte

	// InsecureSkipVerify disables TLS verification; self-signed test
	// clusters only.
	InsecureSkipVerify bool

	Timeout time.Duration
}

// NewRawHTTPClient exposes the shared transport configuration to
// sibling packages (guardrails, maas) that build their own requests.
func NewRawHTTPClient(opts ClientOptions) *http.Client {
	return newHTTPClient(opts)
}

func newHTTPClient(opts ClientOptions) *http.Client {
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}

	tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12}
	if opts.InsecureSkipVerify {
		tlsCfg.InsecureSkipVerify = true
	}
	if len(opts.CABundle) > 0 {
		pool, err := x509.SystemCertPool()
		if err != nil || pool == nil {
			pool = x509.NewCertPool()
		}
		pool.AppendCertsFromPEM(opts.CABundle)
		tlsCfg.RootCAs = pool
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{TLSClientConfig: tlsCfg},
	}
}

// doJSON posts (or gets, when in is nil and method is GET) JSON and
// decodes the response into out. Non-2xx answers become StatusError
// with the body preserved for assertions.
func doJSON(ctx context.Context, hc *http.Client, token, method, url string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request for %s: %w", url, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode, Body: string(raw)}
	}
	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode response from %s: %w", url, err)
		}
	}
	return nil
}

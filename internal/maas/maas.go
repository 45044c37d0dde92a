// Package maas drives the Models-as-a-Service gateway: ephemeral token
// minting, token revocation, and tier-based rate limit probing.
package maas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/opendatahub-io/odh-e2e/internal/inference"
)

// Client talks to a MaaS gateway, typically at
// https://maas.<ingress-domain>.
type Client struct {
	baseURL string
	// saToken authenticates the token management endpoints. Minted
	// tokens authenticate model access instead.
	saToken string
	hc      *http.Client
}

// NewClient builds a gateway client. saToken is the service account
// token used to mint and revoke ephemeral tokens.
func NewClient(baseURL, saToken string, opts inference.ClientOptions) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		saToken: saToken,
		hc:      inference.NewRawHTTPClient(opts),
	}
}

// Token is a minted ephemeral token.
type Token struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expiresAt"`
}

// MintToken requests an ephemeral token with the given lifetime.
func (c *Client) MintToken(ctx context.Context, ttl time.Duration) (*Token, error) {
	payload, err := json.Marshal(map[string]string{
		"ttl": fmt.Sprintf("%dm", int(ttl.Minutes())),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/tokens", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.saToken)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token mint failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return nil, &inference.StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	var tok Token
	if err := json.Unmarshal(raw, &tok); err != nil {
		return nil, fmt.Errorf("failed to decode minted token: %w", err)
	}
	if tok.Token == "" {
		return nil, fmt.Errorf("gateway returned an empty token")
	}
	return &tok, nil
}

// RevokeAllTokens invalidates every token minted for the calling
// identity.
func (c *Client) RevokeAllTokens(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+"/v1/tokens", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.saToken)

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("token revocation failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return &inference.StatusError{Code: resp.StatusCode, Body: string(body)}
	}
	return nil
}

// Model is one entry of the gateway's model catalog.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
	URL     string `json:"url"`
	Ready   bool   `json:"ready"`
}

// ListModels returns the models the gateway exposes, authenticated with
// the given token.
func (c *Client) ListModels(ctx context.Context, token string) ([]Model, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &inference.StatusError{Code: resp.StatusCode, Body: string(raw)}
	}

	var out struct {
		Data []Model `json:"data"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to decode model catalog: %w", err)
	}
	return out.Data, nil
}

// TokenClaims are the JWT claims carried by a minted token.
type TokenClaims struct {
	Subject   string
	Issuer    string
	ExpiresAt time.Time
	Groups    []string
}

// ParseTokenClaims decodes a minted token's claims without verifying
// its signature. The gateway holds the signing key; the suites only
// assert claim contents.
func ParseTokenClaims(token string) (*TokenClaims, error) {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	out := &TokenClaims{}
	if sub, err := claims.GetSubject(); err == nil {
		out.Subject = sub
	}
	if iss, err := claims.GetIssuer(); err == nil {
		out.Issuer = iss
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}
	if groups, ok := claims["groups"].([]interface{}); ok {
		for _, g := range groups {
			if s, ok := g.(string); ok {
				out.Groups = append(out.Groups, s)
			}
		}
	}
	return out, nil
}

// Chat sends one chat completion to a gateway-fronted model with the
// minted token as bearer.
func (c *Client) Chat(ctx context.Context, token, modelURL, modelID, prompt string) (*inference.ChatResponse, error) {
	client := inference.NewOpenAIClient(modelURL, inference.ClientOptions{
		BearerToken:        token,
		InsecureSkipVerify: true,
	})
	return client.ChatCompletion(ctx, inference.ChatRequest{
		Model:     modelID,
		Messages:  []inference.ChatMessage{{Role: "user", Content: prompt}},
		MaxTokens: 16,
	})
}

// RateLimitResult summarizes a burst of identical requests against a
// rate-limited endpoint.
type RateLimitResult struct {
	Accepted int
	Limited  int
	Other    int
}

// ProbeRateLimit fires count sequential chat completions with the
// token and buckets the responses. 429s count as limited; any other
// non-2xx status counts as Other.
func (c *Client) ProbeRateLimit(ctx context.Context, token, modelURL, modelID string, count int) (*RateLimitResult, error) {
	client := inference.NewOpenAIClient(modelURL, inference.ClientOptions{
		BearerToken:        token,
		InsecureSkipVerify: true,
	})
	req := inference.ChatRequest{
		Model:     modelID,
		Messages:  []inference.ChatMessage{{Role: "user", Content: "ping"}},
		MaxTokens: 1,
	}

	result := &RateLimitResult{}
	for i := 0; i < count; i++ {
		_, err := client.ChatCompletion(ctx, req)
		if err == nil {
			result.Accepted++
			continue
		}
		var se *inference.StatusError
		if !errors.As(err, &se) {
			return result, err
		}
		if se.Code == http.StatusTooManyRequests {
			result.Limited++
		} else {
			result.Other++
		}
	}
	return result, nil
}

// Package gateway provides the HTTP client for the chain gateway, the
// single external system the vault talks to. It implements every
// collaborator contract the core defines: reward source, asset surface,
// remote executor, unit purchaser, and rate oracle.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CredentialSource supplies the gateway API key; the settings service
// satisfies this.
type CredentialSource interface {
	Get(key string) (interface{}, error)
}

// Client for the chain gateway JSON API
type Client struct {
	baseURL     string
	client      *http.Client
	credentials CredentialSource
	log         zerolog.Logger

	mu     sync.RWMutex
	apiKey string
}

// NewClient creates a new gateway client. credentials may be nil when the
// key is managed externally.
func NewClient(baseURL, apiKey string, credentials CredentialSource, log zerolog.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: 15 * time.Second},
		credentials: credentials,
		apiKey:      apiKey,
		log:         log.With().Str("client", "gateway").Logger(),
	}
}

// RefreshCredentials re-reads the API key from the credential source.
// Called by the settings handler after a key update.
func (c *Client) RefreshCredentials() error {
	if c.credentials == nil {
		return fmt.Errorf("no credential source configured")
	}

	value, err := c.credentials.Get("gateway_api_key")
	if err != nil {
		return fmt.Errorf("failed to read gateway API key: %w", err)
	}
	key, _ := value.(string)

	c.mu.Lock()
	c.apiKey = key
	c.mu.Unlock()

	c.log.Info().Msg("Gateway credentials refreshed")
	return nil
}

// currentKey returns the API key under the read lock
func (c *Client) currentKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apiKey
}

// doRequest performs one JSON round trip. body and out may be nil.
func (c *Client) doRequest(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request body: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key := c.currentKey(); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("gateway request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("gateway returned status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to parse gateway response: %w", err)
		}
	}
	return nil
}

// readErrorBody extracts the error message from a failed response,
// falling back to the raw body when it is not the standard shape.
func readErrorBody(body io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(body, 512))
	if err != nil || len(raw) == 0 {
		return "no error detail"
	}

	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	return strings.TrimSpace(string(raw))
}

// HealthCheck probes the gateway health endpoint
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := c.doRequest(ctx, http.MethodGet, "/v1/health", nil, nil); err != nil {
		return fmt.Errorf("gateway health check failed: %w", err)
	}
	return nil
}

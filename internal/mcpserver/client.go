package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/samuelarogbonlo/dot-escrow/internal/validation"
)

// Config holds the configuration for connecting to the escrow API.
type Config struct {
	APIURL        string // Base URL, e.g. "http://localhost:8080"
	CallerAddress string // Sent as X-Caller-Address on every request (optional)
	Timeout       time.Duration
}

// APIClient is a plain HTTP client for the escrow gateway.
type APIClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewAPIClient creates a client for the gateway at cfg.APIURL.
func NewAPIClient(cfg Config) *APIClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &APIClient{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// apiError represents an error response from the gateway.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the gateway and returns the response body.
func (c *APIClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.CallerAddress != "" {
		req.Header.Set(validation.CallerHeader, c.cfg.CallerAddress)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// GetEscrow fetches one escrow record.
func (c *APIClient) GetEscrow(ctx context.Context, id string) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/escrows/"+url.PathEscape(id), nil, nil)
}

// ListEscrows lists the escrows visible to the configured caller.
func (c *APIClient) ListEscrows(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/escrows", nil, nil)
}

// ListProposals lists governance proposals, optionally filtered by status.
func (c *APIClient) ListProposals(ctx context.Context, status string) (json.RawMessage, error) {
	var q url.Values
	if status != "" {
		q = url.Values{"status": {status}}
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/governance/proposals", q, nil)
}

// GetSigners returns the governance signer set.
func (c *APIClient) GetSigners(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/governance/signers", nil, nil)
}

// GetThreshold returns the approval threshold.
func (c *APIClient) GetThreshold(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/governance/threshold", nil, nil)
}

// CheckTransaction looks a transaction up in recent blocks.
func (c *APIClient) CheckTransaction(ctx context.Context, txHash string, wait bool) (json.RawMessage, error) {
	body := map[string]any{"txHash": txHash, "wait": wait}
	return c.doRequest(ctx, http.MethodPost, "/v1/transactions/check", nil, body)
}

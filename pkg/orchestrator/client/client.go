// Package client is a small typed HTTP client for the orchestrator API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/ushadow/orchestrator/models"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL is required")
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}, nil
}

// StartResult reports a start attempt. Success is false when port
// conflicts block the start; Conflicts then lists them.
type StartResult struct {
	Success   bool                  `json:"success"`
	Message   string                `json:"message"`
	CanStart  bool                  `json:"can_start"`
	Conflicts []models.PortConflict `json:"conflicts,omitempty"`
}

// StartService runs the preflight→start protocol for one service.
func (c *Client) StartService(ctx context.Context, serviceID string) (StartResult, error) {
	var out StartResult
	err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/services/%s/start", serviceID), nil, &out)
	return out, err
}

// StopService confirms and issues the stop for one service.
func (c *Client) StopService(ctx context.Context, serviceID string) error {
	if err := c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/services/%s/stop/confirm", serviceID), nil, nil); err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/v1/services/%s/stop", serviceID), nil, nil)
}

// Environments returns the discovery snapshot.
func (c *Client) Environments(ctx context.Context) (models.Discovery, error) {
	var out models.Discovery
	err := c.do(ctx, http.MethodGet, "/api/v1/environments", nil, &out)
	return out, err
}

// CreateJoinToken asks the daemon for a new cluster join token.
func (c *Client) CreateJoinToken(ctx context.Context, role string, maxUses, expiresInHours int) (models.JoinToken, error) {
	var out models.JoinToken
	err := c.do(ctx, http.MethodPost, "/api/v1/cluster/token", map[string]interface{}{
		"role":             role,
		"max_uses":         maxUses,
		"expires_in_hours": expiresInHours,
	}, &out)
	return out, err
}

// Nodes returns the current fleet roster snapshot.
func (c *Client) Nodes(ctx context.Context) ([]models.Node, error) {
	var out struct {
		Nodes []models.Node `json:"nodes"`
	}
	err := c.do(ctx, http.MethodGet, "/api/v1/cluster/nodes", nil, &out)
	return out.Nodes, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr struct {
			Message string `json:"message"`
			Details string `json:"details"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Message != "" {
			return fmt.Errorf("%s %s: %s (%s)", method, path, apiErr.Message, apiErr.Details)
		}
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

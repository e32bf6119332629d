package client

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"encoding/json"

	"github.com/joshdurbin/offgate/internal/domain"
)

// Client represents an HTTP client for the gateway admin API
type Client struct {
	serverURL  string
	httpClient *http.Client
}

// NewClient creates a new gateway admin client
func NewClient(serverURL string) *Client {
	return &Client{
		serverURL: serverURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Status retrieves the gateway status
func (c *Client) Status(ctx context.Context) (*domain.StatusResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/offgate/status", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	var status domain.StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &status, nil
}

// ListQueue retrieves all pending mutations
func (c *Client) ListQueue(ctx context.Context) ([]*domain.QueuedMutation, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.serverURL+"/offgate/queue", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	var mutations []*domain.QueuedMutation
	if err := json.NewDecoder(resp.Body).Decode(&mutations); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return mutations, nil
}

// Sync triggers a queue drain
func (c *Client) Sync(ctx context.Context) (*domain.SyncResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.serverURL+"/offgate/sync", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusConflict {
		return nil, fmt.Errorf("a sync is already in progress")
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	var result domain.SyncResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &result, nil
}

// RemoveQueued drops a pending mutation without replaying it
func (c *Client) RemoveQueued(ctx context.Context, id string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.serverURL+"/offgate/queue/"+id, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("mutation '%s' not found", id)
	}

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}

	return nil
}

package client

import (
	"context"
	"fmt"
)

// Commands wraps the client with human-readable CLI output
type Commands struct {
	client *Client
}

// NewCommands creates a new commands wrapper
func NewCommands(client *Client) *Commands {
	return &Commands{
		client: client,
	}
}

// Status prints the gateway status
func (c *Commands) Status(ctx context.Context) error {
	status, err := c.client.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}

	connectivity := "offline"
	if status.Network.IsOnline {
		connectivity = "online"
	}

	fmt.Printf("State:       %s\n", status.State)
	fmt.Printf("Upstream:    %s (since %s)\n", connectivity, status.Network.ChangedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Queue depth: %d\n", status.QueueDepth)

	return nil
}

// Queue prints all pending mutations
func (c *Commands) Queue(ctx context.Context) error {
	mutations, err := c.client.ListQueue(ctx)
	if err != nil {
		return fmt.Errorf("failed to list queue: %w", err)
	}

	if len(mutations) == 0 {
		fmt.Println("No pending mutations")
		return nil
	}

	fmt.Printf("%-20s %-8s %-40s %-10s %s\n", "ID", "METHOD", "URL", "RETRIES", "CREATED")
	for _, m := range mutations {
		fmt.Printf("%-20s %-8s %-40s %d/%d        %s\n",
			m.ID, m.Method, m.URL, m.RetryCount, m.MaxRetries,
			m.CreatedAt.Format("2006-01-02 15:04:05"))
	}

	return nil
}

// Sync triggers a queue drain and prints the result
func (c *Commands) Sync(ctx context.Context) error {
	result, err := c.client.Sync(ctx)
	if err != nil {
		return fmt.Errorf("failed to sync: %w", err)
	}

	fmt.Printf("Attempted: %d\n", result.Attempted)
	fmt.Printf("Replayed:  %d\n", result.Replayed)
	fmt.Printf("Failed:    %d\n", result.Failed)
	fmt.Printf("Dropped:   %d\n", result.Dropped)

	return nil
}

// Forget drops a pending mutation without replaying it
func (c *Commands) Forget(ctx context.Context, id string) error {
	if err := c.client.RemoveQueued(ctx, id); err != nil {
		return fmt.Errorf("failed to forget mutation: %w", err)
	}

	fmt.Printf("Dropped mutation: %s\n", id)
	return nil
}

package strategy

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/joshdurbin/offgate/internal/domain"
)

// Fetcher performs an upstream fetch and captures the full response as
// a snapshot. A returned error means the network itself failed; HTTP
// error statuses are returned as snapshots, not errors.
type Fetcher interface {
	Fetch(ctx context.Context, method, requestURI string, header http.Header, body []byte) (*domain.ResponseSnapshot, error)
}

// UpstreamFetcher fetches from the configured upstream base URL.
type UpstreamFetcher struct {
	baseURL    string
	httpClient *http.Client
}

// NewUpstreamFetcher creates a fetcher against the given upstream
func NewUpstreamFetcher(baseURL string) *UpstreamFetcher {
	return &UpstreamFetcher{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Fetch issues the request against the upstream and snapshots the response
func (f *UpstreamFetcher) Fetch(ctx context.Context, method, requestURI string, header http.Header, body []byte) (*domain.ResponseSnapshot, error) {
	var reader io.Reader
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, f.baseURL+requestURI, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for k, vs := range header {
		req.Header[k] = append([]string(nil), vs...)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s %s: %w", method, requestURI, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &domain.ResponseSnapshot{
		StatusCode: resp.StatusCode,
		Header:     resp.Header.Clone(),
		Body:       respBody,
		StoredAt:   time.Now(),
	}, nil
}

// Ensure UpstreamFetcher implements the interface
var _ Fetcher = (*UpstreamFetcher)(nil)

package catalog

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/tellmeastory/zine-server/internal/domain"
)

// Source produces the current catalog.
type Source interface {
	Fetch(ctx context.Context) (*domain.Catalog, error)
}

// Client fetches the catalog JSON from a static URL.
type Client struct {
	httpClient *http.Client
	url        string
}

var _ Source = (*Client)(nil)

// NewClient creates a client for url.
func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		url:        url,
	}
}

// Fetch downloads and decodes the catalog.
func (c *Client) Fetch(ctx context.Context) (*domain.Catalog, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch catalog: status %d", resp.StatusCode)
	}
	return Decode(resp.Body)
}

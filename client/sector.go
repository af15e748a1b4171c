package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// SectorIdentifierFetcher resolves a sector_identifier_uri into the list of
// redirect URIs it declares.
type SectorIdentifierFetcher interface {
	Fetch(ctx context.Context, uri string) ([]string, error)
}

// HTTPSectorFetcher fetches sector identifier documents over HTTPS with a
// bounded timeout, so a stalled host fails the registration instead of
// hanging the request.
type HTTPSectorFetcher struct {
	client *http.Client
}

// NewHTTPSectorFetcher creates a fetcher with the given per-request timeout.
func NewHTTPSectorFetcher(timeout time.Duration) *HTTPSectorFetcher {
	return &HTTPSectorFetcher{
		client: &http.Client{Timeout: timeout},
	}
}

// Fetch implements SectorIdentifierFetcher. The document must be a JSON array
// of strings.
func (f *HTTPSectorFetcher) Fetch(ctx context.Context, uri string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("building sector identifier request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching sector identifier uri: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sector identifier uri returned status %d", resp.StatusCode)
	}

	var uris []string
	if err := json.NewDecoder(resp.Body).Decode(&uris); err != nil {
		return nil, fmt.Errorf("decoding sector identifier document: %w", err)
	}
	return uris, nil
}

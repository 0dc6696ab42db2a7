package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

const (
	UserAgent = "shuttle-schedule/1.0 (github.com/pfrederiksen/shuttle-schedule)"

	// maxBodyBytes caps how much of a response is read
	maxBodyBytes = 8 << 20
)

// Fetcher performs the network request for one strategy
type Fetcher interface {
	Fetch(ctx context.Context, s Strategy) ([]byte, error)
}

// HTTPFetcher fetches strategies over HTTP. Deadlines come from the context.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTTPFetcher creates an HTTPFetcher. An empty userAgent selects UserAgent.
func NewHTTPFetcher(client *http.Client, userAgent string) *HTTPFetcher {
	if client == nil {
		client = &http.Client{}
	}
	if userAgent == "" {
		userAgent = UserAgent
	}
	return &HTTPFetcher{client: client, userAgent: userAgent}
}

// Fetch requests the strategy URL and returns the body of a 200 response
func (f *HTTPFetcher) Fetch(ctx context.Context, s Strategy) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Cache-Control", "no-store")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}
	return body, nil
}

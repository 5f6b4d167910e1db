package favicon

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const maxIconBytes = 512 * 1024

// HTTPFetcher fetches the conventional /favicon.ico for a page's origin.
type HTTPFetcher struct {
	client *http.Client
}

func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{client: &http.Client{Timeout: 10 * time.Second}}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, pageURL string) ([]byte, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("page url %q has no origin", pageURL)
	}

	iconURL := u.Scheme + "://" + u.Host + "/favicon.ico"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, iconURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", iconURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", iconURL, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxIconBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read icon body: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("fetch %s: empty body", iconURL)
	}
	if len(data) > maxIconBytes {
		return nil, fmt.Errorf("fetch %s: icon exceeds %d bytes", iconURL, maxIconBytes)
	}
	return data, nil
}

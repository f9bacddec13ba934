package fetch

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"

	"soundtracker/internal/domain"
)

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/121.0.0.0 Safari/537.36"

// HTTPFetcher retrieves sound pages with a plain HTTP client. When an
// endpoint is supplied the request is routed through it via a per-attempt
// proxy transport, so consecutive attempts can rotate egress points.
type HTTPFetcher struct {
	direct    *http.Client
	timeout   time.Duration
	userAgent string
}

var _ DocumentFetcher = (*HTTPFetcher)(nil)

// NewHTTPFetcher wires an HTTP strategy; timeout defaults to 20s.
func NewHTTPFetcher(timeout time.Duration, userAgent string) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &HTTPFetcher{
		direct:    &http.Client{Timeout: timeout},
		timeout:   timeout,
		userAgent: userAgent,
	}
}

// Name identifies the strategy inside the registry.
func (f *HTTPFetcher) Name() string {
	return "http"
}

// FetchDocument performs one retrieval and parses the body. The status
// code is returned for any response, parseable or not, so the engine can
// classify block and not-found pages.
func (f *HTTPFetcher) FetchDocument(ctx context.Context, pageURL string, via *domain.ProxyEndpoint) (*goquery.Document, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client(via).Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, resp.StatusCode, nil
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("parse document: %w", err)
	}

	return doc, resp.StatusCode, nil
}

func (f *HTTPFetcher) client(via *domain.ProxyEndpoint) *http.Client {
	if via == nil {
		return f.direct
	}
	return &http.Client{
		Timeout:   f.timeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(via.URL())},
	}
}

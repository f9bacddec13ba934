package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"soundtracker/internal/domain"
	"soundtracker/internal/ports"
)

// Engine turns one (identifier, endpoint) pair into a FetchResult: it
// rate-limits, retrieves the page through the configured strategy,
// classifies the response, and extracts name, creator, icon and count.
type Engine struct {
	strategy DocumentFetcher
	limiter  *rate.Limiter
	logger   *slog.Logger
}

var _ ports.Fetcher = (*Engine)(nil)

// NewEngine wires a strategy with a process-wide rate limiter.
// requestsPerMinute <= 0 disables rate limiting.
func NewEngine(strategy DocumentFetcher, requestsPerMinute int, logger *slog.Logger) *Engine {
	var limiter *rate.Limiter
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(requestsPerMinute)/60), 1)
	}
	return &Engine{strategy: strategy, limiter: limiter, logger: logger}
}

// Fetch performs a single retrieval attempt. All failures come back as a
// classified FetchResult; the error taxonomy never leaks as plain errors.
func (e *Engine) Fetch(ctx context.Context, soundURL string, via *domain.ProxyEndpoint) domain.FetchResult {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return domain.Failure(domain.ResultAborted, err.Error())
		}
	}

	doc, status, err := e.strategy.FetchDocument(ctx, soundURL, via)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domain.Failure(domain.ResultAborted, err.Error())
		}
		return domain.Failure(domain.ResultNetworkError, err.Error())
	}

	switch status {
	case http.StatusOK:
	case http.StatusForbidden, http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return domain.Failure(domain.ResultBlocked, fmt.Sprintf("target returned %d", status))
	case http.StatusNotFound, http.StatusGone:
		return domain.Failure(domain.ResultNotFound, fmt.Sprintf("target returned %d", status))
	default:
		return domain.Failure(domain.ResultNetworkError, fmt.Sprintf("target returned %d", status))
	}

	result := extract(doc)
	if result.OK() {
		e.debug("fetched sound", "url", soundURL, "count", result.Count)
	}
	return result
}

// extract pulls the structured fields out of a sound page. The counter is
// mandatory: a well-formed page without it means the target markup
// changed or the identifier is invalid.
func extract(doc *goquery.Document) domain.FetchResult {
	count, ok := extractVideoCount(doc)
	if !ok {
		return domain.Failure(domain.ResultParseError, "video count not found in page")
	}

	name := strings.TrimSpace(doc.Find("[data-e2e='music-title']").First().Text())
	creator := strings.TrimSpace(doc.Find("[data-e2e='music-creator']").First().Text())

	iconURL, _ := doc.Find("meta[property='og:image']").First().Attr("content")
	iconURL = strings.TrimSpace(iconURL)

	return domain.Success(name, creator, iconURL, count)
}

func extractVideoCount(doc *goquery.Document) (int64, bool) {
	// Primary selector on current markup.
	text := strings.TrimSpace(doc.Find("[data-e2e='music-video-count'] strong").First().Text())
	if text != "" {
		if count, ok := extractCount(text); ok {
			return count, true
		}
	}

	// Fallback: any heading or strong tag mentioning videos.
	var (
		count int64
		found bool
	)
	doc.Find("strong, h2, h3").EachWithBreak(func(i int, sel *goquery.Selection) bool {
		text := sel.Text()
		if !strings.Contains(strings.ToLower(text), "video") {
			return true
		}
		if c, ok := extractCount(text); ok {
			count = c
			found = true
			return false
		}
		return true
	})
	return count, found
}

func (e *Engine) debug(msg string, args ...any) {
	if e.logger != nil {
		e.logger.Debug(msg, args...)
	}
}

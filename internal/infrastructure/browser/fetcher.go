// Package browser implements the headless-browser fetch strategy: a
// stealth-patched Chrome page retrieves the sound page so the target's
// anti-automation checks see a real browser.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"soundtracker/internal/domain"
	"soundtracker/internal/fetch"
)

// Fetcher drives a headless Chrome through Rod. Chrome takes its proxy at
// launch, so the browser is relaunched whenever the requested endpoint
// differs from the one it was started with; within one retry chain that
// is exactly the rotation the pool asks for.
type Fetcher struct {
	mu         sync.Mutex
	browser    *rod.Browser
	lnch       *launcher.Launcher
	proxyKey   string
	navTimeout time.Duration
	logger     *slog.Logger
}

var _ fetch.DocumentFetcher = (*Fetcher)(nil)

// New builds the strategy; the browser launches lazily on first use.
func New(navTimeout time.Duration, logger *slog.Logger) *Fetcher {
	if navTimeout <= 0 {
		navTimeout = 30 * time.Second
	}
	return &Fetcher{navTimeout: navTimeout, logger: logger}
}

// Name identifies the strategy inside the registry.
func (f *Fetcher) Name() string {
	return "browser"
}

// FetchDocument opens a stealth tab, navigates, and serialises the DOM.
// Navigation failures surface as errors for the engine to classify; a
// rendered page always reports status 200 since Chrome ate the response.
func (f *Fetcher) FetchDocument(ctx context.Context, pageURL string, via *domain.ProxyEndpoint) (*goquery.Document, int, error) {
	b, err := f.ensureBrowser(via)
	if err != nil {
		return nil, 0, err
	}

	page, err := stealth.Page(b)
	if err != nil {
		return nil, 0, fmt.Errorf("browser: create tab: %w", err)
	}
	defer page.Close()

	navCtx, cancel := context.WithTimeout(ctx, f.navTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(pageURL); err != nil {
		return nil, 0, fmt.Errorf("browser: navigate %s: %w", pageURL, err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		f.warn("wait load timeout", "url", pageURL, "error", err)
	}

	res, err := page.Context(ctx).Eval(`() => document.documentElement.outerHTML`)
	if err != nil {
		return nil, 0, fmt.Errorf("browser: get DOM: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(res.Value.Str()))
	if err != nil {
		return nil, 0, fmt.Errorf("browser: parse DOM: %w", err)
	}

	return doc, http.StatusOK, nil
}

func (f *Fetcher) ensureBrowser(via *domain.ProxyEndpoint) (*rod.Browser, error) {
	key := ""
	if via != nil {
		key = via.Key()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.browser != nil && f.proxyKey == key {
		return f.browser, nil
	}
	f.closeLocked()

	lnch := launcher.New().Headless(true)
	if via != nil {
		lnch = lnch.Proxy(via.Key())
	}

	controlURL, err := lnch.Launch()
	if err != nil {
		return nil, fmt.Errorf("browser: launch: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		lnch.Cleanup()
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	if via != nil && via.Username != "" {
		go b.MustHandleAuth(via.Username, via.Password)()
	}

	f.browser = b
	f.lnch = lnch
	f.proxyKey = key
	return b, nil
}

// Close shuts the browser down. Safe to call when it never launched.
func (f *Fetcher) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeLocked()
}

func (f *Fetcher) closeLocked() {
	if f.browser != nil {
		if err := f.browser.Close(); err != nil {
			f.warn("browser close", "error", err)
		}
		f.browser = nil
	}
	if f.lnch != nil {
		f.lnch.Cleanup()
		f.lnch = nil
	}
	f.proxyKey = ""
}

func (f *Fetcher) warn(msg string, args ...any) {
	if f.logger != nil {
		f.logger.Warn(msg, args...)
	}
}

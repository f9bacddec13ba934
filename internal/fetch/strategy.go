package fetch

import (
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"soundtracker/internal/domain"
)

// DocumentFetcher retrieves one sound page as a parsed document, routed
// through the given egress endpoint when one is supplied. Anti-bot defeat
// lives behind this interface; the engine only classifies and extracts.
type DocumentFetcher interface {
	Name() string
	FetchDocument(ctx context.Context, pageURL string, via *domain.ProxyEndpoint) (*goquery.Document, int, error)
}

// Registry keeps a mapping from strategy names to their implementations.
type Registry struct {
	strategies map[string]DocumentFetcher
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{strategies: map[string]DocumentFetcher{}}
}

// Register adds or replaces a fetch strategy.
func (r *Registry) Register(strategy DocumentFetcher) {
	if r.strategies == nil {
		r.strategies = map[string]DocumentFetcher{}
	}
	r.strategies[strategy.Name()] = strategy
}

// Resolve returns a strategy by name or an error if it is absent.
func (r *Registry) Resolve(name string) (DocumentFetcher, error) {
	if strategy, ok := r.strategies[name]; ok {
		return strategy, nil
	}
	return nil, fmt.Errorf("fetch strategy %s is not registered", name)
}

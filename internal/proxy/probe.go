package proxy

import (
	"context"
	"net/http"
	"sync"
	"time"

	"soundtracker/internal/domain"
)

// ProbeResult describes one endpoint's startup health check.
type ProbeResult struct {
	Endpoint domain.ProxyEndpoint
	Working  bool
	Latency  time.Duration
	Err      error
}

// Probe tests every endpoint concurrently by fetching targetURL through
// it, measuring latency. Dead endpoints are reported as failed to the
// pool so they start life cooling down instead of burning the first
// cycle's attempts.
func Probe(ctx context.Context, pool *Pool, endpoints []domain.ProxyEndpoint, targetURL string, timeout time.Duration) []ProbeResult {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	results := make([]ProbeResult, len(endpoints))
	var wg sync.WaitGroup
	for i, ep := range endpoints {
		wg.Add(1)
		go func(i int, ep domain.ProxyEndpoint) {
			defer wg.Done()
			results[i] = probeOne(ctx, ep, targetURL, timeout)
			if !results[i].Working && pool != nil {
				// Push the endpoint over the demotion threshold.
				for n := 0; n < pool.opts.FailureThreshold; n++ {
					pool.ReportFailure(ep)
				}
			}
		}(i, ep)
	}
	wg.Wait()
	return results
}

func probeOne(ctx context.Context, ep domain.ProxyEndpoint, targetURL string, timeout time.Duration) ProbeResult {
	res := ProbeResult{Endpoint: ep}

	client := &http.Client{
		Timeout:   timeout,
		Transport: &http.Transport{Proxy: http.ProxyURL(ep.URL())},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		res.Err = err
		return res
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		res.Err = err
		return res
	}
	defer resp.Body.Close()

	res.Latency = time.Since(start)
	res.Working = resp.StatusCode == http.StatusOK
	return res
}

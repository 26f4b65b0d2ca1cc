// Package scraper holds the source collectors: the Adzuna search API, the
// Gumtree job listings and a local JSON file of manually curated jobs.
// Every network collector paces its requests through a rate limiter.
package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

const (
	httpTimeout = 15 * time.Second
	// userAgent is fixed; collectors do not rotate identities.
	userAgent    = "WorkWise-Scraper/1.0 (+https://workwise.co.za)"
	maxBodyBytes = 5 << 20
)

// pacedClient issues GET requests no faster than its limiter allows.
type pacedClient struct {
	http    *http.Client
	limiter *rate.Limiter
}

// newPacedClient allows one request per interval. A non-positive interval
// disables pacing.
func newPacedClient(h *http.Client, interval time.Duration) *pacedClient {
	if h == nil {
		h = &http.Client{Timeout: httpTimeout}
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &pacedClient{http: h, limiter: rate.NewLimiter(limit, 1)}
}

func (c *pacedClient) get(ctx context.Context, url, accept string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "rate limiter")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "build request")
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "http GET")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, eris.Wrap(err, "read body")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s returned %d", url, resp.StatusCode)
	}
	return body, nil
}

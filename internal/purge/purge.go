// Package purge asks the edge cache to drop stale pages after writes.
package purge

import (
	"context"
	"net/url"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// Client posts purge requests to an edge cache API, at a bounded rate.
type Client struct {
	http    *resty.Client
	limiter *rate.Limiter
}

type purgeRequest struct {
	Paths []string `json:"paths"`
}

// New builds a client posting to baseURL + "/purge". rps <= 0 defaults to 5.
func New(baseURL, token string, rps float64, timeout time.Duration) *Client {
	if rps <= 0 {
		rps = 5
	}
	burst := int(rps * 2)
	if burst < 1 {
		burst = 1
	}
	h := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	if token != "" {
		h.SetAuthToken(token)
	}
	return &Client{http: h, limiter: rate.NewLimiter(rate.Limit(rps), burst)}
}

// Purge drops the given site paths from the cache.
func (c *Client) Purge(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return errors.Wrap(err, "purge rate limit")
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(&purgeRequest{Paths: paths}).
		Post("/purge")
	if err != nil {
		return errors.Wrap(err, "purge request")
	}
	if resp.IsError() {
		return errors.Errorf("purge request: unexpected status %d", resp.StatusCode())
	}
	return nil
}

// ThreadPaths lists the pages showing a thread.
func ThreadPaths(threadKey, channel string) []string {
	paths := []string{"/", "/threads/" + url.PathEscape(threadKey)}
	if channel != "" {
		paths = append(paths, "/channels/"+url.PathEscape(channel))
	}
	return paths
}

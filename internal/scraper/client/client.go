// Package client provides the rate-limited HTTP fetch path shared by all
// site extractors. Every network call goes through Gate.Acquire first, so no
// extractor can bypass the per-site rate limits.
package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"jobharbor/internal/logging"
	"jobharbor/pkg/models"
	"jobharbor/pkg/utils"
)

// maxBodyBytes caps how much of a response we read. Job listing pages are
// well under this; anything larger is not a page we want.
const maxBodyBytes = 8 << 20

// Gate is the per-site rate limit acquire point.
type Gate interface {
	Acquire(ctx context.Context, site string) error
}

// SkillMatcher extracts canonical skill names from free text.
type SkillMatcher interface {
	Match(text string) []string
}

// Client issues rate-limited HTTP GETs on behalf of extractors.
type Client struct {
	http      *http.Client
	gate      Gate
	userAgent string
	logger    logging.Logger
}

const defaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// New creates a client gated by the given limiter.
func New(gate Gate, userAgent string) *Client {
	return &Client{
		http:      &http.Client{},
		gate:      gate,
		userAgent: utils.GetStringOrDefault(userAgent, defaultUserAgent),
		logger:    logging.GetGlobalLogger().WithField("component", "http_client"),
	}
}

// Get fetches url for the given site. It blocks on the site's rate limit
// gate, applies the per-fetch timeout, and classifies transport failures,
// timeouts, and error statuses (429 blocks included) as FetchError.
func (c *Client) Get(ctx context.Context, site, url string, timeout time.Duration) (*models.RawPage, error) {
	if err := c.gate.Acquire(ctx, site); err != nil {
		return nil, utils.NewFetchError(site, url, fmt.Errorf("rate limit acquire: %w", err))
	}

	fetchCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, utils.NewFetchError(site, url, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, utils.NewFetchError(site, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, utils.NewHTTPFetchError(site, url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, utils.NewFetchError(site, url, err)
	}

	c.logger.Debug("page fetched", map[string]interface{}{
		"site":     site,
		"url":      url,
		"bytes":    len(body),
		"duration": utils.FormatDuration(time.Since(start)),
	})

	return &models.RawPage{
		Site:      site,
		URL:       url,
		Body:      body,
		FetchedAt: time.Now(),
	}, nil
}

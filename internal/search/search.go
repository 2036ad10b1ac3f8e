// Package search queries the DuckDuckGo instant answer API.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/tidwall/gjson"
)

// Result is a raw search response with a few fields lifted out of it.
type Result struct {
	// Raw is the response body as returned by the endpoint.
	Raw json.RawMessage
	// Abstract is the instant answer text, if any.
	Abstract string
	// Source is the site the abstract was taken from, if any.
	Source string
}

// Client is a DuckDuckGo API client.
type Client struct {
	endpoint string
	http     *http.Client
}

// New creates a client for endpoint (e.g. "https://api.duckduckgo.com/").
func New(endpoint string, timeout time.Duration) *Client {
	return &Client{
		endpoint: endpoint,
		http:     &http.Client{Timeout: timeout},
	}
}

// Search runs query and returns the decoded response.
func (c *Client) Search(ctx context.Context, query string) (Result, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return Result{}, fmt.Errorf("parsing search endpoint: %w", err)
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	q.Set("no_html", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return Result{}, fmt.Errorf("creating search request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return Result{}, fmt.Errorf("reading search response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("search API error (status %d): %s", resp.StatusCode, truncate(body, 200))
	}
	if !gjson.ValidBytes(body) {
		return Result{}, fmt.Errorf("search API returned invalid JSON: %s", truncate(body, 200))
	}

	return Result{
		Raw:      json.RawMessage(body),
		Abstract: gjson.GetBytes(body, "AbstractText").String(),
		Source:   gjson.GetBytes(body, "AbstractSource").String(),
	}, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

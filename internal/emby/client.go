// Package emby is a minimal client for the Emby server HTTP API: listing
// live sessions and fetching item artwork.
package emby

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ///////////////////////////////////////////////
// Errors
// ///////////////////////////////////////////////

var (
	// ErrUnavailable is returned when the session list cannot be fetched.
	ErrUnavailable = errors.New("emby: sessions unavailable")
	// ErrImageUnavailable is returned when artwork is missing or unreachable.
	ErrImageUnavailable = errors.New("emby: image unavailable")
)

// Response body limits.
const (
	maxSessionsBytes = 8 << 20
	maxImageBytes    = 16 << 20
)

// tokenHeader carries the API key on every request.
const tokenHeader = "X-Emby-Token"

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Client talks to one Emby server.
type Client struct {
	baseURL string
	apiKey  string
	http    *retryablehttp.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying retryable client.
func WithHTTPClient(hc *retryablehttp.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRetries sets the retry count and the minimum and maximum backoff.
func WithRetries(max int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.http.RetryMax = max
		c.http.RetryWaitMin = waitMin
		c.http.RetryWaitMax = waitMax
	}
}

// New creates a Client for the server at baseURL.
func New(baseURL, apiKey string, opts ...Option) *Client {
	hc := retryablehttp.NewClient()
	hc.RetryMax = 2
	hc.HTTPClient.Timeout = 30 * time.Second
	hc.Logger = nil // suppress retryablehttp's default logging
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    hc,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ListSessions returns every active session. Any failure wraps ErrUnavailable.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	resp, err := c.get(ctx, "/Sessions", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: GET /Sessions: status %d", ErrUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSessionsBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: reading sessions: %w", ErrUnavailable, err)
	}
	if len(body) > maxSessionsBytes {
		return nil, fmt.Errorf("%w: sessions response exceeds %d bytes", ErrUnavailable, maxSessionsBytes)
	}

	var sessions []Session
	if err := json.Unmarshal(body, &sessions); err != nil {
		return nil, fmt.Errorf("%w: decoding sessions: %w", ErrUnavailable, err)
	}
	return sessions, nil
}

// FetchImage downloads an item's primary image. tag, when non-empty, pins
// the image version. Any failure wraps ErrImageUnavailable.
func (c *Client) FetchImage(ctx context.Context, itemID, tag string) (Image, error) {
	if itemID == "" {
		return Image{}, fmt.Errorf("%w: empty item id", ErrImageUnavailable)
	}
	q := url.Values{}
	if tag != "" {
		q.Set("tag", tag)
	}
	path := "/emby/Items/" + url.PathEscape(itemID) + "/Images/Primary"

	resp, err := c.get(ctx, path, q)
	if err != nil {
		return Image{}, fmt.Errorf("%w: %w", ErrImageUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Image{}, fmt.Errorf("%w: GET %s: status %d", ErrImageUnavailable, path, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return Image{}, fmt.Errorf("%w: reading image: %w", ErrImageUnavailable, err)
	}
	if len(data) == 0 {
		return Image{}, fmt.Errorf("%w: empty body for %s", ErrImageUnavailable, itemID)
	}
	if len(data) > maxImageBytes {
		return Image{}, fmt.Errorf("%w: image exceeds %d bytes", ErrImageUnavailable, maxImageBytes)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	return Image{Data: data, ContentType: ct}, nil
}

// get issues an authenticated GET.
func (c *Client) get(ctx context.Context, path string, q url.Values) (*http.Response, error) {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set(tokenHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", path, err)
	}
	return resp, nil
}

// Package discord provides a client for the Discord REST API (v10) covering
// what a bot needs to keep status messages in a thread: posting, editing,
// and deleting messages, reading recent history, and finding or creating a
// private thread.
//
// Every call goes through a retryablehttp client, so rate limits (429) and
// server errors are retried honoring Retry-After. Failures surface as
// *[APIError]; a missing message or channel matches [ErrNotFound].
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// ///////////////////////////////////////////////
// Sentinel Errors
// ///////////////////////////////////////////////

// ErrNotFound matches API errors for resources that no longer exist.
var ErrNotFound = errors.New("discord: not found")

// APIError is a non-2xx response from the Discord API.
type APIError struct {
	// Status is the HTTP status code.
	Status int `json:"-"`
	// Code is Discord's JSON error code, 0 when absent.
	Code int `json:"code"`
	// Message is Discord's error text or the HTTP status text.
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("discord: %d %s (code %d)", e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("discord: %d %s", e.Status, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match 404 responses.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// maxResponseBytes caps JSON response bodies.
const maxResponseBytes = 4 << 20

// ///////////////////////////////////////////////
// Client
// ///////////////////////////////////////////////

// Client is a bot-authenticated Discord REST client. It is safe for
// concurrent use.
type Client struct {
	baseURL   string
	token     string
	userAgent string
	http      *retryablehttp.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API base URL.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithUserAgent sets the version reported in the User-Agent header.
func WithUserAgent(version string) Option {
	return func(c *Client) {
		c.userAgent = fmt.Sprintf("DiscordBot (https://tools.zach/dev/embycord, %s)", version)
	}
}

// WithRetries sets the retry count and the minimum and maximum backoff.
func WithRetries(max int, waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.http.RetryMax = max
		c.http.RetryWaitMin = waitMin
		c.http.RetryWaitMax = waitMax
	}
}

// New creates a Client authenticated with a bot token.
func New(token string, opts ...Option) *Client {
	hc := retryablehttp.NewClient()
	hc.RetryMax = 2
	hc.HTTPClient.Timeout = 30 * time.Second
	hc.Logger = nil // suppress retryablehttp's default logging
	hc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{
		baseURL: "https://discord.com/api/v10",
		token:   token,
		http:    hc,
	}
	WithUserAgent("dev")(c)
	for _, o := range opts {
		o(c)
	}
	return c
}

// ///////////////////////////////////////////////
// Messages
// ///////////////////////////////////////////////

// Send posts msg to a channel and returns the new message's handle.
func (c *Client) Send(ctx context.Context, channelID string, msg *Message) (Handle, error) {
	var created Recent
	path := "/channels/" + url.PathEscape(channelID) + "/messages"
	if err := c.doMessage(ctx, http.MethodPost, path, msg, &created); err != nil {
		return Handle{}, err
	}
	if created.ChannelID == "" {
		created.ChannelID = channelID
	}
	return created.Handle(), nil
}

// Edit replaces the content, embeds, and attachments of an existing message.
func (c *Client) Edit(ctx context.Context, h Handle, msg *Message) error {
	return c.doMessage(ctx, http.MethodPatch, messagePath(h), msg, nil)
}

// Delete removes a message. A message that is already gone yields an
// error matching ErrNotFound.
func (c *Client) Delete(ctx context.Context, h Handle) error {
	return c.doJSON(ctx, http.MethodDelete, messagePath(h), nil, nil)
}

// ListRecent returns up to limit of the newest messages in a channel,
// newest first, paging backwards 100 at a time.
func (c *Client) ListRecent(ctx context.Context, channelID string, limit int) ([]Recent, error) {
	var out []Recent
	before := ""
	for len(out) < limit {
		page := min(limit-len(out), 100)
		q := url.Values{"limit": {strconv.Itoa(page)}}
		if before != "" {
			q.Set("before", before)
		}
		var batch []Recent
		path := "/channels/" + url.PathEscape(channelID) + "/messages?" + q.Encode()
		if err := c.doJSON(ctx, http.MethodGet, path, nil, &batch); err != nil {
			return out, err
		}
		for i := range batch {
			if batch[i].ChannelID == "" {
				batch[i].ChannelID = channelID
			}
		}
		out = append(out, batch...)
		if len(batch) < page {
			break
		}
		before = batch[len(batch)-1].ID
	}
	return out, nil
}

// CurrentUser returns the bot's own account.
func (c *Client) CurrentUser(ctx context.Context) (User, error) {
	var u User
	err := c.doJSON(ctx, http.MethodGet, "/users/@me", nil, &u)
	return u, err
}

func messagePath(h Handle) string {
	return "/channels/" + url.PathEscape(h.ChannelID) + "/messages/" + url.PathEscape(h.MessageID)
}

// ///////////////////////////////////////////////
// Request Plumbing
// ///////////////////////////////////////////////

// doMessage sends msg as JSON, or as multipart/form-data with payload_json
// and files[n] parts when it carries attachments.
func (c *Client) doMessage(ctx context.Context, method, path string, msg *Message, out any) error {
	wire := wireMessage{Content: msg.Content, Embeds: msg.Embeds, Attachments: []attachment{}}
	if wire.Embeds == nil {
		wire.Embeds = []Embed{}
	}
	if len(msg.Files) == 0 {
		return c.doJSON(ctx, method, path, wire, out)
	}

	for i, f := range msg.Files {
		wire.Attachments = append(wire.Attachments, attachment{ID: i, Filename: f.Name})
	}
	body, contentType, err := encodeMultipart(wire, msg.Files)
	if err != nil {
		return err
	}
	return c.do(ctx, method, path, body, contentType, out)
}

// encodeMultipart builds a multipart body for a message with attachments.
func encodeMultipart(wire wireMessage, files []File) ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	payload, err := json.Marshal(wire)
	if err != nil {
		return nil, "", fmt.Errorf("encoding payload_json: %w", err)
	}
	ph := textproto.MIMEHeader{}
	ph.Set("Content-Disposition", `form-data; name="payload_json"`)
	ph.Set("Content-Type", "application/json")
	pw, err := mw.CreatePart(ph)
	if err != nil {
		return nil, "", fmt.Errorf("creating payload part: %w", err)
	}
	pw.Write(payload)

	for i, f := range files {
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		fh := textproto.MIMEHeader{}
		fh.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files[%d]"; filename=%q`, i, f.Name))
		fh.Set("Content-Type", ct)
		fw, err := mw.CreatePart(fh)
		if err != nil {
			return nil, "", fmt.Errorf("creating file part %s: %w", f.Name, err)
		}
		fw.Write(f.Data)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing multipart body: %w", err)
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

// doJSON encodes in (when non-nil) as the JSON request body.
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	contentType := ""
	if in != nil {
		var err error
		body, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		contentType = "application/json"
	}
	return c.do(ctx, method, path, body, contentType, out)
}

// do performs one API call and decodes a 2xx JSON response into out.
func (c *Client) do(ctx context.Context, method, path string, body []byte, contentType string, out any) error {
	var reqBody any
	if body != nil {
		reqBody = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Authorization", "Bot "+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, routeOf(path), err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s %s: reading response: %w", method, routeOf(path), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		if len(data) > 0 {
			_ = json.Unmarshal(data, apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s %s: decoding response: %w", method, routeOf(path), err)
	}
	return nil
}

// routeOf strips the query string for error messages.
func routeOf(path string) string {
	if i := strings.IndexByte(path, '?'); i >= 0 {
		return path[:i]
	}
	return path
}

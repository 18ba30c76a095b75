package syncclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ContentType is sent with every request body.
const ContentType = "application/json; charset=utf-8"

// DefaultTimeout bounds a single request when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 1 << 20

// ErrResponseTooLarge is returned when a successful response exceeds maxResponseBytes.
var ErrResponseTooLarge = errors.New("syncclient: response too large")

// StatusError is returned when the server answers with a non-2xx status.
type StatusError struct {
	Path string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("syncclient: %s returned status %d", e.Path, e.Code)
}

// Client posts JSON payloads to the prediction service.
type Client struct {
	baseURL string
	client  *http.Client
}

// New constructs a client for baseURL. A zero timeout selects DefaultTimeout.
func New(baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("syncclient: empty base url")
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("syncclient: invalid base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("syncclient: unsupported scheme %q", u.Scheme)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Post sends body to path and returns the response body. Transport errors and
// non-2xx statuses are returned as errors.
func (c *Client) Post(ctx context.Context, path string, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("syncclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", ContentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("syncclient: post %s: %w", path, err)
	}
	defer resp.Body.Close()

	// One extra byte tells a body at the limit from a longer one.
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("syncclient: read response from %s: %w", path, err)
	}
	tooLarge := len(data) > maxResponseBytes
	if tooLarge {
		data = data[:maxResponseBytes]
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Path: path, Code: resp.StatusCode, Body: string(data)}
	}
	if tooLarge {
		return nil, fmt.Errorf("%w: %s body exceeds %d bytes", ErrResponseTooLarge, path, maxResponseBytes)
	}
	return data, nil
}

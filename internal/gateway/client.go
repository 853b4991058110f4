package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
	"github.com/oshokin/warehouse-alarms/internal/version"
)

const (
	// CacheBustParam is appended to read requests to defeat intermediary caches.
	CacheBustParam = "_ts"

	// defaultHTTPTimeout is the outer bound for requests without a context deadline.
	defaultHTTPTimeout = 10 * time.Second

	// maxBodySize caps the response size read from upstream.
	maxBodySize = 4 << 20
)

var (
	// ErrHTTPStatus is returned for non-2xx responses.
	ErrHTTPStatus = errors.New("unexpected http status")
	// ErrUnsuccessful is returned when the envelope reports success=false.
	ErrUnsuccessful = errors.New("upstream reported failure")
	// ErrShape is returned when the response does not match the expected envelope.
	ErrShape = errors.New("unexpected response shape")
	// errEmptyURL is returned when no base URL is provided.
	errEmptyURL = errors.New("empty base url")
)

// Client talks to gateway and store endpoints.
type Client struct {
	// http performs the requests.
	http *http.Client
	// now produces cache-busting timestamps.
	now func() time.Time
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.http = httpClient
		}
	}
}

// WithClock overrides the clock used for cache-busting parameters.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New creates a client.
func New(opts ...Option) *Client {
	c := &Client{
		http: &http.Client{Timeout: defaultHTTPTimeout},
		now:  time.Now,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// envelope is the common response shape of every endpoint.
type envelope struct {
	// Success is a pointer so a missing field is told apart from false.
	Success *bool `json:"success"`
	// Data is narrowed by the caller.
	Data json.RawMessage `json:"data"`
}

// hasData reports whether the envelope carries a non-null payload.
func (e *envelope) hasData() bool {
	trimmed := strings.TrimSpace(string(e.Data))

	return trimmed != "" && trimmed != "null"
}

// FetchStatus reads the current raw status snapshot of a device.
// When data is an array only the first element is used.
func (c *Client) FetchStatus(ctx context.Context, baseURL, path string) (alarm.RawStatusRecord, error) {
	env, err := c.get(ctx, baseURL, path, true)
	if err != nil {
		return nil, err
	}

	if !env.hasData() {
		return nil, fmt.Errorf("%w: status without data", ErrShape)
	}

	return decodeStatus(env.Data)
}

// FetchAlarms reads a list of discrete alarm objects.
func (c *Client) FetchAlarms(ctx context.Context, baseURL, path string) ([]RawAlarm, error) {
	env, err := c.get(ctx, baseURL, path, true)
	if err != nil {
		return nil, err
	}

	if !env.hasData() {
		return nil, fmt.Errorf("%w: alarm list without data", ErrShape)
	}

	return decodeAlarms(env.Data)
}

// FetchHistory reads the alarm history of a component from the store.
func (c *Client) FetchHistory(ctx context.Context, baseURL, path string) ([]RawAlarm, error) {
	env, err := c.get(ctx, baseURL, path, true)
	if err != nil {
		return nil, err
	}

	if !env.hasData() {
		return []RawAlarm{}, nil
	}

	return decodeAlarms(env.Data)
}

// Sync asks the backing store to refresh its mirror of a source.
func (c *Client) Sync(ctx context.Context, baseURL, path string) error {
	_, err := c.get(ctx, baseURL, path, false)

	return err
}

// get performs a GET and validates the envelope.
func (c *Client) get(ctx context.Context, baseURL, path string, bustCache bool) (*envelope, error) {
	target, err := c.buildURL(baseURL, path, bustCache)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", path, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: %d from %s", ErrHTTPStatus, resp.StatusCode, path)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var env envelope
	if err = json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("%w: decode envelope: %w", ErrShape, err)
	}

	if env.Success == nil {
		return nil, fmt.Errorf("%w: missing success flag", ErrShape)
	}

	if !*env.Success {
		return nil, fmt.Errorf("%w: %s", ErrUnsuccessful, path)
	}

	return &env, nil
}

// buildURL joins base and path and appends the cache-busting parameter.
func (c *Client) buildURL(baseURL, path string, bustCache bool) (string, error) {
	if baseURL == "" {
		return "", errEmptyURL
	}

	u, err := url.Parse(strings.TrimRight(baseURL, "/") + "/" + strings.TrimLeft(path, "/"))
	if err != nil {
		return "", fmt.Errorf("parse url: %w", err)
	}

	if bustCache {
		query := u.Query()
		query.Set(CacheBustParam, strconv.FormatInt(c.now().UnixMilli(), 10))
		u.RawQuery = query.Encode()
	}

	return u.String(), nil
}

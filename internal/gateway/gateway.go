// Package gateway fetches authoritative snapshots from the REST API.
//
// Each call is one request with no retry. The gateway never touches local
// state; the caller decides how to merge what it returns.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/mmynk/whobought/internal/metrics"
	"github.com/mmynk/whobought/internal/middleware"
	"github.com/mmynk/whobought/internal/models"
)

const (
	defaultHttpTimeout        = 10 * time.Second
	defaultHttpConnectTimeout = 5 * time.Second
	defaultHttpTlsTimeout     = 5 * time.Second

	// maxErrorBody bounds how much of an error response is read.
	maxErrorBody = 64 << 10
)

var ErrNotFound = errors.New("gateway: not found")

// APIError is a non-2xx response. Message comes from the {message} body when present.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api error: status %d", e.StatusCode)
	}
	return fmt.Sprintf("api error: status %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match a 404.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == http.StatusNotFound
}

// Options configure a Client.
type Options struct {
	// Token is sent as a Bearer token. Empty means unauthenticated.
	Token string
	// Timeout bounds each request. Zero uses the default.
	Timeout time.Duration
	// Transport is the innermost RoundTripper. Nil uses a dialer with
	// connect and TLS timeouts.
	Transport http.RoundTripper
	Logger    *slog.Logger
	// Now is used to check token expiry. Nil means time.Now.
	Now func() time.Time
}

// Client is the REST accessor for users and groups.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func defaultTransport() http.RoundTripper {
	dialer := &net.Dialer{
		Timeout: defaultHttpConnectTimeout,
	}
	return &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		DialContext:         dialer.DialContext,
		TLSHandshakeTimeout: defaultHttpTlsTimeout,
	}
}

// New creates a client for the API rooted at baseURL (e.g.
// "https://example.com/api/v1/whobought").
func New(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultHttpTimeout
	}
	if opts.Transport == nil {
		opts.Transport = defaultTransport()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: middleware.Chain(opts.Transport,
				middleware.RequestID(),
				middleware.Logging(opts.Logger),
				middleware.BearerAuth(opts.Token, opts.Now),
			),
		},
	}
}

// FetchUser returns the authenticated user. A missing user yields an error
// matching ErrNotFound.
func (c *Client) FetchUser(ctx context.Context) (*models.User, error) {
	user := &models.User{}
	if err := c.get(ctx, "fetch_user", "/user", user); err != nil {
		return nil, err
	}
	return user, nil
}

// FetchGroup returns the full group (members and expenses).
func (c *Client) FetchGroup(ctx context.Context, groupID string) (*models.Group, error) {
	if groupID == "" {
		return nil, fmt.Errorf("group id required")
	}
	group := &models.Group{}
	if err := c.get(ctx, "fetch_group", "/group/"+url.PathEscape(groupID), group); err != nil {
		return nil, err
	}
	return group, nil
}

func (c *Client) get(ctx context.Context, op, path string, result any) error {
	start := time.Now()
	code := "error"
	defer func() {
		metrics.GatewayRequests.WithLabelValues(op, code).Inc()
		metrics.GatewayLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", strings.ReplaceAll(op, "_", " "), err)
	}
	defer resp.Body.Close()
	code = strconv.Itoa(resp.StatusCode)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil || len(body) == 0 {
		return apiErr
	}
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &payload) == nil {
		apiErr.Message = payload.Message
	}
	return apiErr
}

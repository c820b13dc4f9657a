package connection

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 10 * time.Second

// HTTPClient provides HTTP communication with a node.
type HTTPClient struct {
	baseURL   string
	client    *http.Client
	userAgent string
}

// ClientOption configures an HTTPClient.
type ClientOption func(*clientOptions)

type clientOptions struct {
	tlsConfig *tls.Config
}

// WithTLSConfig makes the client speak HTTPS with cfg. A server given as
// host:port is then reached over https.
func WithTLSConfig(cfg *tls.Config) ClientOption {
	return func(o *clientOptions) {
		o.tlsConfig = cfg
	}
}

// NewHTTPClient creates a client for server, given as host:port or URL.
func NewHTTPClient(server, version string, opts ...ClientOption) *HTTPClient {
	var o clientOptions
	for _, opt := range opts {
		opt(&o)
	}

	baseURL := server
	if !strings.HasPrefix(baseURL, "http://") && !strings.HasPrefix(baseURL, "https://") {
		scheme := "http://"
		if o.tlsConfig != nil {
			scheme = "https://"
		}
		baseURL = scheme + baseURL
	}

	client := &http.Client{Timeout: DefaultTimeout}
	if o.tlsConfig != nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = o.tlsConfig
		client.Transport = transport
	}

	return &HTTPClient{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		userAgent: "libos-exitctl/" + version,
		client:    client,
	}
}

// Get performs a GET request. A non-empty accept is sent as the Accept
// header. Responses with status 400 or above are returned as errors.
func (c *HTTPClient) Get(ctx context.Context, path, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if msg := strings.TrimSpace(string(body)); msg != "" {
			return nil, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, msg)
		}
		return nil, fmt.Errorf("request failed with status %d", resp.StatusCode)
	}
	return resp, nil
}

// BaseURL returns the base URL of the client.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

package speedtest

import (
	"context"
	"io"
	"net/http"

	"github.com/allaspectsdev/provswitch/internal/tracing"
	"github.com/allaspectsdev/provswitch/internal/version"
)

// maxDrain bounds how much of a response body is read before closing.
const maxDrain = 64 << 10

// Transport performs one probe request against url and returns the HTTP
// status code. It must honor ctx cancellation.
type Transport interface {
	Probe(ctx context.Context, url string) (status int, err error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, url string) (int, error)

func (f TransportFunc) Probe(ctx context.Context, url string) (int, error) { return f(ctx, url) }

// HTTPTransport probes with a plain GET. The request deadline comes from ctx.
type HTTPTransport struct {
	Client    *http.Client
	UserAgent string
}

// NewHTTPTransport returns a transport with its own connection pool so
// probes do not share keep-alive connections with other clients.
func NewHTTPTransport(userAgent string) *HTTPTransport {
	if userAgent == "" {
		userAgent = "provswitch/" + version.Version
	}
	return &HTTPTransport{
		Client:    &http.Client{Transport: http.DefaultTransport.(*http.Transport).Clone()},
		UserAgent: userAgent,
	}
}

func (t *HTTPTransport) Probe(ctx context.Context, url string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("User-Agent", t.UserAgent)
	tracing.InjectHeaders(ctx, req)

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
	return resp.StatusCode, nil
}

// CloseIdle releases pooled connections.
func (t *HTTPTransport) CloseIdle() {
	if t.Client != nil {
		t.Client.CloseIdleConnections()
	}
}

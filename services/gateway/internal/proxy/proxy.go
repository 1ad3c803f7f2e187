package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/diagnosis/gatepass/pkg/logger"
)

// hop-by-hop headers are never forwarded in either direction
var hopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Proxy-Connection",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
}

// ServiceProxy forwards requests to one upstream service.
type ServiceProxy struct {
	name    string
	baseURL string
	client  *http.Client
}

func NewServiceProxy(name, baseURL string, timeout time.Duration) *ServiceProxy {
	return &ServiceProxy{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
			// upstream redirects go back to the caller untouched
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
	}
}

func (p *ServiceProxy) Name() string { return p.name }

// ProxyRequest sends method+path to the upstream. The caller owns the
// returned response body.
func (p *ServiceProxy) ProxyRequest(ctx context.Context, method, path, rawQuery string, body io.Reader, header http.Header) (*http.Response, error) {
	target := p.baseURL + path
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header = header.Clone()
	if req.Header == nil {
		req.Header = http.Header{}
	}
	StripHopHeaders(req.Header)

	if requestID, ok := ctx.Value(logger.RequestIDKey).(string); ok && requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
	req.Header.Set("X-Gateway-Forwarded", "true")

	logger.DebugContext(ctx, "Proxying request",
		"upstream", p.name,
		"method", method,
		"path", path,
	)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", p.name, err)
	}
	return resp, nil
}

func StripHopHeaders(h http.Header) {
	for _, key := range hopHeaders {
		h.Del(key)
	}
}

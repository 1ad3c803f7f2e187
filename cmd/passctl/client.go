package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/diagnosis/gatepass/pkg/logger"
	"github.com/google/go-querystring/query"
)

// apiClient talks to the gateway's /v1 surface.
type apiClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func newAPIClient(baseURL, token string, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type apiError struct {
	Status  int
	Code    string `json:"code"`
	Message string `json:"error"`
	Details string `json:"details"`
}

func (e *apiError) Error() string {
	msg := fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
	if e.Details != "" {
		msg += " (" + e.Details + ")"
	}
	return msg
}

type request struct {
	method string
	path   string
	query  any // struct with `url` tags
	body   any
	header map[string]string
}

// do sends req and decodes a JSON response into out. When raw is non-nil the
// body is copied there instead.
func (c *apiClient) do(ctx context.Context, req request, out any, raw io.Writer) (*http.Response, error) {
	target := c.baseURL + req.path
	if req.query != nil {
		v, err := query.Values(req.query)
		if err != nil {
			return nil, fmt.Errorf("failed to encode query: %w", err)
		}
		if enc := v.Encode(); enc != "" {
			target += "?" + enc
		}
	}

	var body io.Reader
	if req.body != nil {
		buf, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode body: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.token)
	}
	for k, v := range req.header {
		httpReq.Header.Set(k, v)
	}

	logger.DebugContext(ctx, "API request", "method", req.method, "path", req.path)
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.method, req.path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &apiError{Status: resp.StatusCode}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return resp, apiErr
	}

	switch {
	case raw != nil:
		if _, err := io.Copy(raw, resp.Body); err != nil {
			return resp, fmt.Errorf("failed to read response: %w", err)
		}
	case out != nil:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp, fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return resp, nil
}

// Package proxy forwards authorized requests to the configured backend and
// relays its responses. There is a single fixed backend: no retries, no
// failover, no load balancing.
package proxy

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout bounds the upstream call when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// UnavailableError reports a network-level failure to reach the backend:
// connection refused, timeout, or DNS failure. The handler maps it to 503.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("backend service unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// BackendResponse is a relayed upstream response. Error statuses from the
// backend are still responses, not errors; only transport failures surface
// as *UnavailableError.
type BackendResponse struct {
	Status int
	Header http.Header
	Body   []byte
}

// ContentType returns the upstream Content-Type header.
func (r *BackendResponse) ContentType() string {
	return r.Header.Get("Content-Type")
}

// Forwarder dispatches requests to the single configured backend.
type Forwarder struct {
	base   *url.URL
	client *http.Client
}

// New creates a Forwarder for the backend base URL. timeout bounds each
// upstream call; zero means DefaultTimeout.
func New(backendURL string, timeout time.Duration) (*Forwarder, error) {
	base, err := url.Parse(backendURL)
	if err != nil {
		return nil, fmt.Errorf("parse backend url %q: %w", backendURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("backend url %q must include scheme and host", backendURL)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Forwarder{
		base:   base,
		client: &http.Client{Timeout: timeout},
	}, nil
}

// Forward sends the request to the backend, preserving method, path, query,
// headers and body, and reads the full response.
func (f *Forwarder) Forward(ctx context.Context, method, path, rawQuery string, header http.Header, body io.Reader) (*BackendResponse, error) {
	target := *f.base
	target.Path = joinPath(f.base.Path, path)
	target.RawQuery = rawQuery

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	for k, vals := range header {
		// Host is derived from the target URL.
		if http.CanonicalHeaderKey(k) == "Host" {
			continue
		}
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnavailableError{Err: err}
	}

	return &BackendResponse{
		Status: resp.StatusCode,
		Header: resp.Header,
		Body:   data,
	}, nil
}

func joinPath(base, path string) string {
	if base == "" || base == "/" {
		return path
	}
	if len(base) > 0 && base[len(base)-1] == '/' {
		base = base[:len(base)-1]
	}
	return base + path
}

package backend

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"

	"transitquery/internal/logging"
)

// maxResponseSize bounds how much of a provider response is read.
const maxResponseSize = 16 * 1024 * 1024

// defaultHTTPClient is shared by backends that were not given their own
// client. The transport is cloned from http.DefaultTransport to keep its
// proxy, dialer and HTTP/2 defaults.
var defaultHTTPClient = newHTTPClient()

func newHTTPClient() *http.Client {
	var transport *http.Transport
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		transport = t.Clone()
	} else {
		transport = &http.Transport{}
	}
	transport.MaxIdleConns = 50
	transport.MaxIdleConnsPerHost = 10
	transport.IdleConnTimeout = 90 * time.Second
	transport.TLSHandshakeTimeout = 10 * time.Second
	transport.ExpectContinueTimeout = 1 * time.Second
	// responses are decompressed in readBody
	transport.DisableCompression = true

	return &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}
}

// Get issues a GET request and returns the response body.
func (b *Base) Get(ctx context.Context, kind, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	mergeHeader(req.Header, header)
	return b.Do(req, kind)
}

// PostJSON posts payload as application/json and returns the response body.
func (b *Base) PostJSON(ctx context.Context, kind, url string, payload []byte, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	mergeHeader(req.Header, header)
	return b.Do(req, kind)
}

// Do sends req, honouring the backend's rate limit, and returns the decoded
// body. Non-2xx responses yield a *StatusError carrying the body.
func (b *Base) Do(req *http.Request, kind string) ([]byte, error) {
	ctx := req.Context()
	logger := logging.FromContext(ctx).With(slog.String("backend", b.id))

	if b.limiter != nil {
		waitStart := time.Now()
		if err := b.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("rate limiter: %w", ctxErr)
			}
			// the wait would outlast the context deadline
			return nil, fmt.Errorf("rate limiter: %w: %v", context.DeadlineExceeded, err)
		}
		b.metrics.ObserveRateLimitWait(b.id, time.Since(waitStart))
	}

	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip")
	}

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		b.metrics.ObserveBackendRequest(b.id, kind, "network_error", time.Since(start))
		return nil, fmt.Errorf("%s request failed: %w", kind, err)
	}
	defer logging.SafeCloseWithLogging(resp.Body, logger, "http_response_body")

	body, err := readBody(resp)
	duration := time.Since(start)
	logging.LogHTTPRequest(logger, req.Method, req.URL.Redacted(), resp.StatusCode,
		float64(duration.Nanoseconds())/1e6, slog.String("kind", kind))
	if err != nil {
		b.metrics.ObserveBackendRequest(b.id, kind, "network_error", duration)
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b.metrics.ObserveBackendRequest(b.id, kind, "http_error", duration)
		return nil, &StatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        req.URL.Redacted(),
			Body:       body,
		}
	}

	b.metrics.ObserveBackendRequest(b.id, kind, "ok", duration)
	return body, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	var r io.Reader = resp.Body
	if strings.EqualFold(resp.Header.Get("Content-Encoding"), "gzip") {
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip response: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	body, err := io.ReadAll(io.LimitReader(r, maxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > maxResponseSize {
		return nil, fmt.Errorf("response exceeds size limit of %d bytes", maxResponseSize)
	}
	return body, nil
}

func mergeHeader(dst, src http.Header) {
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
}

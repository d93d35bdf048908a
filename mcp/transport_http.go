package mcp

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	httpRequestTimeout = 120 * time.Second

	// defaultRequestsPerSecond bounds outbound calls per HTTP transport.
	defaultRequestsPerSecond = 10
)

// httpTransport reaches a server with one HTTP request per outbound message.
// There is no persistent connection, so every call is independently
// retryable by the caller. The https variant additionally requires an
// encrypted scheme and verifies certificates — a validation failure is
// terminal, never silently downgraded to plain HTTP.
type httpTransport struct {
	endpoint string
	secure   bool
	client   *http.Client
	limiter  *rate.Limiter
	ch       chan *Response

	closeOnce sync.Once
	closed    chan struct{}
}

var _ Transport = (*httpTransport)(nil)

func newHTTPTransport(cfg ServerConfig) (*httpTransport, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, cfg.Name, err)
	}

	secure := cfg.Transport == TransportHTTPS
	if secure && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s: https transport requires an https:// url, got %q",
			ErrInvalidConfig, cfg.Name, u.Scheme)
	}
	if !secure && u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: %s: unsupported url scheme %q", ErrInvalidConfig, cfg.Name, u.Scheme)
	}

	client := &http.Client{Timeout: httpRequestTimeout}
	if secure {
		// Default verification, spelled out so it cannot be relaxed by a
		// shared default transport.
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{MinVersion: tls.VersionTLS12},
		}
	}

	return &httpTransport{
		endpoint: cfg.URL,
		secure:   secure,
		client:   client,
		limiter:  rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultRequestsPerSecond),
		ch:       make(chan *Response, 16),
		closed:   make(chan struct{}),
	}, nil
}

// Connect probes nothing: HTTP is connectionless, so readiness is decided by
// the first request. Only the handle state is prepared here.
func (t *httpTransport) Connect(_ context.Context) error {
	select {
	case <-t.closed:
		return fmt.Errorf("%w: transport closed", ErrConnection)
	default:
		return nil
	}
}

func (t *httpTransport) Send(ctx context.Context, req *Request) error {
	select {
	case <-t.closed:
		return fmt.Errorf("%w: transport closed", ErrTransport)
	default:
	}

	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("%w: encode request: %v", ErrTransport, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		if t.secure && isCertificateError(err) {
			return fmt.Errorf("%w: certificate validation failed: %v", ErrConnection, err)
		}
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		return fmt.Errorf("%w: server returned %s", ErrTransport, httpResp.Status)
	}

	// Notifications are acknowledged with an empty body; nothing to queue.
	if req.ID == 0 {
		_, _ = io.Copy(io.Discard, httpResp.Body)
		return nil
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrTransport, err)
	}

	select {
	case t.ch <- &resp:
		return nil
	case <-t.closed:
		return fmt.Errorf("%w: transport closed", ErrTransport)
	}
}

func (t *httpTransport) Receive() <-chan *Response { return t.ch }

func (t *httpTransport) Err() error { return nil }

func (t *httpTransport) Close() error {
	// The receive channel is left open: Send goroutines may still hold a
	// reference, and readers observe shutdown through their own connection
	// state rather than channel closure.
	t.closeOnce.Do(func() {
		close(t.closed)
		t.client.CloseIdleConnections()
	})
	return nil
}

// isCertificateError reports whether err stems from TLS certificate
// verification.
func isCertificateError(err error) bool {
	var certErr *tls.CertificateVerificationError
	return errors.As(err, &certErr)
}

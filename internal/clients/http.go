// Package clients calls the collaborator services of the order mesh: the
// user directory and the inventory catalog. Clients built by NewHTTPClient
// open a client span per call and carry the caller's trace context in the
// outbound headers.
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// ErrNotFound reports that the collaborator answered and confirmed the
// requested resource does not exist.
var ErrNotFound = errors.New("resource not found")

// TransportError reports that a collaborator call did not produce a usable
// answer: network failure, timeout, unexpected status or malformed body.
type TransportError struct {
	Service    string
	StatusCode int // Zero when no response was received.
	Err        error
}

// Error names the collaborator and either the status it answered with or
// the underlying failure.
func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewHTTPClient returns the client shared by all collaborator calls. Its
// transport is instrumented with otelhttp, so every request gets a client
// span and W3C trace headers from the global propagator.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Host
			}),
		),
	}
}

// jsonCaller performs GET requests against one collaborator and decodes
// JSON answers.
type jsonCaller struct {
	service string
	baseURL string
	client  *http.Client
	log     *logrus.Entry
}

func newJSONCaller(service, baseURL string, client *http.Client, logger *logrus.Entry) jsonCaller {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return jsonCaller{
		service: service,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		log:     logger.WithField("collaborator", service),
	}
}

// getJSON fetches path and decodes the body into out. A 404 maps to
// ErrNotFound; every other failure is a *TransportError.
func (c jsonCaller) getJSON(ctx context.Context, path string, out any) error {
	url := c.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return c.fail(ctx, &TransportError{Service: c.service, Err: err})
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return c.fail(ctx, &TransportError{Service: c.service, Err: err})
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		c.log.WithContext(ctx).WithField("url", url).Info("Collaborator reported resource not found")
		return ErrNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return c.fail(ctx, &TransportError{Service: c.service, StatusCode: resp.StatusCode})
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return c.fail(ctx, &TransportError{Service: c.service, Err: fmt.Errorf("decode response: %w", err)})
	}
	return nil
}

func (c jsonCaller) fail(ctx context.Context, err *TransportError) error {
	c.log.WithContext(ctx).WithError(err).Error("Collaborator call failed")
	return err
}

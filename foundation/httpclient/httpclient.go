// Package httpclient provides basic traced http functions
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxErrorBodyBytes limits how much of a failed response body is kept in StatusError
const maxErrorBodyBytes = 512

// StatusError is returned when a request completes with a non 2xx status code
type StatusError struct {
	Url        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned status %d: %s", e.Url, e.StatusCode, e.Body)
}

// Response contains the body and caching information of a successful GET
type Response struct {
	Body                  []byte
	ETag                  string
	LastModifiedTimestamp int64
}

// Client performs GET requests through an otelhttp instrumented transport
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	tracer     trace.Tracer
}

// NewClient creates a Client with timeout. headers are added to every request
func NewClient(timeout time.Duration, headers map[string]string) *Client {
	return &Client{
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
		headers: headers,
		tracer:  otel.Tracer("httpclient"),
	}
}

// Get retrieves url. Transport failures are returned wrapped, non 2xx responses as *StatusError
func (c *Client) Get(ctx context.Context, url string) (*Response, error) {
	ctx, span := c.tracer.Start(ctx, "httpclient.get",
		trace.WithAttributes(attribute.String("http.url", url)))
	defer span.End()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for name, value := range c.headers {
		req.Header.Set(name, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		statusErr := &StatusError{Url: url, StatusCode: resp.StatusCode, Body: string(body)}
		recordError(span, statusErr)
		return nil, statusErr
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	span.SetAttributes(attribute.Int("response.size_bytes", len(body)))
	span.SetStatus(codes.Ok, "")

	result := Response{
		Body: body,
		ETag: resp.Header.Get("ETag"),
	}
	lastModifiedString := resp.Header.Get("Last-Modified")
	if len(lastModifiedString) > 0 {
		parsedTime, err := time.Parse(time.RFC1123, lastModifiedString)
		if err == nil {
			result.LastModifiedTimestamp = parsedTime.Unix()
		}
	}
	return &result, nil
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

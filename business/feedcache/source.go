package feedcache

import (
	"context"
	"log"
	"time"

	"github.com/OpenTransitTools/transittrack/business/data/realtime"
	"github.com/OpenTransitTools/transittrack/foundation/httpclient"
)

// Source retrieves the latest realtime feed from upstream
type Source interface {
	Fetch(ctx context.Context) (*realtime.Feed, error)
}

// HTTPSource retrieves a GTFS-realtime protobuf feed over http
type HTTPSource struct {
	log    *log.Logger
	client *httpclient.Client
	url    string
}

// NewHTTPSource creates HTTPSource for url. When apiKeyHeader is set apiKey is sent in it
func NewHTTPSource(log *log.Logger, url string, timeout time.Duration, apiKeyHeader string, apiKey string) *HTTPSource {
	headers := map[string]string{"Accept": "application/x-protobuf"}
	if apiKeyHeader != "" {
		headers[apiKeyHeader] = apiKey
	}
	return &HTTPSource{
		log:    log,
		client: httpclient.NewClient(timeout, headers),
		url:    url,
	}
}

// Fetch retrieves and decodes the feed. failures are returned as *FeedError
func (h *HTTPSource) Fetch(ctx context.Context) (*realtime.Feed, error) {
	resp, err := h.client.Get(ctx, h.url)
	if err != nil {
		return nil, classifyFetchError(err)
	}
	feed, err := realtime.DecodeFeed(h.log, resp.Body, time.Now())
	if err != nil {
		return nil, &FeedError{Kind: Malformed, Err: err}
	}
	return feed, nil
}

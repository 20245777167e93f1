package feedcache

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	gtfsrtproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/OpenTransitTools/transittrack/foundation/httpclient"
	"github.com/matryer/is"
	"google.golang.org/protobuf/proto"
)

func testFeedMessageBytes(t *testing.T) []byte {
	feedMessage := gtfsrtproto.FeedMessage{
		Header: &gtfsrtproto.FeedHeader{
			GtfsRealtimeVersion: proto.String("2.0"),
			Timestamp:           proto.Uint64(1718038800),
		},
		Entity: []*gtfsrtproto.FeedEntity{
			{
				Id: proto.String("1"),
				TripUpdate: &gtfsrtproto.TripUpdate{
					Trip: &gtfsrtproto.TripDescriptor{TripId: proto.String("1000"), RouteId: proto.String("100")},
				},
			},
		},
	}
	data, err := proto.Marshal(&feedMessage)
	if err != nil {
		t.Fatalf("unable to marshal test feed: %v", err)
	}
	return data
}

func TestHTTPSource_Fetch(t *testing.T) {
	is := is.New(t)
	feedBytes := testFeedMessageBytes(t)
	var receivedKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedKey = r.Header.Get("x-api-key")
		_, _ = w.Write(feedBytes)
	}))
	defer server.Close()

	source := NewHTTPSource(makeTestLogWriter().log, server.URL, 5*time.Second, "x-api-key", "secret")
	feed, err := source.Fetch(context.Background())
	is.NoErr(err)
	is.Equal("secret", receivedKey)
	is.Equal(1, len(feed.Trips))
	is.Equal("1000", feed.Trips[0].Key())
}

func TestHTTPSource_FetchFailures(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		body          []byte
		wantKind      FeedErrorKind
		wantRetryable bool
	}{
		{name: "rate limited", status: http.StatusTooManyRequests, wantKind: RateLimited, wantRetryable: true},
		{name: "gateway", status: http.StatusBadGateway, wantKind: Gateway, wantRetryable: true},
		{name: "bad request", status: http.StatusForbidden, wantKind: BadRequest, wantRetryable: false},
		{name: "malformed", status: http.StatusOK, body: []byte("<html></html>"), wantKind: Malformed, wantRetryable: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			is := is.New(t)
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write(tt.body)
			}))
			defer server.Close()

			source := NewHTTPSource(makeTestLogWriter().log, server.URL, 5*time.Second, "", "")
			_, err := source.Fetch(context.Background())
			var feedErr *FeedError
			is.True(errors.As(err, &feedErr))
			is.Equal(tt.wantKind, feedErr.Kind)
			is.Equal(tt.wantRetryable, feedErr.Retryable())
		})
	}
}

func Test_classifyFetchError(t *testing.T) {
	is := is.New(t)

	err := classifyFetchError(&httpclient.StatusError{StatusCode: 429})
	is.True(errors.Is(err, ErrRateLimited))
	is.Equal(429, err.StatusCode)

	err = classifyFetchError(&httpclient.StatusError{StatusCode: 503})
	is.True(errors.Is(err, ErrGateway))
	is.True(!errors.Is(err, ErrRateLimited))

	err = classifyFetchError(errors.New("connection refused"))
	is.Equal(Network, err.Kind)
	is.True(err.Retryable())
	is.Equal("realtime feed network: connection refused", err.Error())
}

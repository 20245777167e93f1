package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestCollector_Handler(t *testing.T) {
	is := is.New(t)
	c := NewCollector()
	c.CacheHit()
	c.CacheMiss()
	c.StoreError("get")
	c.FetchCompleted("rate_limited", 20*time.Millisecond)
	c.EstimateObserved("estimating")
	c.PublishObserved(nil)
	c.PublishObserved(errors.New("closed"))
	c.SetTrackedTrips(3)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	is.NoErr(err)
	text := string(body)
	is.True(strings.Contains(text, "tracker_feed_cache_hits_total 1"))
	is.True(strings.Contains(text, `tracker_feed_fetches_total{outcome="rate_limited"} 1`))
	is.True(strings.Contains(text, `tracker_feed_cache_store_errors_total{op="get"} 1`))
	is.True(strings.Contains(text, `tracker_estimates_total{state="estimating"} 1`))
	is.True(strings.Contains(text, "tracker_estimate_publish_errors_total 1"))
	is.True(strings.Contains(text, "tracker_tracked_trips 3"))
}

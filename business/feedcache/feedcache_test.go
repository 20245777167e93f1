package feedcache

import (
	"context"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OpenTransitTools/transittrack/business/data/realtime"
	"github.com/OpenTransitTools/transittrack/business/geo"
	"github.com/bluele/gcache"
	"github.com/matryer/is"
)

type testLogWriter struct {
	mu       sync.Mutex
	logLines []string
	log      *log.Logger
}

func makeTestLogWriter() *testLogWriter {
	logWriter := testLogWriter{
		logLines: make([]string, 0),
	}
	logger := log.New(&logWriter, "GTFS_TRACKER : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logWriter.log = logger
	return &logWriter
}

func (t *testLogWriter) Write(p []byte) (n int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.logLines = append(t.logLines, string(p))
	return len(p), nil
}

// testSource counts fetches and returns feed or err after delay
type testSource struct {
	calls atomic.Int32
	delay time.Duration
	feed  *realtime.Feed
	err   error
}

func (s *testSource) Fetch(ctx context.Context) (*realtime.Feed, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.feed, nil
}

type testRecorder struct {
	hits, misses, exhausted, storeErrors atomic.Int32
	mu                                   sync.Mutex
	outcomes                             []string
}

func (r *testRecorder) CacheHit()           { r.hits.Add(1) }
func (r *testRecorder) CacheMiss()          { r.misses.Add(1) }
func (r *testRecorder) WaitExhausted()      { r.exhausted.Add(1) }
func (r *testRecorder) StoreError(_ string) { r.storeErrors.Add(1) }
func (r *testRecorder) FetchCompleted(outcome string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

// failingStore fails every operation
type failingStore struct{}

var errStoreDown = errors.New("store down")

func (failingStore) Get(context.Context, string) ([]byte, error)  { return nil, errStoreDown }
func (failingStore) Put(context.Context, string, []byte) error    { return errStoreDown }
func (failingStore) Create(context.Context, string, []byte) error { return errStoreDown }
func (failingStore) Delete(context.Context, string) error         { return errStoreDown }

var center = geo.Point{Lat: 45.5, Lon: -122.68}

func uint32Ptr(u uint32) *uint32 {
	return &u
}

func int32Ptr(i int32) *int32 {
	return &i
}

func testFeed() *realtime.Feed {
	return &realtime.Feed{
		Timestamp: 1718038800,
		Trips: []realtime.TripRecord{
			&realtime.ScheduledTrip{
				TripHeader: realtime.TripHeader{
					Trip:      realtime.TripDescriptor{TripId: "1000", RouteId: "100", Relationship: realtime.TripScheduled},
					VehicleId: "3501",
					Timestamp: 1718038790,
				},
				StopTimeUpdates: []realtime.StopTimeUpdate{
					{
						StopSequence: uint32Ptr(2),
						Arrival:      &realtime.StopTimeEvent{Delay: int32Ptr(60)},
						Relationship: realtime.StopScheduled,
					},
				},
			},
			&realtime.CanceledTrip{
				TripHeader: realtime.TripHeader{
					Trip: realtime.TripDescriptor{TripId: "2000", RouteId: "100", Relationship: realtime.TripCanceled},
				},
			},
			&realtime.AddedTrip{
				TripHeader: realtime.TripHeader{
					Trip: realtime.TripDescriptor{
						RouteId:      "200",
						DirectionId:  uint32Ptr(0),
						StartDate:    "20240610",
						StartTime:    "10:15:00",
						Relationship: realtime.TripAdded,
					},
				},
			},
		},
		Vehicles: []realtime.Vehicle{
			{Id: "far", Position: geo.Point{Lat: 45.6, Lon: -122.68}},
			{Id: "mid", Position: geo.Point{Lat: 45.51, Lon: -122.68}},
			{Id: "near", Position: geo.Point{Lat: 45.501, Lon: -122.68}},
		},
	}
}

func TestCache_GetByTripIds(t *testing.T) {
	is := is.New(t)
	source := &testSource{feed: testFeed()}
	recorder := &testRecorder{}
	cache := New(makeTestLogWriter().log, source, NewMemoryStore(1000, time.Minute, nil), Config{Recorder: recorder})

	snapshot, err := cache.Get(context.Background(), "1000", "2000", "missing")
	is.NoErr(err)
	is.Equal(2, len(snapshot.TripUpdates))
	is.Equal(0, len(snapshot.AddedTrips))
	_, ok := snapshot.TripUpdates["1000"].(*realtime.ScheduledTrip)
	is.True(ok)
	_, ok = snapshot.TripUpdates["2000"].(*realtime.CanceledTrip)
	is.True(ok)

	// read back from the store
	again, err := cache.Get(context.Background(), "1000", "2000", "missing")
	is.NoErr(err)
	is.Equal(snapshot.TripUpdates, again.TripUpdates)
	is.True(again.FetchedAt.Equal(snapshot.FetchedAt))
	is.Equal(int32(1), source.calls.Load())
	is.Equal(int32(1), recorder.hits.Load())
	is.Equal([]string{"ok"}, recorder.outcomes)
}

func TestCache_GetAddedTrips(t *testing.T) {
	is := is.New(t)
	source := &testSource{feed: testFeed()}
	cache := New(makeTestLogWriter().log, source, NewMemoryStore(1000, time.Minute, nil), Config{})

	for i := 0; i < 2; i++ {
		snapshot, err := cache.Get(context.Background())
		is.NoErr(err)
		is.Equal(0, len(snapshot.TripUpdates))
		is.Equal(1, len(snapshot.AddedTrips))
		added, ok := snapshot.AddedTrips["200_0_20240610_10:15:00_ADDED"].(*realtime.AddedTrip)
		is.True(ok)
		is.Equal("200", added.Trip.RouteId)
	}
	is.Equal(int32(1), source.calls.Load())
}

func TestCache_SingleFlight(t *testing.T) {
	is := is.New(t)
	source := &testSource{feed: testFeed(), delay: 50 * time.Millisecond}
	cache := New(makeTestLogWriter().log, source, NewMemoryStore(1000, time.Minute, nil), Config{
		WaitRetries: 200,
		WaitDelay:   5 * time.Millisecond,
	})

	const callers = 25
	var wg sync.WaitGroup
	results := make([]Snapshot, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = cache.Get(context.Background(), "1000")
		}(i)
	}
	wg.Wait()

	is.Equal(int32(1), source.calls.Load()) // exactly one upstream fetch
	for i := 0; i < callers; i++ {
		is.NoErr(errs[i])
		is.Equal(1, len(results[i].TripUpdates))
	}
	is.True(!cache.fetching.Load())
}

func TestCache_ExpiredSnapshotRefetches(t *testing.T) {
	is := is.New(t)
	clock := gcache.NewFakeClock()
	source := &testSource{feed: testFeed()}
	store := NewMemoryStore(1000, DefaultTTL, clock)
	cache := New(makeTestLogWriter().log, source, store, Config{Now: clock.Now})

	_, err := cache.Get(context.Background(), "1000")
	is.NoErr(err)
	is.Equal(int32(1), source.calls.Load())

	clock.Advance(60 * time.Second)
	_, err = cache.Get(context.Background(), "1000")
	is.NoErr(err)
	is.Equal(int32(1), source.calls.Load()) // still fresh

	clock.Advance(61 * time.Second)
	snapshot, err := cache.Get(context.Background(), "1000")
	is.NoErr(err)
	is.Equal(int32(2), source.calls.Load()) // expired
	is.Equal(1, len(snapshot.TripUpdates))
}

func TestCache_RateLimitedReleasesFlag(t *testing.T) {
	is := is.New(t)
	source := &testSource{err: &FeedError{Kind: RateLimited, StatusCode: 429, Err: errors.New("slow down")}}
	recorder := &testRecorder{}
	store := NewMemoryStore(1000, time.Minute, nil)
	cache := New(makeTestLogWriter().log, source, store, Config{Recorder: recorder})

	snapshot, err := cache.Get(context.Background(), "1000")
	is.True(errors.Is(err, ErrRateLimited))
	is.True(!errors.Is(err, ErrGateway))
	var feedErr *FeedError
	is.True(errors.As(err, &feedErr))
	is.True(feedErr.Retryable())
	is.Equal(0, len(snapshot.TripUpdates))

	is.True(!cache.fetching.Load()) // flag released
	_, err = store.Get(context.Background(), lockKey)
	is.True(errors.Is(err, ErrNotFound)) // shared lock released

	_, err = cache.Get(context.Background(), "1000")
	is.True(errors.Is(err, ErrRateLimited))
	is.Equal(int32(2), source.calls.Load())
	is.Equal([]string{"rate_limited", "rate_limited"}, recorder.outcomes)
}

func TestCache_WaitExhausted(t *testing.T) {
	is := is.New(t)
	source := &testSource{feed: testFeed()}
	recorder := &testRecorder{}
	lockStore := NewMemoryStore(10, time.Minute, nil)
	cache := New(makeTestLogWriter().log, source, NewMemoryStore(1000, time.Minute, nil), Config{
		LockStore:   lockStore,
		Recorder:    recorder,
		WaitRetries: 3,
		WaitDelay:   time.Millisecond,
	})
	// another instance is fetching
	is.NoErr(lockStore.Create(context.Background(), lockKey, []byte("other")))

	snapshot, err := cache.Get(context.Background(), "1000")
	is.NoErr(err)
	is.Equal(0, len(snapshot.TripUpdates))
	is.Equal(int32(0), source.calls.Load())
	is.Equal(int32(1), recorder.exhausted.Load())
	is.True(!cache.fetching.Load())

	// the other instance's lock is left alone
	value, err := lockStore.Get(context.Background(), lockKey)
	is.NoErr(err)
	is.Equal("other", string(value))
}

func TestCache_WaitCanceled(t *testing.T) {
	is := is.New(t)
	cache := New(makeTestLogWriter().log, &testSource{feed: testFeed()}, NewMemoryStore(1000, time.Minute, nil), Config{
		WaitDelay: time.Hour,
	})
	cache.fetching.Store(true) // a fetch is in flight in this process

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	snapshot, err := cache.Get(ctx, "1000")
	is.True(errors.Is(err, context.Canceled))
	is.Equal(0, len(snapshot.TripUpdates))
}

func TestCache_StoreFailureIsColdCache(t *testing.T) {
	is := is.New(t)
	source := &testSource{feed: testFeed()}
	recorder := &testRecorder{}
	cache := New(makeTestLogWriter().log, source, failingStore{}, Config{Recorder: recorder})

	snapshot, err := cache.Get(context.Background(), "1000")
	is.NoErr(err)
	is.Equal(1, len(snapshot.TripUpdates)) // answered from the fetched feed
	_, err = cache.Get(context.Background(), "1000")
	is.NoErr(err)
	is.Equal(int32(2), source.calls.Load())
	is.True(recorder.storeErrors.Load() > 0)
	is.True(!cache.fetching.Load())
}

func TestCache_GetVehiclesNear(t *testing.T) {
	is := is.New(t)
	cache := New(makeTestLogWriter().log, &testSource{feed: testFeed()}, NewMemoryStore(1000, time.Minute, nil), Config{})

	vehicles, err := cache.GetVehiclesNear(context.Background(), center, 2)
	is.NoErr(err)
	is.Equal(2, len(vehicles))
	is.Equal("near", vehicles[0].Id) // nearest first
	is.Equal("mid", vehicles[1].Id)

	// read back from the store
	vehicles, err = cache.GetVehiclesNear(context.Background(), center, 20)
	is.NoErr(err)
	is.Equal(3, len(vehicles))
	is.Equal("far", vehicles[2].Id)

	vehicles, err = cache.GetVehiclesNear(context.Background(), center, 0.05)
	is.NoErr(err)
	is.Equal(0, len(vehicles))
}

func TestMemoryStore(t *testing.T) {
	is := is.New(t)
	ctx := context.Background()
	clock := gcache.NewFakeClock()
	store := NewMemoryStore(10, time.Minute, clock)

	_, err := store.Get(ctx, "a")
	is.True(errors.Is(err, ErrNotFound))

	is.NoErr(store.Create(ctx, "a", []byte("1")))
	is.True(errors.Is(store.Create(ctx, "a", []byte("2")), ErrKeyExists))
	value, err := store.Get(ctx, "a")
	is.NoErr(err)
	is.Equal("1", string(value))

	is.NoErr(store.Put(ctx, "a", []byte("3")))
	value, err = store.Get(ctx, "a")
	is.NoErr(err)
	is.Equal("3", string(value))

	clock.Advance(2 * time.Minute)
	_, err = store.Get(ctx, "a")
	is.True(errors.Is(err, ErrNotFound)) // expired
	is.NoErr(store.Create(ctx, "a", []byte("4")))

	is.NoErr(store.Delete(ctx, "a"))
	_, err = store.Get(ctx, "a")
	is.True(errors.Is(err, ErrNotFound))
}

func Test_tripKey(t *testing.T) {
	is := is.New(t)
	is.Equal("1.trip.MTAwMA", tripKey("1", "1000"))
	is.True(tripKey("1", "a b/c") != tripKey("1", "a_b_c"))
}

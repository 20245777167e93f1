// Package feedcache provides the expiring cache of the upstream realtime feed shared by every request and
// every tracker instance.
// Only one upstream fetch is in flight at a time: callers that find the cache cold while another fetch is
// running wait a bounded number of times for it to complete instead of fetching themselves.
package feedcache

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/OpenTransitTools/transittrack/business/data/realtime"
	"github.com/OpenTransitTools/transittrack/business/geo"
)

const (
	readyKey = "ready"
	lockKey  = "fetching"

	DefaultTTL         = 120 * time.Second
	DefaultWaitRetries = 10
	DefaultWaitDelay   = 300 * time.Millisecond
)

// Recorder receives cache measurements
type Recorder interface {
	CacheHit()
	CacheMiss()
	WaitExhausted()
	StoreError(op string)
	FetchCompleted(outcome string, d time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) CacheHit()                            {}
func (nopRecorder) CacheMiss()                           {}
func (nopRecorder) WaitExhausted()                       {}
func (nopRecorder) StoreError(string)                    {}
func (nopRecorder) FetchCompleted(string, time.Duration) {}

// Config contains the optional settings of a Cache, zero values use defaults
type Config struct {
	// TTL is how long a fetched feed is considered fresh, it should not exceed the expiry of the Store
	TTL time.Duration
	// WaitRetries is the number of times a caller checks for the result of another fetch before giving up
	WaitRetries int
	// WaitDelay is the time between checks
	WaitDelay time.Duration
	// LockStore holds the key marking a fetch in flight across instances, defaults to the cache Store.
	// its expiry bounds how long a crashed instance can block others from fetching
	LockStore Store
	Recorder  Recorder
	Now       func() time.Time
}

// Snapshot is a read of the cache. Its maps must not be modified
type Snapshot struct {
	TripUpdates map[string]realtime.TripRecord `json:"trip_updates"`
	AddedTrips  map[string]realtime.TripRecord `json:"added_trips"`
	FetchedAt   time.Time                      `json:"fetched_at"`
}

// Cache provides the latest realtime feed from Store, fetching it from Source when the Store has no fresh copy
type Cache struct {
	log         *log.Logger
	source      Source
	store       Store
	lockStore   Store
	recorder    Recorder
	ttl         time.Duration
	waitRetries int
	waitDelay   time.Duration
	now         func() time.Time

	// fetching is set while this process has a fetch in flight
	fetching atomic.Bool
}

// New creates Cache
func New(log *log.Logger, source Source, store Store, cfg Config) *Cache {
	c := Cache{
		log:         log,
		source:      source,
		store:       store,
		lockStore:   cfg.LockStore,
		recorder:    cfg.Recorder,
		ttl:         cfg.TTL,
		waitRetries: cfg.WaitRetries,
		waitDelay:   cfg.WaitDelay,
		now:         cfg.Now,
	}
	if c.lockStore == nil {
		c.lockStore = store
	}
	if c.recorder == nil {
		c.recorder = nopRecorder{}
	}
	if c.ttl <= 0 {
		c.ttl = DefaultTTL
	}
	if c.waitRetries <= 0 {
		c.waitRetries = DefaultWaitRetries
	}
	if c.waitDelay <= 0 {
		c.waitDelay = DefaultWaitDelay
	}
	if c.now == nil {
		c.now = time.Now
	}
	return &c
}

// Get returns the cached records of tripIds, or every added trip when no tripIds are given.
// Trip ids not present in the feed are left out of the Snapshot.
// An error is only returned when this call fetched the feed and the fetch failed, the Snapshot is empty then.
// A caller that gave up waiting on another fetch receives an empty Snapshot and a nil error.
func (c *Cache) Get(ctx context.Context, tripIds ...string) (Snapshot, error) {
	snapshot := Snapshot{
		TripUpdates: make(map[string]realtime.TripRecord),
		AddedTrips:  make(map[string]realtime.TripRecord),
	}
	v, err := c.current(ctx)
	if v == nil {
		return snapshot, err
	}
	snapshot.FetchedAt = v.fetchedAt()
	if len(tripIds) > 0 {
		snapshot.TripUpdates = v.trips(ctx, tripIds)
	} else {
		snapshot.AddedTrips = v.added(ctx)
	}
	return snapshot, err
}

// GetVehiclesNear returns the cached vehicles within radiusKm of center, nearest first
func (c *Cache) GetVehiclesNear(ctx context.Context, center geo.Point, radiusKm float64) ([]realtime.Vehicle, error) {
	v, err := c.current(ctx)
	if v == nil {
		return nil, err
	}
	type vehicleDistance struct {
		vehicle  realtime.Vehicle
		distance float64
	}
	radiusMeters := radiusKm * 1000
	var near []vehicleDistance
	for _, vehicle := range v.vehicles(ctx) {
		distance := geo.Distance(center, vehicle.Position)
		if distance <= radiusMeters {
			near = append(near, vehicleDistance{vehicle: vehicle, distance: distance})
		}
	}
	sort.SliceStable(near, func(i, j int) bool {
		return near[i].distance < near[j].distance
	})
	results := make([]realtime.Vehicle, 0, len(near))
	for _, n := range near {
		results = append(results, n.vehicle)
	}
	return results, err
}

// current returns a fresh view of the feed, fetching or waiting for it as needed.
// returns nil only when a fetch failed
func (c *Cache) current(ctx context.Context) (view, error) {
	if v, ok := c.load(ctx); ok {
		c.recorder.CacheHit()
		return v, nil
	}
	c.recorder.CacheMiss()
	if !c.fetching.CompareAndSwap(false, true) {
		return c.wait(ctx)
	}
	defer c.fetching.Store(false)
	return c.refresh(ctx)
}

// refresh fetches the feed unless another instance already is, must only be called while holding fetching
func (c *Cache) refresh(ctx context.Context) (view, error) {
	generation := strconv.FormatInt(c.now().UnixNano(), 10)
	err := c.lockStore.Create(ctx, lockKey, []byte(generation))
	switch {
	case errors.Is(err, ErrKeyExists):
		return c.wait(ctx)
	case err != nil:
		// continue without the shared lock, another instance may fetch at the same time
		c.storeError("create", err)
	default:
		defer c.releaseLock()
	}

	// another fetch may have completed between the first check and taking the lock
	if v, ok := c.load(ctx); ok {
		return v, nil
	}

	start := time.Now()
	feed, err := c.source.Fetch(ctx)
	if err != nil {
		outcome := "error"
		var feedErr *FeedError
		if errors.As(err, &feedErr) {
			outcome = feedErr.Kind.String()
		}
		c.recorder.FetchCompleted(outcome, time.Since(start))
		c.log.Printf("unable to fetch realtime feed: %v\n", err)
		return nil, err
	}
	v := makeFeedView(feed, c.now())
	c.write(ctx, v, generation)
	c.recorder.FetchCompleted("ok", time.Since(start))
	return v, nil
}

func (c *Cache) releaseLock() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := c.lockStore.Delete(ctx, lockKey); err != nil {
		c.storeError("delete", err)
	}
}

// wait checks for a fresh view up to waitRetries times, then gives up with an empty view
func (c *Cache) wait(ctx context.Context) (view, error) {
	for attempt := 0; attempt < c.waitRetries; attempt++ {
		timer := time.NewTimer(c.waitDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return emptyView(), ctx.Err()
		case <-timer.C:
		}
		if v, ok := c.load(ctx); ok {
			return v, nil
		}
	}
	c.recorder.WaitExhausted()
	c.log.Printf("gave up waiting for realtime feed after %d attempts\n", c.waitRetries)
	return emptyView(), nil
}

// readyMarker names the generation of the latest complete write
type readyMarker struct {
	Generation string    `json:"generation"`
	FetchedAt  time.Time `json:"fetched_at"`
}

// load returns a view of the latest complete write in the store if it's still fresh
func (c *Cache) load(ctx context.Context) (view, bool) {
	data, err := c.store.Get(ctx, readyKey)
	if errors.Is(err, ErrNotFound) {
		return nil, false
	}
	if err != nil {
		c.storeError("get", err)
		return nil, false
	}
	var marker readyMarker
	if err = json.Unmarshal(data, &marker); err != nil {
		c.log.Printf("unable to decode feed cache marker, treating as cold cache: %v\n", err)
		return nil, false
	}
	if c.now().Sub(marker.FetchedAt) >= c.ttl {
		return nil, false
	}
	return &storeView{c: c, marker: marker}, true
}

// write stores every part of v under generation keys, then marks generation ready.
// nothing is marked ready if any part fails so readers never see a partial write
func (c *Cache) write(ctx context.Context, v *feedView, generation string) {
	for key, record := range v.byKey {
		data, err := realtime.MarshalRecord(record)
		if err != nil {
			c.log.Printf("unable to encode trip record %s: %v\n", key, err)
			return
		}
		if err = c.store.Put(ctx, tripKey(generation, key), data); err != nil {
			c.storeError("put", err)
			return
		}
	}

	added := make([]realtime.TripRecord, 0, len(v.addedTrips))
	for _, record := range v.addedTrips {
		added = append(added, record)
	}
	data, err := realtime.MarshalRecords(added)
	if err != nil {
		c.log.Printf("unable to encode added trips: %v\n", err)
		return
	}
	if err = c.store.Put(ctx, addedKey(generation), data); err != nil {
		c.storeError("put", err)
		return
	}

	data, err = json.Marshal(v.vehicleList)
	if err != nil {
		c.log.Printf("unable to encode vehicles: %v\n", err)
		return
	}
	if err = c.store.Put(ctx, vehiclesKey(generation), data); err != nil {
		c.storeError("put", err)
		return
	}

	data, err = json.Marshal(readyMarker{Generation: generation, FetchedAt: v.at})
	if err != nil {
		c.log.Printf("unable to encode feed cache marker: %v\n", err)
		return
	}
	if err = c.store.Put(ctx, readyKey, data); err != nil {
		c.storeError("put", err)
	}
}

func (c *Cache) storeError(op string, err error) {
	c.recorder.StoreError(op)
	c.log.Printf("feed cache store %s failed, treating as cold cache: %v\n", op, err)
}

func tripKey(generation string, tripId string) string {
	return generation + ".trip." + base64.RawURLEncoding.EncodeToString([]byte(tripId))
}

func addedKey(generation string) string {
	return generation + ".added"
}

func vehiclesKey(generation string) string {
	return generation + ".vehicles"
}

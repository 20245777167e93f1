package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/OpenTransitTools/transittrack/business/data/gtfs"
	"github.com/OpenTransitTools/transittrack/business/position"
	"github.com/bluele/gcache"
)

// sessionCollection holds a position.Session for every trip being tracked.
// A session is dropped once it hasn't been requested for the collection's expiry, the tracking loop
// only ticks sessions still held
type sessionCollection struct {
	log              *log.Logger
	store            gtfs.Store
	cache            gcache.Cache
	expire           time.Duration
	maxSegmentMeters float64
	sliceCacheSize   int
	disabled         bool
	// loading serializes schedule loads so concurrent requests for one trip share a session
	loading sync.Mutex
}

// makeSessionCollection creates sessionCollection holding up to size sessions
func makeSessionCollection(log *log.Logger,
	store gtfs.Store,
	size int,
	expire time.Duration,
	maxSegmentMeters float64,
	sliceCacheSize int,
	disabled bool,
	clock gcache.Clock) *sessionCollection {
	builder := gcache.New(size).LRU().Expiration(expire)
	if clock != nil {
		builder = builder.Clock(clock)
	}
	return &sessionCollection{
		log:              log,
		store:            store,
		cache:            builder.Build(),
		expire:           expire,
		maxSegmentMeters: maxSegmentMeters,
		sliceCacheSize:   sliceCacheSize,
		disabled:         disabled,
	}
}

// get returns the session tracking tripId, loading the trip's schedule on first request.
// Every request extends the life of the session
func (s *sessionCollection) get(ctx context.Context, tripId string) (*position.Session, error) {
	if session, ok := s.lookup(tripId); ok {
		s.touch(session)
		return session, nil
	}
	s.loading.Lock()
	defer s.loading.Unlock()
	if session, ok := s.lookup(tripId); ok {
		return session, nil
	}

	instance, err := gtfs.LoadTripInstance(ctx, s.store, tripId)
	if err != nil {
		return nil, fmt.Errorf("unable to load trip %s: %w", tripId, err)
	}
	session := position.NewSession(instance, s.maxSegmentMeters, s.sliceCacheSize)
	session.Disabled = s.disabled
	s.touch(session)
	s.log.Printf("tracking trip %s on route %s with %d stops and %d shape points", tripId, instance.RouteId,
		len(instance.StopTimes), len(instance.Shapes))
	return session, nil
}

func (s *sessionCollection) lookup(tripId string) (*position.Session, bool) {
	cached, err := s.cache.Get(tripId)
	if err != nil {
		return nil, false
	}
	session, ok := cached.(*position.Session)
	return session, ok
}

func (s *sessionCollection) touch(session *position.Session) {
	err := s.cache.SetWithExpire(session.Instance.TripId, session, s.expire)
	if err != nil {
		s.log.Printf("unable to cache session for trip %s: %v", session.Instance.TripId, err)
	}
}

// instance returns the trip instance of an existing session, or loads it without starting a session
func (s *sessionCollection) instance(ctx context.Context, tripId string) (*gtfs.TripInstance, error) {
	if session, ok := s.lookup(tripId); ok {
		return session.Instance, nil
	}
	instance, err := gtfs.LoadTripInstance(ctx, s.store, tripId)
	if err != nil {
		return nil, fmt.Errorf("unable to load trip %s: %w", tripId, err)
	}
	return instance, nil
}

// sessions returns every unexpired session.
// Expiry is checked per key through GetIFPresent, which reads the collection's clock
func (s *sessionCollection) sessions() []*position.Session {
	keys := s.cache.Keys(false)
	results := make([]*position.Session, 0, len(keys))
	for _, key := range keys {
		value, err := s.cache.GetIFPresent(key)
		if err != nil {
			continue
		}
		if session, ok := value.(*position.Session); ok {
			results = append(results, session)
		}
	}
	return results
}

// tripIds returns the trip ids of sessions
func tripIds(sessions []*position.Session) []string {
	ids := make([]string, 0, len(sessions))
	for _, session := range sessions {
		ids = append(ids, session.Instance.TripId)
	}
	return ids
}

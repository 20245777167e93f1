package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/OpenTransitTools/transittrack/business/data/gtfs"
	"github.com/OpenTransitTools/transittrack/business/data/realtime"
	"github.com/OpenTransitTools/transittrack/business/geo"
	"github.com/OpenTransitTools/transittrack/business/position"
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

func uint32Ptr(u uint32) *uint32 {
	return &u
}

func int32Ptr(i int32) *int32 {
	return &i
}

func strPtr(s string) *string {
	return &s
}

// testNow is 10:04:30 on the service day of testFeed
func testNow(t *testing.T) time.Time {
	loc, err := time.LoadLocation("America/Los_Angeles")
	if err != nil {
		t.Fatalf("unable to load location: %v", err)
	}
	return time.Date(2024, 6, 10, 10, 4, 30, 0, loc)
}

// testStore is an in memory gtfs.Store holding trip 1000 on route 100 ("Blue")
type testStore struct {
	tripLoads atomic.Int32
	trips     map[string]gtfs.Trip
	stopTimes map[string][]gtfs.StopTime
	stops     map[string]gtfs.Stop
	shapes    map[string][]gtfs.Shape
	routes    map[string]gtfs.Route
}

func makeTestStore() *testStore {
	shapes := make([]gtfs.Shape, 0)
	for i := 0; i < 5; i++ {
		shapes = append(shapes, gtfs.Shape{
			ShapeId:         "s1",
			ShapePtLat:      45.500 + float64(i)*0.001,
			ShapePtLng:      -122.68,
			ShapePtSequence: i + 1,
		})
	}
	return &testStore{
		trips: map[string]gtfs.Trip{
			"1000": {TripId: "1000", RouteId: "100", ServiceId: "W", ShapeId: "s1"},
		},
		stopTimes: map[string][]gtfs.StopTime{
			"1000": {
				{TripId: "1000", StopSequence: 1, StopId: "A", ArrivalTime: "10:00:00", DepartureTime: "10:00:00"},
				{TripId: "1000", StopSequence: 2, StopId: "B", ArrivalTime: "10:05:00", DepartureTime: "10:05:00"},
				{TripId: "1000", StopSequence: 3, StopId: "C", ArrivalTime: "10:10:00", DepartureTime: "10:10:00"},
			},
		},
		stops: map[string]gtfs.Stop{
			"A": {StopId: "A", StopName: "A", StopLat: 45.500, StopLon: -122.68},
			"B": {StopId: "B", StopName: "B", StopLat: 45.502, StopLon: -122.68},
			"C": {StopId: "C", StopName: "C", StopLat: 45.504, StopLon: -122.68},
		},
		shapes: map[string][]gtfs.Shape{"1000": shapes},
		routes: map[string]gtfs.Route{
			"100": {RouteId: "100", RouteShortName: "Blue", RouteLongName: "Blue Line"},
		},
	}
}

func (s *testStore) GetStopTimesForTrip(_ context.Context, tripId string) ([]gtfs.StopTime, error) {
	stopTimes := make([]gtfs.StopTime, len(s.stopTimes[tripId]))
	copy(stopTimes, s.stopTimes[tripId])
	return stopTimes, nil
}

func (s *testStore) GetStopsByIds(_ context.Context, stopIds []string) ([]gtfs.Stop, error) {
	stops := make([]gtfs.Stop, 0)
	var missing []string
	for _, stopId := range stopIds {
		if stop, ok := s.stops[stopId]; ok {
			stops = append(stops, stop)
		} else {
			missing = append(missing, stopId)
		}
	}
	if len(missing) > 0 {
		return stops, &gtfs.MissingStopsError{StopIds: missing}
	}
	return stops, nil
}

func (s *testStore) GetShapeForTrip(_ context.Context, tripId string) ([]gtfs.Shape, error) {
	return s.shapes[tripId], nil
}

func (s *testStore) GetTrip(_ context.Context, tripId string) (*gtfs.Trip, error) {
	s.tripLoads.Add(1)
	trip, ok := s.trips[tripId]
	if !ok {
		return nil, fmt.Errorf("trip_id %s: %w", tripId, gtfs.ErrNotFound)
	}
	return &trip, nil
}

func (s *testStore) GetRouteById(_ context.Context, routeId string) (*gtfs.Route, error) {
	route, ok := s.routes[routeId]
	if !ok {
		return nil, fmt.Errorf("route with route_id %s: %w", routeId, gtfs.ErrNotFound)
	}
	return &route, nil
}

func (s *testStore) GetRouteByShortName(_ context.Context, shortName string) (*gtfs.Route, error) {
	for _, route := range s.routes {
		if route.RouteShortName == shortName {
			r := route
			return &r, nil
		}
	}
	return nil, fmt.Errorf("route with route_short_name %s: %w", shortName, gtfs.ErrNotFound)
}

// testSource returns feed or err
type testSource struct {
	calls atomic.Int32
	feed  *realtime.Feed
	err   error
}

func (s *testSource) Fetch(_ context.Context) (*realtime.Feed, error) {
	s.calls.Add(1)
	if s.err != nil {
		return nil, s.err
	}
	return s.feed, nil
}

// testFeed has trip 1000 running 60 seconds late from stop 2, an added trip on route 100 and two vehicles
func testFeed() *realtime.Feed {
	return &realtime.Feed{
		Timestamp: 1718039070,
		Trips: []realtime.TripRecord{
			&realtime.ScheduledTrip{
				TripHeader: realtime.TripHeader{
					Trip: realtime.TripDescriptor{
						TripId:       "1000",
						RouteId:      "100",
						StartDate:    "20240610",
						Relationship: realtime.TripScheduled,
					},
					VehicleId: "3501",
					Timestamp: 1718039060,
				},
				StopTimeUpdates: []realtime.StopTimeUpdate{
					{
						StopSequence: uint32Ptr(2),
						StopId:       strPtr("B"),
						Arrival:      &realtime.StopTimeEvent{Delay: int32Ptr(60)},
						Relationship: realtime.StopScheduled,
					},
				},
			},
			&realtime.AddedTrip{
				TripHeader: realtime.TripHeader{
					Trip: realtime.TripDescriptor{
						RouteId:      "100",
						DirectionId:  uint32Ptr(0),
						StartDate:    "20240610",
						StartTime:    "10:15:00",
						Relationship: realtime.TripAdded,
					},
					Timestamp: 1718039060,
				},
			},
		},
		Vehicles: []realtime.Vehicle{
			{Id: "3501", TripId: strPtr("1000"), RouteId: strPtr("100"), Position: geo.Point{Lat: 45.5005, Lon: -122.68}},
			{Id: "far", Position: geo.Point{Lat: 45.6, Lon: -122.68}},
		},
	}
}

// testPublisher records published estimates
type testPublisher struct {
	mu        sync.Mutex
	published []string
	err       error
}

func (p *testPublisher) publish(estimate *position.Estimate) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, estimateSubject("test", estimate.RouteId, estimate.TripId))
	return nil
}

// testMetrics records tracking loop measurements
type testMetrics struct {
	mu           sync.Mutex
	trackedTrips int
	states       []string
	ticks        int
}

func (m *testMetrics) SetTrackedTrips(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trackedTrips = n
}

func (m *testMetrics) EstimateObserved(state string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states = append(m.states, state)
}

func (m *testMetrics) TickObserve(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ticks++
}

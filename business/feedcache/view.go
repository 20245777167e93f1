package feedcache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/OpenTransitTools/transittrack/business/data/realtime"
)

// view is one generation of the feed, either just fetched or read back from the store
type view interface {
	fetchedAt() time.Time
	trips(ctx context.Context, tripIds []string) map[string]realtime.TripRecord
	added(ctx context.Context) map[string]realtime.TripRecord
	vehicles(ctx context.Context) []realtime.Vehicle
}

// feedView is a feed held in memory
type feedView struct {
	at          time.Time
	byKey       map[string]realtime.TripRecord
	addedTrips  map[string]realtime.TripRecord
	vehicleList []realtime.Vehicle
}

func makeFeedView(feed *realtime.Feed, at time.Time) *feedView {
	v := feedView{
		at:          at,
		byKey:       make(map[string]realtime.TripRecord, len(feed.Trips)),
		addedTrips:  make(map[string]realtime.TripRecord),
		vehicleList: feed.Vehicles,
	}
	for _, record := range feed.Trips {
		v.byKey[record.Key()] = record
		if _, ok := record.(*realtime.AddedTrip); ok {
			v.addedTrips[record.Key()] = record
		}
	}
	if v.vehicleList == nil {
		v.vehicleList = []realtime.Vehicle{}
	}
	return &v
}

func emptyView() *feedView {
	return makeFeedView(&realtime.Feed{}, time.Time{})
}

func (f *feedView) fetchedAt() time.Time {
	return f.at
}

func (f *feedView) trips(_ context.Context, tripIds []string) map[string]realtime.TripRecord {
	results := make(map[string]realtime.TripRecord)
	for _, tripId := range tripIds {
		if record, ok := f.byKey[tripId]; ok {
			results[tripId] = record
		}
	}
	return results
}

func (f *feedView) added(_ context.Context) map[string]realtime.TripRecord {
	return f.addedTrips
}

func (f *feedView) vehicles(_ context.Context) []realtime.Vehicle {
	return f.vehicleList
}

// storeView reads the generation named by marker from the store.
// parts that can not be read are logged and left out
type storeView struct {
	c      *Cache
	marker readyMarker
}

func (s *storeView) fetchedAt() time.Time {
	return s.marker.FetchedAt
}

func (s *storeView) get(ctx context.Context, key string) ([]byte, bool) {
	data, err := s.c.store.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return nil, false
	}
	if err != nil {
		s.c.storeError("get", err)
		return nil, false
	}
	return data, true
}

func (s *storeView) trips(ctx context.Context, tripIds []string) map[string]realtime.TripRecord {
	results := make(map[string]realtime.TripRecord)
	for _, tripId := range tripIds {
		data, ok := s.get(ctx, tripKey(s.marker.Generation, tripId))
		if !ok {
			continue
		}
		record, err := realtime.UnmarshalRecord(data)
		if err != nil {
			s.c.log.Printf("unable to decode cached trip record %s: %v\n", tripId, err)
			continue
		}
		results[tripId] = record
	}
	return results
}

func (s *storeView) added(ctx context.Context) map[string]realtime.TripRecord {
	results := make(map[string]realtime.TripRecord)
	data, ok := s.get(ctx, addedKey(s.marker.Generation))
	if !ok {
		return results
	}
	records, err := realtime.UnmarshalRecords(data)
	if err != nil {
		s.c.log.Printf("unable to decode cached added trips: %v\n", err)
		return results
	}
	for _, record := range records {
		results[record.Key()] = record
	}
	return results
}

func (s *storeView) vehicles(ctx context.Context) []realtime.Vehicle {
	data, ok := s.get(ctx, vehiclesKey(s.marker.Generation))
	if !ok {
		return nil
	}
	var vehicles []realtime.Vehicle
	if err := json.Unmarshal(data, &vehicles); err != nil {
		s.c.log.Printf("unable to decode cached vehicles: %v\n", err)
		return nil
	}
	return vehicles
}

// Package gtfs provides the static gtfs schedule entities, the store they are read from and
// the service day time model shared by reconciliation and position estimation
package gtfs

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Store is the read only contract static schedule data is retrieved through
type Store interface {
	// GetStopTimesForTrip returns the StopTimes of tripId ordered by StopSequence
	GetStopTimesForTrip(ctx context.Context, tripId string) ([]StopTime, error)
	// GetStopsByIds returns the Stops found for stopIds. Missing stops are reported with *MissingStopsError
	GetStopsByIds(ctx context.Context, stopIds []string) ([]Stop, error)
	// GetShapeForTrip returns the shape points of tripId's shape ordered by shape point sequence
	GetShapeForTrip(ctx context.Context, tripId string) ([]Shape, error)
	GetTrip(ctx context.Context, tripId string) (*Trip, error)
	GetRouteById(ctx context.Context, routeId string) (*Route, error)
	GetRouteByShortName(ctx context.Context, shortName string) (*Route, error)
}

// DBStore implements Store over a postgres database
type DBStore struct {
	Db *sqlx.DB
}

// MakeDBStore creates DBStore
func MakeDBStore(db *sqlx.DB) *DBStore {
	return &DBStore{Db: db}
}

func (s *DBStore) GetStopTimesForTrip(ctx context.Context, tripId string) ([]StopTime, error) {
	return getStopTimesForTrip(ctx, s.Db, tripId)
}

func (s *DBStore) GetStopsByIds(ctx context.Context, stopIds []string) ([]Stop, error) {
	return getStopsByIds(ctx, s.Db, stopIds)
}

func (s *DBStore) GetShapeForTrip(ctx context.Context, tripId string) ([]Shape, error) {
	return getShapeForTrip(ctx, s.Db, tripId)
}

func (s *DBStore) GetTrip(ctx context.Context, tripId string) (*Trip, error) {
	return getTrip(ctx, s.Db, tripId)
}

func (s *DBStore) GetRouteById(ctx context.Context, routeId string) (*Route, error) {
	return getRoute(ctx, s.Db, "route_id", routeId)
}

func (s *DBStore) GetRouteByShortName(ctx context.Context, shortName string) (*Route, error) {
	return getRoute(ctx, s.Db, "route_short_name", shortName)
}

// TripInstance holds a Trip with everything needed to reconcile and track it
type TripInstance struct {
	Trip
	StopTimes []StopTime      `json:"stop_times"`
	Shapes    []Shape         `json:"shapes"`
	Stops     map[string]Stop `json:"stops"`
}

// StopIds returns the stop ids of the trip in stop sequence order
func (t *TripInstance) StopIds() []string {
	stopIds := make([]string, 0, len(t.StopTimes))
	for _, stopTime := range t.StopTimes {
		stopIds = append(stopIds, stopTime.StopId)
	}
	return stopIds
}

// LoadTripInstance collects the trip, stop times, stops and shape of tripId from store.
// Stops missing from the store are left out of TripInstance.Stops, which is not an error
func LoadTripInstance(ctx context.Context, store Store, tripId string) (*TripInstance, error) {
	trip, err := store.GetTrip(ctx, tripId)
	if err != nil {
		return nil, err
	}
	stopTimes, err := store.GetStopTimesForTrip(ctx, tripId)
	if err != nil {
		return nil, err
	}
	if len(stopTimes) == 0 {
		return nil, fmt.Errorf("found no scheduled stops for trip_id %s: %w", tripId, ErrNotFound)
	}
	SortStopTimes(stopTimes)

	instance := TripInstance{
		Trip:      *trip,
		StopTimes: stopTimes,
		Stops:     make(map[string]Stop),
	}
	stops, err := store.GetStopsByIds(ctx, instance.StopIds())
	var missingStops *MissingStopsError
	if err != nil && !errors.As(err, &missingStops) {
		return nil, err
	}
	for _, stop := range stops {
		instance.Stops[stop.StopId] = stop
	}
	instance.Shapes, err = store.GetShapeForTrip(ctx, tripId)
	if err != nil {
		return nil, err
	}
	return &instance, nil
}

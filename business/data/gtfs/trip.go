package gtfs

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Trip contains data from a gtfs trip definition in a trips.txt file
type Trip struct {
	TripId        string  `db:"trip_id" json:"trip_id"`
	RouteId       string  `db:"route_id" json:"route_id"`
	ServiceId     string  `db:"service_id" json:"service_id"`
	DirectionId   *int    `db:"direction_id" json:"direction_id"`
	TripHeadsign  *string `db:"trip_headsign" json:"trip_headsign"`
	TripShortName *string `db:"trip_short_name" json:"trip_short_name"`
	BlockId       string  `db:"block_id" json:"block_id"`
	ShapeId       string  `db:"shape_id" json:"shape_id"`
}

// Route contains data from a gtfs routes.txt file
type Route struct {
	RouteId        string  `db:"route_id" json:"route_id"`
	AgencyId       *string `db:"agency_id" json:"agency_id"`
	RouteShortName string  `db:"route_short_name" json:"route_short_name"`
	RouteLongName  string  `db:"route_long_name" json:"route_long_name"`
	RouteType      int     `db:"route_type" json:"route_type"`
	RouteColor     *string `db:"route_color" json:"route_color"`
}

// ErrNotFound is returned when a requested trip or route is not present in the schedule
var ErrNotFound = errors.New("not found in schedule")

// getTrip retrieves a single Trip by tripId
func getTrip(ctx context.Context, db *sqlx.DB, tripId string) (*Trip, error) {
	statementString := db.Rebind("select trip_id, route_id, service_id, direction_id, trip_headsign, " +
		"trip_short_name, block_id, shape_id from trip where trip_id = ?")
	trip := Trip{}
	err := db.GetContext(ctx, &trip, statementString, tripId)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("trip_id %s: %w", tripId, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve trip_id %s: %w", tripId, err)
	}
	return &trip, nil
}

// getRoute retrieves a single Route where column matches value
func getRoute(ctx context.Context, db *sqlx.DB, column string, value string) (*Route, error) {
	statementString := db.Rebind("select route_id, agency_id, route_short_name, route_long_name, route_type, " +
		"route_color from route where " + column + " = ? limit 1")
	route := Route{}
	err := db.GetContext(ctx, &route, statementString, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("route with %s %s: %w", column, value, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve route with %s %s: %w", column, value, err)
	}
	return &route, nil
}

package gtfs

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"
)

// StopTime contains a record from a gtfs stop_times.txt file
// represents a scheduled arrival and departure at a stop.
// ArrivalTime and DepartureTime are schedule strings that may exceed "24:00:00",
// ArrivalTimestamp and DepartureTimestamp are the same values in seconds from midnight when known.
type StopTime struct {
	TripId             string   `db:"trip_id" json:"trip_id"`
	StopSequence       uint32   `db:"stop_sequence" json:"stop_sequence"`
	StopId             string   `db:"stop_id" json:"stop_id"`
	ArrivalTime        string   `db:"arrival_time" json:"arrival_time"`
	DepartureTime      string   `db:"departure_time" json:"departure_time"`
	ArrivalTimestamp   *int     `db:"arrival_timestamp" json:"arrival_timestamp"`
	DepartureTimestamp *int     `db:"departure_timestamp" json:"departure_timestamp"`
	ShapeDistTraveled  *float64 `db:"shape_dist_traveled" json:"shape_dist_traveled"`
	Timepoint          int      `db:"timepoint" json:"timepoint"`
}

// ArrivalSeconds returns ArrivalTimestamp if present, otherwise parses ArrivalTime
func (st *StopTime) ArrivalSeconds() (int, bool) {
	if st.ArrivalTimestamp != nil {
		return *st.ArrivalTimestamp, true
	}
	return ParseScheduleSeconds(st.ArrivalTime)
}

// DepartureSeconds returns DepartureTimestamp if present, otherwise parses DepartureTime
func (st *StopTime) DepartureSeconds() (int, bool) {
	if st.DepartureTimestamp != nil {
		return *st.DepartureTimestamp, true
	}
	return ParseScheduleSeconds(st.DepartureTime)
}

// SortStopTimes orders stopTimes by StopSequence
func SortStopTimes(stopTimes []StopTime) {
	sort.SliceStable(stopTimes, func(i, j int) bool {
		return stopTimes[i].StopSequence < stopTimes[j].StopSequence
	})
}

// getStopTimesForTrip retrieves the StopTimes of tripId ordered by stop_sequence
func getStopTimesForTrip(ctx context.Context, db *sqlx.DB, tripId string) ([]StopTime, error) {
	statementString := db.Rebind("select trip_id, stop_sequence, stop_id, arrival_time, departure_time, " +
		"arrival_timestamp, departure_timestamp, shape_dist_traveled, timepoint " +
		"from stop_time where trip_id = ? order by stop_sequence")
	stopTimes := make([]StopTime, 0)
	err := db.SelectContext(ctx, &stopTimes, statementString, tripId)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve stop_time rows for trip_id %s: %w", tripId, err)
	}
	return stopTimes, nil
}

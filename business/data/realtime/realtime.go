// Package realtime contains the trip updates and vehicle telemetry read from a GTFS-realtime feed.
// Feed records are converted to these types so changes to the GTFS-realtime protocol or generated
// code can be handled here and not elsewhere in the program.
package realtime

import (
	"strconv"
	"strings"
)

// TripRelationship is the schedule relationship of a realtime trip, "SCHEDULED", "ADDED", "CANCELED"...
type TripRelationship string

const (
	TripScheduled   TripRelationship = "SCHEDULED"
	TripAdded       TripRelationship = "ADDED"
	TripUnscheduled TripRelationship = "UNSCHEDULED"
	TripCanceled    TripRelationship = "CANCELED"
)

// StopRelationship is the schedule relationship of a single stop time update
type StopRelationship string

const (
	StopScheduled   StopRelationship = "SCHEDULED"
	StopSkipped     StopRelationship = "SKIPPED"
	StopNoData      StopRelationship = "NO_DATA"
	StopUnscheduled StopRelationship = "UNSCHEDULED"
)

// TripDescriptor identifies the trip instance a realtime record refers to.
// TripId is empty when the feed did not provide one.
type TripDescriptor struct {
	TripId       string           `json:"trip_id,omitempty"`
	RouteId      string           `json:"route_id"`
	DirectionId  *uint32          `json:"direction_id,omitempty"`
	StartDate    string           `json:"start_date,omitempty"`
	StartTime    string           `json:"start_time,omitempty"`
	Relationship TripRelationship `json:"schedule_relationship"`
}

// StopTimeEvent holds the realtime prediction for an arrival or departure
type StopTimeEvent struct {
	Delay       *int32 `json:"delay,omitempty"`
	Time        *int64 `json:"time,omitempty"`
	Uncertainty *int32 `json:"uncertainty,omitempty"`
}

// StopTimeUpdate is the realtime information for one stop of a trip.
// StopSequence or StopId may be missing, StopId is usually absent on skipped stops
type StopTimeUpdate struct {
	StopSequence *uint32          `json:"stop_sequence,omitempty"`
	StopId       *string          `json:"stop_id,omitempty"`
	Arrival      *StopTimeEvent   `json:"arrival,omitempty"`
	Departure    *StopTimeEvent   `json:"departure,omitempty"`
	Relationship StopRelationship `json:"schedule_relationship"`
}

// ArrivalDelay returns the arrival delay, falling back to the departure delay
func (s *StopTimeUpdate) ArrivalDelay() (int, bool) {
	return firstDelay(s.Arrival, s.Departure)
}

// DepartureDelay returns the departure delay, falling back to the arrival delay
func (s *StopTimeUpdate) DepartureDelay() (int, bool) {
	return firstDelay(s.Departure, s.Arrival)
}

func firstDelay(events ...*StopTimeEvent) (int, bool) {
	for _, event := range events {
		if event != nil && event.Delay != nil {
			return int(*event.Delay), true
		}
	}
	return 0, false
}

// TripHeader holds the fields every kind of realtime trip record carries
type TripHeader struct {
	Trip      TripDescriptor `json:"trip"`
	VehicleId string         `json:"vehicle_id,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// Header returns the TripHeader of the record
func (h *TripHeader) Header() *TripHeader {
	return h
}

// TripRecord is the realtime record of one trip instance. It is one of *ScheduledTrip, *AddedTrip or *CanceledTrip
type TripRecord interface {
	Header() *TripHeader
	// Key returns the identifier the record is cached under
	Key() string
	tripRecord()
}

// ScheduledTrip is a realtime update for a trip that exists in the static schedule
type ScheduledTrip struct {
	TripHeader
	StopTimeUpdates []StopTimeUpdate `json:"stop_time_updates,omitempty"`
}

func (t *ScheduledTrip) Key() string {
	return t.Trip.TripId
}

func (t *ScheduledTrip) tripRecord() {}

// AddedTrip is extra service that is not tied to a trip in the static schedule.
// It is only identified by a synthetic id built from its descriptor.
type AddedTrip struct {
	TripHeader
	StopTimeUpdates []StopTimeUpdate `json:"stop_time_updates,omitempty"`
}

func (t *AddedTrip) Key() string {
	return SyntheticTripId(t.Trip)
}

func (t *AddedTrip) tripRecord() {}

// CanceledTrip is a scheduled trip that will not run
type CanceledTrip struct {
	TripHeader
}

func (t *CanceledTrip) Key() string {
	if t.Trip.TripId == "" {
		return SyntheticTripId(t.Trip)
	}
	return t.Trip.TripId
}

func (t *CanceledTrip) tripRecord() {}

// StopTimeUpdates returns the stop time updates of record, nil for canceled trips
func StopTimeUpdates(record TripRecord) []StopTimeUpdate {
	switch r := record.(type) {
	case *ScheduledTrip:
		return r.StopTimeUpdates
	case *AddedTrip:
		return r.StopTimeUpdates
	}
	return nil
}

// SyntheticTripId builds a stable identifier for a trip the feed does not give a trip id for.
// built from route, direction, start date, start time and schedule relationship so repeated fetches
// of the same trip produce the same id
func SyntheticTripId(trip TripDescriptor) string {
	direction := ""
	if trip.DirectionId != nil {
		direction = strconv.FormatUint(uint64(*trip.DirectionId), 10)
	}
	return strings.Join([]string{
		trip.RouteId,
		direction,
		trip.StartDate,
		trip.StartTime,
		string(trip.Relationship),
	}, "_")
}

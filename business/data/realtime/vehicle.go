package realtime

import (
	"github.com/OpenTransitTools/transittrack/business/geo"
)

//Vehicle contains fields read from a GTFS-RT vehicle position.
//fields that are optional are pointers and will be nil if they were not present in the feed
type Vehicle struct {
	Id                string            `json:"id"`
	Label             string            `json:"label,omitempty"`
	Timestamp         int64             `json:"timestamp"`
	TripId            *string           `json:"trip_id,omitempty"`
	RouteId           *string           `json:"route_id,omitempty"`
	Position          geo.Point         `json:"position"`
	Bearing           *float32          `json:"bearing,omitempty"`
	VehicleStopStatus VehicleStopStatus `json:"vehicle_stop_status"`
	StopSequence      *uint32           `json:"stop_sequence,omitempty"`
	StopId            *string           `json:"stop_id,omitempty"`
}

// VehicleStopStatus defines the possible relationship a vehicle has to a stop in GTFS
type VehicleStopStatus int

const (
	Unknown VehicleStopStatus = -1
	// IncomingAt indicates vehicle is just about to arrive at the stop (on a stop
	// display, the vehicle symbol typically flashes).
	IncomingAt VehicleStopStatus = 0
	// StoppedAt indicates vehicle is at the stop.
	StoppedAt VehicleStopStatus = 1
	// InTransitTo indicates vehicle has departed a previous stop and is in transit to the next stop.
	InTransitTo VehicleStopStatus = 2
)

// String - Stringer interface for VehicleStopStatus
func (s VehicleStopStatus) String() string {
	switch s {
	case IncomingAt:
		return "INCOMING_AT"
	case StoppedAt:
		return "STOPPED_AT"
	case InTransitTo:
		return "IN_TRANSIT_TO"
	}
	return "Unknown"
}

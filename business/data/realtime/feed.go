package realtime

import (
	"fmt"
	"log"
	"time"

	gtfsrtproto "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/OpenTransitTools/transittrack/business/geo"
	"google.golang.org/protobuf/proto"
)

// Feed is a decoded GTFS-realtime feed message
type Feed struct {
	Timestamp int64
	Trips     []TripRecord
	Vehicles  []Vehicle
}

/*
DecodeFeed unmarshals a GTFS-realtime FeedMessage and loads its trip updates and vehicle positions
into non-protocol buffer objects.
Entities that can not be used are logged and skipped, an error is only returned when data is not a feed message.
now is used for records without timestamps.
*/
func DecodeFeed(log *log.Logger, data []byte, now time.Time) (*Feed, error) {
	feedMessage := gtfsrtproto.FeedMessage{}
	err := proto.Unmarshal(data, &feedMessage)
	if err != nil {
		return nil, fmt.Errorf("unable to unmarshal FeedMessage: %w", err)
	}
	feed := Feed{
		Timestamp: int64(feedMessage.GetHeader().GetTimestamp()),
	}
	if feed.Timestamp == 0 {
		feed.Timestamp = now.Unix()
	}
	for _, entity := range feedMessage.Entity {
		if entity.TripUpdate != nil {
			record := makeTripRecord(entity.TripUpdate, feed.Timestamp)
			if record == nil {
				log.Printf("Trip update entity %s missing trip descriptor\n", entity.GetId())
			} else {
				feed.Trips = append(feed.Trips, record)
			}
		}
		if entity.Vehicle != nil {
			vehicle, ok := makeVehicle(entity.Vehicle, feed.Timestamp)
			if !ok {
				log.Printf("Vehicle entity %s missing vehicle identifier or position\n", entity.GetId())
			} else {
				feed.Vehicles = append(feed.Vehicles, vehicle)
			}
		}
	}
	return &feed, nil
}

// makeTripRecord converts tripUpdate to the TripRecord variant matching its schedule relationship.
// Records without a trip id can not be tied to the schedule and are treated as added.
func makeTripRecord(tripUpdate *gtfsrtproto.TripUpdate, feedTimestamp int64) TripRecord {
	trip := tripUpdate.GetTrip()
	if trip == nil {
		return nil
	}
	header := TripHeader{
		Trip: TripDescriptor{
			TripId:       trip.GetTripId(),
			RouteId:      trip.GetRouteId(),
			DirectionId:  trip.DirectionId,
			StartDate:    trip.GetStartDate(),
			StartTime:    trip.GetStartTime(),
			Relationship: TripRelationship(trip.GetScheduleRelationship().String()),
		},
		VehicleId: tripUpdate.GetVehicle().GetId(),
		Timestamp: int64(tripUpdate.GetTimestamp()),
	}
	if header.Timestamp == 0 {
		header.Timestamp = feedTimestamp
	}

	switch trip.GetScheduleRelationship() {
	case gtfsrtproto.TripDescriptor_CANCELED:
		return &CanceledTrip{TripHeader: header}
	case gtfsrtproto.TripDescriptor_ADDED:
		return &AddedTrip{TripHeader: header, StopTimeUpdates: makeStopTimeUpdates(tripUpdate)}
	}
	if header.Trip.TripId == "" {
		return &AddedTrip{TripHeader: header, StopTimeUpdates: makeStopTimeUpdates(tripUpdate)}
	}
	return &ScheduledTrip{TripHeader: header, StopTimeUpdates: makeStopTimeUpdates(tripUpdate)}
}

func makeStopTimeUpdates(tripUpdate *gtfsrtproto.TripUpdate) []StopTimeUpdate {
	updates := make([]StopTimeUpdate, 0, len(tripUpdate.StopTimeUpdate))
	for _, stopTimeUpdate := range tripUpdate.StopTimeUpdate {
		if stopTimeUpdate == nil {
			continue
		}
		updates = append(updates, StopTimeUpdate{
			StopSequence: stopTimeUpdate.StopSequence,
			StopId:       stopTimeUpdate.StopId,
			Arrival:      makeStopTimeEvent(stopTimeUpdate.Arrival),
			Departure:    makeStopTimeEvent(stopTimeUpdate.Departure),
			Relationship: StopRelationship(stopTimeUpdate.GetScheduleRelationship().String()),
		})
	}
	return updates
}

func makeStopTimeEvent(event *gtfsrtproto.TripUpdate_StopTimeEvent) *StopTimeEvent {
	if event == nil {
		return nil
	}
	return &StopTimeEvent{
		Delay:       event.Delay,
		Time:        event.Time,
		Uncertainty: event.Uncertainty,
	}
}

// makeVehicle converts vehicle position, returns false if the vehicle has no id or position
func makeVehicle(vehicle *gtfsrtproto.VehiclePosition, feedTimestamp int64) (Vehicle, bool) {
	vehicleDescriptor := vehicle.Vehicle
	if vehicleDescriptor == nil || vehicleDescriptor.Id == nil {
		return Vehicle{}, false
	}
	if vehicle.Position == nil || vehicle.Position.Latitude == nil || vehicle.Position.Longitude == nil {
		return Vehicle{}, false
	}
	result := Vehicle{
		Id:                *vehicleDescriptor.Id,
		Label:             vehicleDescriptor.GetLabel(),
		StopSequence:      vehicle.CurrentStopSequence,
		StopId:            vehicle.StopId,
		VehicleStopStatus: getVehicleStopStatus(vehicle.CurrentStatus),
		Position: geo.Point{
			Lat: float64(*vehicle.Position.Latitude),
			Lon: float64(*vehicle.Position.Longitude),
		},
		Bearing: vehicle.Position.Bearing,
	}
	if trip := vehicle.Trip; trip != nil {
		result.TripId = trip.TripId
		result.RouteId = trip.RouteId
	}
	if vehicle.Timestamp != nil {
		result.Timestamp = int64(*vehicle.Timestamp)
	} else {
		result.Timestamp = feedTimestamp
	}
	return result, true
}

// getVehicleStopStatus converts gtfs status to VehicleStopStatus
func getVehicleStopStatus(status *gtfsrtproto.VehiclePosition_VehicleStopStatus) VehicleStopStatus {
	if status == nil {
		return Unknown
	}
	switch *status {
	case gtfsrtproto.VehiclePosition_INCOMING_AT:
		return IncomingAt
	case gtfsrtproto.VehiclePosition_STOPPED_AT:
		return StoppedAt
	case gtfsrtproto.VehiclePosition_IN_TRANSIT_TO:
		return InTransitTo
	default:
		return Unknown
	}
}

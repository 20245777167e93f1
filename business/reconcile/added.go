package reconcile

import (
	"sort"

	"github.com/OpenTransitTools/transittrack/business/data/gtfs"
	"github.com/OpenTransitTools/transittrack/business/data/realtime"
)

// DelayDescription renders delaySeconds such as "3m late" or "1h 2m early", delays considered on time are empty
func DelayDescription(delaySeconds int) string {
	switch ClassifyDelay(delaySeconds) {
	case StatusDelayed:
		return gtfs.FormatDuration(delaySeconds, false) + " late"
	case StatusEarly:
		return gtfs.FormatDuration(delaySeconds, false) + " early"
	}
	return ""
}

// AddedTripsForRoute returns the added trips running on routeId ordered by start time.
// Added trips can only be matched to the schedule by route, trips without a start time are last.
func AddedTripsForRoute(routeId string, addedTrips map[string]realtime.TripRecord) []*realtime.AddedTrip {
	results := make([]*realtime.AddedTrip, 0)
	for _, record := range addedTrips {
		added, ok := record.(*realtime.AddedTrip)
		if ok && added.Trip.RouteId == routeId {
			results = append(results, added)
		}
	}
	sort.Slice(results, func(i, j int) bool {
		iStart, iOk := gtfs.ParseScheduleSeconds(results[i].Trip.StartTime)
		jStart, jOk := gtfs.ParseScheduleSeconds(results[j].Trip.StartTime)
		if iOk != jOk {
			return iOk
		}
		if iStart != jStart {
			return iStart < jStart
		}
		return results[i].Key() < results[j].Key()
	})
	return results
}

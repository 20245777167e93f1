package position

import (
	"time"

	"github.com/OpenTransitTools/transittrack/business/data/gtfs"
	"github.com/OpenTransitTools/transittrack/business/data/realtime"
	"github.com/OpenTransitTools/transittrack/business/feedcache"
	"github.com/OpenTransitTools/transittrack/business/geo"
	"github.com/OpenTransitTools/transittrack/business/reconcile"
)

// Estimate is the outcome of one Session tick
type Estimate struct {
	TripId       string           `json:"trip_id"`
	RouteId      string           `json:"route_id"`
	VehicleId    string           `json:"vehicle_id,omitempty"`
	ServiceDate  string           `json:"service_date"`
	Status       reconcile.Status `json:"status"`
	Delay        *int             `json:"delay,omitempty"`
	Position     Result           `json:"position"`
	CalculatedAt time.Time        `json:"calculated_at"`
}

// Session tracks a single trip instance, keeping the chunked slices between its stops across ticks.
// Safe for concurrent use, the TripInstance must not be modified after the Session is created
type Session struct {
	Instance  *gtfs.TripInstance
	Disabled  bool
	shape     []geo.Point
	estimator Estimator
}

// NewSession creates a Session for instance, chunking slices of its shape into maxSegmentMeters steps
// and memoizing up to cacheSize of them
func NewSession(instance *gtfs.TripInstance, maxSegmentMeters float64, cacheSize int) *Session {
	if maxSegmentMeters <= 0 {
		maxSegmentMeters = DefaultMaxSegmentMeters
	}
	shape := ShapePoints(instance.Shapes)
	return &Session{
		Instance: instance,
		shape:    shape,
		estimator: Estimator{
			Slices:           geo.NewSliceCache(shape, maxSegmentMeters, cacheSize),
			MaxSegmentMeters: maxSegmentMeters,
		},
	}
}

// Tick reconciles the trip with its record in snapshot and estimates the vehicle's position at now
func (s *Session) Tick(snapshot feedcache.Snapshot, now time.Time) Estimate {
	record := snapshot.TripUpdates[s.Instance.TripId]
	return s.Evaluate(record, now)
}

// Evaluate reconciles the trip with record, which may be nil, and estimates the vehicle's position at now
func (s *Session) Evaluate(record realtime.TripRecord, now time.Time) Estimate {
	startDate := ""
	estimate := Estimate{
		TripId:       s.Instance.TripId,
		RouteId:      s.Instance.RouteId,
		CalculatedAt: now,
	}
	if record != nil {
		header := record.Header()
		startDate = header.Trip.StartDate
		estimate.VehicleId = header.VehicleId
	}
	serviceDate := gtfs.ServiceDateForTrip(s.Instance.StopTimes, startDate, now)
	estimate.ServiceDate = serviceDate.Format("20060102")

	reconciled := reconcile.Reconcile(s.Instance.StopTimes, record, nil)
	estimate.Status = reconciled.Status
	estimate.Delay = reconciled.Delay

	if reconciled.Status == reconcile.StatusCanceled {
		estimate.Position = idle("trip canceled")
		return estimate
	}
	estimate.Position = s.estimator.Estimate(Params{
		Disabled:    s.Disabled,
		StopIds:     s.Instance.StopIds(),
		Stops:       s.Instance.Stops,
		StopTimes:   s.Instance.StopTimes,
		Adjusted:    reconciled.Stops,
		Shape:       s.shape,
		ServiceDate: serviceDate,
		Now:         now,
	})
	return estimate
}

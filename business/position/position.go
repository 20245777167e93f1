// Package position estimates where a vehicle is along its trip's shape from the trip's delay adjusted
// stop arrivals
package position

import (
	"math"
	"sort"
	"time"

	"github.com/OpenTransitTools/transittrack/business/data/gtfs"
	"github.com/OpenTransitTools/transittrack/business/geo"
	"github.com/OpenTransitTools/transittrack/business/reconcile"
)

// DefaultMaxSegmentMeters is the length of the interpolation steps a slice between two stops is chunked into
const DefaultMaxSegmentMeters = 20.0

// State of an estimate
type State int

const (
	// Idle means no position can be bounded between two stops, the trip hasn't started, has finished or
	// isn't trackable
	Idle State = iota
	// Estimating means a position was interpolated
	Estimating
	// Error means the trip's static data was insufficient to estimate
	Error
)

func (s State) String() string {
	switch s {
	case Estimating:
		return "estimating"
	case Error:
		return "error"
	}
	return "idle"
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Arrival is a stop on the trip with its scheduled and delay adjusted arrival
type Arrival struct {
	StopSequence       uint32     `json:"stop_sequence"`
	StopId             string     `json:"stop_id"`
	Coordinates        geo.Point  `json:"coordinates"`
	ArrivalTime        string     `json:"arrival_time"`
	DelayedArrivalTime *string    `json:"delayed_arrival_time"`
	ArrivalAt          time.Time  `json:"arrival_at"`
	DelayedArrivalAt   *time.Time `json:"delayed_arrival_at"`
}

// At returns DelayedArrivalAt when known, otherwise ArrivalAt
func (a *Arrival) At() time.Time {
	if a.DelayedArrivalAt != nil {
		return *a.DelayedArrivalAt
	}
	return a.ArrivalAt
}

// Params holds everything an estimate is made from
type Params struct {
	// Disabled turns tracking off, the estimate is always Idle
	Disabled bool
	// StopIds limits arrivals to stop times at these stops
	StopIds   []string
	Stops     map[string]gtfs.Stop
	StopTimes []gtfs.StopTime
	// Adjusted are the reconciled stop times providing delayed arrival times, may be empty
	Adjusted []reconcile.AdjustedStopTime
	Shape    []geo.Point
	// ServiceDate is the service day schedule strings are anchored to
	ServiceDate time.Time
	Now         time.Time
}

// Result of an estimate. VehiclePosition, Bearing, NextStop and PrevStop are only present when estimating
type Result struct {
	State           State      `json:"state"`
	Reason          string     `json:"reason,omitempty"`
	VehiclePosition *geo.Point `json:"vehicle_position,omitempty"`
	Bearing         *float64   `json:"bearing,omitempty"`
	NextStop        *Arrival   `json:"next_stop,omitempty"`
	PrevStop        *Arrival   `json:"prev_stop,omitempty"`
	// Fraction is how far between PrevStop and NextStop the vehicle is by time
	Fraction float64 `json:"fraction"`
}

// Available is true when a position was estimated
func (r *Result) Available() bool {
	return r.State == Estimating
}

func idle(reason string) Result {
	return Result{State: Idle, Reason: reason}
}

// Estimator interpolates vehicle positions
type Estimator struct {
	// Slices when set provides the chunked shape between two stops, it must be built over the same shape
	// as Params.Shape
	Slices           *geo.SliceCache
	MaxSegmentMeters float64
}

// Estimate finds the pair of arrivals now falls between and interpolates the vehicle's position and
// bearing between them along the shape
func (e *Estimator) Estimate(params Params) Result {
	if params.Disabled {
		return idle("tracking disabled")
	}
	if len(params.Shape) < 2 {
		return idle("shape has fewer than 2 points")
	}
	if len(params.StopIds) == 0 {
		return idle("no stop ids")
	}
	arrivals := makeArrivals(params)
	if len(arrivals) < 2 {
		return Result{State: Error, Reason: "fewer than 2 arrivals with coordinates and schedule times"}
	}

	currentIndex := -1
	for i := range arrivals {
		if !arrivals[i].At().Before(params.Now) {
			currentIndex = i
			break
		}
	}
	if currentIndex < 0 {
		return idle("trip finished")
	}
	if currentIndex == 0 {
		return idle("trip not started")
	}

	// simultaneous arrivals resolve to the furthest stop
	nextIndex := currentIndex
	for nextIndex+1 < len(arrivals) && arrivals[nextIndex+1].At().Equal(arrivals[currentIndex].At()) {
		nextIndex++
	}
	next := arrivals[nextIndex]
	prev := arrivals[currentIndex-1]

	chunks := e.chunks(prev.Coordinates, next.Coordinates, params.Shape)
	fraction := gtfs.PercentageElapsed(prev.At(), next.At(), params.Now)
	vehiclePosition := prev.Coordinates
	if len(chunks) > 0 {
		index := int(math.Floor(fraction * float64(len(chunks)-1)))
		vehiclePosition = chunks[index][0]
	}
	bearing := geo.Bearing(vehiclePosition, next.Coordinates)
	return Result{
		State:           Estimating,
		VehiclePosition: &vehiclePosition,
		Bearing:         &bearing,
		NextStop:        &next,
		PrevStop:        &prev,
		Fraction:        fraction,
	}
}

func (e *Estimator) chunks(a, b geo.Point, shape []geo.Point) [][]geo.Point {
	if e.Slices != nil {
		return e.Slices.Chunks(a, b)
	}
	maxSegmentMeters := e.MaxSegmentMeters
	if maxSegmentMeters <= 0 {
		maxSegmentMeters = DefaultMaxSegmentMeters
	}
	return geo.Chunk(geo.SliceBetween(a, b, shape), maxSegmentMeters)
}

// makeArrivals builds the arrivals at params.StopIds ordered by stop sequence.
// Skipped stops and stop times without a stop location or a readable arrival time are left out
func makeArrivals(params Params) []Arrival {
	wanted := make(map[string]bool, len(params.StopIds))
	for _, stopId := range params.StopIds {
		wanted[stopId] = true
	}
	delayed := make(map[uint32]string, len(params.Adjusted))
	skipped := make(map[uint32]bool)
	for _, adjusted := range params.Adjusted {
		if adjusted.Skipped {
			skipped[adjusted.StopSequence] = true
		}
		if adjusted.DelayedArrivalTime != nil {
			delayed[adjusted.StopSequence] = *adjusted.DelayedArrivalTime
		}
	}

	arrivals := make([]Arrival, 0, len(params.StopTimes))
	for _, stopTime := range params.StopTimes {
		if !wanted[stopTime.StopId] || skipped[stopTime.StopSequence] {
			continue
		}
		stop, ok := params.Stops[stopTime.StopId]
		if !ok || (stop.StopLat == 0 && stop.StopLon == 0) {
			continue
		}
		arrivalAt, ok := gtfs.ScheduleStringToInstant(stopTime.ArrivalTime, params.ServiceDate)
		if !ok {
			continue
		}
		arrival := Arrival{
			StopSequence: stopTime.StopSequence,
			StopId:       stopTime.StopId,
			Coordinates:  geo.Point{Lat: stop.StopLat, Lon: stop.StopLon},
			ArrivalTime:  stopTime.ArrivalTime,
			ArrivalAt:    arrivalAt,
		}
		if delayedTime, ok := delayed[stopTime.StopSequence]; ok {
			if delayedAt, ok := gtfs.ScheduleStringToInstant(delayedTime, params.ServiceDate); ok {
				arrival.DelayedArrivalTime = &delayedTime
				arrival.DelayedArrivalAt = &delayedAt
			}
		}
		arrivals = append(arrivals, arrival)
	}
	sort.SliceStable(arrivals, func(i, j int) bool {
		return arrivals[i].StopSequence < arrivals[j].StopSequence
	})
	return arrivals
}

// ShapePoints converts shape rows to the line they describe
func ShapePoints(shapes []gtfs.Shape) []geo.Point {
	points := make([]geo.Point, 0, len(shapes))
	for _, shape := range shapes {
		points = append(points, geo.Point{Lat: shape.ShapePtLat, Lon: shape.ShapePtLng})
	}
	return points
}

// Package reconcile merges a trip's scheduled stop times with its realtime record into adjusted stop times
// and a trip status
package reconcile

import (
	"sort"

	"github.com/OpenTransitTools/transittrack/business/data/gtfs"
	"github.com/OpenTransitTools/transittrack/business/data/realtime"
)

// OnTimeThresholdSeconds is the largest delay in either direction still reported as on time
const OnTimeThresholdSeconds = 30

// Status classifies a trip relative to its schedule
type Status string

const (
	StatusOnTime    Status = "ontime"
	StatusEarly     Status = "early"
	StatusDelayed   Status = "delayed"
	StatusCanceled  Status = "canceled"
	StatusAdded     Status = "added"
	StatusScheduled Status = "scheduled" // no usable realtime data
)

// AdjustedStopTime is a scheduled stop time with the realtime delay that applies to it.
// Delay fields are nil when no realtime delay is known for the stop.
type AdjustedStopTime struct {
	gtfs.StopTime
	DelayedArrivalTime        *string `json:"delayed_arrival_time"`
	DelayedDepartureTime      *string `json:"delayed_departure_time"`
	ArrivalDelay              *int    `json:"arrival_delay"`
	DepartureDelay            *int    `json:"departure_delay"`
	DelayedArrivalTimestamp   *int    `json:"delayed_arrival_timestamp"`
	DelayedDepartureTimestamp *int    `json:"delayed_departure_timestamp"`
	Skipped                   bool    `json:"skipped"`
	// UpdateStopSequence is the stop sequence of the realtime update the delay was taken from
	UpdateStopSequence *uint32 `json:"update_stop_sequence"`
}

// EffectiveArrivalTime returns DelayedArrivalTime when known, otherwise the scheduled ArrivalTime
func (a *AdjustedStopTime) EffectiveArrivalTime() string {
	if a.DelayedArrivalTime != nil {
		return *a.DelayedArrivalTime
	}
	return a.ArrivalTime
}

// Result is the reconciliation of one trip
type Result struct {
	Stops  []AdjustedStopTime `json:"stops"`
	Status Status             `json:"status"`
	// Delay is the arrival delay at the selected stop
	Delay *int `json:"delay"`
}

// ClassifyDelay returns the Status of delaySeconds, delays within OnTimeThresholdSeconds are on time
func ClassifyDelay(delaySeconds int) Status {
	switch {
	case delaySeconds < -OnTimeThresholdSeconds:
		return StatusEarly
	case delaySeconds > OnTimeThresholdSeconds:
		return StatusDelayed
	}
	return StatusOnTime
}

// Reconcile adjusts stopTimes with record, which may be nil when the feed has no record for the trip.
// Status and Delay are reported relative to the stop with selectedStopSequence, or the first stop when nil
// or not on the trip.
func Reconcile(stopTimes []gtfs.StopTime, record realtime.TripRecord, selectedStopSequence *uint32) Result {
	if _, ok := record.(*realtime.AddedTrip); ok {
		// added service has no scheduled stop times to adjust
		return Result{Status: StatusAdded}
	}

	sorted := make([]gtfs.StopTime, len(stopTimes))
	copy(sorted, stopTimes)
	gtfs.SortStopTimes(sorted)

	var updates []sequencedUpdate
	if record != nil {
		updates = resolveUpdates(sorted, realtime.StopTimeUpdates(record))
	}
	result := Result{Stops: make([]AdjustedStopTime, 0, len(sorted))}
	for _, stopTime := range sorted {
		result.Stops = append(result.Stops, adjustStopTime(stopTime, updates))
	}

	if _, ok := record.(*realtime.CanceledTrip); ok {
		result.Status = StatusCanceled
		return result
	}
	selected := selectStop(result.Stops, selectedStopSequence)
	if selected == nil || selected.ArrivalDelay == nil {
		result.Status = StatusScheduled
		return result
	}
	delay := *selected.ArrivalDelay
	result.Delay = &delay
	result.Status = ClassifyDelay(delay)
	return result
}

func selectStop(stops []AdjustedStopTime, stopSequence *uint32) *AdjustedStopTime {
	if len(stops) == 0 {
		return nil
	}
	if stopSequence != nil {
		for i := range stops {
			if stops[i].StopSequence == *stopSequence {
				return &stops[i]
			}
		}
	}
	return &stops[0]
}

// sequencedUpdate is a realtime update with its stop sequence resolved
type sequencedUpdate struct {
	stopSequence uint32
	update       realtime.StopTimeUpdate
}

// carriesDelay is true when the update has a delay that can be carried to other stops
func (s *sequencedUpdate) carriesDelay() bool {
	if s.update.Relationship == realtime.StopSkipped || s.update.Relationship == realtime.StopNoData {
		return false
	}
	_, ok := s.update.ArrivalDelay()
	return ok
}

// resolveUpdates orders updates by stop sequence. Updates missing a stop sequence take it from the
// scheduled stop with the same stop id, those that can't be resolved are dropped
func resolveUpdates(stopTimes []gtfs.StopTime, updates []realtime.StopTimeUpdate) []sequencedUpdate {
	resolved := make([]sequencedUpdate, 0, len(updates))
	for _, update := range updates {
		if update.StopSequence != nil {
			resolved = append(resolved, sequencedUpdate{stopSequence: *update.StopSequence, update: update})
			continue
		}
		if update.StopId == nil {
			continue
		}
		for _, stopTime := range stopTimes {
			if stopTime.StopId == *update.StopId {
				resolved = append(resolved, sequencedUpdate{stopSequence: stopTime.StopSequence, update: update})
				break
			}
		}
	}
	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].stopSequence < resolved[j].stopSequence
	})
	return resolved
}

// closestUpdate finds the first update carrying a delay at or after stopSequence, falling back to the
// last one before it. A delay seen at a stop is assumed to persist until a later update replaces it.
func closestUpdate(updates []sequencedUpdate, stopSequence uint32) *sequencedUpdate {
	var last *sequencedUpdate
	for i := range updates {
		if !updates[i].carriesDelay() {
			continue
		}
		if updates[i].stopSequence >= stopSequence {
			return &updates[i]
		}
		last = &updates[i]
	}
	return last
}

func validDelay(delaySeconds int) bool {
	return delaySeconds <= gtfs.MaxDelaySeconds && delaySeconds >= -gtfs.MaxDelaySeconds
}

func isSkipped(updates []sequencedUpdate, stopSequence uint32) bool {
	for _, update := range updates {
		if update.stopSequence == stopSequence && update.update.Relationship == realtime.StopSkipped {
			return true
		}
	}
	return false
}

func adjustStopTime(stopTime gtfs.StopTime, updates []sequencedUpdate) AdjustedStopTime {
	adjusted := AdjustedStopTime{
		StopTime: stopTime,
		Skipped:  isSkipped(updates, stopTime.StopSequence),
	}
	if adjusted.Skipped {
		return adjusted
	}
	update := closestUpdate(updates, stopTime.StopSequence)
	if update == nil {
		return adjusted
	}
	sequence := update.stopSequence
	adjusted.UpdateStopSequence = &sequence

	// corrupt delays are discarded for this stop
	if delay, ok := update.update.ArrivalDelay(); ok && validDelay(delay) {
		adjusted.ArrivalDelay = &delay
		if delayed, ok := gtfs.ApplyDelay(stopTime.ArrivalTime, delay); ok {
			adjusted.DelayedArrivalTime = &delayed
		}
	}
	if delay, ok := update.update.DepartureDelay(); ok && validDelay(delay) {
		adjusted.DepartureDelay = &delay
		if delayed, ok := gtfs.ApplyDelay(stopTime.DepartureTime, delay); ok {
			adjusted.DelayedDepartureTime = &delayed
		}
	}
	clampDepartureTime(&adjusted)
	reconcileTimestamps(&adjusted)
	return adjusted
}

// clampDepartureTime keeps the delayed departure from being earlier than the delayed arrival
func clampDepartureTime(adjusted *AdjustedStopTime) {
	if adjusted.DelayedArrivalTime == nil || adjusted.DelayedDepartureTime == nil {
		return
	}
	arrival, ok := gtfs.ParseScheduleSeconds(*adjusted.DelayedArrivalTime)
	if !ok {
		return
	}
	departure, ok := gtfs.ParseScheduleSeconds(*adjusted.DelayedDepartureTime)
	if ok && departure < arrival {
		clamped := *adjusted.DelayedArrivalTime
		adjusted.DelayedDepartureTime = &clamped
	}
}

// reconcileTimestamps advances the stop's timestamps by their delays.
// a missing arrival or departure timestamp is assumed equal to the other, departure is never earlier than arrival
func reconcileTimestamps(adjusted *AdjustedStopTime) {
	arrival := adjusted.ArrivalTimestamp
	departure := adjusted.DepartureTimestamp
	if arrival == nil && departure == nil {
		return
	}
	if arrival == nil {
		arrival = departure
	}
	if departure == nil {
		departure = arrival
	}
	delayedArrival := *arrival
	if adjusted.ArrivalDelay != nil {
		delayedArrival += *adjusted.ArrivalDelay
	}
	delayedDeparture := *departure
	if adjusted.DepartureDelay != nil {
		delayedDeparture += *adjusted.DepartureDelay
	}
	if delayedDeparture < delayedArrival {
		delayedDeparture = delayedArrival
	}
	adjusted.DelayedArrivalTimestamp = &delayedArrival
	adjusted.DelayedDepartureTimestamp = &delayedDeparture
}

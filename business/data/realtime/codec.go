package realtime

import (
	"encoding/json"
	"fmt"
)

const (
	kindScheduled = "scheduled"
	kindAdded     = "added"
	kindCanceled  = "canceled"
)

// recordEnvelope is the stored form of a TripRecord, Kind selects the variant
type recordEnvelope struct {
	Kind string `json:"kind"`
	TripHeader
	StopTimeUpdates []StopTimeUpdate `json:"stop_time_updates,omitempty"`
}

func envelopeOf(record TripRecord) (recordEnvelope, error) {
	switch r := record.(type) {
	case *ScheduledTrip:
		return recordEnvelope{Kind: kindScheduled, TripHeader: r.TripHeader, StopTimeUpdates: r.StopTimeUpdates}, nil
	case *AddedTrip:
		return recordEnvelope{Kind: kindAdded, TripHeader: r.TripHeader, StopTimeUpdates: r.StopTimeUpdates}, nil
	case *CanceledTrip:
		return recordEnvelope{Kind: kindCanceled, TripHeader: r.TripHeader}, nil
	}
	return recordEnvelope{}, fmt.Errorf("unsupported trip record type %T", record)
}

func (e recordEnvelope) record() (TripRecord, error) {
	switch e.Kind {
	case kindScheduled:
		return &ScheduledTrip{TripHeader: e.TripHeader, StopTimeUpdates: e.StopTimeUpdates}, nil
	case kindAdded:
		return &AddedTrip{TripHeader: e.TripHeader, StopTimeUpdates: e.StopTimeUpdates}, nil
	case kindCanceled:
		return &CanceledTrip{TripHeader: e.TripHeader}, nil
	}
	return nil, fmt.Errorf("unknown trip record kind %q", e.Kind)
}

// MarshalRecord encodes record as json
func MarshalRecord(record TripRecord) ([]byte, error) {
	envelope, err := envelopeOf(record)
	if err != nil {
		return nil, err
	}
	return json.Marshal(envelope)
}

// UnmarshalRecord decodes a TripRecord encoded by MarshalRecord
func UnmarshalRecord(data []byte) (TripRecord, error) {
	var envelope recordEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unable to decode trip record: %w", err)
	}
	return envelope.record()
}

// MarshalRecords encodes records as a json array
func MarshalRecords(records []TripRecord) ([]byte, error) {
	envelopes := make([]recordEnvelope, 0, len(records))
	for _, record := range records {
		envelope, err := envelopeOf(record)
		if err != nil {
			return nil, err
		}
		envelopes = append(envelopes, envelope)
	}
	return json.Marshal(envelopes)
}

// UnmarshalRecords decodes TripRecords encoded by MarshalRecords
func UnmarshalRecords(data []byte) ([]TripRecord, error) {
	var envelopes []recordEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return nil, fmt.Errorf("unable to decode trip records: %w", err)
	}
	records := make([]TripRecord, 0, len(envelopes))
	for _, envelope := range envelopes {
		record, err := envelope.record()
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, nil
}

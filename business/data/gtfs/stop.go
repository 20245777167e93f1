package gtfs

import (
	"context"
	"fmt"
	"strings"

	"github.com/OpenTransitTools/transittrack/foundation/database"
	"github.com/jmoiron/sqlx"
)

// Stop contains a record from a gtfs stops.txt file
type Stop struct {
	StopId   string  `db:"stop_id" json:"stop_id"`
	StopCode *string `db:"stop_code" json:"stop_code"`
	StopName string  `db:"stop_name" json:"stop_name"`
	StopLat  float64 `db:"stop_lat" json:"stop_lat"`
	StopLon  float64 `db:"stop_lon" json:"stop_lon"`
}

// MissingStopsError is returned alongside the stops that were found when some requested stop ids are absent
type MissingStopsError struct {
	StopIds []string
}

func (m *MissingStopsError) Error() string {
	return fmt.Sprintf("stop ids not found: [%s]", strings.Join(m.StopIds, ","))
}

// getStopsByIds retrieves Stops with stopIds. If any stopIds are not found the stops that were found are
// returned with a *MissingStopsError
func getStopsByIds(ctx context.Context, db *sqlx.DB, stopIds []string) ([]Stop, error) {
	stops := make([]Stop, 0)
	if len(stopIds) == 0 {
		return stops, nil
	}
	statementString := "select stop_id, stop_code, stop_name, stop_lat, stop_lon from stop " +
		"where stop_id in (:stop_ids)"
	query, args, err := database.PrepareNamedQueryFromMap(statementString, db, map[string]interface{}{
		"stop_ids": stopIds,
	})
	if err != nil {
		return nil, err
	}
	err = db.SelectContext(ctx, &stops, query, args...)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve stop rows: %w", err)
	}

	found := make(map[string]bool, len(stops))
	for _, stop := range stops {
		found[stop.StopId] = true
	}
	var missing []string
	for _, stopId := range stopIds {
		if !found[stopId] {
			missing = append(missing, stopId)
		}
	}
	if len(missing) > 0 {
		return stops, &MissingStopsError{StopIds: missing}
	}
	return stops, nil
}

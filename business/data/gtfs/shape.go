package gtfs

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

/*
Shape contains rows from the GTFS shapes.txt file
*/
type Shape struct {
	ShapeId           string   `db:"shape_id" json:"shape_id"`
	ShapePtLat        float64  `db:"shape_pt_lat" json:"shape_pt_lat"`
	ShapePtLng        float64  `db:"shape_pt_lon" json:"shape_pt_lon"`
	ShapePtSequence   int      `db:"shape_pt_sequence" json:"shape_pt_sequence"`
	ShapeDistTraveled *float64 `db:"shape_dist_traveled" json:"shape_dist_traveled"`
}

// getShapeForTrip retrieves the Shape rows for the shape_id of tripId ordered by shape_pt_sequence
func getShapeForTrip(ctx context.Context, db *sqlx.DB, tripId string) ([]Shape, error) {
	statementString := db.Rebind("select shape.shape_id, shape.shape_pt_lat, shape.shape_pt_lon, " +
		"shape.shape_pt_sequence, shape.shape_dist_traveled " +
		"from shape join trip on trip.shape_id = shape.shape_id " +
		"where trip.trip_id = ? order by shape.shape_pt_sequence")
	shapes := make([]Shape, 0)
	err := db.SelectContext(ctx, &shapes, statementString, tripId)
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve shape rows for trip_id %s: %w", tripId, err)
	}
	return shapes, nil
}

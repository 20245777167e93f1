// Package geo provides the great circle and polyline math used to place vehicles along a route shape
package geo

import (
	"math"
	"strconv"
)

const earthRadiusMeters = 6371000.0

// Point is a latitude, longitude pair in degrees
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Key returns a normalized string for p, rounded to 6 decimal places (about 11cm)
func (p Point) Key() string {
	return strconv.FormatFloat(p.Lat, 'f', 6, 64) + "," + strconv.FormatFloat(p.Lon, 'f', 6, 64)
}

func toRadians(d float64) float64 {
	return d * math.Pi / 180
}

func toDegrees(r float64) float64 {
	return r * 180 / math.Pi
}

// Distance returns the great circle distance in METERS between a and b using the haversine formula
func Distance(a, b Point) float64 {
	dLat := toRadians(b.Lat - a.Lat)
	dLon := toRadians(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Lat))*math.Cos(toRadians(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

//SimpleDistance calculates the approximate distance between two pairs of coordinates with simplistic
//calculation of longitudinal distance based on latitudes.
//provides adequately accurate results for coordinates that are close together (in the same transit area)
//will not produce good results work for locations where longitude rolls over from -179.9 to 179.9
//returns distance in METERS
func SimpleDistance(a, b Point) float64 {
	//take average latitude and convert to radians
	lat := a.Lat + b.Lat
	if lat != 0 { // don't divide by zero
		lat = (lat / 2) * 0.01745329
	}

	diffLat := 111300 * (a.Lat - b.Lat)
	// at equator one degree is 111300 meters, use average latitude to convert
	diffLon := 111300 * math.Cos(lat) * (a.Lon - b.Lon)

	return math.Sqrt((diffLon * diffLon) + (diffLat * diffLat))
}

// Bearing returns the initial great circle bearing in degrees from one point to another, normalized to (-180, 180].
// 0 is north, 90 east and -90 west.
func Bearing(from, to Point) float64 {
	lat1 := toRadians(from.Lat)
	lat2 := toRadians(to.Lat)
	dLon := toRadians(to.Lon - from.Lon)
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	bearing := toDegrees(math.Atan2(y, x))
	if bearing <= -180 {
		bearing += 360
	}
	return bearing
}

// Length returns the total length in METERS of line
func Length(line []Point) float64 {
	total := 0.0
	for i := 1; i < len(line); i++ {
		total += Distance(line[i-1], line[i])
	}
	return total
}

// interpolate returns the point fraction of the way from a to b
func interpolate(a, b Point, fraction float64) Point {
	return Point{
		Lat: a.Lat + (b.Lat-a.Lat)*fraction,
		Lon: a.Lon + (b.Lon-a.Lon)*fraction,
	}
}

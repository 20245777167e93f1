package geo

import "math"

// linePosition locates a point projected onto a line: the segment it falls on and how far along that segment
type linePosition struct {
	segment int
	t       float64
	point   Point
}

func (p linePosition) before(other linePosition) bool {
	if p.segment != other.segment {
		return p.segment < other.segment
	}
	return p.t < other.t
}

//nearestPointOnSegment calculates the approximate nearest point on the segment from start to end from point
//will not produce good results work for locations where longitude rolls over from -179.9 to 179.9
//results should be close enough for coordinates that are close together (in the same transit area)
//returns the resulting point and the fraction of the way along the segment it lies
func nearestPointOnSegment(start, end, point Point) (Point, float64) {
	pointXStartLonDiff := point.Lon - start.Lon
	pointYStartLatDiff := point.Lat - start.Lat
	pointEndLonDiff := end.Lon - start.Lon
	pointEndLatDiff := end.Lat - start.Lat
	startEndDiffSquared := (pointEndLonDiff * pointEndLonDiff) + (pointEndLatDiff * pointEndLatDiff)
	t := 0.0
	if startEndDiffSquared > 0 {
		pointsDiffSquared := pointXStartLonDiff*pointEndLonDiff + pointYStartLatDiff*pointEndLatDiff
		t = math.Min(1, math.Max(0, pointsDiffSquared/startEndDiffSquared))
	}
	return Point{Lat: start.Lat + pointEndLatDiff*t, Lon: start.Lon + pointEndLonDiff*t}, t
}

// locate finds the position on line nearest to point. line must have at least two points
func locate(point Point, line []Point) linePosition {
	best := linePosition{segment: -1}
	bestDistance := math.MaxFloat64
	for i := 1; i < len(line); i++ {
		projected, t := nearestPointOnSegment(line[i-1], line[i], point)
		distance := SimpleDistance(point, projected)
		if distance < bestDistance {
			bestDistance = distance
			best = linePosition{segment: i - 1, t: t, point: projected}
		}
	}
	return best
}

// SliceBetween returns the part of line between the points on it nearest to a and b.
// The result starts and ends with those projected points with the line's vertices in between.
// When the part of the line closest to a comes last the slice is reversed so it runs from a toward b.
// Returns nil when line has fewer than two points.
func SliceBetween(a, b Point, line []Point) []Point {
	if len(line) < 2 {
		return nil
	}
	first := locate(a, line)
	last := locate(b, line)
	if last.before(first) {
		first, last = last, first
	}

	slice := []Point{first.point}
	appendPoint := func(p Point) {
		if slice[len(slice)-1] != p {
			slice = append(slice, p)
		}
	}
	for i := first.segment + 1; i <= last.segment; i++ {
		appendPoint(line[i])
	}
	appendPoint(last.point)

	if len(slice) > 1 && Distance(slice[len(slice)-1], a) < Distance(slice[0], a) {
		reverse(slice)
	}
	return slice
}

func reverse(line []Point) {
	for i, j := 0, len(line)-1; i < j; i, j = i+1, j-1 {
		line[i], line[j] = line[j], line[i]
	}
}

// Chunk divides line into sub-lines of equal length no longer than maxSegmentMeters.
// Consecutive chunks share their boundary point. Returns nil for a line with no length.
func Chunk(line []Point, maxSegmentMeters float64) [][]Point {
	if len(line) < 2 || maxSegmentMeters <= 0 {
		return nil
	}
	total := Length(line)
	if total == 0 {
		return nil
	}
	count := int(math.Ceil(total / maxSegmentMeters))
	size := total / float64(count)

	chunks := make([][]Point, 0, count)
	current := []Point{line[0]}
	remaining := size
	for i := 1; i < len(line); i++ {
		start, end := line[i-1], line[i]
		segmentLength := Distance(start, end)
		consumed := 0.0
		// the final chunk takes whatever is left over
		for segmentLength-consumed > remaining && len(chunks) < count-1 {
			consumed += remaining
			cut := interpolate(start, end, consumed/segmentLength)
			current = append(current, cut)
			chunks = append(chunks, current)
			current = []Point{cut}
			remaining = size
		}
		remaining -= segmentLength - consumed
		current = append(current, end)
	}
	return append(chunks, current)
}

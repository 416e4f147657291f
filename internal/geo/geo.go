// Package geo holds pure geographic helpers shared by the path builder and live sessions.
package geo

import "math"

// earthRadiusM is the mean Earth radius in metres.
const earthRadiusM = 6371000.0

// Point is a WGS84 coordinate in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// DistanceMeters returns the great-circle distance between a and b using the
// Haversine formula.
func DistanceMeters(a, b Point) float64 {
	dLat := degreesToRadians(b.Lat - a.Lat)
	dLng := degreesToRadians(b.Lng - a.Lng)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(degreesToRadians(a.Lat))*math.Cos(degreesToRadians(b.Lat))*
			math.Sin(dLng/2)*math.Sin(dLng/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}

// NearestDistanceMeters returns the distance from p to the closest vertex of line.
// Segments between vertices are not considered. An empty line yields +Inf.
func NearestDistanceMeters(p Point, line []Point) float64 {
	best := math.Inf(1)
	for _, v := range line {
		if d := DistanceMeters(p, v); d < best {
			best = d
		}
	}
	return best
}

// LengthKm sums consecutive vertex distances of line, in kilometres.
func LengthKm(line []Point) float64 {
	var total float64
	for i := 1; i < len(line); i++ {
		total += DistanceMeters(line[i-1], line[i])
	}
	return total / 1000
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

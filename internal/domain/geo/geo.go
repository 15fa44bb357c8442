// Package geo holds coordinate types and great-circle distance helpers.
package geo

import (
	"fmt"
	"math"
	"time"
)

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Valid reports whether the coordinate is finite and within range.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) ||
		math.IsInf(c.Latitude, 0) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", c.Latitude, c.Longitude)
}

// Place is a coordinate with an optional display name.
type Place struct {
	Coordinate `yaml:",inline"`
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`
}

// DisplayName returns the name, or the formatted coordinate when unnamed.
func (p Place) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Coordinate.String()
}

// Sample is one position reading from a location stream.
type Sample struct {
	Coordinate `yaml:",inline"`
	Timestamp  time.Time `json:"timestamp" yaml:"timestamp"`
}

// TimestampMs returns the sample time in Unix milliseconds.
func (s Sample) TimestampMs() int64 {
	return s.Timestamp.UnixMilli()
}

// DistanceKm returns the haversine distance between a and b in kilometers.
// NaN inputs propagate to a NaN result.
func DistanceKm(a, b Coordinate) float64 {
	lat1 := toRadians(a.Latitude)
	lat2 := toRadians(b.Latitude)
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// DistanceMeters is DistanceKm scaled to meters.
func DistanceMeters(a, b Coordinate) float64 {
	return DistanceKm(a, b) * 1000
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

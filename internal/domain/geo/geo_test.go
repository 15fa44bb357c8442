package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDistanceKmSymmetricAndZero(t *testing.T) {
	points := []Coordinate{
		{Latitude: 19.0584, Longitude: 72.8842},
		{Latitude: 19.0760, Longitude: 72.8777},
		{Latitude: -33.8688, Longitude: 151.2093},
		{Latitude: 51.5074, Longitude: -0.1278},
		{Latitude: 0, Longitude: 179.9999},
		{Latitude: 0, Longitude: -179.9999},
		{Latitude: 90, Longitude: 0},
	}

	for _, a := range points {
		assert.Zero(t, DistanceKm(a, a), "distance to self for %v", a)
		for _, b := range points {
			assert.InDelta(t, DistanceKm(a, b), DistanceKm(b, a), 1e-9, "%v vs %v", a, b)
		}
	}
}

func TestDistanceKmKnownValues(t *testing.T) {
	london := Coordinate{Latitude: 51.5074, Longitude: -0.1278}
	paris := Coordinate{Latitude: 48.8566, Longitude: 2.3522}
	assert.InDelta(t, 343.5, DistanceKm(london, paris), 1.0)

	// across the antimeridian stays short
	east := Coordinate{Latitude: 0, Longitude: 179.9999}
	west := Coordinate{Latitude: 0, Longitude: -179.9999}
	assert.Less(t, DistanceKm(east, west), 0.03)
}

func TestDistanceNearDestination(t *testing.T) {
	dest := Coordinate{Latitude: 19.0584, Longitude: 72.8842}
	inside := Coordinate{Latitude: 19.0587, Longitude: 72.8844}
	outside := Coordinate{Latitude: 19.0600, Longitude: 72.8842}

	assert.LessOrEqual(t, DistanceKm(dest, inside), 0.05)
	assert.Greater(t, DistanceKm(dest, outside), 0.05)
	assert.InDelta(t, DistanceKm(dest, outside)*1000, DistanceMeters(dest, outside), 1e-9)
}

func TestDistanceKmPropagatesNaN(t *testing.T) {
	a := Coordinate{Latitude: math.NaN(), Longitude: 0}
	assert.True(t, math.IsNaN(DistanceKm(a, Coordinate{})))
}

func TestCoordinateValid(t *testing.T) {
	assert.True(t, Coordinate{Latitude: 19.0584, Longitude: 72.8842}.Valid())
	assert.False(t, Coordinate{Latitude: 91, Longitude: 0}.Valid())
	assert.False(t, Coordinate{Latitude: 0, Longitude: -181}.Valid())
	assert.False(t, Coordinate{Latitude: math.NaN(), Longitude: 0}.Valid())
	assert.False(t, Coordinate{Latitude: 0, Longitude: math.Inf(1)}.Valid())
}

func TestPlaceDisplayName(t *testing.T) {
	p := Place{Coordinate: Coordinate{Latitude: 1, Longitude: 2}}
	assert.Equal(t, "(1.000000, 2.000000)", p.DisplayName())
	p.Name = "Office"
	assert.Equal(t, "Office", p.DisplayName())
}

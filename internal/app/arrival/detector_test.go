package arrival

import (
	"math"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"georemind/internal/domain/geo"
)

var office = geo.Place{Name: "Office", Coordinate: geo.Coordinate{Latitude: 19.0584, Longitude: 72.8842}}

func sample(lat, lon float64) geo.Sample {
	return geo.Sample{Coordinate: geo.Coordinate{Latitude: lat, Longitude: lon}, Timestamp: time.Now()}
}

func TestDetectorEmitsExactlyOnce(t *testing.T) {
	var events []Arrival
	d := NewDetector(office, 0.05, func(a Arrival) { events = append(events, a) })

	assert.False(t, d.Observe(sample(19.0700, 72.8842)))
	assert.False(t, d.Observe(sample(19.0620, 72.8842)))
	assert.True(t, d.Observe(sample(19.0587, 72.8844)))
	assert.False(t, d.Observe(sample(19.0584, 72.8842)))
	assert.False(t, d.Observe(sample(19.0585, 72.8843)))

	require.Len(t, events, 1)
	assert.Equal(t, "Office", events[0].Destination.Name)
	assert.LessOrEqual(t, events[0].DistanceKm, 0.05)
	assert.InDelta(t, 19.0587, events[0].Sample.Latitude, 1e-9)
	assert.True(t, d.Terminal())

	got, ok := d.Arrived()
	require.True(t, ok)
	assert.Equal(t, events[0], got)
}

func TestDetectorBoundaryIsInclusive(t *testing.T) {
	edge := sample(19.0588, 72.8842)
	exact := geo.DistanceKm(edge.Coordinate, office.Coordinate)
	d := NewDetector(office, exact, nil)
	assert.True(t, d.Observe(edge))
}

func TestDetectorStopSuppressesArrival(t *testing.T) {
	fired := false
	d := NewDetector(office, 0.05, func(Arrival) { fired = true })
	d.Stop()
	d.Stop()
	assert.False(t, d.Observe(sample(19.0584, 72.8842)))
	assert.False(t, fired)
	_, ok := d.Arrived()
	assert.False(t, ok)
}

func TestDetectorIgnoresNaN(t *testing.T) {
	d := NewDetector(office, 0.05, nil)
	assert.False(t, d.Observe(sample(math.NaN(), 72.8842)))
	assert.False(t, d.Terminal())
}

func TestDetectorWithinDoesNotTrigger(t *testing.T) {
	fired := false
	d := NewDetector(office, 0.05, func(Arrival) { fired = true })
	assert.True(t, d.Within(sample(19.0587, 72.8844)))
	assert.False(t, d.Within(sample(19.0620, 72.8842)))
	assert.False(t, fired)
	assert.False(t, d.Terminal())
}

func TestDetectorDefaultRadius(t *testing.T) {
	assert.Equal(t, DefaultRadiusKm, NewDetector(office, 0, nil).RadiusKm())
}

func TestDetectorConcurrentObserveSingleEvent(t *testing.T) {
	var fired atomic.Int32
	d := NewDetector(office, 0.05, func(Arrival) { fired.Add(1) })

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.Observe(sample(19.0584, 72.8842))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), fired.Load())
}

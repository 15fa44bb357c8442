// Package arrival decides when a position stream enters a destination geofence.
package arrival

import (
	"sync"

	"georemind/internal/domain/geo"
)

// DefaultRadiusKm is the arrival radius used when none is configured.
const DefaultRadiusKm = 0.05

// Arrival is the single event a Detector emits.
type Arrival struct {
	Destination geo.Place
	Sample      geo.Sample
	DistanceKm  float64
}

// Detector emits at most one Arrival for a fixed destination and then
// ignores every later sample. It never times out; the owner stops it.
type Detector struct {
	destination geo.Place
	radiusKm    float64
	onArrival   func(Arrival)

	mu       sync.Mutex
	terminal bool
	arrived  *Arrival
}

// NewDetector creates a detector. A non-positive radius uses DefaultRadiusKm.
// onArrival runs synchronously inside the Observe call that detects arrival.
func NewDetector(destination geo.Place, radiusKm float64, onArrival func(Arrival)) *Detector {
	if radiusKm <= 0 {
		radiusKm = DefaultRadiusKm
	}
	return &Detector{destination: destination, radiusKm: radiusKm, onArrival: onArrival}
}

// Within reports whether sample lies inside the geofence. It does not
// change detector state.
func (d *Detector) Within(sample geo.Sample) bool {
	return geo.DistanceKm(sample.Coordinate, d.destination.Coordinate) <= d.radiusKm
}

// Observe evaluates one sample and reports whether it triggered arrival.
// NaN distances never trigger.
func (d *Detector) Observe(sample geo.Sample) bool {
	d.mu.Lock()
	if d.terminal {
		d.mu.Unlock()
		return false
	}
	dist := geo.DistanceKm(sample.Coordinate, d.destination.Coordinate)
	if !(dist <= d.radiusKm) {
		d.mu.Unlock()
		return false
	}
	d.terminal = true
	event := Arrival{Destination: d.destination, Sample: sample, DistanceKm: dist}
	d.arrived = &event
	d.mu.Unlock()

	if d.onArrival != nil {
		d.onArrival(event)
	}
	return true
}

// Stop makes the detector terminal without emitting. Idempotent.
func (d *Detector) Stop() {
	d.mu.Lock()
	d.terminal = true
	d.mu.Unlock()
}

// Terminal reports whether the detector accepts no more samples.
func (d *Detector) Terminal() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.terminal
}

// Arrived returns the emitted event, if any.
func (d *Detector) Arrived() (Arrival, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.arrived == nil {
		return Arrival{}, false
	}
	return *d.arrived, true
}

// RadiusKm returns the configured arrival radius.
func (d *Detector) RadiusKm() float64 {
	return d.radiusKm
}

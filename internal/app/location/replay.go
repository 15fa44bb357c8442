package location

import (
	"context"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"georemind/internal/domain/geo"
	"georemind/internal/shared/async"
	"georemind/internal/shared/logging"
)

// TrackPoint is one recorded position at an offset from the track start.
type TrackPoint struct {
	geo.Coordinate `yaml:",inline"`
	Offset         time.Duration `yaml:"offset"`
}

// Track is a recorded route used for simulation.
type Track struct {
	Name        string       `yaml:"name"`
	Destination *geo.Place   `yaml:"destination,omitempty"`
	Points      []TrackPoint `yaml:"points"`
}

// ParseTrack decodes a YAML track and orders points by offset.
func ParseTrack(data []byte) (Track, error) {
	var track Track
	if err := yaml.Unmarshal(data, &track); err != nil {
		return Track{}, fmt.Errorf("parse track: %w", err)
	}
	for i, p := range track.Points {
		if !p.Valid() {
			return Track{}, fmt.Errorf("track point %d: coordinate %s out of range", i, p.Coordinate)
		}
		if p.Offset < 0 {
			return Track{}, fmt.Errorf("track point %d: negative offset %s", i, p.Offset)
		}
	}
	sort.SliceStable(track.Points, func(i, j int) bool {
		return track.Points[i].Offset < track.Points[j].Offset
	})
	return track, nil
}

// LoadTrack reads and parses a YAML track file.
func LoadTrack(path string) (Track, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Track{}, fmt.Errorf("read track: %w", err)
	}
	return ParseTrack(data)
}

// ReplaySource replays a recorded track to every stream it opens. Each
// stream starts the track from its own open time.
type ReplaySource struct {
	points []TrackPoint
	speed  float64
	logger logging.Logger
}

// ReplayOption customizes a ReplaySource.
type ReplayOption func(*ReplaySource)

// WithReplaySpeed scales offsets; 2 replays twice as fast.
func WithReplaySpeed(speed float64) ReplayOption {
	return func(r *ReplaySource) {
		if speed > 0 {
			r.speed = speed
		}
	}
}

// WithReplayLogger sets the source logger.
func WithReplayLogger(logger logging.Logger) ReplayOption {
	return func(r *ReplaySource) { r.logger = logging.OrNop(logger) }
}

// NewReplaySource creates a source over points.
func NewReplaySource(points []TrackPoint, opts ...ReplayOption) *ReplaySource {
	r := &ReplaySource{points: append([]TrackPoint(nil), points...), speed: 1, logger: logging.NewComponentLogger("ReplaySource")}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open implements Source. The stream closes after the last point.
func (r *ReplaySource) Open(ctx context.Context, _ string, cfg WatchConfig) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := &replayStream{
		ch:      make(chan geo.Sample, 1),
		closeCh: make(chan struct{}),
	}
	filter := distanceFilter{minMeters: cfg.MinDistanceMeters}
	async.Go(r.logger, "location.replay", func() {
		s.run(r.points, r.speed, filter)
	})
	return s, nil
}

type replayStream struct {
	ch        chan geo.Sample
	closeCh   chan struct{}
	closeOnce sync.Once
}

func (s *replayStream) run(points []TrackPoint, speed float64, filter distanceFilter) {
	defer close(s.ch)
	start := time.Now()
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for _, p := range points {
		due := start.Add(time.Duration(float64(p.Offset) / speed))
		if wait := time.Until(due); wait > 0 {
			timer.Reset(wait)
			select {
			case <-s.closeCh:
				return
			case <-timer.C:
			}
		}

		sample := geo.Sample{Coordinate: p.Coordinate, Timestamp: time.Now()}
		if !filter.allows(sample) {
			continue
		}
		filter.record(sample)
		select {
		case <-s.closeCh:
			return
		case s.ch <- sample:
		}
	}
}

func (s *replayStream) Samples() <-chan geo.Sample {
	return s.ch
}

func (s *replayStream) Close() error {
	s.closeOnce.Do(func() { close(s.closeCh) })
	return nil
}

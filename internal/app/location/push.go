package location

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"georemind/internal/domain/geo"
	"georemind/internal/shared/logging"
)

const defaultPushBuffer = 16

// PushSource fans out samples published by clients to open streams.
// Each stream applies its own min-distance filter and an accuracy-derived
// rate limit, mirroring the platform's update throttling.
type PushSource struct {
	mu      sync.Mutex
	streams map[string]map[*pushStream]struct{}
	last    map[string]geo.Sample
	buffer  int
	logger  logging.Logger
}

// PushOption customizes a PushSource.
type PushOption func(*PushSource)

// WithPushBuffer sets the per-stream channel capacity.
func WithPushBuffer(size int) PushOption {
	return func(p *PushSource) {
		if size > 0 {
			p.buffer = size
		}
	}
}

// WithPushLogger sets the source logger.
func WithPushLogger(logger logging.Logger) PushOption {
	return func(p *PushSource) { p.logger = logging.OrNop(logger) }
}

// NewPushSource creates an empty PushSource.
func NewPushSource(opts ...PushOption) *PushSource {
	p := &PushSource{
		streams: make(map[string]map[*pushStream]struct{}),
		last:    make(map[string]geo.Sample),
		buffer:  defaultPushBuffer,
		logger:  logging.NewComponentLogger("PushSource"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Open implements Source.
func (p *PushSource) Open(ctx context.Context, userID string, cfg WatchConfig) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if userID == "" {
		return nil, fmt.Errorf("push stream requires a user id")
	}
	stream := &pushStream{
		owner:   p,
		userID:  userID,
		ch:      make(chan geo.Sample, p.buffer),
		filter:  distanceFilter{minMeters: cfg.MinDistanceMeters},
		limiter: rate.NewLimiter(accuracyLimit(cfg.Accuracy), 1),
		urgent:  cfg.Urgent,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	set, ok := p.streams[userID]
	if !ok {
		set = make(map[*pushStream]struct{})
		p.streams[userID] = set
	}
	set[stream] = struct{}{}
	return stream, nil
}

// Publish delivers sample to every stream open for userID and returns the
// number of streams that accepted it.
func (p *PushSource) Publish(userID string, sample geo.Sample) int {
	if sample.Timestamp.IsZero() {
		sample.Timestamp = time.Now()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.last[userID] = sample

	delivered := 0
	for stream := range p.streams[userID] {
		if stream.offer(sample) {
			delivered++
		}
	}
	if delivered == 0 && len(p.streams[userID]) > 0 {
		p.logger.Debug("Sample for %s filtered by all %d streams", userID, len(p.streams[userID]))
	}
	return delivered
}

// LastSample returns the most recent sample published for userID.
func (p *PushSource) LastSample(userID string) (geo.Sample, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.last[userID]
	return s, ok
}

// ActiveStreams returns the number of open streams for userID.
func (p *PushSource) ActiveStreams(userID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.streams[userID])
}

func (p *PushSource) remove(stream *pushStream) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if set, ok := p.streams[stream.userID]; ok {
		delete(set, stream)
		if len(set) == 0 {
			delete(p.streams, stream.userID)
		}
	}
	// Sends happen under p.mu, so closing here cannot race a send.
	close(stream.ch)
}

type pushStream struct {
	owner     *PushSource
	userID    string
	ch        chan geo.Sample
	filter    distanceFilter
	limiter   *rate.Limiter
	urgent    func(geo.Sample) bool
	closeOnce sync.Once
}

// offer runs under owner.mu.
func (s *pushStream) offer(sample geo.Sample) bool {
	if !s.filter.allows(sample) {
		return false
	}
	if (s.urgent == nil || !s.urgent(sample)) && !s.limiter.Allow() {
		return false
	}
	s.filter.record(sample)
	select {
	case s.ch <- sample:
	default:
		// Full buffer: drop the oldest so the freshest position wins.
		select {
		case <-s.ch:
		default:
		}
		s.ch <- sample
	}
	return true
}

func (s *pushStream) Samples() <-chan geo.Sample {
	return s.ch
}

func (s *pushStream) Close() error {
	s.closeOnce.Do(func() {
		s.owner.remove(s)
	})
	return nil
}

func accuracyLimit(a Accuracy) rate.Limit {
	switch a {
	case AccuracyBestForNavigation:
		return rate.Inf
	case AccuracyHighest:
		return rate.Limit(10)
	case AccuracyHigh:
		return rate.Limit(2)
	case AccuracyBalanced:
		return rate.Every(5 * time.Second)
	case AccuracyLow:
		return rate.Every(15 * time.Second)
	case AccuracyLowest:
		return rate.Every(time.Minute)
	default:
		return rate.Inf
	}
}

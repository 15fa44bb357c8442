package location

import (
	"context"
	"fmt"
	"sync"

	"georemind/internal/domain/geo"
	"georemind/internal/shared/async"
	sherrors "georemind/internal/shared/errors"
	"georemind/internal/shared/logging"
)

// Watcher gates sample streams behind the location permission.
type Watcher struct {
	source Source
	perms  PermissionChecker
	logger logging.Logger
}

// WatcherOption customizes a Watcher.
type WatcherOption func(*Watcher)

// WithWatcherLogger sets the watcher logger.
func WithWatcherLogger(logger logging.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = logging.OrNop(logger) }
}

// NewWatcher creates a Watcher over source.
func NewWatcher(source Source, perms PermissionChecker, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		source: source,
		perms:  perms,
		logger: logging.NewComponentLogger("LocationWatcher"),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start checks permission, opens a stream for userID and delivers samples to
// handler until the subscription is stopped or the stream ends. ctx bounds
// the permission check and stream open only. A denied or undetermined
// permission fails with ErrPermissionDenied and starts nothing.
func (w *Watcher) Start(ctx context.Context, userID string, cfg WatchConfig, handler Handler) (*Subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("location handler is nil")
	}
	if err := w.CheckPermission(ctx, userID); err != nil {
		return nil, err
	}

	stream, err := w.source.Open(ctx, userID, cfg)
	if err != nil {
		return nil, fmt.Errorf("open location stream: %w", err)
	}

	sub := &Subscription{
		stream: stream,
		stopCh: make(chan struct{}),
		done:   make(chan struct{}),
	}
	async.Go(w.logger, "location.pump", func() {
		sub.pump(handler)
	})
	w.logger.Debug("Watching %s (min_distance=%.0fm accuracy=%s)", userID, cfg.MinDistanceMeters, cfg.Accuracy)
	return sub, nil
}

// CheckPermission fails with ErrPermissionDenied unless userID granted access.
func (w *Watcher) CheckPermission(ctx context.Context, userID string) error {
	if w.perms == nil {
		return sherrors.ErrPermissionDenied
	}
	perm, err := w.perms.RequestLocationPermission(ctx, userID)
	if err != nil {
		return fmt.Errorf("request location permission: %w", err)
	}
	if perm != PermissionGranted {
		w.logger.Info("Location permission %s for %s", perm, userID)
		return fmt.Errorf("%w (%s)", sherrors.ErrPermissionDenied, perm)
	}
	return nil
}

// Subscription is a running sample delivery loop.
type Subscription struct {
	stream   Stream
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

func (s *Subscription) pump(handler Handler) {
	defer close(s.done)
	samples := s.stream.Samples()
	for {
		select {
		case <-s.stopCh:
			return
		case sample, ok := <-samples:
			if !ok {
				return
			}
			select {
			case <-s.stopCh:
				return
			default:
			}
			handler(sample)
		}
	}
}

// Cancel stops delivery without waiting for an in-flight handler call.
// Safe to call from inside the handler. Idempotent.
func (s *Subscription) Cancel() {
	if s == nil {
		return
	}
	s.stopOnce.Do(func() {
		close(s.stopCh)
		_ = s.stream.Close()
	})
}

// Stop cancels delivery and returns once the handler can no longer run.
// Idempotent. Must not be called from inside the handler; use Cancel there.
func (s *Subscription) Stop() {
	if s == nil {
		return
	}
	s.Cancel()
	<-s.done
}

// Done is closed when the delivery loop has exited.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// distanceFilter drops samples closer than minMeters to the last accepted one.
type distanceFilter struct {
	minMeters float64
	last      *geo.Sample
}

func (f *distanceFilter) allows(sample geo.Sample) bool {
	if f.last == nil || f.minMeters <= 0 {
		return true
	}
	return geo.DistanceMeters(f.last.Coordinate, sample.Coordinate) >= f.minMeters
}

func (f *distanceFilter) record(sample geo.Sample) {
	s := sample
	f.last = &s
}

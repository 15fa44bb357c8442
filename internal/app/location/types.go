// Package location streams position samples to subscribers.
package location

import (
	"context"
	"fmt"
	"strings"

	"georemind/internal/domain/geo"
)

// Accuracy is a hint for how precise and frequent samples should be.
type Accuracy int

const (
	AccuracyLowest Accuracy = iota + 1
	AccuracyLow
	AccuracyBalanced
	AccuracyHigh
	AccuracyHighest
	AccuracyBestForNavigation
)

func (a Accuracy) String() string {
	switch a {
	case AccuracyLowest:
		return "lowest"
	case AccuracyLow:
		return "low"
	case AccuracyBalanced:
		return "balanced"
	case AccuracyHigh:
		return "high"
	case AccuracyHighest:
		return "highest"
	case AccuracyBestForNavigation:
		return "best_for_navigation"
	default:
		return fmt.Sprintf("ACCURACY(%d)", int(a))
	}
}

// ParseAccuracy maps a config value to an Accuracy.
func ParseAccuracy(value string) (Accuracy, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "lowest":
		return AccuracyLowest, nil
	case "low":
		return AccuracyLow, nil
	case "balanced":
		return AccuracyBalanced, nil
	case "high":
		return AccuracyHigh, nil
	case "", "highest":
		return AccuracyHighest, nil
	case "best_for_navigation", "navigation":
		return AccuracyBestForNavigation, nil
	default:
		return 0, fmt.Errorf("unknown accuracy %q", value)
	}
}

// WatchConfig bounds the update rate of a subscription.
type WatchConfig struct {
	// MinDistanceMeters suppresses samples closer than this to the last
	// delivered one. Zero delivers every sample.
	MinDistanceMeters float64
	Accuracy          Accuracy
	// Urgent marks samples that skip the accuracy rate limit, such as one
	// inside the destination geofence. Nil treats every sample alike.
	Urgent func(geo.Sample) bool
}

// Permission is the platform location permission state for a user.
type Permission string

const (
	PermissionGranted      Permission = "granted"
	PermissionDenied       Permission = "denied"
	PermissionUndetermined Permission = "undetermined"
)

// ParsePermission maps a client-reported value to a Permission.
func ParsePermission(value string) (Permission, error) {
	switch Permission(strings.ToLower(strings.TrimSpace(value))) {
	case PermissionGranted:
		return PermissionGranted, nil
	case PermissionDenied:
		return PermissionDenied, nil
	case PermissionUndetermined, "":
		return PermissionUndetermined, nil
	default:
		return "", fmt.Errorf("unknown permission %q", value)
	}
}

// PermissionChecker reports whether a user granted location access.
type PermissionChecker interface {
	RequestLocationPermission(ctx context.Context, userID string) (Permission, error)
}

// Stream is an open feed of samples for one subscriber.
type Stream interface {
	Samples() <-chan geo.Sample
	// Close releases the stream and closes the Samples channel. Idempotent.
	Close() error
}

// Source opens sample streams.
type Source interface {
	Open(ctx context.Context, userID string, cfg WatchConfig) (Stream, error)
}

// Handler receives samples in order on the subscription's goroutine.
type Handler func(geo.Sample)

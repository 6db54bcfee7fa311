package detector

import (
	"context"
	"errors"
	"image"
)

// ErrEstimatorUnavailable is returned when the estimator backend cannot be
// found or has not been initialized.
var ErrEstimatorUnavailable = errors.New("estimator unavailable")

// ResultFunc receives the outcome of one Send call.
// It is invoked from the estimator's own goroutine.
type ResultFunc func(hands []Hand, err error)

// Estimator is the narrow capability the engine needs from a hand-pose
// estimator. Send hands one frame over and returns once the frame has been
// submitted; the detection arrives later through the OnResult callback.
type Estimator interface {
	Init(ctx context.Context, opts Options) error
	OnResult(fn ResultFunc)
	Send(frame image.Image) error
	Close() error
}

// Options holds configuration options for hand detection.
type Options struct {
	// MaxHands is the maximum number of hands to detect (default: 2).
	MaxHands int

	// MinConfidence is the minimum detection confidence threshold (0.0-1.0).
	MinConfidence float64

	// MinTrackingConf is the minimum tracking confidence threshold (0.0-1.0).
	MinTrackingConf float64
}

// DefaultOptions returns Options with sensible default values.
func DefaultOptions() Options {
	return Options{
		MaxHands:        2,
		MinConfidence:   0.5,
		MinTrackingConf: 0.5,
	}
}

package position

import (
	"time"

	"yamichi77/movement-log-agent/internal/models"
)

// Fix is one position reading from the feed
type Fix struct {
	Latitude  float64
	Longitude float64
	// Accuracy is the reported horizontal accuracy in meters, 0 if unknown
	Accuracy float64
	// Speed is ground speed in m/s, negative when the source did not report one
	Speed float64
	Time  time.Time
}

// Request describes the wanted sampling cadence and fidelity
type Request struct {
	Interval     time.Duration
	HighAccuracy bool
}

// Subscription is a handle on an active feed subscription.
// Cancel is idempotent.
type Subscription interface {
	Cancel()
}

// Feed delivers position fixes at the requested cadence. There is no
// in-place parameter update; changing cadence means cancelling and
// subscribing again.
type Feed interface {
	Subscribe(req Request, fn func(Fix)) (Subscription, error)
}

// MotionFeed delivers device-motion transitions. Implementations emit
// only on activity changes, not on every observation.
type MotionFeed interface {
	Subscribe(fn func(models.ActivityStatus)) (Subscription, error)
}

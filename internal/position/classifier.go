package position

import (
	"math"
	"sync"
	"time"

	"yamichi77/movement-log-agent/internal/models"

	"go.uber.org/zap"
)

// Speed bands in m/s separating the activity classes. A brisk walk tops
// out near 2 m/s, running near 4, cycling near 8.
const (
	stillMaxSpeed   = 0.4
	walkingMaxSpeed = 2.0
	runningMaxSpeed = 4.0
	bicycleMaxSpeed = 8.0
)

// classifierInterval is how often the classifier samples the feed. It is
// deliberately independent of the tracking cadence.
const classifierInterval = 10 * time.Second

// SpeedClassifier derives motion transitions from feed speed. It stands
// in for platform activity recognition: coarse, but transition-shaped.
type SpeedClassifier struct {
	feed   Feed
	logger *zap.Logger
}

func NewSpeedClassifier(feed Feed, logger *zap.Logger) *SpeedClassifier {
	return &SpeedClassifier{
		feed:   feed,
		logger: logger,
	}
}

// Subscribe starts classifying and invokes fn on every transition
func (c *SpeedClassifier) Subscribe(fn func(models.ActivityStatus)) (Subscription, error) {
	state := &classifierState{
		onTransition: fn,
		logger:       c.logger,
	}
	sub, err := c.feed.Subscribe(Request{
		Interval:     classifierInterval,
		HighAccuracy: false,
	}, state.observe)
	if err != nil {
		return nil, err
	}
	return sub, nil
}

type classifierState struct {
	mu           sync.Mutex
	current      models.ActivityStatus
	hasCurrent   bool
	lastFix      Fix
	hasLastFix   bool
	onTransition func(models.ActivityStatus)
	logger       *zap.Logger
}

func (s *classifierState) observe(fix Fix) {
	speed := fix.Speed
	if speed < 0 {
		speed = s.derivedSpeed(fix)
	}

	var next models.ActivityStatus
	switch {
	case speed < 0:
		next = models.ActivityUnknown
	case speed < stillMaxSpeed:
		next = models.ActivityStill
	case speed < walkingMaxSpeed:
		next = models.ActivityWalking
	case speed < runningMaxSpeed:
		next = models.ActivityRunning
	case speed < bicycleMaxSpeed:
		next = models.ActivityBicycle
	default:
		next = models.ActivityVehicle
	}

	s.mu.Lock()
	changed := !s.hasCurrent || s.current != next
	s.current = next
	s.hasCurrent = true
	s.mu.Unlock()

	if changed {
		s.logger.Debug("Activity transition detected",
			zap.String("activity", string(next)),
			zap.Float64("speed_mps", speed),
		)
		s.onTransition(next)
	}
}

// derivedSpeed estimates speed from consecutive fixes when the source
// reports none. Returns negative when no estimate is possible.
func (s *classifierState) derivedSpeed(fix Fix) float64 {
	s.mu.Lock()
	prev, ok := s.lastFix, s.hasLastFix
	s.lastFix = fix
	s.hasLastFix = true
	s.mu.Unlock()

	if !ok {
		return -1
	}
	dt := fix.Time.Sub(prev.Time).Seconds()
	if dt <= 0 {
		return -1
	}
	return haversineMeters(prev.Latitude, prev.Longitude, fix.Latitude, fix.Longitude) / dt
}

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	const earthRadius = 6371000.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }

	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadius * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

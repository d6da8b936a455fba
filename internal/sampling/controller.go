package sampling

import (
	"context"
	"sync"
	"time"

	"yamichi77/movement-log-agent/internal/models"
	"yamichi77/movement-log-agent/internal/position"

	"go.uber.org/zap"
)

// debugIntervalSec is the fixed cadence in reduced-fidelity debug mode
const debugIntervalSec = 5

// SampleAppender is the slice of the sample store the controller writes to
type SampleAppender interface {
	Append(ctx context.Context, sample models.LocationSample) (int64, error)
}

// Controller owns the tracking state machine: one active or stopped
// tracking session per process. While active it subscribes to the
// position feed at a cadence derived from the current activity and
// appends accepted fixes to the sample store.
type Controller struct {
	feed       position.Feed
	motionFeed position.MotionFeed
	samples    SampleAppender
	snapshots  *SnapshotStore
	logger     *zap.Logger
	debugMode  bool

	mu              sync.Mutex
	active          bool
	currentActivity models.ActivityStatus
	currentRequest  position.Request
	frequency       models.TrackingFrequencySettings
	lastLatitude    *float64
	lastLongitude   *float64

	// subMu serializes subscription swaps; never held inside feed callbacks
	subMu       sync.Mutex
	positionSub position.Subscription
	motionSub   position.Subscription
}

func NewController(
	feed position.Feed,
	motionFeed position.MotionFeed,
	samples SampleAppender,
	snapshots *SnapshotStore,
	frequency models.TrackingFrequencySettings,
	debugMode bool,
	logger *zap.Logger,
) *Controller {
	initialActivity := models.ActivityStill
	if debugMode {
		initialActivity = models.ActivityUnknown
	}
	return &Controller{
		feed:            feed,
		motionFeed:      motionFeed,
		samples:         samples,
		snapshots:       snapshots,
		logger:          logger,
		debugMode:       debugMode,
		currentActivity: initialActivity,
		frequency:       frequency,
	}
}

// Start begins tracking. hasPermission is the caller-checked location
// capability; without it the controller stays stopped without error.
// Starting while active is a no-op.
func (c *Controller) Start(hasPermission bool) error {
	if !hasPermission {
		c.logger.Warn("Location permission not granted, tracking not started")
		return nil
	}

	c.mu.Lock()
	if c.active {
		c.mu.Unlock()
		return nil
	}
	c.active = true
	activity := c.currentActivity
	request := c.requestForActivityLocked(activity)
	c.currentRequest = request
	c.mu.Unlock()

	c.snapshots.SetCollecting(true)
	c.snapshots.UpdateActivity(activity)

	if err := c.subscribePosition(request); err != nil {
		c.mu.Lock()
		c.active = false
		c.mu.Unlock()
		c.snapshots.SetCollecting(false)
		return err
	}

	if !c.debugMode && c.motionFeed != nil {
		c.subMu.Lock()
		sub, err := c.motionFeed.Subscribe(c.onActivityTransition)
		if err != nil {
			// Tracking continues at the current cadence without
			// transition detection
			c.logger.Warn("Failed to start motion monitoring", zap.Error(err))
		} else {
			c.motionSub = sub
		}
		c.subMu.Unlock()
	}

	c.logger.Info("Tracking started",
		zap.String("activity", string(activity)),
		zap.Duration("interval", request.Interval),
		zap.Bool("debug_mode", c.debugMode),
	)
	return nil
}

// Stop cancels position and motion subscriptions and returns to Stopped.
// Safe to call when already stopped. In-flight sample inserts complete
// on their own.
func (c *Controller) Stop() {
	c.mu.Lock()
	wasActive := c.active
	c.active = false
	c.mu.Unlock()

	c.subMu.Lock()
	if c.positionSub != nil {
		c.positionSub.Cancel()
		c.positionSub = nil
	}
	if c.motionSub != nil {
		c.motionSub.Cancel()
		c.motionSub = nil
	}
	c.subMu.Unlock()

	c.snapshots.SetCollecting(false)
	if wasActive {
		c.logger.Info("Tracking stopped")
	}
}

// ApplyFrequencySettings applies a settings push. When active outside
// debug mode, the request for the current activity is recomputed and the
// subscription restarted only if the parameters changed.
func (c *Controller) ApplyFrequencySettings(settings models.TrackingFrequencySettings) {
	c.mu.Lock()
	c.frequency = settings
	if !c.active || c.debugMode {
		c.mu.Unlock()
		return
	}
	request := c.requestForActivityLocked(c.currentActivity)
	changed := request != c.currentRequest
	if changed {
		c.currentRequest = request
	}
	c.mu.Unlock()

	if changed {
		c.restartPosition(request)
	}
}

// onFix is the position feed callback
func (c *Controller) onFix(fix position.Fix) {
	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	// Exact-equality dedup against the previous accepted fix
	if c.lastLatitude != nil && *c.lastLatitude == fix.Latitude &&
		c.lastLongitude != nil && *c.lastLongitude == fix.Longitude {
		c.mu.Unlock()
		return
	}
	lat, lon := fix.Latitude, fix.Longitude
	c.lastLatitude = &lat
	c.lastLongitude = &lon
	activity := c.currentActivity
	c.mu.Unlock()

	recordedAt := fix.Time.UnixMilli()
	c.snapshots.UpdateLocation(fix.Latitude, fix.Longitude, recordedAt, activity)

	sample := models.LocationSample{
		RecordedAt: recordedAt,
		Latitude:   fix.Latitude,
		Longitude:  fix.Longitude,
		Accuracy:   fix.Accuracy,
		Activity:   activity,
		Uploaded:   false,
	}
	// Fire-and-forget insert; the sampling hot path never waits on the db
	go func() {
		if _, err := c.samples.Append(context.Background(), sample); err != nil {
			c.logger.Error("Failed to store location sample", zap.Error(err))
		}
	}()
}

// onActivityTransition is the motion feed callback. The new cadence
// takes effect from the next scheduled fix.
func (c *Controller) onActivityTransition(activity models.ActivityStatus) {
	if c.debugMode {
		return
	}

	c.mu.Lock()
	if !c.active {
		c.mu.Unlock()
		return
	}
	c.currentActivity = activity
	request := c.requestForActivityLocked(activity)
	changed := request != c.currentRequest
	if changed {
		c.currentRequest = request
	}
	c.mu.Unlock()

	c.snapshots.UpdateActivity(activity)
	if changed {
		c.logger.Info("Activity changed, adjusting sampling",
			zap.String("activity", string(activity)),
			zap.Duration("interval", request.Interval),
			zap.Bool("high_accuracy", request.HighAccuracy),
		)
		c.restartPosition(request)
	}
}

// requestForActivityLocked maps an activity to request parameters.
// WALKING/RUNNING/BICYCLE/VEHICLE use their configured interval with high
// accuracy; STILL/UNKNOWN use the still interval with balanced power.
func (c *Controller) requestForActivityLocked(activity models.ActivityStatus) position.Request {
	if c.debugMode {
		return position.Request{
			Interval:     debugIntervalSec * time.Second,
			HighAccuracy: true,
		}
	}

	highAccuracy := false
	switch activity {
	case models.ActivityWalking, models.ActivityRunning,
		models.ActivityBicycle, models.ActivityVehicle:
		highAccuracy = true
	}
	return position.Request{
		Interval:     time.Duration(c.frequency.IntervalSec(activity)) * time.Second,
		HighAccuracy: highAccuracy,
	}
}

func (c *Controller) subscribePosition(request position.Request) error {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	sub, err := c.feed.Subscribe(request, c.onFix)
	if err != nil {
		return err
	}
	c.positionSub = sub
	return nil
}

// restartPosition swaps the position subscription for one with the new
// parameters. The feed has no in-place update.
func (c *Controller) restartPosition(request position.Request) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if c.positionSub != nil {
		c.positionSub.Cancel()
		c.positionSub = nil
	}
	sub, err := c.feed.Subscribe(request, c.onFix)
	if err != nil {
		c.logger.Error("Failed to resubscribe position feed", zap.Error(err))
		return
	}
	c.positionSub = sub
}

package position

import (
	"bufio"
	"encoding/json"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

const gpsdWatchCommand = `?WATCH={"enable":true,"json":true}` + "\n"

// GpsdFeed reads position fixes from a gpsd daemon over TCP.
// It reconnects on connection loss until the subscription is cancelled.
type GpsdFeed struct {
	addr   string
	logger *zap.Logger
}

func NewGpsdFeed(addr string, logger *zap.Logger) *GpsdFeed {
	return &GpsdFeed{
		addr:   addr,
		logger: logger,
	}
}

// tpvReport is the subset of gpsd's TPV class the feed consumes
type tpvReport struct {
	Class string  `json:"class"`
	Mode  int     `json:"mode"`
	Time  string  `json:"time"`
	Lat   float64 `json:"lat"`
	Lon   float64 `json:"lon"`
	// Estimated position error in meters
	Eph float64 `json:"eph"`
	// Ground speed in m/s
	Speed *float64 `json:"speed"`
}

// Subscribe starts streaming fixes. The request interval throttles
// delivery; gpsd itself reports at the device rate.
func (f *GpsdFeed) Subscribe(req Request, fn func(Fix)) (Subscription, error) {
	sub := &gpsdSubscription{
		feed:     f,
		req:      req,
		fn:       fn,
		stopChan: make(chan struct{}),
	}
	sub.wg.Add(1)
	go sub.run()
	return sub, nil
}

type gpsdSubscription struct {
	feed     *GpsdFeed
	req      Request
	fn       func(Fix)
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func (s *gpsdSubscription) Cancel() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	s.wg.Wait()
}

func (s *gpsdSubscription) run() {
	defer s.wg.Done()

	var lastDelivered time.Time
	for {
		select {
		case <-s.stopChan:
			return
		default:
		}

		conn, err := net.DialTimeout("tcp", s.feed.addr, 10*time.Second)
		if err != nil {
			s.feed.logger.Warn("Failed to connect to gpsd, retrying",
				zap.String("addr", s.feed.addr),
				zap.Error(err),
			)
			select {
			case <-time.After(5 * time.Second):
				continue
			case <-s.stopChan:
				return
			}
		}

		s.stream(conn, &lastDelivered)
		conn.Close()
	}
}

func (s *gpsdSubscription) stream(conn net.Conn, lastDelivered *time.Time) {
	// Unblock the read loop when the subscription is cancelled
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-s.stopChan:
			conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	if _, err := conn.Write([]byte(gpsdWatchCommand)); err != nil {
		s.feed.logger.Warn("Failed to send gpsd watch command", zap.Error(err))
		return
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 64*1024), 64*1024)
	for scanner.Scan() {
		select {
		case <-s.stopChan:
			return
		default:
		}

		var report tpvReport
		if err := json.Unmarshal(scanner.Bytes(), &report); err != nil {
			continue
		}
		if report.Class != "TPV" {
			continue
		}
		// Mode 2 is a 2D fix, 3 is 3D; high accuracy demands 3D
		if report.Mode < 2 || (s.req.HighAccuracy && report.Mode < 3) {
			continue
		}

		now := time.Now()
		if !lastDelivered.IsZero() && now.Sub(*lastDelivered) < s.req.Interval {
			continue
		}
		*lastDelivered = now

		fixTime := now
		if parsed, err := time.Parse(time.RFC3339, report.Time); err == nil {
			fixTime = parsed
		}
		speed := -1.0
		if report.Speed != nil {
			speed = *report.Speed
		}
		s.fn(Fix{
			Latitude:  report.Lat,
			Longitude: report.Lon,
			Accuracy:  report.Eph,
			Speed:     speed,
			Time:      fixTime,
		})
	}
}

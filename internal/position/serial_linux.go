//go:build linux

package position

import (
	"bufio"
	"fmt"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// SerialFeed reads NMEA sentences from a GPS receiver on a serial tty
type SerialFeed struct {
	device string
	baud   int
	logger *zap.Logger
}

func NewSerialFeed(device string, baud int, logger *zap.Logger) *SerialFeed {
	return &SerialFeed{
		device: device,
		baud:   baud,
		logger: logger,
	}
}

// Subscribe opens the device, configures it raw, and streams fixes
func (f *SerialFeed) Subscribe(req Request, fn func(Fix)) (Subscription, error) {
	fd, err := unix.Open(f.device, unix.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial device %s: %w", f.device, err)
	}

	if err := f.configure(fd); err != nil {
		unix.Close(fd)
		return nil, err
	}

	file := os.NewFile(uintptr(fd), f.device)
	sub := &serialSubscription{
		feed:     f,
		req:      req,
		fn:       fn,
		file:     file,
		stopChan: make(chan struct{}),
	}
	sub.wg.Add(1)
	go sub.run()
	return sub, nil
}

// configure puts the tty into raw mode at the configured baud rate
func (f *SerialFeed) configure(fd int) error {
	speed, err := baudFlag(f.baud)
	if err != nil {
		return err
	}

	tio := unix.Termios{
		Iflag: unix.IGNPAR,
		Cflag: speed | unix.CS8 | unix.CLOCAL | unix.CREAD,
	}
	tio.Cc[unix.VMIN] = 1
	tio.Cc[unix.VTIME] = 0

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &tio); err != nil {
		return fmt.Errorf("failed to configure serial device %s: %w", f.device, err)
	}
	return nil
}

func baudFlag(baud int) (uint32, error) {
	switch baud {
	case 4800:
		return unix.B4800, nil
	case 9600:
		return unix.B9600, nil
	case 19200:
		return unix.B19200, nil
	case 38400:
		return unix.B38400, nil
	case 57600:
		return unix.B57600, nil
	case 115200:
		return unix.B115200, nil
	default:
		return 0, fmt.Errorf("unsupported baud rate: %d", baud)
	}
}

type serialSubscription struct {
	feed     *SerialFeed
	req      Request
	fn       func(Fix)
	file     *os.File
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func (s *serialSubscription) Cancel() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		// Closing the file unblocks the scanner read
		s.file.Close()
	})
	s.wg.Wait()
}

func (s *serialSubscription) run() {
	defer s.wg.Done()

	var lastDelivered time.Time
	var lastAccuracy float64

	scanner := bufio.NewScanner(s.file)
	for scanner.Scan() {
		select {
		case <-s.stopChan:
			return
		default:
		}

		sentence, err := parseNMEA(scanner.Text())
		if err != nil {
			continue
		}

		switch v := sentence.(type) {
		case ggaSentence:
			lastAccuracy = v.EstimatedAccuracy
		case rmcSentence:
			if !v.Valid {
				continue
			}
			now := time.Now()
			if !lastDelivered.IsZero() && now.Sub(lastDelivered) < s.req.Interval {
				continue
			}
			lastDelivered = now
			s.fn(Fix{
				Latitude:  v.Latitude,
				Longitude: v.Longitude,
				Accuracy:  lastAccuracy,
				Speed:     v.SpeedMps,
				Time:      now,
			})
		}
	}

	if err := scanner.Err(); err != nil {
		select {
		case <-s.stopChan:
			// expected on cancel
		default:
			s.feed.logger.Warn("Serial feed read error", zap.Error(err))
		}
	}
}

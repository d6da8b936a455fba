//go:build !linux

package position

import (
	"fmt"

	"go.uber.org/zap"
)

// SerialFeed is only implemented for linux ttys; other platforms use gpsd
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

func (f *SerialFeed) Subscribe(req Request, fn func(Fix)) (Subscription, error) {
	return nil, fmt.Errorf("serial position feed is not supported on this platform")
}

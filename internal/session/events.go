package session

import (
	"sync"

	"yamichi77/movement-log-agent/internal/models"

	"go.uber.org/zap"
)

// RequireLoginEvent asks the front end to start an interactive login
type RequireLoginEvent struct {
	Reason  models.AuthErrorCode
	BaseURL string
}

// EventBus fans RequireLogin events out to subscribers. Identical
// consecutive events are re-delivered; a second escalation still needs
// to reach a listener that consumed the first.
type EventBus struct {
	mu     sync.Mutex
	subs   map[int]chan RequireLoginEvent
	nextID int
	logger *zap.Logger
}

func NewEventBus(logger *zap.Logger) *EventBus {
	return &EventBus{
		subs:   make(map[int]chan RequireLoginEvent),
		logger: logger,
	}
}

// Subscribe returns an event channel and a cancel function. Cancel is
// idempotent.
func (b *EventBus) Subscribe() (<-chan RequireLoginEvent, func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	ch := make(chan RequireLoginEvent, 16)
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// RequireLogin publishes a login request to all subscribers
func (b *EventBus) RequireLogin(reason models.AuthErrorCode, baseURL string) {
	event := RequireLoginEvent{Reason: reason, BaseURL: baseURL}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
			b.logger.Warn("Dropping require-login event for slow subscriber",
				zap.String("reason", string(reason)),
			)
		}
	}
}

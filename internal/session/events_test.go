package session

import (
	"testing"

	"yamichi77/movement-log-agent/internal/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestEventBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	ch1, cancel1 := bus.Subscribe()
	defer cancel1()
	ch2, cancel2 := bus.Subscribe()
	defer cancel2()

	bus.RequireLogin(models.CodeSessionExpired, "https://example.com")

	for _, ch := range []<-chan RequireLoginEvent{ch1, ch2} {
		event := <-ch
		require.Equal(t, models.CodeSessionExpired, event.Reason)
		require.Equal(t, "https://example.com", event.BaseURL)
	}
}

func TestEventBusRedeliversIdenticalEvents(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	ch, cancel := bus.Subscribe()
	defer cancel()

	bus.RequireLogin(models.CodeSessionInvalid, "https://example.com")
	bus.RequireLogin(models.CodeSessionInvalid, "https://example.com")
	require.Len(t, ch, 2)
}

func TestEventBusCancelStopsDelivery(t *testing.T) {
	bus := NewEventBus(zap.NewNop())
	ch, cancel := bus.Subscribe()
	cancel()
	cancel() // idempotent

	bus.RequireLogin(models.CodeUnknown, "https://example.com")
	_, open := <-ch
	require.False(t, open)
}

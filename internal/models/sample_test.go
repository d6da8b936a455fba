package models

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIntervalSecMapping(t *testing.T) {
	s := DefaultFrequency
	require.Equal(t, 30, s.IntervalSec(ActivityWalking))
	require.Equal(t, 25, s.IntervalSec(ActivityRunning))
	require.Equal(t, 20, s.IntervalSec(ActivityBicycle))
	require.Equal(t, 15, s.IntervalSec(ActivityVehicle))
	require.Equal(t, 900, s.IntervalSec(ActivityStill))
	require.Equal(t, 900, s.IntervalSec(ActivityUnknown))
}

func TestFrequencyValidBounds(t *testing.T) {
	require.True(t, DefaultFrequency.Valid())

	edge := TrackingFrequencySettings{
		WalkingSec: FrequencyMinSec,
		RunningSec: FrequencyMaxSec,
		BicycleSec: 20,
		VehicleSec: 15,
		StillSec:   900,
	}
	require.True(t, edge.Valid())

	low := edge
	low.WalkingSec = FrequencyMinSec - 1
	require.False(t, low.Valid())

	high := edge
	high.StillSec = FrequencyMaxSec + 1
	require.False(t, high.Valid())
}

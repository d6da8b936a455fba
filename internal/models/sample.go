package models

// ActivityStatus is the motion class attached to each sample. The raw
// strings go to the backend verbatim.
type ActivityStatus string

const (
	ActivityStill   ActivityStatus = "STILL"
	ActivityWalking ActivityStatus = "WALKING"
	ActivityRunning ActivityStatus = "RUNNING"
	ActivityBicycle ActivityStatus = "BICYCLE"
	ActivityVehicle ActivityStatus = "VEHICLE"
	ActivityUnknown ActivityStatus = "UNKNOWN"
)

// LocationSample is one accepted position fix. RecordedAt is unix millis.
type LocationSample struct {
	ID         int64
	RecordedAt int64
	Latitude   float64
	Longitude  float64
	Accuracy   float64
	Activity   ActivityStatus
	Uploaded   bool
}

// TrackingSnapshot is the last observed state, for display only
type TrackingSnapshot struct {
	Latitude  *float64
	Longitude *float64
	Activity  ActivityStatus
	UpdatedAt *int64
}

// UploadRequest is the wire form of one sample. Field names are the
// backend's contract; do not rename.
type UploadRequest struct {
	SeqTime   string  `json:"SeqTime"`
	Latitude  float64 `json:"Latitude"`
	Longitude float64 `json:"Longitude"`
	Accuracy  float64 `json:"Accuracy"`
	Activity  string  `json:"Activity"`
}

// ConnectionSettings is the user-configured backend target
type ConnectionSettings struct {
	BaseURL    string
	UploadPath string
}

// Sampling interval bounds in seconds
const (
	FrequencyMinSec = 5
	FrequencyMaxSec = 3600
)

// TrackingFrequencySettings holds the per-activity sampling cadence
type TrackingFrequencySettings struct {
	WalkingSec int
	RunningSec int
	BicycleSec int
	VehicleSec int
	StillSec   int
}

// DefaultFrequency is used until the server pushes settings
var DefaultFrequency = TrackingFrequencySettings{
	WalkingSec: 30,
	RunningSec: 25,
	BicycleSec: 20,
	VehicleSec: 15,
	StillSec:   900,
}

// IntervalSec returns the cadence for an activity. UNKNOWN conserves
// power like STILL.
func (s TrackingFrequencySettings) IntervalSec(activity ActivityStatus) int {
	switch activity {
	case ActivityWalking:
		return s.WalkingSec
	case ActivityRunning:
		return s.RunningSec
	case ActivityBicycle:
		return s.BicycleSec
	case ActivityVehicle:
		return s.VehicleSec
	default:
		return s.StillSec
	}
}

// Valid reports whether every interval is within bounds
func (s TrackingFrequencySettings) Valid() bool {
	for _, v := range []int{s.WalkingSec, s.RunningSec, s.BicycleSec, s.VehicleSec, s.StillSec} {
		if v < FrequencyMinSec || v > FrequencyMaxSec {
			return false
		}
	}
	return true
}

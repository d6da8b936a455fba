package position

import (
	"fmt"
	"strconv"
	"strings"
)

// Minimal NMEA-0183 parsing: RMC carries position and speed, GGA carries
// the dilution-of-precision used as an accuracy estimate.

const knotsToMps = 0.514444

// hdopAccuracyFactor approximates horizontal accuracy in meters from HDOP
// assuming a ~5m base GPS error.
const hdopAccuracyFactor = 5.0

type rmcSentence struct {
	Valid     bool
	Latitude  float64
	Longitude float64
	SpeedMps  float64
}

type ggaSentence struct {
	EstimatedAccuracy float64
}

// parseNMEA parses a single sentence, returning rmcSentence, ggaSentence,
// or an error for anything unhandled.
func parseNMEA(line string) (interface{}, error) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "$") {
		return nil, fmt.Errorf("not an NMEA sentence")
	}
	if idx := strings.IndexByte(line, '*'); idx >= 0 {
		if !checksumValid(line[1:idx], line[idx+1:]) {
			return nil, fmt.Errorf("NMEA checksum mismatch")
		}
		line = line[:idx]
	}

	fields := strings.Split(line[1:], ",")
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty NMEA sentence")
	}

	talker := fields[0]
	switch {
	case strings.HasSuffix(talker, "RMC"):
		return parseRMC(fields)
	case strings.HasSuffix(talker, "GGA"):
		return parseGGA(fields)
	default:
		return nil, fmt.Errorf("unhandled NMEA sentence: %s", talker)
	}
}

// parseRMC handles $xxRMC,time,status,lat,N,lon,E,speed,track,date,...
func parseRMC(fields []string) (rmcSentence, error) {
	if len(fields) < 8 {
		return rmcSentence{}, fmt.Errorf("short RMC sentence")
	}

	sentence := rmcSentence{
		Valid:    fields[2] == "A",
		SpeedMps: -1,
	}
	if !sentence.Valid {
		return sentence, nil
	}

	lat, err := parseCoordinate(fields[3], fields[4])
	if err != nil {
		return rmcSentence{}, err
	}
	lon, err := parseCoordinate(fields[5], fields[6])
	if err != nil {
		return rmcSentence{}, err
	}
	sentence.Latitude = lat
	sentence.Longitude = lon

	if knots, err := strconv.ParseFloat(fields[7], 64); err == nil {
		sentence.SpeedMps = knots * knotsToMps
	}
	return sentence, nil
}

// parseGGA handles $xxGGA,time,lat,N,lon,E,quality,numSV,hdop,...
func parseGGA(fields []string) (ggaSentence, error) {
	if len(fields) < 9 {
		return ggaSentence{}, fmt.Errorf("short GGA sentence")
	}
	hdop, err := strconv.ParseFloat(fields[8], 64)
	if err != nil {
		return ggaSentence{}, nil
	}
	return ggaSentence{EstimatedAccuracy: hdop * hdopAccuracyFactor}, nil
}

// parseCoordinate converts NMEA ddmm.mmmm / dddmm.mmmm with a hemisphere
// into signed decimal degrees.
func parseCoordinate(value, hemisphere string) (float64, error) {
	if value == "" {
		return 0, fmt.Errorf("empty coordinate")
	}
	raw, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid coordinate %q: %w", value, err)
	}

	degrees := float64(int(raw / 100))
	minutes := raw - degrees*100
	decimal := degrees + minutes/60

	switch hemisphere {
	case "S", "W":
		return -decimal, nil
	case "N", "E":
		return decimal, nil
	default:
		return 0, fmt.Errorf("invalid hemisphere %q", hemisphere)
	}
}

func checksumValid(payload, want string) bool {
	var sum byte
	for i := 0; i < len(payload); i++ {
		sum ^= payload[i]
	}
	parsed, err := strconv.ParseUint(strings.TrimSpace(want), 16, 8)
	if err != nil {
		return false
	}
	return sum == byte(parsed)
}

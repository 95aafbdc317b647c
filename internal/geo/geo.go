// Package geo holds the position sample type and great-circle distance math
// shared by the geolocation source and the proximity engine.
package geo

import (
	"math"
	"time"
)

// earthRadiusMeters is the mean Earth radius used by the haversine formula.
const earthRadiusMeters = 6371000.0

// PositionSample is a single reading from a positioning provider. Altitude,
// Heading and Speed are pointers so a missing reading is distinguishable from
// a zero value (a heading of 0° is due north, not "unknown").
type PositionSample struct {
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	AccuracyMeters float64   `json:"accuracy_m"`
	Altitude       *float64  `json:"altitude,omitempty"`
	Heading        *float64  `json:"heading,omitempty"`
	Speed          *float64  `json:"speed,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
}

// Age returns how old the sample is relative to now.
func (s PositionSample) Age(now time.Time) time.Duration {
	return now.Sub(s.CapturedAt)
}

// Distance returns the great-circle distance in meters between two
// latitude/longitude pairs, computed with the haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return 2 * earthRadiusMeters * math.Asin(math.Sqrt(a))
}

// DistanceTo returns the distance in meters from the sample to a point.
func (s PositionSample) DistanceTo(lat, lon float64) float64 {
	return Distance(s.Latitude, s.Longitude, lat, lon)
}

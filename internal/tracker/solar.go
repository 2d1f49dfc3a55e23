package tracker

import (
	"math"
	"time"
)

const (
	degToRad = math.Pi / 180
	radToDeg = 180 / math.Pi
)

// SolarSource computes the sun's position for a fixed observing site
// using the standard low-accuracy ephemeris (good to a few arcminutes,
// far inside the closed-loop guider's capture range).
type SolarSource struct {
	// Latitude and Longitude in degrees, east-positive longitude.
	Latitude  float64
	Longitude float64
}

// Position returns the solar coordinates at the given instant.
func (s SolarSource) Position(now time.Time) (Position, error) {
	n := julianDay(now.UTC()) - 2451545.0

	// Mean longitude and anomaly, degrees.
	meanLon := normalizeDeg(280.460 + 0.9856474*n)
	anomaly := normalizeDeg(357.528+0.9856003*n) * degToRad

	// Ecliptic longitude and obliquity.
	eclLon := (meanLon + 1.915*math.Sin(anomaly) + 0.020*math.Sin(2*anomaly)) * degToRad
	obliquity := (23.439 - 0.0000004*n) * degToRad

	ra := math.Atan2(math.Cos(obliquity)*math.Sin(eclLon), math.Cos(eclLon))
	if ra < 0 {
		ra += 2 * math.Pi
	}
	raHours := ra * radToDeg / 15
	dec := math.Asin(math.Sin(obliquity) * math.Sin(eclLon))

	// Altitude from the local hour angle.
	gmst := math.Mod(18.697374558+24.06570982441908*n, 24)
	if gmst < 0 {
		gmst += 24
	}
	lst := gmst + s.Longitude/15
	hourAngle := (lst - raHours) * 15 * degToRad

	lat := s.Latitude * degToRad
	alt := math.Asin(math.Sin(lat)*math.Sin(dec) +
		math.Cos(lat)*math.Cos(dec)*math.Cos(hourAngle))

	altDeg := alt * radToDeg
	return Position{
		RAHours:      raHours,
		DecDeg:       dec * radToDeg,
		AltDeg:       altDeg,
		AboveHorizon: altDeg > 0,
	}, nil
}

// julianDay converts a UTC instant to a Julian day number.
func julianDay(t time.Time) float64 {
	const unixEpochJD = 2440587.5
	return unixEpochJD + float64(t.UnixMilli())/86400000.0
}

func normalizeDeg(d float64) float64 {
	d = math.Mod(d, 360)
	if d < 0 {
		d += 360
	}
	return d
}

package mount

import "fmt"

// Placeholder is returned for coordinates that have not been observed yet.
const Placeholder = "--:--:--"

// FormatRA renders right ascension in decimal hours as "HH:MM:SS.ss".
// A nil value renders as Placeholder.
func FormatRA(raHours *float64) string {
	if raHours == nil {
		return Placeholder
	}
	h := int(*raHours)
	minutesF := (*raHours - float64(h)) * 60.0
	m := int(minutesF)
	s := (minutesF - float64(m)) * 60.0
	return fmt.Sprintf("%02d:%02d:%05.2f", h, m, s)
}

// FormatDec renders declination in decimal degrees as "±DD:MM:SS.ss".
// A nil value renders as Placeholder.
func FormatDec(decDegrees *float64) string {
	if decDegrees == nil {
		return Placeholder
	}
	sign := "+"
	d := *decDegrees
	if d < 0 {
		sign = "-"
		d = -d
	}
	deg := int(d)
	minutesF := (d - float64(deg)) * 60.0
	m := int(minutesF)
	s := (minutesF - float64(m)) * 60.0
	return fmt.Sprintf("%s%02d:%02d:%05.2f", sign, deg, m, s)
}

// Package classify maps CO2 concentrations to the severity bands the
// bridge reports and alerts on.
package classify

import (
	"fmt"
	"math"
)

// Level names a CO2 severity band. The values double as Prometheus
// label values and MQTT/log fields, so they stay uppercase.
type Level string

const (
	Great   Level = "GREAT"
	Normal  Level = "NORMAL"
	Sleepy  Level = "SLEEPY"
	Warning Level = "WARNING"
	Alert   Level = "ALERT"
)

// Severe reports whether l is one of the alerting bands (Warning or
// Alert).
func (l Level) Severe() bool {
	return l == Warning || l == Alert
}

// Band is one classification row with inclusive bounds.
type Band struct {
	Min         int
	Max         int
	Level       Level
	Description string
}

// Range formats the band's bounds for logs, with an open upper bound
// on the last row.
func (b Band) Range() string {
	if b.Max == math.MaxInt {
		return fmt.Sprintf("%d+", b.Min)
	}
	return fmt.Sprintf("%d-%d", b.Min, b.Max)
}

// bands is ordered ascending and contiguous from 350 up. Values
// outside every row, including readings below 350, classify as Alert
// rather than as an unknown state.
var bands = []Band{
	{Min: 350, Max: 450, Level: Great, Description: "Same as outdoor level"},
	{Min: 451, Max: 1000, Level: Normal, Description: "Normal indoor level"},
	{Min: 1001, Max: 2000, Level: Sleepy, Description: "May cause drowsiness"},
	{Min: 2001, Max: 5000, Level: Warning, Description: "Warning level - Poor air quality"},
	{Min: 5001, Max: math.MaxInt, Level: Alert, Description: "ALERT - Dangerous level"},
}

// Classify returns the severity band containing ppm. Exactly one band
// matches any value at or above the lowest bound; everything else
// falls through to Alert with Alert's description.
func Classify(ppm int) (Level, string) {
	for _, b := range bands {
		if ppm >= b.Min && ppm <= b.Max {
			return b.Level, b.Description
		}
	}
	fallback := bands[len(bands)-1]
	return fallback.Level, fallback.Description
}

// Levels returns every severity level in ascending band order.
func Levels() []Level {
	out := make([]Level, len(bands))
	for i, b := range bands {
		out[i] = b.Level
	}
	return out
}

// Bands returns a copy of the classification table in ascending order.
func Bands() []Band {
	return append([]Band(nil), bands...)
}

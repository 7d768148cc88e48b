// Package peak tracks the highest CO2 reading seen since process
// start.
package peak

// Tracker records the maximum observed reading. The zero value is
// ready to use and starts at zero; the peak does not survive a
// restart. A single goroutine owns the tracker.
type Tracker struct {
	max int
}

// Observe records ppm and returns the current peak along with whether
// ppm strictly exceeded the previous peak. A reading equal to the
// peak does not count as a new one.
func (t *Tracker) Observe(ppm int) (peak int, updated bool) {
	if ppm > t.max {
		t.max = ppm
		return t.max, true
	}
	return t.max, false
}

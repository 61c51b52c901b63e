package state

import "math"

// Aggregator derives the displayed 0..100 progress value. The display
// is a monotonic ratchet: within one job subscription it never
// decreases, even if a stale override arrives late.
type Aggregator struct {
	override float64 // externally pushed percentage, -1 when unset
	last     int     // last displayed value, the ratchet floor
}

// NewAggregator returns an Aggregator with no override and a zero
// ratchet floor.
func NewAggregator() *Aggregator {
	return &Aggregator{override: -1}
}

// SetOverride records an externally pushed percentage. Overrides only
// ever raise the stored value; a lower late-arriving override is
// ignored.
func (a *Aggregator) SetOverride(pct float64) {
	if pct > a.override {
		a.override = pct
	}
}

// Reset clears the override and the ratchet floor. Used when the
// consumer switches to a new job.
func (a *Aggregator) Reset() {
	a.override = -1
	a.last = 0
}

// Display computes the displayed percentage from the completed and
// observed step counts and the expected total. The override is honored
// only when it is not below the computed baseline. A finalized job
// always displays 100.
func (a *Aggregator) Display(completed, observed, expectedTotal int, done bool) int {
	total := expectedTotal
	if observed > total {
		total = observed
	}
	if total < 1 {
		total = 1
	}

	v := int(math.Round(float64(completed) / float64(total) * 100))
	if a.override > float64(v) {
		v = int(math.Round(a.override))
	}
	if done {
		v = 100
	}

	if v < 0 {
		v = 0
	} else if v > 100 {
		v = 100
	}

	if v < a.last {
		v = a.last
	}
	a.last = v
	return v
}

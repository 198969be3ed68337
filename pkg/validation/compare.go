package validation

// WithinFraction fails unless each value is larger than frac times the
// other.
func WithinFraction(statsd, batterystats, frac float64) error {
	return withinFraction(statsd, batterystats, frac, "")
}

// withinFraction is WithinFraction with end appended to the failure
// message.
func withinFraction(statsd, batterystats, frac float64, end string) error {
	if !(statsd > frac*batterystats) {
		return Failf("Statsd (%f) < Batterystats (%f)%s", statsd, batterystats, end)
	}
	if !(batterystats > frac*statsd) {
		return Failf("Batterystats (%f) < Statsd (%f)%s", batterystats, statsd, end)
	}
	return nil
}

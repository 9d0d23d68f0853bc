package batch

import "time"

// BackoffPolicy computes the delay before a retrying item re-enters
// processing: base * 2^(attempt-1).
type BackoffPolicy struct {
	Base time.Duration
}

// DefaultBackoff mirrors the configuration default of one second.
var DefaultBackoff = BackoffPolicy{Base: time.Second}

// Delay returns the wait before the given attempt (1-based retry count).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	base := p.Base
	if base <= 0 {
		base = DefaultBackoff.Base
	}
	if attempt <= 1 {
		return base
	}
	shift := attempt - 1
	// Past 30 doublings the delay is already beyond any practical schedule.
	if shift > 30 {
		shift = 30
	}
	return base << uint(shift)
}

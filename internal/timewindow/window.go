// Package timewindow holds the expiration arithmetic shared by the
// subscription license variants. All functions are total; callers are
// responsible for ownership and balance checks.
package timewindow

import "time"

// IsActive reports whether a license with the given expiration is still
// inside its paid-for window.
func IsActive(expiration, now time.Time) bool {
	return now.Before(expiration)
}

// Extend computes the expiration after a renewal. Renewing an active
// license stacks the unused time on top of the current expiration;
// renewing a lapsed one restarts the window from now. Late renewals are
// deliberately not back-dated.
func Extend(expiration, now time.Time, period time.Duration) time.Time {
	if IsActive(expiration, now) {
		return expiration.Add(period)
	}
	return now.Add(period)
}

// Cancel deactivates immediately: the new expiration is always now,
// regardless of prior value.
func Cancel(now time.Time) time.Time {
	return now
}

// RefundEligible reports whether asOf still falls inside the current
// paid-for window. The refund amount itself is a caller concern.
func RefundEligible(expiration, asOf time.Time) bool {
	return asOf.Before(expiration)
}

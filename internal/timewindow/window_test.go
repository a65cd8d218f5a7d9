package timewindow_test

import (
	"testing"
	"time"

	"github.com/technosupport/ts-licensing/internal/timewindow"
)

var (
	t0     = time.Unix(1_700_000_000, 0)
	period = 30 * 24 * time.Hour
)

func TestIsActive(t *testing.T) {
	exp := t0.Add(period)

	if !timewindow.IsActive(exp, t0) {
		t.Error("license should be active before expiration")
	}
	if timewindow.IsActive(exp, exp) {
		t.Error("license should be inactive at exactly the expiration instant")
	}
	if timewindow.IsActive(exp, exp.Add(time.Second)) {
		t.Error("license should be inactive after expiration")
	}
}

func TestExtend_StacksWhileActive(t *testing.T) {
	exp := t0.Add(period)
	now := t0.Add(10 * 24 * time.Hour) // renewing early

	got := timewindow.Extend(exp, now, period)
	if want := exp.Add(period); !got.Equal(want) {
		t.Errorf("Extend = %v, want %v (unused time must stack)", got, want)
	}
}

func TestExtend_ResetsWhenLapsed(t *testing.T) {
	exp := t0.Add(period)

	for _, now := range []time.Time{exp, exp.Add(time.Minute), exp.Add(365 * 24 * time.Hour)} {
		got := timewindow.Extend(exp, now, period)
		if want := now.Add(period); !got.Equal(want) {
			t.Errorf("Extend at %v = %v, want %v (late renewal must not back-date)", now, got, want)
		}
	}
}

func TestCancel_AlwaysNow(t *testing.T) {
	if got := timewindow.Cancel(t0); !got.Equal(t0) {
		t.Errorf("Cancel = %v, want %v", got, t0)
	}
	// Cancel again later: always the current now, not first-cancel-wins.
	later := t0.Add(time.Hour)
	if got := timewindow.Cancel(later); !got.Equal(later) {
		t.Errorf("second Cancel = %v, want %v", got, later)
	}
}

func TestRefundEligible(t *testing.T) {
	exp := t0.Add(period)

	if !timewindow.RefundEligible(exp, t0) {
		t.Error("refund should be eligible inside the window")
	}
	if timewindow.RefundEligible(exp, exp) {
		t.Error("refund should be ineligible at expiration")
	}
	if timewindow.RefundEligible(exp, exp.Add(time.Second)) {
		t.Error("refund should be ineligible after expiration")
	}
}

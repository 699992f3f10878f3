package progress

import (
	"testing"
	"time"
)

func TestEstimateTimeZeroRate(t *testing.T) {
	if d := EstimateTime(1000, 0); d != 0 {
		t.Fatalf("expected 0 duration for zero rate, got %v", d)
	}
}

func TestEstimateTimeBasic(t *testing.T) {
	d := EstimateTime(3_000_000, 3_000_000)
	if d != time.Second {
		t.Fatalf("expected 1s, got %v", d)
	}
}

func TestFormatDurationUnits(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want string
	}{
		{30 * time.Second, "30.0s"},
		{90 * time.Second, "1.5m"},
		{90 * time.Minute, "1.5h"},
		{48 * time.Hour, "2.0d"},
	}
	for _, c := range cases {
		if got := FormatDuration(c.d); got != c.want {
			t.Fatalf("FormatDuration(%v) = %q, want %q", c.d, got, c.want)
		}
	}
}

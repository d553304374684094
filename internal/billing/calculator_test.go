package billing

import (
	"math"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/parking-ticket-tracker/internal/model"
)

var t0 = time.Date(2026, 3, 14, 9, 5, 0, 0, time.UTC)

func TestMinutes(t *testing.T) {
	c := NewCalculator(time.UTC, nil)
	cases := []struct {
		name        string
		entry, exit time.Time
		want        int
	}{
		{"same instant", t0, t0, 0},
		{"59 seconds", t0, t0.Add(59 * time.Second), 0},
		{"one minute", t0, t0.Add(time.Minute), 1},
		{"rounds down", t0, t0.Add(61*time.Minute + 59*time.Second), 61},
		{"exit before entry", t0, t0.Add(-10 * time.Minute), 0},
		{"zero entry", time.Time{}, t0, 0},
		{"zero exit", t0, time.Time{}, 0},
	}
	for _, tt := range cases {
		if got := c.Minutes(tt.entry, tt.exit); got != tt.want {
			t.Fatalf("%s: Minutes=%d, want %d", tt.name, got, tt.want)
		}
	}
}

func TestMinutesBetween(t *testing.T) {
	c := NewCalculator(time.UTC, nil)
	if got := c.MinutesBetween("2026-03-14T09:05:00.000Z", "2026-03-14T11:10:00Z"); got != 125 {
		t.Fatalf("MinutesBetween=%d, want 125", got)
	}
	if got := c.MinutesBetween("2026-03-14T09:05:00+02:00", "2026-03-14T07:35:00Z"); got != 30 {
		t.Fatalf("MinutesBetween across offsets=%d, want 30", got)
	}
	if got := c.MinutesBetween("yesterday", "2026-03-14T11:10:00Z"); got != 0 {
		t.Fatalf("MinutesBetween with garbage=%d, want 0", got)
	}
}

func TestFeeHourBoundary(t *testing.T) {
	c := NewCalculator(time.UTC, nil)
	for _, rate := range []int64{1, 50, 275} {
		cases := []struct {
			after time.Duration
			want  int64
		}{
			{0, 0},
			{30 * time.Second, 0},
			{time.Minute, rate},
			{60 * time.Minute, rate},
			{61 * time.Minute, 2 * rate},
			{120 * time.Minute, 2 * rate},
			{125 * time.Minute, 3 * rate},
			{-5 * time.Minute, 0},
		}
		for _, tt := range cases {
			if got := c.Fee(t0, t0.Add(tt.after), rate); got != tt.want {
				t.Fatalf("Fee(+%s, rate=%d)=%d, want %d", tt.after, rate, got, tt.want)
			}
		}
	}
}

func TestFeeSaturatesInsteadOfOverflowing(t *testing.T) {
	cases := []struct {
		minutes int
		rate    int64
		want    int64
	}{
		{600, 1 << 62, math.MaxInt64},
		{60, math.MaxInt64, math.MaxInt64},
		{61, math.MaxInt64, math.MaxInt64},
		{math.MaxInt32, model.MaxPricePerHour, int64(math.MaxInt32/60+1) * model.MaxPricePerHour},
		{math.MaxInt, 1 << 10, math.MaxInt64},
	}
	for _, tt := range cases {
		if got := FeeForMinutes(tt.minutes, tt.rate); got != tt.want {
			t.Fatalf("FeeForMinutes(%d, %d)=%d, want %d", tt.minutes, tt.rate, got, tt.want)
		}
	}
}

func TestFeeNonPositiveRate(t *testing.T) {
	c := NewCalculator(time.UTC, nil)
	if got := c.Fee(t0, t0.Add(90*time.Minute), 0); got != 0 {
		t.Fatalf("Fee with zero rate=%d, want 0", got)
	}
	if got := c.Fee(t0, t0.Add(90*time.Minute), -10); got != 0 {
		t.Fatalf("Fee with negative rate=%d, want 0", got)
	}
}

func TestFormatDuration(t *testing.T) {
	cases := map[int]string{
		-3:  "0min",
		0:   "0min",
		7:   "7min",
		59:  "59min",
		60:  "1h",
		90:  "1h 30min",
		120: "2h",
		605: "10h 5min",
	}
	for in, want := range cases {
		if got := FormatDuration(in); got != want {
			t.Fatalf("FormatDuration(%d)=%q, want %q", in, got, want)
		}
	}
}

func TestFormatClockTime(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	c := NewCalculator(paris, nil)
	if got := c.FormatClockTime(t0); got != "10h05" {
		t.Fatalf("FormatClockTime=%q, want 10h05", got)
	}
	if got := c.FormatClockTimeString("2026-03-14T23:59:59Z"); got != "00h59" {
		t.Fatalf("FormatClockTimeString=%q, want 00h59", got)
	}
	if got := c.FormatClockTimeString("not a date"); got != ClockPlaceholder {
		t.Fatalf("FormatClockTimeString(garbage)=%q, want %q", got, ClockPlaceholder)
	}
	if got := c.FormatClockTime(time.Time{}); got != ClockPlaceholder {
		t.Fatalf("FormatClockTime(zero)=%q, want %q", got, ClockPlaceholder)
	}
}

func TestAnomaliesAreLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	c := NewCalculator(time.UTC, zap.New(core))

	c.Minutes(t0, t0.Add(-time.Minute))
	c.MinutesBetween("garbage", "2026-03-14T09:05:00Z")
	c.Minutes(t0, t0.Add(time.Hour))

	if got := logs.Len(); got != 2 {
		t.Fatalf("logged %d anomalies, want 2", got)
	}
	if msg := logs.All()[0].Message; msg != "time anomaly: exit before entry" {
		t.Fatalf("first anomaly=%q", msg)
	}
}

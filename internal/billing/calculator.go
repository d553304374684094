// Package billing turns entry/exit instants into elapsed minutes and fees
// and renders both for display.
//
// Every started hour is billed in full: 1 to 60 minutes cost one hourly
// rate, 61 to 120 minutes cost two, and so on.  Zero minutes cost nothing.
//
// The calculator is fail-soft.  Missing or unparseable instants count as a
// zero duration and a placeholder clock string; each such case is logged as
// a "time anomaly" so it is visible without being returned to the caller.
package billing

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/parking-ticket-tracker/internal/logger"
)

// ClockPlaceholder is rendered for instants that cannot be displayed.
const ClockPlaceholder = "--h--"

// Calculator is safe for concurrent use and has no side effects other
// than logging.
type Calculator struct {
	loc *time.Location
	log *zap.Logger
}

// NewCalculator returns a Calculator that renders wall-clock times in loc.
// A nil loc means time.Local.
func NewCalculator(loc *time.Location, log *zap.Logger) *Calculator {
	if loc == nil {
		loc = time.Local
	}
	return &Calculator{loc: loc, log: logger.OrNop(log)}
}

// Minutes returns the whole minutes elapsed between entry and exit, rounded
// down.  Negative spans are clamped to zero.
func (c *Calculator) Minutes(entry, exit time.Time) int {
	if entry.IsZero() || exit.IsZero() {
		c.anomaly("missing instant", zap.Time("entry", entry), zap.Time("exit", exit))
		return 0
	}
	minutes := int(exit.Sub(entry) / time.Minute)
	if minutes < 0 {
		c.anomaly("exit before entry", zap.Time("entry", entry), zap.Time("exit", exit))
		return 0
	}
	return minutes
}

// MinutesBetween is Minutes over ISO-8601 strings.
func (c *Calculator) MinutesBetween(entry, exit string) int {
	e, ok := c.ParseInstant(entry)
	if !ok {
		return 0
	}
	x, ok := c.ParseInstant(exit)
	if !ok {
		return 0
	}
	return c.Minutes(e, x)
}

// Fee returns the amount owed for a stay from entry to exit at ratePerHour.
func (c *Calculator) Fee(entry, exit time.Time, ratePerHour int64) int64 {
	if ratePerHour <= 0 {
		c.anomaly("non-positive rate", zap.Int64("rate", ratePerHour))
		return 0
	}
	return FeeForMinutes(c.Minutes(entry, exit), ratePerHour)
}

// FeeForMinutes applies the started-hour rule to an elapsed duration.
// A fee that does not fit in an int64 saturates at math.MaxInt64.
func FeeForMinutes(minutes int, ratePerHour int64) int64 {
	if minutes <= 0 || ratePerHour <= 0 {
		return 0
	}
	hours := int64(minutes/60) + int64(min(minutes%60, 1))
	if hours > math.MaxInt64/ratePerHour {
		return math.MaxInt64
	}
	return hours * ratePerHour
}

// FormatDuration renders minutes as "45min", "2h" or "2h 5min".
// Negative input renders as "0min".
func FormatDuration(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	if minutes < 60 {
		return fmt.Sprintf("%dmin", minutes)
	}
	h, m := minutes/60, minutes%60
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh %dmin", h, m)
}

// FormatClockTime renders t as 24-hour "HHhMM" in the calculator's zone.
func (c *Calculator) FormatClockTime(t time.Time) string {
	if t.IsZero() {
		c.anomaly("missing instant for clock time")
		return ClockPlaceholder
	}
	local := t.In(c.loc)
	return fmt.Sprintf("%02dh%02d", local.Hour(), local.Minute())
}

// FormatClockTimeString is FormatClockTime over an ISO-8601 string.
func (c *Calculator) FormatClockTimeString(s string) string {
	t, ok := c.ParseInstant(s)
	if !ok {
		return ClockPlaceholder
	}
	return c.FormatClockTime(t)
}

// ParseInstant parses an RFC 3339 instant, with or without fractional
// seconds.  Failures are logged and reported through ok.
func (c *Calculator) ParseInstant(s string) (time.Time, bool) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		c.anomaly("unparseable instant", zap.String("value", s), zap.Error(err))
		return time.Time{}, false
	}
	return t, true
}

func (c *Calculator) anomaly(msg string, fields ...zap.Field) {
	c.log.Warn("time anomaly: "+msg, fields...)
}

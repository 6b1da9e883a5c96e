package bucket

import (
	"fmt"
	"time"

	"github.com/roach88/osq/internal/objectset"
)

var (
	unixEpoch = time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)

	// mondayEpoch is the first Monday after the Unix epoch; weeks start
	// on Monday.
	mondayEpoch = time.Date(1970, 1, 5, 0, 0, 0, 0, time.UTC)
)

// truncate returns the start of the interval containing t, computed on the
// wall clock of loc. Calendar intervals of more than one unit align to
// multiples of value counted from the epoch; sub-day intervals align within
// the enclosing day, hour or minute.
func truncate(t time.Time, unit objectset.TimeUnit, value int, loc *time.Location) (time.Time, error) {
	if value < 1 {
		return time.Time{}, fmt.Errorf("date interval must be at least 1, got %d", value)
	}
	t = t.In(loc)
	y, m, d := t.Date()
	align := func(n int) int { return floorDiv(n, value) * value }

	switch unit {
	case objectset.UnitYear:
		return time.Date(align(y), 1, 1, 0, 0, 0, 0, loc), nil
	case objectset.UnitQuarter:
		q := align(y*4 + (int(m)-1)/3)
		year := floorDiv(q, 4)
		return time.Date(year, time.Month((q-year*4)*3+1), 1, 0, 0, 0, 0, loc), nil
	case objectset.UnitMonth:
		n := align(y*12 + int(m) - 1)
		year := floorDiv(n, 12)
		return time.Date(year, time.Month(n-year*12+1), 1, 0, 0, 0, 0, loc), nil
	case objectset.UnitWeek:
		weeks := align(floorDiv(civilDays(y, m, d, mondayEpoch), 7))
		start := mondayEpoch.AddDate(0, 0, weeks*7)
		return time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc), nil
	case objectset.UnitDay:
		start := unixEpoch.AddDate(0, 0, align(civilDays(y, m, d, unixEpoch)))
		return time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, loc), nil
	case objectset.UnitHour:
		return time.Date(y, m, d, align(t.Hour()), 0, 0, 0, loc), nil
	case objectset.UnitMinute:
		return time.Date(y, m, d, t.Hour(), align(t.Minute()), 0, 0, loc), nil
	case objectset.UnitSecond:
		return time.Date(y, m, d, t.Hour(), t.Minute(), align(t.Second()), 0, loc), nil
	default:
		return time.Time{}, fmt.Errorf("unknown date interval unit %q", unit)
	}
}

// civilDays counts calendar days from origin to y-m-d.
func civilDays(y int, m time.Month, d int, origin time.Time) int {
	day := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return int((day.Unix() - origin.Unix()) / 86400)
}

func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}

package counter

import (
	"time"

	c "github.com/d0ngw/quota/common"
)

// advance returns a copy of cnt rolled forward to timestamp with every
// still-current tally increased by delta and every elapsed tally reset to
// delta. The comparison walks from the coarsest period to the finest: once
// a coarser period differs,every finer tally is reset regardless of its
// own calendar field. Timestamps earlier than cnt.LastUpdate get no special
// handling,the calendar fields of the two absolute timestamps decide alone.
func advance(cnt Counter, timestamp int64, delta int64, loc *time.Location) Counter {
	now := c.UnixMillsTime(timestamp).In(loc)
	last := c.UnixMillsTime(cnt.LastUpdate).In(loc)

	next := cnt
	if inSameMonth(last, now) {
		next.Month += delta
		if inSameDay(last, now) {
			next.Day += delta
			if inSameHour(last, now) {
				next.Hour += delta
				if inSameMinute(last, now) {
					next.Min += delta
					if inSameSecond(last, now) {
						next.Sec += delta
					} else {
						next.Sec = delta
					}
				} else {
					next.Min = delta
					next.Sec = delta
				}
			} else {
				next.Hour = delta
				next.Min = delta
				next.Sec = delta
			}
		} else {
			next.Day = delta
			next.Hour = delta
			next.Min = delta
			next.Sec = delta
		}
	} else {
		next.Month = delta
		next.Day = delta
		next.Hour = delta
		next.Min = delta
		next.Sec = delta
	}
	next.LastUpdate = timestamp
	return next
}

// decrementAll subtracts delta from all the tallies without rollover and
// without touching LastUpdate. Tallies may go negative.
func decrementAll(cnt Counter, delta int64) Counter {
	next := cnt
	next.Sec -= delta
	next.Min -= delta
	next.Hour -= delta
	next.Day -= delta
	next.Month -= delta
	return next
}

func inSameMonth(last, now time.Time) bool {
	return last.Year() == now.Year() && last.Month() == now.Month()
}

func inSameDay(last, now time.Time) bool {
	return last.Day() == now.Day()
}

func inSameHour(last, now time.Time) bool {
	return last.Hour() == now.Hour()
}

func inSameMinute(last, now time.Time) bool {
	return last.Minute() == now.Minute()
}

func inSameSecond(last, now time.Time) bool {
	return last.Minute() == now.Minute() && last.Second() == now.Second()
}

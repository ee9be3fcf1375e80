package counter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func millisAt(year int, month time.Month, day, hour, min, sec int) int64 {
	return time.Date(year, month, day, hour, min, sec, 0, time.UTC).UnixMilli()
}

func TestAdvanceFirstHit(t *testing.T) {
	ts := millisAt(2026, time.March, 15, 10, 30, 45)
	cnt := advance(Counter{}, ts, 1, time.UTC)
	assert.EqualValues(t, 1, cnt.Sec)
	assert.EqualValues(t, 1, cnt.Min)
	assert.EqualValues(t, 1, cnt.Hour)
	assert.EqualValues(t, 1, cnt.Day)
	assert.EqualValues(t, 1, cnt.Month)
	assert.EqualValues(t, ts, cnt.LastUpdate)
}

func TestAdvanceSameSecond(t *testing.T) {
	ts := millisAt(2026, time.March, 15, 10, 30, 45)
	cnt := advance(Counter{}, ts, 1, time.UTC)
	cnt = advance(cnt, ts, 1, time.UTC)
	cnt = advance(cnt, ts, 1, time.UTC)
	assert.EqualValues(t, 3, cnt.Sec)
	assert.EqualValues(t, 3, cnt.Min)
	assert.EqualValues(t, 3, cnt.Hour)
	assert.EqualValues(t, 3, cnt.Day)
	assert.EqualValues(t, 3, cnt.Month)
}

func TestAdvanceMinuteRollover(t *testing.T) {
	cnt := advance(Counter{}, millisAt(2026, time.March, 15, 10, 0, 59), 1, time.UTC)
	cnt = advance(cnt, millisAt(2026, time.March, 15, 10, 1, 0), 1, time.UTC)
	assert.EqualValues(t, 1, cnt.Sec)
	assert.EqualValues(t, 1, cnt.Min)
	assert.EqualValues(t, 2, cnt.Hour)
	assert.EqualValues(t, 2, cnt.Day)
	assert.EqualValues(t, 2, cnt.Month)
}

func TestAdvanceMonthRolloverResetsAll(t *testing.T) {
	// one tick across the month boundary resets every tally even though
	// hour, minute and second calendar fields all differ too
	cnt := advance(Counter{}, millisAt(2026, time.January, 31, 23, 59, 59), 1, time.UTC)
	cnt = advance(cnt, millisAt(2026, time.February, 1, 0, 0, 0), 1, time.UTC)
	assert.EqualValues(t, 1, cnt.Sec)
	assert.EqualValues(t, 1, cnt.Min)
	assert.EqualValues(t, 1, cnt.Hour)
	assert.EqualValues(t, 1, cnt.Day)
	assert.EqualValues(t, 1, cnt.Month)
}

func TestAdvanceHourRolloverKeepsCoarser(t *testing.T) {
	cnt := advance(Counter{}, millisAt(2026, time.March, 15, 10, 59, 59), 1, time.UTC)
	cnt = advance(cnt, millisAt(2026, time.March, 15, 11, 0, 0), 1, time.UTC)
	assert.EqualValues(t, 1, cnt.Sec)
	assert.EqualValues(t, 1, cnt.Min)
	assert.EqualValues(t, 1, cnt.Hour)
	assert.EqualValues(t, 2, cnt.Day)
	assert.EqualValues(t, 2, cnt.Month)
}

func TestAdvanceBackwardsTime(t *testing.T) {
	// an earlier timestamp gets no special treatment, only the calendar
	// fields decide and LastUpdate is always overwritten
	later := millisAt(2026, time.March, 15, 10, 5, 0)
	earlier := millisAt(2026, time.March, 15, 10, 4, 30)
	cnt := advance(Counter{}, later, 1, time.UTC)
	cnt = advance(cnt, earlier, 1, time.UTC)
	assert.EqualValues(t, 1, cnt.Sec)
	assert.EqualValues(t, 1, cnt.Min)
	assert.EqualValues(t, 2, cnt.Hour)
	assert.EqualValues(t, earlier, cnt.LastUpdate)
}

func TestAdvanceDelta(t *testing.T) {
	ts := millisAt(2026, time.March, 15, 10, 30, 45)
	cnt := advance(Counter{}, ts, 5, time.UTC)
	assert.EqualValues(t, 5, cnt.Sec)
	cnt = advance(cnt, ts, 3, time.UTC)
	assert.EqualValues(t, 8, cnt.Sec)
	cnt = advance(cnt, millisAt(2026, time.March, 15, 10, 30, 46), 2, time.UTC)
	assert.EqualValues(t, 2, cnt.Sec)
	assert.EqualValues(t, 10, cnt.Min)
}

func TestDecrementAll(t *testing.T) {
	ts := millisAt(2026, time.March, 15, 10, 30, 45)
	cnt := advance(Counter{}, ts, 1, time.UTC)
	cnt = decrementAll(cnt, 1)
	cnt = decrementAll(cnt, 1)
	assert.EqualValues(t, -1, cnt.Sec)
	assert.EqualValues(t, -1, cnt.Month)
	assert.EqualValues(t, ts, cnt.LastUpdate)
}

func TestViolatesLimit(t *testing.T) {
	cnt := &Counter{Sec: 5}
	violated, err := violatesLimit(cnt, PerSecond, 5)
	assert.Nil(t, err)
	assert.False(t, violated)

	violated, err = violatesLimit(cnt, PerSecond, 4)
	assert.Nil(t, err)
	assert.True(t, violated)

	violated, err = violatesLimit(cnt, PerSecond, NoLimit)
	assert.Nil(t, err)
	assert.False(t, violated)

	_, err = violatesLimit(cnt, FieldOfInterest(99), 1)
	assert.NotNil(t, err)
}

package counter

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testTime() time.Time {
	return time.Date(2026, time.March, 15, 10, 30, 45, 0, time.UTC)
}

func TestMemManagerIncr(t *testing.T) {
	m := NewMemManager(time.UTC)
	ts := testTime()

	v, err := m.Incr(1, ts, PerSecond)
	assert.Nil(t, err)
	assert.EqualValues(t, 1, v)

	v, err = m.Incr(1, ts, PerSecond)
	assert.Nil(t, err)
	assert.EqualValues(t, 2, v)

	// a different counter id is independent
	v, err = m.Incr(2, ts, PerSecond)
	assert.Nil(t, err)
	assert.EqualValues(t, 1, v)

	_, err = m.Incr(1, ts, FieldOfInterest(99))
	assert.True(t, errors.Is(err, ErrInvalidField))
}

func TestMemManagerIncrWithinLimit(t *testing.T) {
	m := NewMemManager(time.UTC)
	ts := testTime()

	for i := 1; i <= 2; i++ {
		v, err := m.IncrWithinLimit(1, ts, PerHour, 2)
		assert.Nil(t, err)
		assert.EqualValues(t, i, v)
	}

	_, err := m.IncrWithinLimit(1, ts, PerHour, 2)
	assert.True(t, errors.Is(err, ErrLimitReached))

	// the rejected hit left the tallies and the last update untouched
	v, err := m.Get(1, PerHour)
	assert.Nil(t, err)
	assert.EqualValues(t, 2, v)
	info, err := m.Info(1)
	assert.Nil(t, err)
	assert.EqualValues(t, ts.UnixMilli(), info.LastUpdate.UnixMilli())

	// the next hour opens a fresh window
	v, err = m.IncrWithinLimit(1, ts.Add(time.Hour), PerHour, 2)
	assert.Nil(t, err)
	assert.EqualValues(t, 1, v)
}

func TestMemManagerIncrWithinNoLimit(t *testing.T) {
	m := NewMemManager(time.UTC)
	ts := testTime()
	for i := 1; i <= 10; i++ {
		v, err := m.IncrWithinLimit(1, ts, PerDay, NoLimit)
		assert.Nil(t, err)
		assert.EqualValues(t, i, v)
	}
}

func TestMemManagerDecr(t *testing.T) {
	m := NewMemManager(time.UTC)
	ts := testTime()

	_, err := m.Incr(1, ts, PerDay)
	assert.Nil(t, err)
	assert.Nil(t, m.Decr(1))
	assert.Nil(t, m.Decr(1))

	// decrement has no floor at zero
	v, err := m.Get(1, PerDay)
	assert.Nil(t, err)
	assert.EqualValues(t, -1, v)
}

func TestMemManagerReadMiss(t *testing.T) {
	m := NewMemManager(time.UTC)

	_, err := m.Get(42, PerDay)
	assert.True(t, errors.Is(err, ErrNotFound))
	_, err = m.Info(42)
	assert.True(t, errors.Is(err, ErrNotFound))

	// reads never install a record
	assert.EqualValues(t, 0, m.counters.Count())
}

func TestMemManagerReset(t *testing.T) {
	m := NewMemManager(time.UTC)
	ts := testTime()

	_, err := m.Incr(1, ts, PerMonth)
	assert.Nil(t, err)
	assert.Nil(t, m.Reset(1))

	v, err := m.Get(1, PerMonth)
	assert.Nil(t, err)
	assert.EqualValues(t, 0, v)
}

func TestMemManagerConcurrent(t *testing.T) {
	m := NewMemManager(time.UTC)
	ts := testTime()
	count := 50
	wg := sync.WaitGroup{}
	wg.Add(count)
	for i := 0; i < count; i++ {
		go func() {
			defer wg.Done()
			_, err := m.Incr(1, ts, PerMonth)
			assert.Nil(t, err)
		}()
	}
	wg.Wait()

	v, err := m.Get(1, PerMonth)
	assert.Nil(t, err)
	assert.EqualValues(t, count, v)
}

func TestMemManagerConcurrentWithinLimit(t *testing.T) {
	m := NewMemManager(time.UTC)
	ts := testTime()
	count := 50
	limit := int64(20)
	var permitted int64
	var mu sync.Mutex
	wg := sync.WaitGroup{}
	wg.Add(count)
	for i := 0; i < count; i++ {
		go func() {
			defer wg.Done()
			_, err := m.IncrWithinLimit(1, ts, PerMonth, limit)
			if err == nil {
				mu.Lock()
				permitted++
				mu.Unlock()
			} else {
				assert.True(t, errors.Is(err, ErrLimitReached))
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, limit, permitted)
	v, err := m.Get(1, PerMonth)
	assert.Nil(t, err)
	assert.EqualValues(t, limit, v)
}

func TestMemManagerApplySteps(t *testing.T) {
	m := NewMemManager(time.UTC)
	ts := testTime().UnixMilli()

	steps := []Step{
		{Timestamp: ts, Field: PerSecond, Limit: 2, Delta: 1},
		{Timestamp: ts, Field: PerSecond, Limit: 2, Delta: 1},
		{Timestamp: ts, Field: PerSecond, Limit: 2, Delta: 1}, //超限,被跳过
		{Delta: 1, Decrement: true},
	}
	assert.Nil(t, m.ApplySteps(1, steps))

	v, err := m.Get(1, PerSecond)
	assert.Nil(t, err)
	assert.EqualValues(t, 1, v)
}

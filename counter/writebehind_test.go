package counter

import (
	"errors"
	"testing"
	"time"

	c "github.com/d0ngw/quota/common"
	"github.com/stretchr/testify/assert"
)

func newTestWriteBehind(t *testing.T, batchLimit, queueSize int) (*WriteBehind, *MemManager) {
	store := NewMemManager(time.UTC)
	w, err := NewWriteBehind(store, time.UTC, 10*time.Millisecond, time.Hour, batchLimit, queueSize)
	assert.Nil(t, err)
	return w, store
}

func TestWriteBehindFlush(t *testing.T) {
	w, store := newTestWriteBehind(t, 2, 100)
	ts := testTime()

	for i := 1; i <= 5; i++ {
		v, err := w.Incr(1, ts, PerMonth)
		assert.Nil(t, err)
		// the cached snapshot advances with every queued hit
		assert.EqualValues(t, i, v)
	}

	w.flushAll()
	v, err := store.Get(1, PerMonth)
	assert.Nil(t, err)
	assert.EqualValues(t, 5, v)
}

func TestWriteBehindFreshCounter(t *testing.T) {
	w, _ := newTestWriteBehind(t, 100, 100)

	// a counter the store does not know yet reads as zero and can be
	// incremented,the store only learns about it at flush time
	v, err := w.Get(1, PerDay)
	assert.Nil(t, err)
	assert.EqualValues(t, 0, v)

	v, err = w.Incr(1, testTime(), PerDay)
	assert.Nil(t, err)
	assert.EqualValues(t, 1, v)
}

func TestWriteBehindLimitBounded(t *testing.T) {
	w, store := newTestWriteBehind(t, 100, 1000)
	ts := testTime()

	// with no flush in between, the advancing snapshot keeps the limit
	// check honest: only the first three of a hundred hits pass
	permitted := 0
	for i := 0; i < 100; i++ {
		_, err := w.IncrWithinLimit(1, ts, PerDay, 3)
		if err == nil {
			permitted++
		} else {
			assert.True(t, errors.Is(err, ErrLimitReached))
		}
	}
	assert.Equal(t, 3, permitted)

	w.flushAll()
	v, err := store.Get(1, PerDay)
	assert.Nil(t, err)
	assert.EqualValues(t, 3, v)
}

func TestWriteBehindLimitReplay(t *testing.T) {
	w, store := newTestWriteBehind(t, 100, 100)
	ts := testTime()

	// another writer fills the live store behind the snapshot's back, the
	// replay re-checks the limit and drops the steps that no longer fit
	_, err := w.IncrWithinLimit(1, ts, PerDay, 3)
	assert.Nil(t, err)
	for i := 0; i < 3; i++ {
		_, err = store.Incr(1, ts, PerDay)
		assert.Nil(t, err)
	}

	w.flushAll()
	v, err := store.Get(1, PerDay)
	assert.Nil(t, err)
	assert.EqualValues(t, 3, v)
}

func TestWriteBehindZeroLimit(t *testing.T) {
	w, _ := newTestWriteBehind(t, 100, 100)

	_, err := w.IncrWithinLimit(1, testTime(), PerDay, 0)
	assert.True(t, errors.Is(err, ErrLimitReached))
}

func TestWriteBehindQueueFull(t *testing.T) {
	w, _ := newTestWriteBehind(t, 100, 2)

	assert.Nil(t, w.Decr(1))
	assert.Nil(t, w.Decr(1))
	err := w.Decr(1)
	assert.NotNil(t, err)
	var storeErr *StoreError
	assert.True(t, errors.As(err, &storeErr))
}

func TestWriteBehindDecr(t *testing.T) {
	w, store := newTestWriteBehind(t, 100, 100)
	ts := testTime()

	_, err := w.Incr(1, ts, PerHour)
	assert.Nil(t, err)
	assert.Nil(t, w.Decr(1))
	assert.Nil(t, w.Decr(1))

	// the cached snapshot was decremented too
	v, err := w.Get(1, PerHour)
	assert.Nil(t, err)
	assert.EqualValues(t, -1, v)

	w.flushAll()
	v, err = store.Get(1, PerHour)
	assert.Nil(t, err)
	assert.EqualValues(t, -1, v)
}

func TestWriteBehindReset(t *testing.T) {
	w, store := newTestWriteBehind(t, 100, 100)
	ts := testTime()

	_, err := w.Incr(1, ts, PerMonth)
	assert.Nil(t, err)
	assert.Nil(t, w.Reset(1))

	// the queued step was discarded together with the tallies
	w.flushAll()
	v, err := store.Get(1, PerMonth)
	assert.Nil(t, err)
	assert.EqualValues(t, 0, v)
}

func TestWriteBehindLifecycle(t *testing.T) {
	w, store := newTestWriteBehind(t, 10, 100)
	ts := testTime()

	assert.True(t, c.ServiceInit(w))
	assert.True(t, c.ServiceStart(w))

	for i := 0; i < 20; i++ {
		_, err := w.Incr(1, ts, PerMonth)
		assert.Nil(t, err)
	}

	assert.True(t, c.ServiceStop(w))
	v, err := store.Get(1, PerMonth)
	assert.Nil(t, err)
	assert.EqualValues(t, 20, v)
}

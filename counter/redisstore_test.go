package counter

import (
	"errors"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/d0ngw/quota/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func redisClient(t *testing.T) *cache.RedisClient {
	conn, err := net.DialTimeout("tcp", "127.0.0.1:6379", 100*time.Millisecond)
	if err != nil {
		t.Skipf("redis is not reachable,skip:%v", err)
	}
	conn.Close()

	redisServer := &cache.RedisServer{
		ID:   "test",
		Host: "127.0.0.1",
		Port: 6379,
	}
	conf := cache.RedisConf{
		Servers: []*cache.RedisServer{redisServer},
		Groups:  map[string][]string{"test": {"test"}},
	}
	require.Nil(t, conf.Parse())
	return cache.NewRedisClientWithConf(&conf)
}

func redisManager(t *testing.T) *RedisManager {
	param := cache.NewParamConf("test", fmt.Sprintf("qt%d_", time.Now().UnixNano()), 300)
	m, err := NewRedisManager(redisClient(t), param, time.UTC)
	require.Nil(t, err)
	return m
}

func TestRedisManagerIncr(t *testing.T) {
	m := redisManager(t)
	ts := testTime()

	for i := 1; i <= 3; i++ {
		v, err := m.Incr(1, ts, PerSecond)
		assert.Nil(t, err)
		assert.EqualValues(t, i, v)
	}

	// the next second resets the finest window, the coarser ones keep
	// accumulating
	v, err := m.Incr(1, ts.Add(time.Second), PerSecond)
	assert.Nil(t, err)
	assert.EqualValues(t, 1, v)
	v, err = m.Get(1, PerMinute)
	assert.Nil(t, err)
	assert.EqualValues(t, 4, v)

	// the next month resets everything
	v, err = m.Incr(1, ts.AddDate(0, 1, 0), PerMonth)
	assert.Nil(t, err)
	assert.EqualValues(t, 1, v)
	v, err = m.Get(1, PerDay)
	assert.Nil(t, err)
	assert.EqualValues(t, 1, v)
}

func TestRedisManagerIncrWithinLimit(t *testing.T) {
	m := redisManager(t)
	ts := testTime()

	for i := 1; i <= 3; i++ {
		v, err := m.IncrWithinLimit(1, ts, PerDay, 3)
		assert.Nil(t, err)
		assert.EqualValues(t, i, v)
	}

	_, err := m.IncrWithinLimit(1, ts, PerDay, 3)
	assert.True(t, errors.Is(err, ErrLimitReached))

	// the rejected hit wrote nothing
	v, err := m.Get(1, PerDay)
	assert.Nil(t, err)
	assert.EqualValues(t, 3, v)
	info, err := m.Info(1)
	assert.Nil(t, err)
	assert.EqualValues(t, ts.UnixMilli(), info.LastUpdate.UnixMilli())
}

func TestRedisManagerDecrAndReset(t *testing.T) {
	m := redisManager(t)
	ts := testTime()

	_, err := m.Incr(1, ts, PerHour)
	assert.Nil(t, err)
	assert.Nil(t, m.Decr(1))
	assert.Nil(t, m.Decr(1))

	v, err := m.Get(1, PerHour)
	assert.Nil(t, err)
	assert.EqualValues(t, -1, v)

	assert.Nil(t, m.Reset(1))
	v, err = m.Get(1, PerHour)
	assert.Nil(t, err)
	assert.EqualValues(t, 0, v)
}

func TestRedisManagerNotFound(t *testing.T) {
	m := redisManager(t)
	_, err := m.Get(404, PerDay)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRedisManagerApplySteps(t *testing.T) {
	m := redisManager(t)
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

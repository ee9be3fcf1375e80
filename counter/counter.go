// Package counter supply time-windowed quota counter service.
//
// A counter keeps one hit tally per calendar period (second, minute, hour,
// day and month) plus the timestamp of its last update. Incrementing a
// counter advances the tallies of the periods the new timestamp still
// shares with the last update and resets the elapsed ones. Three
// interchangeable backends implement the same Manager interface: an
// in-process store (MemManager, not safe across processes), a MySQL store
// (DBManager, row locked, safe across a cluster) and a Redis store
// (RedisManager, Lua scripted, safe across processes sharing one Redis).
//
// The MySQL backend expects the following tables:
//
//	CREATE TABLE counter_ids (
//	  id          BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
//	  countername VARCHAR(255) NOT NULL,
//	  provider_id BIGINT NOT NULL DEFAULT -1,
//	  user_id     VARCHAR(255) NOT NULL DEFAULT '',
//	  PRIMARY KEY (id),
//	  UNIQUE KEY uk_counter_identity (countername, provider_id, user_id)
//	);
//
//	CREATE TABLE counters (
//	  counterid   BIGINT UNSIGNED NOT NULL,
//	  cnt_sec     BIGINT NOT NULL DEFAULT 0,
//	  cnt_min     BIGINT NOT NULL DEFAULT 0,
//	  cnt_hr      BIGINT NOT NULL DEFAULT 0,
//	  cnt_day     BIGINT NOT NULL DEFAULT 0,
//	  cnt_mnt     BIGINT NOT NULL DEFAULT 0,
//	  last_update BIGINT NOT NULL DEFAULT 0,
//	  PRIMARY KEY (counterid)
//	);
package counter

import (
	"errors"
	"fmt"
	"time"

	c "github.com/d0ngw/quota/common"
)

// FieldOfInterest 表示配额检查的时间窗口
type FieldOfInterest int

// 支持的时间窗口
const (
	PerSecond FieldOfInterest = iota
	PerMinute
	PerHour
	PerDay
	PerMonth
)

var fieldNames = map[FieldOfInterest]string{
	PerSecond: "sec",
	PerMinute: "min",
	PerHour:   "hr",
	PerDay:    "day",
	PerMonth:  "mnt",
}

func (p FieldOfInterest) String() string {
	if name, ok := fieldNames[p]; ok {
		return name
	}
	return fmt.Sprintf("FieldOfInterest(%d)", int(p))
}

// NoLimit 表示不检查上限
const NoLimit int64 = -1

var (
	// ErrLimitReached 计数超过上限,计数器的状态不会被修改
	ErrLimitReached = errors.New("counter limit already reached")
	// ErrContention 存储层锁等待超时或者死锁,调用方可以有限次地重试
	ErrContention = errors.New("counter storage contention")
	// ErrInvalidField 无效的时间窗口,属于编程错误
	ErrInvalidField = errors.New("invalid field of interest")
	// ErrNotFound 计数器不存在
	ErrNotFound = errors.New("counter not found")
)

// StoreError 存储层的I/O错误
type StoreError struct {
	Msg string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("StoreError msg:%s,err:%v", e.Msg, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError 构建存储错误
func NewStoreError(err error, msg string) *StoreError {
	return &StoreError{Msg: msg, Err: err}
}

// NewStoreErrorf 使用fmt.Sprintf构建
func NewStoreErrorf(err error, msgFormat string, args ...interface{}) *StoreError {
	return &StoreError{Msg: fmt.Sprintf(msgFormat, args...), Err: err}
}

// Counter 一个计数器的滚动窗口状态
type Counter struct {
	LastUpdate int64 //最后一次更新的时间,单位毫秒
	Sec        int64
	Min        int64
	Hour       int64
	Day        int64
	Month      int64
}

// Value 取得field对应的计数
func (p *Counter) Value(field FieldOfInterest) (int64, error) {
	switch field {
	case PerSecond:
		return p.Sec, nil
	case PerMinute:
		return p.Min, nil
	case PerHour:
		return p.Hour, nil
	case PerDay:
		return p.Day, nil
	case PerMonth:
		return p.Month, nil
	default:
		return 0, fmt.Errorf("%w:%d", ErrInvalidField, int(field))
	}
}

//检查field的计数是否超过limit,limit<0表示不限制
func violatesLimit(cnt *Counter, field FieldOfInterest, limit int64) (bool, error) {
	if limit < 0 {
		return false, nil
	}
	v, err := cnt.Value(field)
	if err != nil {
		return false, err
	}
	return v > limit, nil
}

// CounterInfo 一个计数器的完整快照
type CounterInfo struct {
	ID         int64                     `json:"id"`
	Counts     map[FieldOfInterest]int64 `json:"counts"`
	LastUpdate time.Time                 `json:"last_update"`
}

func newCounterInfo(counterID int64, cnt *Counter, loc *time.Location) *CounterInfo {
	return &CounterInfo{
		ID: counterID,
		Counts: map[FieldOfInterest]int64{
			PerSecond: cnt.Sec,
			PerMinute: cnt.Min,
			PerHour:   cnt.Hour,
			PerDay:    cnt.Day,
			PerMonth:  cnt.Month,
		},
		LastUpdate: c.UnixMillsTime(cnt.LastUpdate).In(loc),
	}
}

// Manager 计数器的统一接口,由各个存储实现
type Manager interface {
	// Incr increase the counter at timestamp,return the new value of field
	Incr(counterID int64, timestamp time.Time, field FieldOfInterest) (int64, error)

	// IncrWithinLimit increase the counter at timestamp only when the new
	// value of field would not exceed limit,otherwise return ErrLimitReached
	// and leave the counter untouched. limit<0 means no limit.
	IncrWithinLimit(counterID int64, timestamp time.Time, field FieldOfInterest, limit int64) (int64, error)

	// Decr decrease all the tallies of the counter by one,no rollover and
	// no floor at zero
	Decr(counterID int64) error

	// Get return the current value of field without mutation
	Get(counterID int64, field FieldOfInterest) (int64, error)

	// Reset zero all the tallies of the counter
	Reset(counterID int64) error

	// Info return the full snapshot of the counter
	Info(counterID int64) (*CounterInfo, error)
}

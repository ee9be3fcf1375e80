package counter

import (
	"fmt"
	"sync"
	"time"

	c "github.com/d0ngw/quota/common"
)

// memCounter 单个计数器的记录与锁,只能在持有锁时读写cnt
type memCounter struct {
	sync.RWMutex
	cnt Counter
}

// MemManager implements Manager with an in-process sharded map,one
// read/write lock per counter id. Operations on distinct ids run fully in
// parallel,only contention on the same id serializes. Not safe across
// multiple cooperating processes.
type MemManager struct {
	counters *c.CurrentMap
	loc      *time.Location
}

// NewMemManager create MemManager,loc为nil时使用本地时区
func NewMemManager(loc *time.Location) *MemManager {
	if loc == nil {
		loc = c.LocalLocation
	}
	return &MemManager{
		counters: c.NewCurrentMap(),
		loc:      loc,
	}
}

//取得counterID对应的记录,不存在时安装一个零值的记录
func (p *MemManager) entry(counterID int64) *memCounter {
	if v, ok := p.counters.Get(counterID); ok {
		return v.(*memCounter)
	}
	e := &memCounter{}
	success, preVal := p.counters.SetIfAbsent(counterID, e)
	if !success {
		return preVal.(*memCounter)
	}
	return e
}

// Incr implements Manager.Incr
func (p *MemManager) Incr(counterID int64, timestamp time.Time, field FieldOfInterest) (int64, error) {
	if _, err := (&Counter{}).Value(field); err != nil {
		return 0, err
	}
	e := p.entry(counterID)
	e.Lock()
	defer e.Unlock()
	e.cnt = advance(e.cnt, c.UnixMills(timestamp), 1, p.loc)
	return e.cnt.Value(field)
}

// IncrWithinLimit implements Manager.IncrWithinLimit. The rollover is
// computed on a scratch copy first,the live record is only replaced after
// the limit check passes,so a rejected hit has no side effect.
func (p *MemManager) IncrWithinLimit(counterID int64, timestamp time.Time, field FieldOfInterest, limit int64) (int64, error) {
	e := p.entry(counterID)
	e.Lock()
	defer e.Unlock()
	scratch := advance(e.cnt, c.UnixMills(timestamp), 1, p.loc)
	violated, err := violatesLimit(&scratch, field, limit)
	if err != nil {
		return 0, err
	}
	if violated {
		return 0, ErrLimitReached
	}
	e.cnt = scratch
	return scratch.Value(field)
}

// Decr implements Manager.Decr
func (p *MemManager) Decr(counterID int64) error {
	e := p.entry(counterID)
	e.Lock()
	defer e.Unlock()
	e.cnt = decrementAll(e.cnt, 1)
	return nil
}

//只查找counterID对应的记录,不安装新的记录
func (p *MemManager) peek(counterID int64) (*memCounter, bool) {
	if v, ok := p.counters.Get(counterID); ok {
		return v.(*memCounter), true
	}
	return nil, false
}

// Get implements Manager.Get,a read never installs a record
func (p *MemManager) Get(counterID int64, field FieldOfInterest) (int64, error) {
	if _, err := (&Counter{}).Value(field); err != nil {
		return 0, err
	}
	e, ok := p.peek(counterID)
	if !ok {
		return 0, fmt.Errorf("counter %d:%w", counterID, ErrNotFound)
	}
	e.RLock()
	defer e.RUnlock()
	return e.cnt.Value(field)
}

// Reset implements Manager.Reset
func (p *MemManager) Reset(counterID int64) error {
	e := p.entry(counterID)
	e.Lock()
	defer e.Unlock()
	e.cnt = Counter{LastUpdate: c.UnixMills(time.Now())}
	return nil
}

// Info implements Manager.Info,a read never installs a record
func (p *MemManager) Info(counterID int64) (*CounterInfo, error) {
	e, ok := p.peek(counterID)
	if !ok {
		return nil, fmt.Errorf("counter %d:%w", counterID, ErrNotFound)
	}
	e.RLock()
	defer e.RUnlock()
	return newCounterInfo(counterID, &e.cnt, p.loc), nil
}

// ApplySteps implements BatchStore.ApplySteps,all the steps are applied
// under one lock acquisition
func (p *MemManager) ApplySteps(counterID int64, steps []Step) error {
	e := p.entry(counterID)
	e.Lock()
	defer e.Unlock()
	for _, step := range steps {
		if step.Decrement {
			e.cnt = decrementAll(e.cnt, step.Delta)
			continue
		}
		scratch := advance(e.cnt, step.Timestamp, step.Delta, p.loc)
		violated, err := violatesLimit(&scratch, step.Field, step.Limit)
		if err != nil {
			return err
		}
		if violated {
			c.Debugf("async processing permitted request over quota for counter %d", counterID)
			continue
		}
		e.cnt = scratch
	}
	return nil
}

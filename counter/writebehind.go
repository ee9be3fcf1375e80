package counter

import (
	"errors"
	"sync"
	"time"

	c "github.com/d0ngw/quota/common"
)

// Step 异步模式下排队的一次计数操作
type Step struct {
	Timestamp int64 //毫秒
	Field     FieldOfInterest
	Limit     int64
	Delta     int64
	Decrement bool
}

// BatchStore 支持批量重放Step的存储
type BatchStore interface {
	Manager

	// ApplySteps replay the steps against the counter in one storage
	// round-trip. Steps whose limit check fails are skipped and logged,
	// never returned as an error.
	ApplySteps(counterID int64, steps []Step) error
}

//单个计数器的有界队列
type stepQueue struct {
	sync.Mutex
	steps []Step
}

func (p *stepQueue) offer(step Step, max int) bool {
	p.Lock()
	defer p.Unlock()
	if len(p.steps) >= max {
		return false
	}
	p.steps = append(p.steps, step)
	return true
}

func (p *stepQueue) drain(max int) []Step {
	p.Lock()
	defer p.Unlock()
	if len(p.steps) == 0 {
		return nil
	}
	n := len(p.steps)
	if n > max {
		n = max
	}
	taken := make([]Step, n)
	copy(taken, p.steps[:n])
	p.steps = append(p.steps[:0], p.steps[n:]...)
	return taken
}

// WriteBehind wraps a BatchStore and trades accuracy for throughput. Every
// mutation is queued per counter and replayed in batches by a background
// flusher. The hot path works on a cached snapshot of the counter: each
// accepted hit advances the snapshot, so the limit check stays bounded even
// between flushes, but the snapshot only resyncs with the live store when
// the read cache is cleared, so concurrent writers in other processes can
// still overshoot a quota by roughly one read period. The exact check
// happens again at replay time, where a violated step is dropped with a log
// line instead of an error.
type WriteBehind struct {
	c.BaseService

	store         BatchStore
	loc           *time.Location
	flushInterval time.Duration
	readPeriod    time.Duration
	batchLimit    int
	queueSize     int

	queues *c.CurrentMap

	readMu    sync.Mutex
	readCache map[int64]*Counter
	lastClear time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewWriteBehind create WriteBehind over store,loc为nil时使用本地时区
func NewWriteBehind(store BatchStore, loc *time.Location, flushInterval, readPeriod time.Duration, batchLimit, queueSize int) (*WriteBehind, error) {
	if c.HasNil(store) {
		return nil, errors.New("store must not be nil")
	}
	if flushInterval <= 0 || readPeriod <= 0 || batchLimit <= 0 || queueSize <= 0 {
		return nil, errors.New("flushInterval,readPeriod,batchLimit and queueSize must be positive")
	}
	if loc == nil {
		loc = c.LocalLocation
	}
	w := &WriteBehind{
		store:         store,
		loc:           loc,
		flushInterval: flushInterval,
		readPeriod:    readPeriod,
		batchLimit:    batchLimit,
		queueSize:     queueSize,
		queues:        c.NewCurrentMap(),
		readCache:     map[int64]*Counter{},
		lastClear:     time.Now(),
	}
	w.SName = "counter-write-behind"
	return w, nil
}

// Init implements Service.Init
func (p *WriteBehind) Init() error {
	return nil
}

// Start implements Service.Start,launch the background flusher
func (p *WriteBehind) Start() bool {
	p.stopCh = make(chan struct{})
	p.wg.Add(1)
	go p.flushLoop()
	return true
}

// Stop implements Service.Stop,drain all the pending steps before return
func (p *WriteBehind) Stop() bool {
	close(p.stopCh)
	p.wg.Wait()
	p.flushAll()
	return true
}

func (p *WriteBehind) flushLoop() {
	defer p.wg.Done()
	ticker := time.NewTicker(p.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.flushAll()
			p.maybeClearReadCache()
		}
	}
}

func (p *WriteBehind) flushAll() {
	for counterID, v := range p.queues.Items() {
		queue := v.(*stepQueue)
		for {
			steps := queue.drain(p.batchLimit)
			if len(steps) == 0 {
				break
			}
			if err := p.store.ApplySteps(counterID.(int64), steps); err != nil {
				c.Errorf("flush %d steps of counter %d fail,err:%v", len(steps), counterID, err)
				break
			}
		}
	}
}

func (p *WriteBehind) maybeClearReadCache() {
	p.readMu.Lock()
	defer p.readMu.Unlock()
	if time.Since(p.lastClear) >= p.readPeriod {
		p.readCache = map[int64]*Counter{}
		p.lastClear = time.Now()
	}
}

func (p *WriteBehind) queue(counterID int64) *stepQueue {
	if v, ok := p.queues.Get(counterID); ok {
		return v.(*stepQueue)
	}
	q := &stepQueue{}
	success, preVal := p.queues.SetIfAbsent(counterID, q)
	if !success {
		return preVal.(*stepQueue)
	}
	return q
}

func (p *WriteBehind) enqueue(counterID int64, step Step) error {
	if !p.queue(counterID).offer(step, p.queueSize) {
		return NewStoreErrorf(nil, "write queue of counter %d is full", counterID)
	}
	return nil
}

//读取缓存的快照,不存在时从存储加载,存储中还没有的计数器从零开始.
//返回的记录只能在持有readMu时读写
func (p *WriteBehind) cachedCounter(counterID int64) (*Counter, error) {
	p.readMu.Lock()
	if cnt, ok := p.readCache[counterID]; ok {
		p.readMu.Unlock()
		return cnt, nil
	}
	p.readMu.Unlock()

	cnt := &Counter{}
	info, err := p.store.Info(counterID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	} else {
		cnt = &Counter{
			LastUpdate: c.UnixMills(info.LastUpdate),
			Sec:        info.Counts[PerSecond],
			Min:        info.Counts[PerMinute],
			Hour:       info.Counts[PerHour],
			Day:        info.Counts[PerDay],
			Month:      info.Counts[PerMonth],
		}
	}

	p.readMu.Lock()
	if exist, ok := p.readCache[counterID]; ok {
		cnt = exist
	} else {
		p.readCache[counterID] = cnt
	}
	p.readMu.Unlock()
	return cnt, nil
}

// Incr implements Manager.Incr. The step is queued and the cached snapshot
// is advanced right away,the returned value is approximate.
func (p *WriteBehind) Incr(counterID int64, timestamp time.Time, field FieldOfInterest) (int64, error) {
	if _, err := (&Counter{}).Value(field); err != nil {
		return 0, err
	}
	cnt, err := p.cachedCounter(counterID)
	if err != nil {
		return 0, err
	}
	p.readMu.Lock()
	defer p.readMu.Unlock()
	if err := p.enqueue(counterID, Step{Timestamp: c.UnixMills(timestamp), Field: field, Limit: NoLimit, Delta: 1}); err != nil {
		return 0, err
	}
	*cnt = advance(*cnt, c.UnixMills(timestamp), 1, p.loc)
	return cnt.Value(field)
}

// IncrWithinLimit implements Manager.IncrWithinLimit. The check runs
// against the cached snapshot and every accepted hit advances it,so a
// single process cannot run past the limit between flushes. The replay
// re-checks the limit against the live tallies and drops any step that no
// longer fits.
func (p *WriteBehind) IncrWithinLimit(counterID int64, timestamp time.Time, field FieldOfInterest, limit int64) (int64, error) {
	cnt, err := p.cachedCounter(counterID)
	if err != nil {
		return 0, err
	}
	p.readMu.Lock()
	defer p.readMu.Unlock()
	scratch := advance(*cnt, c.UnixMills(timestamp), 1, p.loc)
	violated, err := violatesLimit(&scratch, field, limit)
	if err != nil {
		return 0, err
	}
	if violated {
		return 0, ErrLimitReached
	}
	if err := p.enqueue(counterID, Step{Timestamp: c.UnixMills(timestamp), Field: field, Limit: limit, Delta: 1}); err != nil {
		return 0, err
	}
	*cnt = scratch
	return scratch.Value(field)
}

// Decr implements Manager.Decr,the cached snapshot is decremented too
func (p *WriteBehind) Decr(counterID int64) error {
	if err := p.enqueue(counterID, Step{Delta: 1, Decrement: true}); err != nil {
		return err
	}
	p.readMu.Lock()
	defer p.readMu.Unlock()
	if cnt, ok := p.readCache[counterID]; ok {
		*cnt = decrementAll(*cnt, 1)
	}
	return nil
}

// Get implements Manager.Get,served from the cached snapshot. A counter
// the store does not know yet reads as zero.
func (p *WriteBehind) Get(counterID int64, field FieldOfInterest) (int64, error) {
	if _, err := (&Counter{}).Value(field); err != nil {
		return 0, err
	}
	cnt, err := p.cachedCounter(counterID)
	if err != nil {
		return 0, err
	}
	p.readMu.Lock()
	defer p.readMu.Unlock()
	return cnt.Value(field)
}

// Reset implements Manager.Reset,pending steps of the counter are discarded
func (p *WriteBehind) Reset(counterID int64) error {
	p.queue(counterID).drain(int(^uint(0) >> 1))
	if err := p.store.Reset(counterID); err != nil {
		return err
	}
	p.readMu.Lock()
	delete(p.readCache, counterID)
	p.readMu.Unlock()
	return nil
}

// Info implements Manager.Info,always read the live store
func (p *WriteBehind) Info(counterID int64) (*CounterInfo, error) {
	return p.store.Info(counterID)
}

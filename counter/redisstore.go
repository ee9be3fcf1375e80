package counter

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gomodule/redigo/redis"

	"github.com/d0ngw/quota/cache"
	c "github.com/d0ngw/quota/common"
)

//cal字段使用的时间格式,前缀比较依赖字段的顺序与定长
const calFormat = "2006-01-02T15:04:05"

// RedisManager implements Manager on a redis hash per counter. The rollover,
// the limit check and the write run in one Lua script, so concurrent
// processes sharing the redis see the same serialized updates a row lock
// would give them. Tallies expire with the configured TTL, an expired
// counter simply restarts from zero.
type RedisManager struct {
	redisClient *cache.RedisClient
	cacheParam  *cache.ParamConf
	loc         *time.Location
}

// NewRedisManager create RedisManager,loc为nil时使用本地时区
func NewRedisManager(redisClient *cache.RedisClient, cacheParam *cache.ParamConf, loc *time.Location) (*RedisManager, error) {
	if c.HasNil(redisClient, cacheParam) {
		return nil, errors.New("redisClient and cacheParam must not be nil")
	}
	if loc == nil {
		loc = c.LocalLocation
	}
	return &RedisManager{
		redisClient: redisClient,
		cacheParam:  cacheParam,
		loc:         loc,
	}, nil
}

func (p *RedisManager) param(counterID int64) *cache.ParamKey {
	return p.cacheParam.NewParamKey("h:" + strconv.FormatInt(counterID, 10))
}

func (p *RedisManager) incr(counterID int64, timestamp time.Time, field FieldOfInterest, limit int64, delta int64) (int64, error) {
	name, ok := fieldNames[field]
	if !ok {
		return 0, fmt.Errorf("%w:%d", ErrInvalidField, int(field))
	}
	param := p.param(counterID)
	reply, err := redis.Int64s(p.redisClient.Eval(param, incrScript,
		timestamp.In(p.loc).Format(calFormat),
		strconv.FormatInt(c.UnixMills(timestamp), 10),
		strconv.FormatInt(delta, 10),
		name,
		strconv.FormatInt(limit, 10),
		strconv.Itoa(param.Expire())))
	if err != nil {
		return 0, NewStoreErrorf(err, "incr counter %d", counterID)
	}
	if len(reply) != 2 {
		return 0, NewStoreErrorf(nil, "incr counter %d,bad reply length:%d", counterID, len(reply))
	}
	switch int(reply[0]) {
	case luaTrue:
		return reply[1], nil
	case luaFalse:
		return 0, ErrLimitReached
	default:
		return 0, NewStoreErrorf(nil, "incr counter %d,bad reply:%d", counterID, reply[0])
	}
}

// Incr implements Manager.Incr
func (p *RedisManager) Incr(counterID int64, timestamp time.Time, field FieldOfInterest) (int64, error) {
	return p.incr(counterID, timestamp, field, NoLimit, 1)
}

// IncrWithinLimit implements Manager.IncrWithinLimit
func (p *RedisManager) IncrWithinLimit(counterID int64, timestamp time.Time, field FieldOfInterest, limit int64) (int64, error) {
	return p.incr(counterID, timestamp, field, limit, 1)
}

// Decr implements Manager.Decr
func (p *RedisManager) Decr(counterID int64) error {
	return p.decr(counterID, 1)
}

func (p *RedisManager) decr(counterID int64, delta int64) error {
	_, err := p.redisClient.Eval(p.param(counterID), decrScript, strconv.FormatInt(delta, 10))
	if err != nil {
		return NewStoreErrorf(err, "decr counter %d", counterID)
	}
	return nil
}

// Get implements Manager.Get
func (p *RedisManager) Get(counterID int64, field FieldOfInterest) (int64, error) {
	cnt, err := p.readCounter(counterID)
	if err != nil {
		return 0, err
	}
	return cnt.Value(field)
}

// Reset implements Manager.Reset
func (p *RedisManager) Reset(counterID int64) error {
	now := time.Now()
	_, err := p.redisClient.Eval(p.param(counterID), resetScript,
		now.In(p.loc).Format(calFormat),
		strconv.FormatInt(c.UnixMills(now), 10))
	if err != nil {
		return NewStoreErrorf(err, "reset counter %d", counterID)
	}
	return nil
}

// Info implements Manager.Info
func (p *RedisManager) Info(counterID int64) (*CounterInfo, error) {
	cnt, err := p.readCounter(counterID)
	if err != nil {
		return nil, err
	}
	return newCounterInfo(counterID, cnt, p.loc), nil
}

func (p *RedisManager) readCounter(counterID int64) (*Counter, error) {
	param := p.param(counterID)
	raw, err := redis.StringMap(p.redisClient.Do(param, func(conn redis.Conn) (interface{}, error) {
		return conn.Do("HGETALL", param.Key())
	}))
	if err != nil {
		return nil, NewStoreErrorf(err, "read counter %d", counterID)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("counter %d:%w", counterID, ErrNotFound)
	}
	var cnt Counter
	for k, v := range raw {
		if k == "cal" {
			continue
		}
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, NewStoreErrorf(err, "parse counter %d field %s", counterID, k)
		}
		switch k {
		case "sec":
			cnt.Sec = n
		case "min":
			cnt.Min = n
		case "hr":
			cnt.Hour = n
		case "day":
			cnt.Day = n
		case "mnt":
			cnt.Month = n
		case "last_update":
			cnt.LastUpdate = n
		}
	}
	return &cnt, nil
}

// ApplySteps implements BatchStore.ApplySteps,each step is one script call
func (p *RedisManager) ApplySteps(counterID int64, steps []Step) error {
	for _, step := range steps {
		if step.Decrement {
			if err := p.decr(counterID, step.Delta); err != nil {
				return err
			}
			continue
		}
		_, err := p.incr(counterID, c.UnixMillsTime(step.Timestamp), step.Field, step.Limit, step.Delta)
		if err != nil {
			if errors.Is(err, ErrLimitReached) {
				c.Debugf("async processing permitted request over quota for counter %d", counterID)
				continue
			}
			return err
		}
	}
	return nil
}

package counter

import (
	"errors"
	"fmt"
	"time"

	"github.com/d0ngw/quota/cache"
	c "github.com/d0ngw/quota/common"
	"github.com/d0ngw/quota/db"
)

// Identity scopes a counter to one API consumer. A nil Identity denotes a
// global counter shared by every caller of the same counter name.
type Identity struct {
	ProviderID int64
	UserID     string
}

//无身份时的占位列值,需要与表定义的默认值一致
const (
	globalProviderID int64 = -1
	globalUserID           = ""
)

//持久化到redis映射缓存中的条目
type idMapping struct {
	ID         int64
	Name       string
	ProviderID int64
	UserID     string
}

// IDResolver maps a (counterName,identity) pair to a stable numeric counter
// id. The mapping is created lazily with an atomic MySQL upsert against a
// unique key,so concurrent first-time creators in any number of processes
// converge on the same id. Resolved mappings are cached in memory per
// process and optionally in redis (ids are immutable,the tallies are never
// cached here).
type IDResolver struct {
	pool        *db.Pool
	cache       *c.CurrentMap
	redisClient *cache.RedisClient
	redisParam  *cache.ParamConf
}

// NewIDResolver create IDResolver. redisClient与redisParam可以为nil,
// 此时只使用进程内缓存
func NewIDResolver(pool *db.Pool, redisClient *cache.RedisClient, redisParam *cache.ParamConf) (*IDResolver, error) {
	if c.HasNil(pool) {
		return nil, errors.New("pool must not be nil")
	}
	if redisClient != nil && redisParam == nil {
		return nil, errors.New("redisParam must be set with redisClient")
	}
	return &IDResolver{
		pool:        pool,
		cache:       c.NewCurrentMap(),
		redisClient: redisClient,
		redisParam:  redisParam,
	}, nil
}

//组合缓存key,无身份时退化为计数器名称
func counterKey(counterName string, identity *Identity) string {
	if identity == nil {
		return counterName
	}
	return fmt.Sprintf("%s#%d#%s", counterName, identity.ProviderID, identity.UserID)
}

// Resolve return the counter id of the (counterName,identity) pair,create
// one on first use
func (p *IDResolver) Resolve(counterName string, identity *Identity) (int64, error) {
	if counterName == "" {
		return 0, errors.New("counterName must not be empty")
	}
	key := counterKey(counterName, identity)
	if v, ok := p.cache.Get(key); ok {
		return v.(int64), nil
	}

	if p.redisClient != nil {
		var mapping idMapping
		exist, err := p.redisClient.GetObject(p.redisParam.NewParamKey(key), &mapping)
		if err != nil {
			c.Warnf("load counter id mapping %s from redis fail,err:%v", key, err)
		} else if exist {
			p.cache.Set(key, mapping.ID)
			return mapping.ID, nil
		}
	}

	id, err := p.resolveFromDB(counterName, identity)
	if err != nil {
		return 0, err
	}
	p.cache.Set(key, id)

	mapping := &idMapping{ID: id, Name: counterName, ProviderID: globalProviderID, UserID: globalUserID}
	if identity != nil {
		mapping.ProviderID = identity.ProviderID
		mapping.UserID = identity.UserID
	}
	c.Debugf("resolved counter id mapping %s", c.JSONStr(mapping))
	if p.redisClient != nil {
		if err := p.redisClient.SetObject(p.redisParam.NewParamKey(key), mapping); err != nil {
			c.Warnf("cache counter id mapping %s to redis fail,err:%v", key, err)
		}
	}
	return id, nil
}

//原子upsert,依赖counter_ids表(countername,provider_id,user_id)上的唯一键,
//已存在时LAST_INSERT_ID返回已有的id,并确保counters表中对应的行存在
func (p *IDResolver) resolveFromDB(counterName string, identity *Identity) (int64, error) {
	providerID := globalProviderID
	userID := globalUserID
	if identity != nil {
		providerID = identity.ProviderID
		userID = identity.UserID
	}

	res, err := p.pool.DB().Exec(
		"INSERT INTO counter_ids(countername,provider_id,user_id) VALUES(?,?,?) ON DUPLICATE KEY UPDATE id=LAST_INSERT_ID(id)",
		counterName, providerID, userID)
	if err != nil {
		return 0, NewStoreErrorf(err, "resolve counter id for %s", counterKey(counterName, identity))
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, NewStoreErrorf(err, "resolve counter id for %s", counterKey(counterName, identity))
	}

	_, err = p.pool.DB().Exec("INSERT IGNORE INTO counters(counterid,last_update) VALUES(?,?)",
		id, c.UnixMills(time.Now()))
	if err != nil {
		return 0, NewStoreErrorf(err, "create counter row %d", id)
	}
	return id, nil
}

package counter

import (
	"errors"
	"fmt"
	"time"

	"github.com/d0ngw/quota/cache"
	"github.com/d0ngw/quota/db"
)

// 支持的存储后端
const (
	BackendMemory = "memory"
	BackendMySQL  = "mysql"
	BackendRedis  = "redis"
)

// 异步模式的缺省参数
const (
	defaultFlushIntervalMs = 1000
	defaultReadCacheMs     = 5000
	defaultBatchLimit      = 100
	defaultQueueSize       = 1000
)

// Config 计数器服务的配置
type Config struct {
	Backend  string `yaml:"backend"`   //存储后端,memory,mysql或者redis
	TimeZone string `yaml:"time_zone"` //IANA时区名,空表示本地时区

	WriteBehind     bool `yaml:"write_behind"`      //是否启用异步模式
	FlushIntervalMs int  `yaml:"flush_interval_ms"` //异步刷新的间隔
	ReadCacheMs     int  `yaml:"read_cache_ms"`     //异步读缓存的清空周期
	BatchLimit      int  `yaml:"batch_limit"`       //单次重放的最大Step数
	QueueSize       int  `yaml:"queue_size"`        //单个计数器的最大排队Step数

	RedisGroup     string `yaml:"redis_group"`      //redis后端使用的group
	RedisKeyPrefix string `yaml:"redis_key_prefix"` //redis key的前缀
	RedisExpire    int    `yaml:"redis_expire"`     //redis key的过期秒数,0表示不过期

	loc *time.Location
}

// Parse implements Configurer.Parse
func (p *Config) Parse() error {
	switch p.Backend {
	case BackendMemory, BackendMySQL, BackendRedis:
	default:
		return fmt.Errorf("invalid counter backend:%s", p.Backend)
	}

	p.loc = time.Local
	if p.TimeZone != "" {
		loc, err := time.LoadLocation(p.TimeZone)
		if err != nil {
			return fmt.Errorf("invalid time_zone %s,err:%w", p.TimeZone, err)
		}
		p.loc = loc
	}

	if p.Backend == BackendRedis {
		if p.RedisGroup == "" {
			return errors.New("redis_group must be set for the redis backend")
		}
	}

	if p.WriteBehind {
		if p.FlushIntervalMs == 0 {
			p.FlushIntervalMs = defaultFlushIntervalMs
		}
		if p.ReadCacheMs == 0 {
			p.ReadCacheMs = defaultReadCacheMs
		}
		if p.BatchLimit == 0 {
			p.BatchLimit = defaultBatchLimit
		}
		if p.QueueSize == 0 {
			p.QueueSize = defaultQueueSize
		}
		if p.FlushIntervalMs < 0 || p.ReadCacheMs < 0 || p.BatchLimit < 0 || p.QueueSize < 0 {
			return errors.New("write_behind parameters must not be negative")
		}
	}
	return nil
}

// Location return the parsed time location
func (p *Config) Location() *time.Location {
	return p.loc
}

// NewManager assemble the Manager described by conf. pool is required for
// the mysql backend, redisClient for the redis one. When conf.WriteBehind
// is set the returned Manager is a *WriteBehind whose flusher must be
// started with common.ServiceInit and common.ServiceStart and stopped with
// common.ServiceStop.
func NewManager(conf *Config, pool *db.Pool, redisClient *cache.RedisClient) (Manager, error) {
	if conf == nil {
		return nil, errors.New("conf must not be nil")
	}
	if conf.loc == nil {
		if err := conf.Parse(); err != nil {
			return nil, err
		}
	}

	var store BatchStore
	switch conf.Backend {
	case BackendMemory:
		store = NewMemManager(conf.loc)
	case BackendMySQL:
		if pool == nil {
			return nil, errors.New("pool must be set for the mysql backend")
		}
		m, err := NewDBManager(pool, conf.loc)
		if err != nil {
			return nil, err
		}
		store = m
	case BackendRedis:
		if redisClient == nil {
			return nil, errors.New("redisClient must be set for the redis backend")
		}
		param := cache.NewParamConf(conf.RedisGroup, conf.RedisKeyPrefix, conf.RedisExpire)
		m, err := NewRedisManager(redisClient, param, conf.loc)
		if err != nil {
			return nil, err
		}
		store = m
	default:
		return nil, fmt.Errorf("invalid counter backend:%s", conf.Backend)
	}

	if !conf.WriteBehind {
		return store, nil
	}
	return NewWriteBehind(store, conf.loc,
		time.Duration(conf.FlushIntervalMs)*time.Millisecond,
		time.Duration(conf.ReadCacheMs)*time.Millisecond,
		conf.BatchLimit, conf.QueueSize)
}

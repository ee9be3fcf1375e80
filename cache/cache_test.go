package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParamConf(t *testing.T) {
	conf := NewParamConf("test", "cnt_", 60)
	assert.Equal(t, "test", conf.Group())
	assert.Equal(t, "cnt_", conf.KeyPrefix())
	assert.Equal(t, 60, conf.Expire())

	key := conf.NewParamKey("1")
	assert.Equal(t, "cnt_1", key.Key())
	assert.Equal(t, "test", key.Group())
	assert.Equal(t, 60, key.Expire())

	noExpire := key.NewWithExpire(0)
	assert.Equal(t, 0, noExpire.Expire())
	assert.Equal(t, 60, key.Expire())

	sub := conf.NewWithKeyPrefix("h:")
	assert.Equal(t, "cnt_h:", sub.KeyPrefix())
}

func TestRedisConfParse(t *testing.T) {
	conf := &RedisConf{
		Servers: []*RedisServer{{ID: "a", Host: "127.0.0.1", Port: 6379}},
		Groups:  map[string][]string{"test": {"a"}},
	}
	assert.Nil(t, conf.Parse())
	servers := conf.groups["test"]
	assert.Equal(t, 1, len(servers))

	dup := &RedisConf{
		Servers: []*RedisServer{
			{ID: "a", Host: "127.0.0.1", Port: 6379},
			{ID: "a", Host: "127.0.0.1", Port: 6380},
		},
		Groups: map[string][]string{"test": {"a"}},
	}
	assert.NotNil(t, dup.Parse())

	missing := &RedisConf{
		Servers: []*RedisServer{{ID: "a", Host: "127.0.0.1", Port: 6379}},
		Groups:  map[string][]string{"test": {"b"}},
	}
	assert.NotNil(t, missing.Parse())
}

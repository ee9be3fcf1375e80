package cache

import (
	"fmt"

	c "github.com/d0ngw/quota/common"
	"github.com/gomodule/redigo/redis"
)

// RedisClient redis客户端,按group与key的hash选择Redis实例
type RedisClient struct {
	groups map[string][]*RedisServer
}

// NewRedisClientWithConf create redis client from conf,conf必须已经Parse
func NewRedisClientWithConf(conf *RedisConf) *RedisClient {
	return &RedisClient{groups: conf.groups}
}

// GetGroupServers 取得group对应的所有Redis实例
func (p *RedisClient) GetGroupServers(group string) ([]*RedisServer, error) {
	servers := p.groups[group]
	if len(servers) == 0 {
		return nil, fmt.Errorf("can't find redis group %s", group)
	}
	return servers, nil
}

//按key的hash取得param对应的Redis实例
func (p *RedisClient) getServer(param Param) (*RedisServer, error) {
	if param == nil || param.Key() == "" {
		return nil, fmt.Errorf("invalid param")
	}
	servers := p.groups[param.Group()]
	if len(servers) == 0 {
		return nil, fmt.Errorf("can't find redis group %s", param.Group())
	}
	index := c.Fnv32Hashcode(param.Key()) % len(servers)
	return servers[index], nil
}

// Do 在param对应的Redis实例上执行f
func (p *RedisClient) Do(param Param, f func(conn redis.Conn) (interface{}, error)) (interface{}, error) {
	server, err := p.getServer(param)
	if err != nil {
		return nil, err
	}
	conn, err := server.GetConn()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := conn.Close(); err != nil {
			c.Errorf("close conn err:%v", err)
		}
	}()
	return f(conn)
}

// Eval 在param对应的Redis实例上执行script,script的KEYS[1]为param.Key()
func (p *RedisClient) Eval(param Param, script *redis.Script, args ...interface{}) (interface{}, error) {
	return p.Do(param, func(conn redis.Conn) (interface{}, error) {
		scriptArgs := make([]interface{}, 0, len(args)+1)
		scriptArgs = append(scriptArgs, param.Key())
		scriptArgs = append(scriptArgs, args...)
		return script.Do(conn, scriptArgs...)
	})
}

// Del 删除param对应的key
func (p *RedisClient) Del(param Param) (deleted bool, err error) {
	reply, err := p.Do(param, func(conn redis.Conn) (interface{}, error) {
		return conn.Do("DEL", param.Key())
	})
	count, err := redis.Int64(reply, err)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// SetObject 使用msgpack序列化value并写入param对应的key
func (p *RedisClient) SetObject(param Param, value interface{}) error {
	bytes, err := MsgPackEncodeBytes(value)
	if err != nil {
		return err
	}
	_, err = p.Do(param, func(conn redis.Conn) (interface{}, error) {
		if param.Expire() > 0 {
			return conn.Do("SETEX", param.Key(), param.Expire(), bytes)
		}
		return conn.Do("SET", param.Key(), bytes)
	})
	return err
}

// GetObject 读取param对应的key并使用msgpack反序列化到dest,key不存在时返回false
func (p *RedisClient) GetObject(param Param, dest interface{}) (exist bool, err error) {
	reply, err := p.Do(param, func(conn redis.Conn) (interface{}, error) {
		return conn.Do("GET", param.Key())
	})
	if err != nil {
		return false, err
	}
	if reply == nil {
		return false, nil
	}
	bytes, err := redis.Bytes(reply, err)
	if err != nil {
		return false, err
	}
	if err = MsgPackDecodeBytes(bytes, dest); err != nil {
		return false, err
	}
	return true, nil
}

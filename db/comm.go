// Package db 提供MySQL连接池与事务的封装
package db

import (
	"database/sql"
	"fmt"
)

// DBError 数据库操作错误
type DBError struct {
	Msg string
	Err error
}

func (e *DBError) Error() string {
	return fmt.Sprintf("DBError msg:%s,err:%v", e.Msg, e.Err)
}

func (e *DBError) Unwrap() error {
	return e.Err
}

// NewDBError 构建数据库操作错误
func NewDBError(err error, msg string) *DBError {
	return &DBError{Msg: msg, Err: err}
}

// NewDBErrorf 使用fmt.Sprintf构建
func NewDBErrorf(err error, msgFormat string, args ...interface{}) *DBError {
	return &DBError{Msg: fmt.Sprintf(msgFormat, args...), Err: err}
}

// Pool 数据库连接池
type Pool struct {
	name string
	db   *sql.DB
}

// DB sql.DB
func (p *Pool) DB() *sql.DB {
	return p.db
}

// Name name of pool
func (p *Pool) Name() string {
	return p.name
}

// Close 关闭连接池
func (p *Pool) Close() error {
	return p.db.Close()
}

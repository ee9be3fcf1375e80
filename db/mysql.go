package db

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// NewMySQLPool 构建MySQL数据库连接池
func NewMySQLPool(name string, config *DBConfig) (*Pool, error) {
	if config == nil {
		return nil, NewDBError(nil, "Not found config")
	}

	if len(config.User) == 0 || len(config.URL) == 0 || len(config.Schema) == 0 {
		return nil, NewDBError(nil, "Invalid config")
	}

	charset := config.Charset
	if charset == "" {
		charset = "utf8"
	}

	//设置时间为本地时间,并解析时间
	loc, err := time.LoadLocation("Local")
	if err != nil {
		return nil, NewDBError(err, "Can't load local location")
	}
	connectURL := fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=%s&loc=%s&parseTime=true", config.User, config.Pass, config.URL, config.Schema, charset, url.QueryEscape(loc.String()))
	sqlDB, err := sql.Open("mysql", connectURL)
	if err != nil {
		return nil, NewDBError(err, "Can't open connection")
	}
	sqlDB.SetMaxIdleConns(config.MaxIdle)
	sqlDB.SetMaxOpenConns(config.MaxConn)
	if config.MaxTimeSecond > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(config.MaxTimeSecond) * time.Second)
	}
	return &Pool{name: name, db: sqlDB}, nil
}

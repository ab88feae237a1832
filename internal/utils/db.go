package utils

import (
	"database/sql"

	"globe-notes/internal/config"

	_ "github.com/lib/pq"
)

// OpenPostgres：按配置打开连接池（不做 Ping，由调用方决定是否探活）
func OpenPostgres(c config.Postgres) (*sql.DB, error) {
	db, err := sql.Open("postgres", c.DSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(c.MaxOpen)
	db.SetMaxIdleConns(c.MaxIdle)
	return db, nil
}

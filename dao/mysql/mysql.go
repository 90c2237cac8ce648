package mysql

import (
	_ "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
)

var Db *sqlx.DB

// Init 初始化MySQL连接
// dsn 形如 "user:password@tcp(host:port)/dbname?parseTime=true&loc=Local"
func Init(dsn string) (err error) {
	Db, err = sqlx.Connect("mysql", dsn)
	if err != nil {
		return
	}
	Db.SetMaxOpenConns(32)
	Db.SetMaxIdleConns(16)
	return
}

// Close 关闭MySQL连接
func Close() {
	_ = Db.Close()
}

// Store 聚合所有实体的读写，业务层以窄接口依赖它，便于测试时替换
type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

package store

import (
	"context"

	"github.com/go-redis/redis/v8"
)

var Client *redis.Client

// Init 初始化Redis连接
func Init(addr string) (err error) {
	Client = redis.NewClient(&redis.Options{
		Addr: addr,
	})
	_, err = Client.Ping(context.Background()).Result()
	return err
}

// GetRedis 返回全局 redis 客户端
func GetRedis() *redis.Client {
	return Client
}

// Close 关闭连接
func Close() {
	_ = Client.Close()
}

// 包 utils：外部连接（Postgres、Redis）与自签名证书
package utils

import (
	"globe-notes/internal/config"
	"globe-notes/internal/logger"

	"github.com/redis/go-redis/v9"
)

// OpenRedis：按配置创建客户端；连接在首次命令时建立
func OpenRedis(c config.Redis) *redis.Client {
	logger.L().Debug("redis_env", "addr", c.Addr, "db", c.DB)
	return redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
}

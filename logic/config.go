package logic

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"xhs-creator/models"
)

const billingConfigKey = "billing_config"

// ConfigCache 计费配置的进程内短 TTL 缓存，更新配置时主动失效。
// 服务启动时创建、随服务关闭，不做包级全局，方便多进程部署时换成分布式缓存。
type ConfigCache struct {
	store ConfigStore
	cache *gocache.Cache
}

func NewConfigCache(store ConfigStore, ttl time.Duration) *ConfigCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &ConfigCache{
		store: store,
		cache: gocache.New(ttl, 2*ttl),
	}
}

// Get 读取计费配置，优先命中缓存
func (c *ConfigCache) Get(ctx context.Context) (*models.BillingConfig, error) {
	if v, ok := c.cache.Get(billingConfigKey); ok {
		cfg := v.(models.BillingConfig)
		return &cfg, nil
	}
	cfg, err := c.store.GetBillingConfig(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(billingConfigKey, *cfg)
	return cfg, nil
}

// Update 更新配置并让缓存立即失效
func (c *ConfigCache) Update(ctx context.Context, cfg *models.BillingConfig) error {
	if err := c.store.UpdateBillingConfig(ctx, cfg); err != nil {
		return err
	}
	c.Invalidate()
	return nil
}

// Invalidate 清掉缓存项，下一次 Get 回源
func (c *ConfigCache) Invalidate() {
	c.cache.Delete(billingConfigKey)
}

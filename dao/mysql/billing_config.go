package mysql

import (
	"context"
	"database/sql"

	"xhs-creator/models"
)

// 没有配置记录时的兜底值
var defaultBillingConfig = models.BillingConfig{
	OutlinePower:      10,
	CoverImagePower:   20,
	ContentImagePower: 15,
	FreeUsageLimit:    3,
}

// GetBillingConfig 读取计费配置（单行表），缺失时返回默认值
func (s *Store) GetBillingConfig(ctx context.Context) (*models.BillingConfig, error) {
	cfg := &models.BillingConfig{}
	query := `SELECT outline_power, cover_image_power, content_image_power, free_usage_limit
		FROM t_billing_config WHERE id = 1`
	if err := s.db.GetContext(ctx, cfg, query); err != nil {
		if err == sql.ErrNoRows {
			c := defaultBillingConfig
			return &c, nil
		}
		return nil, err
	}
	return cfg, nil
}

// UpdateBillingConfig 更新计费配置，调用方负责让缓存失效
func (s *Store) UpdateBillingConfig(ctx context.Context, cfg *models.BillingConfig) error {
	query := `INSERT INTO t_billing_config
		(id, outline_power, cover_image_power, content_image_power, free_usage_limit, updated_at)
		VALUES (1, ?, ?, ?, ?, NOW())
		ON DUPLICATE KEY UPDATE
			outline_power = VALUES(outline_power),
			cover_image_power = VALUES(cover_image_power),
			content_image_power = VALUES(content_image_power),
			free_usage_limit = VALUES(free_usage_limit),
			updated_at = NOW()`
	_, err := s.db.ExecContext(ctx, query,
		cfg.OutlinePower, cfg.CoverImagePower, cfg.ContentImagePower, cfg.FreeUsageLimit)
	return err
}

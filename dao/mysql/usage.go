package mysql

import (
	"context"
	"database/sql"
)

// GetFreeUsageCount 用户已消耗的免费额度，没有记录视为 0
func (s *Store) GetFreeUsageCount(ctx context.Context, userID uint64) (int, error) {
	var count int
	query := `SELECT free_usage_count FROM t_user_usage WHERE user_id = ?`
	if err := s.db.GetContext(ctx, &count, query, userID); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil
		}
		return 0, err
	}
	return count, nil
}

// IncrementFreeUsage 消耗一次免费额度。计数只增不减：
// 免费额度一旦发放即视为已消耗，生成失败也不退回免费次数。
func (s *Store) IncrementFreeUsage(ctx context.Context, userID uint64) error {
	query := `INSERT INTO t_user_usage (user_id, free_usage_count, created_at, updated_at)
		VALUES (?, 1, NOW(), NOW())
		ON DUPLICATE KEY UPDATE free_usage_count = free_usage_count + 1, updated_at = NOW()`
	_, err := s.db.ExecContext(ctx, query, userID)
	return err
}

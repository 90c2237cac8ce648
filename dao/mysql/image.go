package mysql

import (
	"context"
	"database/sql"

	"xhs-creator/models"
)

// CreateImage 写入页面图片记录，page_index 在任务内唯一（唯一键约束）
func (s *Store) CreateImage(ctx context.Context, img *models.Image) error {
	query := `INSERT INTO t_images
		(image_id, task_id, page_index, page_type, prompt, image_url, thumbnail_url,
		 status, error_message, retry_count, current_version, power_deducted, power_amount,
		 billing_account_no, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())`
	_, err := s.db.ExecContext(ctx, query,
		img.ImageID, img.TaskID, img.PageIndex, img.PageType, img.Prompt, img.ImageURL,
		img.ThumbnailURL, img.Status, img.ErrorMessage, img.RetryCount, img.CurrentVersion,
		img.PowerDeducted, img.PowerAmount, img.BillingAccountNo)
	return err
}

// GetImage 按 (task_id, page_index) 读取，不存在时返回 (nil, nil)
func (s *Store) GetImage(ctx context.Context, taskID uint64, pageIndex int) (*models.Image, error) {
	img := &models.Image{}
	query := `SELECT image_id, task_id, page_index, page_type, prompt, image_url, thumbnail_url,
		status, error_message, retry_count, current_version, power_deducted, power_amount,
		billing_account_no, created_at, updated_at
		FROM t_images WHERE task_id = ? AND page_index = ?`
	if err := s.db.GetContext(ctx, img, query, taskID, pageIndex); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return img, nil
}

// ListImages 任务下全部图片，按 page_index 升序
func (s *Store) ListImages(ctx context.Context, taskID uint64) ([]models.Image, error) {
	imgs := []models.Image{}
	query := `SELECT image_id, task_id, page_index, page_type, prompt, image_url, thumbnail_url,
		status, error_message, retry_count, current_version, power_deducted, power_amount,
		billing_account_no, created_at, updated_at
		FROM t_images WHERE task_id = ? ORDER BY page_index ASC`
	if err := s.db.SelectContext(ctx, &imgs, query, taskID); err != nil {
		return nil, err
	}
	return imgs, nil
}

// ResetImage 重绘前复位：回到 pending、清空错误信息，current_version 保留
func (s *Store) ResetImage(ctx context.Context, imageID uint64, prompt string) error {
	query := `UPDATE t_images
		SET status = ?, prompt = ?, error_message = '', updated_at = NOW()
		WHERE image_id = ?`
	_, err := s.db.ExecContext(ctx, query, models.ImageStatusPending, prompt, imageID)
	return err
}

// MarkImageGenerating 进入生成中
func (s *Store) MarkImageGenerating(ctx context.Context, imageID uint64) error {
	query := `UPDATE t_images SET status = ?, updated_at = NOW() WHERE image_id = ?`
	_, err := s.db.ExecContext(ctx, query, models.ImageStatusGenerating, imageID)
	return err
}

// SetImageBilling 记录本次生成的扣费标记。
// power_deducted 是"是否欠一笔补偿退款"的唯一事实来源，
// 扣费成功先落这里，生成失败再由 FailImage 清掉。
func (s *Store) SetImageBilling(ctx context.Context, imageID uint64, deducted bool, amount int64, accountNo string) error {
	query := `UPDATE t_images
		SET power_deducted = ?, power_amount = ?, billing_account_no = ?, updated_at = NOW()
		WHERE image_id = ?`
	_, err := s.db.ExecContext(ctx, query, deducted, amount, accountNo, imageID)
	return err
}

// FailImage 单页失败：记录错误并清空扣费标记（积分已回滚），重试计数加一
func (s *Store) FailImage(ctx context.Context, imageID uint64, errMsg string) error {
	query := `UPDATE t_images
		SET status = ?, error_message = ?, power_deducted = 0, power_amount = 0,
		    retry_count = retry_count + 1, updated_at = NOW()
		WHERE image_id = ?`
	_, err := s.db.ExecContext(ctx, query, models.ImageStatusFailed, errMsg, imageID)
	return err
}

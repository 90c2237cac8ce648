package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"xhs-creator/models"
)

// ErrVersionNotFound 目标版本不存在
var ErrVersionNotFound = errors.New("image version not found")

// SaveVersion 原子写入新版本：同一事务内把旧的 is_current 翻下去、插入新版本并置为当前，
// 同时刷新 t_images 的冗余字段。两行翻转必须在一个事务里，
// 否则并发重绘/恢复会破坏"单一当前版本"不变式。
func (s *Store) SaveVersion(ctx context.Context, v *models.ImageVersion) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save version: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx,
		`UPDATE t_image_versions SET is_current = 0 WHERE image_id = ? AND is_current = 1`,
		v.ImageID); err != nil {
		return fmt.Errorf("save version: flip previous: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO t_image_versions
			(version_id, image_id, task_id, page_index, version, image_url, prompt,
			 generated_by, power_amount, is_current, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, NOW())`,
		v.VersionID, v.ImageID, v.TaskID, v.PageIndex, v.Version, v.ImageURL, v.Prompt,
		v.GeneratedBy, v.PowerAmount); err != nil {
		return fmt.Errorf("save version: insert: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE t_images
			SET image_url = ?, thumbnail_url = ?, current_version = ?, status = ?,
			    prompt = ?, error_message = '', updated_at = NOW()
			WHERE image_id = ?`,
		v.ImageURL, v.ImageURL, v.Version, models.ImageStatusCompleted, v.Prompt, v.ImageID); err != nil {
		return fmt.Errorf("save version: update image: %w", err)
	}
	return tx.Commit()
}

// ListVersions 某一页的全部历史版本，新的在前
func (s *Store) ListVersions(ctx context.Context, taskID uint64, pageIndex int) ([]models.ImageVersion, error) {
	versions := []models.ImageVersion{}
	query := `SELECT version_id, image_id, task_id, page_index, version, image_url, prompt,
		generated_by, power_amount, is_current, created_at
		FROM t_image_versions WHERE task_id = ? AND page_index = ?
		ORDER BY version DESC`
	if err := s.db.SelectContext(ctx, &versions, query, taskID, pageIndex); err != nil {
		return nil, err
	}
	return versions, nil
}

// GetVersion 按版本 ID 读取单条
func (s *Store) GetVersion(ctx context.Context, versionID uint64) (*models.ImageVersion, error) {
	v := &models.ImageVersion{}
	query := `SELECT version_id, image_id, task_id, page_index, version, image_url, prompt,
		generated_by, power_amount, is_current, created_at
		FROM t_image_versions WHERE version_id = ?`
	if err := s.db.GetContext(ctx, v, query, versionID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrVersionNotFound
		}
		return nil, err
	}
	return v, nil
}

// RestoreVersion 恢复历史版本：只移动 is_current 指针并回写图片冗余字段，
// 不产生新版本、不走计费。整个恢复在一个事务内完成。
func (s *Store) RestoreVersion(ctx context.Context, taskID uint64, pageIndex, version int) (*models.ImageVersion, error) {
	target := &models.ImageVersion{}
	query := `SELECT version_id, image_id, task_id, page_index, version, image_url, prompt,
		generated_by, power_amount, is_current, created_at
		FROM t_image_versions WHERE task_id = ? AND page_index = ? AND version = ?`
	if err := s.db.GetContext(ctx, target, query, taskID, pageIndex, version); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrVersionNotFound
		}
		return nil, err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("restore version: begin: %w", err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx,
		`UPDATE t_image_versions SET is_current = 0 WHERE image_id = ? AND is_current = 1`,
		target.ImageID); err != nil {
		return nil, fmt.Errorf("restore version: flip previous: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE t_image_versions SET is_current = 1 WHERE version_id = ?`,
		target.VersionID); err != nil {
		return nil, fmt.Errorf("restore version: flip target: %w", err)
	}
	if _, err = tx.ExecContext(ctx,
		`UPDATE t_images
			SET image_url = ?, thumbnail_url = ?, current_version = ?, status = ?, updated_at = NOW()
			WHERE image_id = ?`,
		target.ImageURL, target.ImageURL, target.Version, models.ImageStatusCompleted,
		target.ImageID); err != nil {
		return nil, fmt.Errorf("restore version: update image: %w", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, err
	}
	target.IsCurrent = true
	return target, nil
}

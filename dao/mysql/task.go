package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"xhs-creator/models"

	"github.com/jmoiron/sqlx"
)

// CreateTask 写入新任务
func (s *Store) CreateTask(ctx context.Context, t *models.Task) error {
	pages, err := json.Marshal(t.Pages)
	if err != nil {
		return err
	}
	userImages, err := json.Marshal(t.UserImages)
	if err != nil {
		return err
	}
	query := `INSERT INTO t_tasks
		(task_id, user_id, topic, outline, pages, status, user_images, cover_image_url,
		 total_pages, generated_pages, error_message, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NOW(), NOW())`
	_, err = s.db.ExecContext(ctx, query,
		t.TaskID, t.UserID, t.Topic, t.Outline, string(pages), t.Status, string(userImages),
		t.CoverImageURL, t.TotalPages, t.GeneratedPages, t.ErrorMessage)
	return err
}

// GetTask 读取任务，不存在时返回 (nil, nil)
func (s *Store) GetTask(ctx context.Context, taskID uint64) (*models.Task, error) {
	t := &models.Task{}
	query := `SELECT task_id, user_id, topic, outline, pages, status, user_images,
		cover_image_url, total_pages, generated_pages, error_message, created_at, updated_at
		FROM t_tasks WHERE task_id = ?`
	if err := s.db.GetContext(ctx, t, query, taskID); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	if t.PagesJSON != "" {
		if err := json.Unmarshal([]byte(t.PagesJSON), &t.Pages); err != nil {
			return nil, fmt.Errorf("task %d: bad pages json: %w", taskID, err)
		}
	}
	if t.UserImagesJSON != "" {
		if err := json.Unmarshal([]byte(t.UserImagesJSON), &t.UserImages); err != nil {
			return nil, fmt.Errorf("task %d: bad user_images json: %w", taskID, err)
		}
	}
	return t, nil
}

// UpdateTaskStatus 状态机迁移落库，errMsg 仅在失败态有意义
func (s *Store) UpdateTaskStatus(ctx context.Context, taskID uint64, status, errMsg string) error {
	query := `UPDATE t_tasks SET status = ?, error_message = ?, updated_at = NOW() WHERE task_id = ?`
	_, err := s.db.ExecContext(ctx, query, status, errMsg, taskID)
	return err
}

// SaveTaskOutline 大纲生成完成：写入大纲与页面并迁移到 outline_ready
func (s *Store) SaveTaskOutline(ctx context.Context, taskID uint64, outline string, pages []models.Page) error {
	b, err := json.Marshal(pages)
	if err != nil {
		return err
	}
	query := `UPDATE t_tasks
		SET outline = ?, pages = ?, total_pages = ?, status = ?, error_message = '', updated_at = NOW()
		WHERE task_id = ?`
	_, err = s.db.ExecContext(ctx, query, outline, string(b), len(pages), models.TaskStatusOutlineReady, taskID)
	return err
}

// SetTaskCover 记录封面图地址
func (s *Store) SetTaskCover(ctx context.Context, taskID uint64, coverURL string) error {
	query := `UPDATE t_tasks SET cover_image_url = ?, updated_at = NOW() WHERE task_id = ?`
	_, err := s.db.ExecContext(ctx, query, coverURL, taskID)
	return err
}

// IncrementGeneratedPages generated_pages 单调递增
func (s *Store) IncrementGeneratedPages(ctx context.Context, taskID uint64) error {
	query := `UPDATE t_tasks SET generated_pages = generated_pages + 1, updated_at = NOW() WHERE task_id = ?`
	_, err := s.db.ExecContext(ctx, query, taskID)
	return err
}

// ResetGeneratedPages 批量重绘开始前清零计数，total_pages 保持不变
func (s *Store) ResetGeneratedPages(ctx context.Context, taskID uint64) error {
	query := `UPDATE t_tasks SET generated_pages = 0, updated_at = NOW() WHERE task_id = ?`
	_, err := s.db.ExecContext(ctx, query, taskID)
	return err
}

// FailStuckTasks 将超时卡在 generating_images 的任务标记为失败，返回处理条数
func (s *Store) FailStuckTasks(ctx context.Context, before time.Time, msg string) (int64, error) {
	query := `UPDATE t_tasks SET status = ?, error_message = ?, updated_at = NOW()
		WHERE status = ? AND updated_at < ?`
	res, err := s.db.ExecContext(ctx, query, models.TaskStatusFailed, msg, models.TaskStatusGeneratingImages, before)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FailTasksInStatuses 进程启动时回收孤儿任务：处于给定状态的一律置为失败
func (s *Store) FailTasksInStatuses(ctx context.Context, statuses []string, msg string) (int64, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(
		`UPDATE t_tasks SET status = ?, error_message = ?, updated_at = NOW() WHERE status IN (?)`,
		models.TaskStatusFailed, msg, statuses)
	if err != nil {
		return 0, err
	}
	res, err := s.db.ExecContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListTasks 按用户查询任务历史，游标为上一页最后一条的 task_id（snowflake 时间有序）
func (s *Store) ListTasks(ctx context.Context, userID uint64, cursor string, pageSize int) (*models.TaskHistoryPage, error) {
	if pageSize <= 0 || pageSize > 50 {
		pageSize = 20
	}
	var lastID uint64 = ^uint64(0) >> 1 // 首页从最大 ID 往前翻
	if cursor != "" {
		id, err := strconv.ParseUint(cursor, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad cursor %q: %w", cursor, err)
		}
		lastID = id
	}
	records := []models.TaskRecord{}
	query := `SELECT task_id, topic, status, cover_image_url, total_pages, created_at
		FROM t_tasks WHERE user_id = ? AND task_id < ?
		ORDER BY task_id DESC LIMIT ?`
	// 多取一条判断是否还有下一页
	if err := s.db.SelectContext(ctx, &records, query, userID, lastID, pageSize+1); err != nil {
		return nil, err
	}
	page := &models.TaskHistoryPage{PageSize: pageSize}
	if len(records) > pageSize {
		page.HasMore = true
		records = records[:pageSize]
		page.NextCursor = strconv.FormatUint(records[len(records)-1].TaskID, 10)
	}
	page.Tasks = records
	return page, nil
}

// DeleteTask 级联删除任务与其图片、版本历史
func (s *Store) DeleteTask(ctx context.Context, taskID uint64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("delete task %d: begin: %w", taskID, err)
	}
	defer tx.Rollback()

	if _, err = tx.ExecContext(ctx, `DELETE FROM t_image_versions WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("delete task %d versions: %w", taskID, err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM t_images WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("delete task %d images: %w", taskID, err)
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM t_tasks WHERE task_id = ?`, taskID); err != nil {
		return fmt.Errorf("delete task %d: %w", taskID, err)
	}
	return tx.Commit()
}

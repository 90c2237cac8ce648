package models

import "time"

// 任务状态机：pending → generating_outline → outline_ready → generating_images → completed
// 任意状态遇到不可恢复错误都可转入 failed。状态只能沿着状态机迁移，不允许跳跃。
const (
	TaskStatusPending           = "pending"
	TaskStatusGeneratingOutline = "generating_outline"
	TaskStatusOutlineReady      = "outline_ready"
	TaskStatusGeneratingImages  = "generating_images"
	TaskStatusCompleted         = "completed"
	TaskStatusFailed            = "failed"
)

// 页面类型
const (
	PageTypeCover   = "cover"
	PageTypeContent = "content"
	PageTypeSummary = "summary"
)

// Page 大纲拆分出的一页，每一页最终对应一张图片
type Page struct {
	Index   int    `json:"index"`
	Type    string `json:"type"` // cover/content/summary
	Content string `json:"content"`
}

// Task 一次 主题 → 大纲 → 图片组 的端到端生成任务
// 只允许编排层通过状态机迁移来修改
type Task struct {
	TaskID         uint64    `db:"task_id" json:"task_id"`
	UserID         uint64    `db:"user_id" json:"user_id"`
	Topic          string    `db:"topic" json:"topic"`
	Outline        string    `db:"outline" json:"outline"`
	PagesJSON      string    `db:"pages" json:"-"` // Pages 的 JSON 序列化，入库字段
	Pages          []Page    `db:"-" json:"pages"`
	Status         string    `db:"status" json:"status"`
	UserImagesJSON string    `db:"user_images" json:"-"` // 用户上传的参考图 URL 列表
	UserImages     []string  `db:"-" json:"user_images"`
	CoverImageURL  string    `db:"cover_image_url" json:"cover_image_url"`
	TotalPages     int       `db:"total_pages" json:"total_pages"`
	GeneratedPages int       `db:"generated_pages" json:"generated_pages"` // 单调递增
	ErrorMessage   string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// TaskRecord 任务历史列表里的一条记录
type TaskRecord struct {
	TaskID        uint64    `db:"task_id" json:"task_id"`
	Topic         string    `db:"topic" json:"topic"`
	Status        string    `db:"status" json:"status"`
	CoverImageURL string    `db:"cover_image_url" json:"cover_image_url"`
	TotalPages    int       `db:"total_pages" json:"total_pages"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// TaskHistoryPage 游标分页结果
type TaskHistoryPage struct {
	Tasks      []TaskRecord `json:"tasks"`
	NextCursor string       `json:"next_cursor"` // 空表示没有更多数据
	HasMore    bool         `json:"has_more"`
	PageSize   int          `json:"page_size"`
}

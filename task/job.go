package task

import "xhs-creator/models"

// 任务模式
const (
	JobModeBatch  = "batch"  // 批量生成整组页面
	JobModeSingle = "single" // 单页重新生成
)

// GenerateJob 经 RabbitMQ 投递给 worker 的图片生成任务
type GenerateJob struct {
	Mode         string        `json:"mode"`
	TaskID       uint64        `json:"task_id"`
	UserID       uint64        `json:"user_id"`
	Pages        []models.Page `json:"pages,omitempty"`
	FullOutline  string        `json:"full_outline,omitempty"`
	IsRegenerate bool          `json:"is_regenerate,omitempty"`
	PageIndex    int           `json:"page_index,omitempty"` // single 模式使用
	Prompt       string        `json:"prompt,omitempty"`     // single 模式可覆盖提示词
	CreatedAt    int64         `json:"created_at,omitempty"`
}

package models

import "time"

// 图片状态
const (
	ImageStatusPending    = "pending"
	ImageStatusGenerating = "generating"
	ImageStatusCompleted  = "completed"
	ImageStatusFailed     = "failed"
)

// Image 任务中某一页对应的图片记录，page_index 在任务内唯一。
//
// 计费不变式：PowerDeducted=true 当且仅当 PowerAmount>0 且存在对应的扣费流水；
// 任何一次操作结束（成功或失败）之后都不允许留下未对账的扣费 ——
// 每笔扣费要么随图片状态一起提交，要么被回滚。
type Image struct {
	ImageID          uint64    `db:"image_id" json:"image_id"`
	TaskID           uint64    `db:"task_id" json:"task_id"`
	PageIndex        int       `db:"page_index" json:"page_index"`
	PageType         string    `db:"page_type" json:"page_type"`
	Prompt           string    `db:"prompt" json:"prompt"`
	ImageURL         string    `db:"image_url" json:"image_url"`
	ThumbnailURL     string    `db:"thumbnail_url" json:"thumbnail_url"`
	Status           string    `db:"status" json:"status"`
	ErrorMessage     string    `db:"error_message" json:"error_message,omitempty"`
	RetryCount       int       `db:"retry_count" json:"retry_count"`
	CurrentVersion   int       `db:"current_version" json:"current_version"` // >=1
	PowerDeducted    bool      `db:"power_deducted" json:"power_deducted"`
	PowerAmount      int64     `db:"power_amount" json:"power_amount"`
	BillingAccountNo string    `db:"billing_account_no" json:"billing_account_no"` // 关联扣费流水号
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time `db:"updated_at" json:"updated_at"`
}

package models

import "time"

// 版本来源
const (
	GeneratedByInitial         = "initial"
	GeneratedBySingleRegen     = "single-regenerate"
	GeneratedByBatchRegenerate = "batch-regenerate"
)

// ImageVersion 图片的一个历史版本。版本号在同一 image_id 内单调递增，从 1 开始。
//
// 不变式：同一 image_id 下任意时刻有且仅有一条 is_current=true；
// 版本一经写入不再修改，恢复版本只移动指针，不改历史。
type ImageVersion struct {
	VersionID   uint64    `db:"version_id" json:"version_id"`
	ImageID     uint64    `db:"image_id" json:"image_id"`
	TaskID      uint64    `db:"task_id" json:"task_id"`
	PageIndex   int       `db:"page_index" json:"page_index"`
	Version     int       `db:"version" json:"version"`
	ImageURL    string    `db:"image_url" json:"image_url"`
	Prompt      string    `db:"prompt" json:"prompt"`
	GeneratedBy string    `db:"generated_by" json:"generated_by"` // initial/single-regenerate/batch-regenerate
	PowerAmount int64     `db:"power_amount" json:"power_amount"`
	IsCurrent   bool      `db:"is_current" json:"is_current"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

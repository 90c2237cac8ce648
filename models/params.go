package models

// OutlineForm 生成大纲请求
type OutlineForm struct {
	UserID     uint64   `json:"user_id" binding:"required"`
	Topic      string   `json:"topic" binding:"required,max=200"`
	UserImages []string `json:"user_images" binding:"omitempty,max=9,dive,url"`
}

// GenerateImagesForm 批量生成图片请求
type GenerateImagesForm struct {
	UserID       uint64 `json:"user_id" binding:"required"`
	TaskID       uint64 `json:"task_id" binding:"required"`
	Pages        []Page `json:"pages" binding:"required,min=1,max=20"`
	FullOutline  string `json:"full_outline"`
	IsRegenerate bool   `json:"is_regenerate"`
}

// RegenerateImageForm 单页重新生成请求
type RegenerateImageForm struct {
	UserID    uint64 `json:"user_id" binding:"required"`
	TaskID    uint64 `json:"task_id" binding:"required"`
	PageIndex *int   `json:"page_index" binding:"required,min=0"`
	Prompt    string `json:"prompt"` // 可选，覆盖默认提示词
}

// RestoreVersionForm 恢复历史版本请求
type RestoreVersionForm struct {
	TaskID    uint64 `json:"task_id" binding:"required"`
	PageIndex *int   `json:"page_index" binding:"required,min=0"`
	Version   int    `json:"version" binding:"required,min=1"`
}

// BillingConfigForm 更新计费配置请求
type BillingConfigForm struct {
	OutlinePower      int64 `json:"outline_power" binding:"required,min=0"`
	CoverImagePower   int64 `json:"cover_image_power" binding:"required,min=0"`
	ContentImagePower int64 `json:"content_image_power" binding:"required,min=0"`
	FreeUsageLimit    int   `json:"free_usage_limit" binding:"required,min=0"`
}

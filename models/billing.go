package models

import "time"

// 计费业务类型
const (
	BizTypeOutline = "outline"
	BizTypeImage   = "image"
)

// 流水方向
const (
	TxTypeDebit  = "debit"
	TxTypeCredit = "credit"
)

// UserUsage 用户免费额度使用记录。
//
// 不变式：FreeUsageCount 单调递增，永不回退 ——
// 免费额度一旦发放即视为已消耗，失败也不退回免费次数（只退回积分）。
type UserUsage struct {
	UserID         uint64    `db:"user_id" json:"user_id"`
	FreeUsageCount int       `db:"free_usage_count" json:"free_usage_count"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

// BillingConfig 计费配置，进程内短 TTL 缓存，更新时失效
type BillingConfig struct {
	OutlinePower      int64 `db:"outline_power" json:"outline_power"`
	CoverImagePower   int64 `db:"cover_image_power" json:"cover_image_power"`
	ContentImagePower int64 `db:"content_image_power" json:"content_image_power"`
	FreeUsageLimit    int   `db:"free_usage_limit" json:"free_usage_limit"`
}

// TxMeta 积分流水的业务上下文，随 debit/credit 一起落库做审计
type TxMeta struct {
	BizType   string `json:"biz_type"`  // outline/image
	PageType  string `json:"page_type"` // cover/content/summary，大纲计费时为空
	TaskID    uint64 `json:"task_id"`
	PageIndex int    `json:"page_index"`
	Remark    string `json:"remark"`
}

// PowerTransaction 积分流水，正向扣费与补偿退款都会留痕
type PowerTransaction struct {
	AccountNo string    `db:"account_no" json:"account_no"` // uuid，Image.BillingAccountNo 引用它
	UserID    uint64    `db:"user_id" json:"user_id"`
	TxType    string    `db:"tx_type" json:"tx_type"` // debit/credit
	Amount    int64     `db:"amount" json:"amount"`
	BizType   string    `db:"biz_type" json:"biz_type"`
	PageType  string    `db:"page_type" json:"page_type"`
	TaskID    uint64    `db:"task_id" json:"task_id"`
	PageIndex int       `db:"page_index" json:"page_index"`
	Remark    string    `db:"remark" json:"remark"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

package logic

import (
	"context"
	"time"

	"xhs-creator/models"
	"xhs-creator/pkg/generator"
	"xhs-creator/pkg/sse"
)

// 业务层以窄接口依赖存储与外部协作方，dao/mysql.Store 实现其中的持久化接口，
// 测试里用内存假实现替换。

// TaskStore 任务读写
type TaskStore interface {
	CreateTask(ctx context.Context, t *models.Task) error
	GetTask(ctx context.Context, taskID uint64) (*models.Task, error)
	UpdateTaskStatus(ctx context.Context, taskID uint64, status, errMsg string) error
	SaveTaskOutline(ctx context.Context, taskID uint64, outline string, pages []models.Page) error
	SetTaskCover(ctx context.Context, taskID uint64, coverURL string) error
	IncrementGeneratedPages(ctx context.Context, taskID uint64) error
	ResetGeneratedPages(ctx context.Context, taskID uint64) error
}

// RecoveryStore 超时与孤儿任务回收
type RecoveryStore interface {
	FailStuckTasks(ctx context.Context, before time.Time, msg string) (int64, error)
	FailTasksInStatuses(ctx context.Context, statuses []string, msg string) (int64, error)
}

// ImageStore 图片记录读写
type ImageStore interface {
	CreateImage(ctx context.Context, img *models.Image) error
	GetImage(ctx context.Context, taskID uint64, pageIndex int) (*models.Image, error)
	ListImages(ctx context.Context, taskID uint64) ([]models.Image, error)
	ResetImage(ctx context.Context, imageID uint64, prompt string) error
	MarkImageGenerating(ctx context.Context, imageID uint64) error
	SetImageBilling(ctx context.Context, imageID uint64, deducted bool, amount int64, accountNo string) error
	FailImage(ctx context.Context, imageID uint64, errMsg string) error
}

// VersionStore 版本历史读写，SaveVersion/RestoreVersion 必须原子完成两行翻转
type VersionStore interface {
	SaveVersion(ctx context.Context, v *models.ImageVersion) error
	ListVersions(ctx context.Context, taskID uint64, pageIndex int) ([]models.ImageVersion, error)
	GetVersion(ctx context.Context, versionID uint64) (*models.ImageVersion, error)
	RestoreVersion(ctx context.Context, taskID uint64, pageIndex, version int) (*models.ImageVersion, error)
}

// UsageStore 免费额度计数
type UsageStore interface {
	GetFreeUsageCount(ctx context.Context, userID uint64) (int, error)
	IncrementFreeUsage(ctx context.Context, userID uint64) error
}

// Wallet 外部钱包服务的最小接口
type Wallet interface {
	GetBalance(ctx context.Context, userID uint64) (int64, error)
	Debit(ctx context.Context, userID uint64, amount int64, meta models.TxMeta) (accountNo string, err error)
	Credit(ctx context.Context, userID uint64, amount int64, meta models.TxMeta) (accountNo string, err error)
}

// ConfigStore 计费配置持久化
type ConfigStore interface {
	GetBillingConfig(ctx context.Context) (*models.BillingConfig, error)
	UpdateBillingConfig(ctx context.Context, cfg *models.BillingConfig) error
}

// ModelRegistry 模型/服务商注册表
type ModelRegistry interface {
	generator.Registry
	GetActiveModelID(ctx context.Context) (string, error)
}

// EventSink 进度事件出口，sse.Hub 实现它；发布为 fire-and-forget
type EventSink interface {
	Publish(topic string, ev sse.Event)
}

// ProgressStore 服务端权威进度快照
type ProgressStore interface {
	InitProgress(ctx context.Context, taskID uint64, total int) error
	SetStage(ctx context.Context, taskID uint64, stage string, current, total int) error
	SetPageStatus(ctx context.Context, taskID uint64, pageIndex int, status, imageURL, errMsg string) error
	GetProgress(ctx context.Context, taskID uint64) (*models.TaskProgress, error)
	ClearProgress(ctx context.Context, taskID uint64) error
}

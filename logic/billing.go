package logic

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"xhs-creator/dao/mysql"
	"xhs-creator/models"
)

// ConsumeResult 一次计费单元的消耗结果
type ConsumeResult struct {
	IsFree        bool   `json:"is_free"`
	PowerDeducted int64  `json:"power_deducted"` // 免费消耗时为 0
	AccountNo     string `json:"account_no"`     // 扣费流水号，免费消耗时为空
}

// UsageInfo 用户额度与余额概览
type UsageInfo struct {
	UserID         uint64 `json:"user_id"`
	FreeUsageCount int    `json:"free_usage_count"`
	FreeUsageLimit int    `json:"free_usage_limit"`
	PowerBalance   int64  `json:"power_balance"`
}

// BillingService 积分账本：免费额度优先，用完后走外部钱包扣费。
//
// 幂等约定（供计费包装器使用）：调用方先看记录上的 powerDeducted 标记，
// 为 false 才扣费并置位 → 执行操作 → 失败时回滚积分（powerAmount>0 时）
// 并清掉标记；成功则保留标记并记录版本。这保证单次操作至多扣费一次、
// 失败恰好补偿一次，批次内的单项重试也安全。
type BillingService struct {
	usage  UsageStore
	wallet Wallet
	config *ConfigCache
}

func NewBillingService(usage UsageStore, wallet Wallet, config *ConfigCache) *BillingService {
	return &BillingService{usage: usage, wallet: wallet, config: config}
}

// HasFreeUsage 免费额度是否还可用。
// freeUsageCount < freeUsageLimit 只是消耗资格判断，不是硬上限：
// 额度一旦发放就永久记为已消耗。
func (b *BillingService) HasFreeUsage(ctx context.Context, userID uint64) (bool, error) {
	cfg, err := b.config.Get(ctx)
	if err != nil {
		return false, err
	}
	count, err := b.usage.GetFreeUsageCount(ctx, userID)
	if err != nil {
		return false, err
	}
	return count < cfg.FreeUsageLimit, nil
}

// HasSufficientBalance 校验能否支付 requiredPower：
// 免费额度可用直接放行，否则查外部钱包余额
func (b *BillingService) HasSufficientBalance(ctx context.Context, userID uint64, requiredPower int64) (bool, error) {
	free, err := b.HasFreeUsage(ctx, userID)
	if err != nil {
		return false, err
	}
	if free {
		return true, nil
	}
	balance, err := b.wallet.GetBalance(ctx, userID)
	if err != nil {
		return false, err
	}
	return balance >= requiredPower, nil
}

// CostFor 按业务类型/页面类型取计费档位
func (b *BillingService) CostFor(ctx context.Context, bizType, pageType string) (int64, error) {
	cfg, err := b.config.Get(ctx)
	if err != nil {
		return 0, err
	}
	if bizType == models.BizTypeOutline {
		return cfg.OutlinePower, nil
	}
	if pageType == models.PageTypeCover {
		return cfg.CoverImagePower, nil
	}
	return cfg.ContentImagePower, nil
}

// TotalCost 一个批次的总费用，用于生成前的余额校验
func (b *BillingService) TotalCost(ctx context.Context, pages []models.Page) (int64, error) {
	var total int64
	for _, p := range pages {
		cost, err := b.CostFor(ctx, models.BizTypeImage, p.Type)
		if err != nil {
			return 0, err
		}
		total += cost
	}
	return total, nil
}

// Consume 消耗一个计费单元。免费额度可用时记一次免费消耗、不发生外部扣费；
// 否则按档位扣外部钱包并返回流水号。
func (b *BillingService) Consume(ctx context.Context, userID uint64, bizType, pageType string, meta models.TxMeta) (*ConsumeResult, error) {
	free, err := b.HasFreeUsage(ctx, userID)
	if err != nil {
		return nil, err
	}
	if free {
		if err := b.usage.IncrementFreeUsage(ctx, userID); err != nil {
			return nil, fmt.Errorf("consume free usage: %w", err)
		}
		return &ConsumeResult{IsFree: true}, nil
	}

	amount, err := b.CostFor(ctx, bizType, pageType)
	if err != nil {
		return nil, err
	}
	if amount == 0 {
		return &ConsumeResult{IsFree: false}, nil
	}
	meta.BizType = bizType
	meta.PageType = pageType
	accountNo, err := b.wallet.Debit(ctx, userID, amount, meta)
	if err != nil {
		if errors.Is(err, mysql.ErrInsufficientPower) {
			return nil, ErrInsufficientBalance
		}
		return nil, fmt.Errorf("debit power: %w", err)
	}
	return &ConsumeResult{PowerDeducted: amount, AccountNo: accountNo}, nil
}

// RollbackPower 补偿退款。回滚失败只记日志不向上冒泡，避免盖掉原始错误。
func (b *BillingService) RollbackPower(ctx context.Context, userID uint64, amount int64, meta models.TxMeta) {
	if amount <= 0 {
		return
	}
	meta.Remark = "生成失败补偿退款"
	if _, err := b.wallet.Credit(ctx, userID, amount, meta); err != nil {
		zap.L().Error("积分回滚失败",
			zap.Uint64("user_id", userID),
			zap.Int64("amount", amount),
			zap.Uint64("task_id", meta.TaskID),
			zap.Int("page_index", meta.PageIndex),
			zap.Error(err))
	}
}

// GetUsage 额度与余额概览
func (b *BillingService) GetUsage(ctx context.Context, userID uint64) (*UsageInfo, error) {
	cfg, err := b.config.Get(ctx)
	if err != nil {
		return nil, err
	}
	count, err := b.usage.GetFreeUsageCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	balance, err := b.wallet.GetBalance(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &UsageInfo{
		UserID:         userID,
		FreeUsageCount: count,
		FreeUsageLimit: cfg.FreeUsageLimit,
		PowerBalance:   balance,
	}, nil
}

package controller

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"xhs-creator/models"
)

// UsageHandler 查询用户免费额度与积分余额
// @Summary 用量查询
// @Tags Billing
// @Produce json
// @Param user_id path string true "用户 ID"
// @Success 200 {object} ResponseData "免费额度使用情况与积分余额"
// @Router /usage/{user_id} [get]
func (h *Handlers) UsageHandler(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Param("user_id"), 10, 64)
	if err != nil {
		ResponseError(c, CodeInvalidParams)
		return
	}
	info, err := h.billing.GetUsage(c.Request.Context(), userID)
	if err != nil {
		zap.L().Error("get usage failed", zap.Uint64("user_id", userID), zap.Error(err))
		ResponseError(c, CodeServerBusy)
		return
	}
	ResponseSuccess(c, info)
}

// UpdateBillingConfigHandler 更新计费配置
// @Summary 更新计费配置
// @Description 更新各业务的积分单价与免费额度，立即失效进程内缓存
// @Tags Billing
// @Accept json
// @Produce json
// @Param request body models.BillingConfigForm true "计费配置"
// @Success 200 {object} ResponseData
// @Router /billing/config [put]
func (h *Handlers) UpdateBillingConfigHandler(c *gin.Context) {
	var fo models.BillingConfigForm
	if err := c.ShouldBindJSON(&fo); err != nil {
		zap.L().Error("UpdateBillingConfig with invalid param", zap.Error(err))
		handleBindError(c, err)
		return
	}

	cfg := &models.BillingConfig{
		OutlinePower:      fo.OutlinePower,
		CoverImagePower:   fo.CoverImagePower,
		ContentImagePower: fo.ContentImagePower,
		FreeUsageLimit:    fo.FreeUsageLimit,
	}
	if err := h.config.Update(c.Request.Context(), cfg); err != nil {
		zap.L().Error("update billing config failed", zap.Error(err))
		ResponseError(c, CodeServerBusy)
		return
	}
	ResponseSuccess(c, cfg)
}

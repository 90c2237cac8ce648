package controller

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"xhs-creator/models"
	"xhs-creator/util"
)

// GenerateOutlineHandler 根据主题生成大纲
// @Summary 生成大纲
// @Description 根据主题文本生成分页大纲，先扣费后生成，失败自动退回积分
// @Tags Outline
// @Accept json
// @Produce json
// @Param request body models.OutlineForm true "大纲请求（topic 必填，可附参考图）"
// @Success 200 {object} ResponseData "返回任务与分页后的大纲"
// @Failure 200 {object} ResponseData "余额不足或生成服务不可用"
// @Router /outline [post]
func (h *Handlers) GenerateOutlineHandler(c *gin.Context) {
	var fo models.OutlineForm
	if err := c.ShouldBindJSON(&fo); err != nil {
		zap.L().Error("GenerateOutline with invalid param", zap.Error(err))
		handleBindError(c, err)
		return
	}
	if err := util.ValidateReferenceImages(fo.UserImages); err != nil {
		ResponseErrorWithMsg(c, CodeInvalidParams, err.Error())
		return
	}

	t, err := h.outline.GenerateOutline(c.Request.Context(), &fo)
	if err != nil {
		zap.L().Error("logic.GenerateOutline failed",
			zap.Uint64("user_id", fo.UserID),
			zap.Error(err))
		handleLogicError(c, err)
		return
	}
	ResponseSuccess(c, t)
}

package controller

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"xhs-creator/dao/mysql"
	"xhs-creator/models"
)

// ListVersionsHandler 某一页的历史版本列表
// @Summary 版本列表
// @Description 返回指定页面的全部历史版本，新版本在前，含当前版本标记
// @Tags Version
// @Produce json
// @Param task_id path string true "任务 ID"
// @Param page_index path int true "页码"
// @Success 200 {object} ResponseData "版本列表"
// @Router /tasks/{task_id}/versions/{page_index} [get]
func (h *Handlers) ListVersionsHandler(c *gin.Context) {
	taskID, err := strconv.ParseUint(c.Param("task_id"), 10, 64)
	if err != nil {
		ResponseError(c, CodeInvalidParams)
		return
	}
	pageIndex, err := strconv.Atoi(c.Param("page_index"))
	if err != nil || pageIndex < 0 {
		ResponseError(c, CodeInvalidParams)
		return
	}

	versions, err := h.versions.ListVersions(c.Request.Context(), taskID, pageIndex)
	if err != nil {
		zap.L().Error("list versions failed",
			zap.Uint64("task_id", taskID),
			zap.Int("page_index", pageIndex),
			zap.Error(err))
		handleLogicError(c, err)
		return
	}
	ResponseSuccess(c, gin.H{"versions": versions})
}

// GetVersionHandler 单条版本详情
// @Summary 版本详情
// @Description 按版本 ID 返回单条版本记录
// @Tags Version
// @Produce json
// @Param version_id path string true "版本 ID"
// @Success 200 {object} ResponseData "版本详情"
// @Router /versions/{version_id} [get]
func (h *Handlers) GetVersionHandler(c *gin.Context) {
	versionID, err := strconv.ParseUint(c.Param("version_id"), 10, 64)
	if err != nil {
		ResponseError(c, CodeInvalidParams)
		return
	}

	v, err := h.versions.GetVersion(c.Request.Context(), versionID)
	if err != nil {
		if errors.Is(err, mysql.ErrVersionNotFound) {
			ResponseError(c, CodeVersionNotExist)
			return
		}
		zap.L().Error("get version failed", zap.Uint64("version_id", versionID), zap.Error(err))
		handleLogicError(c, err)
		return
	}
	ResponseSuccess(c, v)
}

// RestoreVersionHandler 恢复到历史版本
// @Summary 恢复历史版本
// @Description 把当前版本指针移动到指定历史版本，不产生新版本也不计费
// @Tags Version
// @Accept json
// @Produce json
// @Param request body models.RestoreVersionForm true "恢复请求"
// @Success 200 {object} ResponseData "恢复后的版本"
// @Router /versions/restore [post]
func (h *Handlers) RestoreVersionHandler(c *gin.Context) {
	var fo models.RestoreVersionForm
	if err := c.ShouldBindJSON(&fo); err != nil {
		zap.L().Error("RestoreVersion with invalid param", zap.Error(err))
		handleBindError(c, err)
		return
	}

	restored, err := h.versions.RestoreVersion(c.Request.Context(), fo.TaskID, *fo.PageIndex, fo.Version)
	if err != nil {
		zap.L().Error("restore version failed",
			zap.Uint64("task_id", fo.TaskID),
			zap.Int("version", fo.Version),
			zap.Error(err))
		if errors.Is(err, mysql.ErrVersionNotFound) {
			ResponseError(c, CodeVersionNotExist)
			return
		}
		handleLogicError(c, err)
		return
	}
	ResponseSuccess(c, restored)
}

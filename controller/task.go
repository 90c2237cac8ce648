package controller

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultPageSize = 10
	maxPageSize     = 50
)

// ListTasksHandler 任务历史列表
// @Summary 任务列表
// @Description 游标分页，按创建时间倒序；next_cursor 为空表示没有更多数据
// @Tags Task
// @Produce json
// @Param user_id query string true "用户 ID"
// @Param cursor query string false "上一页返回的游标"
// @Param page_size query int false "每页条数，默认 10，上限 50"
// @Success 200 {object} ResponseData "任务列表"
// @Router /tasks [get]
func (h *Handlers) ListTasksHandler(c *gin.Context) {
	userID, err := strconv.ParseUint(c.Query("user_id"), 10, 64)
	if err != nil {
		ResponseError(c, CodeInvalidParams)
		return
	}
	pageSize, err := strconv.Atoi(c.DefaultQuery("page_size", strconv.Itoa(defaultPageSize)))
	if err != nil || pageSize <= 0 {
		pageSize = defaultPageSize
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}

	page, err := h.store.ListTasks(c.Request.Context(), userID, c.Query("cursor"), pageSize)
	if err != nil {
		zap.L().Error("list tasks failed", zap.Uint64("user_id", userID), zap.Error(err))
		ResponseError(c, CodeServerBusy)
		return
	}
	ResponseSuccess(c, page)
}

// GetTaskHandler 任务详情，含全部页面图片
// @Summary 任务详情
// @Tags Task
// @Produce json
// @Param task_id path string true "任务 ID"
// @Success 200 {object} ResponseData "任务与图片列表"
// @Router /tasks/{task_id} [get]
func (h *Handlers) GetTaskHandler(c *gin.Context) {
	taskID, err := strconv.ParseUint(c.Param("task_id"), 10, 64)
	if err != nil {
		ResponseError(c, CodeInvalidParams)
		return
	}
	t, err := h.store.GetTask(c.Request.Context(), taskID)
	if err != nil {
		zap.L().Error("get task failed", zap.Uint64("task_id", taskID), zap.Error(err))
		ResponseError(c, CodeServerBusy)
		return
	}
	if t == nil {
		ResponseError(c, CodeTaskNotExist)
		return
	}
	images, err := h.store.ListImages(c.Request.Context(), taskID)
	if err != nil {
		zap.L().Error("list images failed", zap.Uint64("task_id", taskID), zap.Error(err))
		ResponseError(c, CodeServerBusy)
		return
	}
	ResponseSuccess(c, gin.H{"task": t, "images": images})
}

// DeleteTaskHandler 删除任务及其全部图片和版本历史
// @Summary 删除任务
// @Description 级联删除版本、图片与任务记录，并清理进度快照；已消耗的积分不退回
// @Tags Task
// @Produce json
// @Param task_id path string true "任务 ID"
// @Success 200 {object} ResponseData
// @Router /tasks/{task_id} [delete]
func (h *Handlers) DeleteTaskHandler(c *gin.Context) {
	taskID, err := strconv.ParseUint(c.Param("task_id"), 10, 64)
	if err != nil {
		ResponseError(c, CodeInvalidParams)
		return
	}
	t, err := h.store.GetTask(c.Request.Context(), taskID)
	if err != nil {
		ResponseError(c, CodeServerBusy)
		return
	}
	if t == nil {
		ResponseError(c, CodeTaskNotExist)
		return
	}
	if err := h.store.DeleteTask(c.Request.Context(), taskID); err != nil {
		zap.L().Error("delete task failed", zap.Uint64("task_id", taskID), zap.Error(err))
		ResponseError(c, CodeServerBusy)
		return
	}
	if err := h.progress.ClearProgress(c.Request.Context(), taskID); err != nil {
		zap.L().Warn("clear progress failed", zap.Uint64("task_id", taskID), zap.Error(err))
	}
	ResponseSuccess(c, nil)
}

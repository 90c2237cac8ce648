package controller

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"xhs-creator/models"
	"xhs-creator/pkg/sse"
	"xhs-creator/task"
)

// GenerateImagesHandler 批量生成任务全部页面的图片
// @Summary 批量生成图片
// @Description 把生成任务投递到队列后保持连接，以 SSE 实时推送每页进度，finish 事件后断开
// @Tags Image
// @Accept json
// @Produce text/event-stream
// @Param request body models.GenerateImagesForm true "批量生成请求"
// @Success 200 {string} string "SSE 事件流"
// @Router /images/generate [post]
func (h *Handlers) GenerateImagesHandler(c *gin.Context) {
	var fo models.GenerateImagesForm
	if err := c.ShouldBindJSON(&fo); err != nil {
		zap.L().Error("GenerateImages with invalid param", zap.Error(err))
		handleBindError(c, err)
		return
	}

	t, err := h.store.GetTask(c.Request.Context(), fo.TaskID)
	if err != nil {
		ResponseError(c, CodeServerBusy)
		return
	}
	if t == nil || t.UserID != fo.UserID {
		ResponseError(c, CodeTaskNotExist)
		return
	}

	job := task.GenerateJob{
		Mode:         task.JobModeBatch,
		TaskID:       fo.TaskID,
		UserID:       fo.UserID,
		Pages:        fo.Pages,
		FullOutline:  fo.FullOutline,
		IsRegenerate: fo.IsRegenerate,
		CreatedAt:    time.Now().Unix(),
	}
	if err := h.jobs.PublishJob(job); err != nil {
		zap.L().Error("publish generate job failed", zap.Uint64("task_id", fo.TaskID), zap.Error(err))
		ResponseError(c, CodeServerBusy)
		return
	}

	// 投递成功后保持连接，实时回推 worker 发布的事件
	sse.Stream(c, h.hub, strconv.FormatUint(fo.TaskID, 10))
}

// RegenerateImageHandler 单页重新生成
// @Summary 单页重新生成
// @Description 对指定页面重新出图，生成新版本并置为当前版本，以 SSE 推送进度
// @Tags Image
// @Accept json
// @Produce text/event-stream
// @Param request body models.RegenerateImageForm true "重新生成请求（可带自定义提示词）"
// @Success 200 {string} string "SSE 事件流"
// @Router /images/regenerate [post]
func (h *Handlers) RegenerateImageHandler(c *gin.Context) {
	var fo models.RegenerateImageForm
	if err := c.ShouldBindJSON(&fo); err != nil {
		zap.L().Error("RegenerateImage with invalid param", zap.Error(err))
		handleBindError(c, err)
		return
	}

	t, err := h.store.GetTask(c.Request.Context(), fo.TaskID)
	if err != nil {
		ResponseError(c, CodeServerBusy)
		return
	}
	if t == nil || t.UserID != fo.UserID {
		ResponseError(c, CodeTaskNotExist)
		return
	}

	job := task.GenerateJob{
		Mode:      task.JobModeSingle,
		TaskID:    fo.TaskID,
		UserID:    fo.UserID,
		PageIndex: *fo.PageIndex,
		Prompt:    fo.Prompt,
		CreatedAt: time.Now().Unix(),
	}
	if err := h.jobs.PublishJob(job); err != nil {
		zap.L().Error("publish regenerate job failed", zap.Uint64("task_id", fo.TaskID), zap.Error(err))
		ResponseError(c, CodeServerBusy)
		return
	}

	sse.Stream(c, h.hub, strconv.FormatUint(fo.TaskID, 10))
}

// TaskProgressHandler 查询任务当前进度快照
// @Summary 任务进度
// @Description 返回服务端权威进度，SSE 断线后前端用它恢复状态
// @Tags Task
// @Produce json
// @Param task_id path string true "任务 ID"
// @Success 200 {object} ResponseData "进度快照"
// @Router /tasks/{task_id}/progress [get]
func (h *Handlers) TaskProgressHandler(c *gin.Context) {
	taskID, err := strconv.ParseUint(c.Param("task_id"), 10, 64)
	if err != nil {
		ResponseError(c, CodeInvalidParams)
		return
	}
	p, err := h.progress.GetProgress(c.Request.Context(), taskID)
	if err != nil {
		zap.L().Error("get progress failed", zap.Uint64("task_id", taskID), zap.Error(err))
		ResponseError(c, CodeServerBusy)
		return
	}
	if p == nil {
		ResponseError(c, CodeTaskNotExist)
		return
	}
	ResponseSuccess(c, p)
}

// CancelTaskHandler 取消生成中的任务
// @Summary 取消任务
// @Description 尽力而为的取消，已在途的页面生成不会被强行中断
// @Tags Task
// @Produce json
// @Param task_id path string true "任务 ID"
// @Success 200 {object} ResponseData
// @Router /tasks/{task_id}/cancel [post]
func (h *Handlers) CancelTaskHandler(c *gin.Context) {
	taskID, err := strconv.ParseUint(c.Param("task_id"), 10, 64)
	if err != nil {
		ResponseError(c, CodeInvalidParams)
		return
	}
	if err := h.gen.Cancel(c.Request.Context(), taskID); err != nil {
		zap.L().Error("cancel task failed", zap.Uint64("task_id", taskID), zap.Error(err))
		ResponseError(c, CodeServerBusy)
		return
	}
	ResponseSuccess(c, nil)
}

package controller

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"xhs-creator/pkg/sse"
)

// EventsHandler 断线重连后重新订阅任务事件流
// @Summary 订阅任务事件
// @Description SSE 重连入口，配合进度快照接口恢复已发生的状态
// @Tags Task
// @Produce text/event-stream
// @Param task_id query string true "任务 ID"
// @Success 200 {string} string "SSE 事件流"
// @Router /events [get]
func (h *Handlers) EventsHandler(c *gin.Context) {
	taskID, err := strconv.ParseUint(c.Query("task_id"), 10, 64)
	if err != nil {
		ResponseError(c, CodeInvalidParams)
		return
	}
	sse.Stream(c, h.hub, strconv.FormatUint(taskID, 10))
}

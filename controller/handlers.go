package controller

import (
	"github.com/gin-gonic/gin"

	"xhs-creator/dao/mysql"
	"xhs-creator/logic"
	"xhs-creator/pkg/sse"
	"xhs-creator/queue"
)

// Handlers 聚合各业务服务，路由统一从这里挂载
type Handlers struct {
	outline  *logic.OutlineService
	gen      *logic.GenerateService
	versions *logic.VersionService
	billing  *logic.BillingService
	config   *logic.ConfigCache
	store    *mysql.Store
	progress logic.ProgressStore
	jobs     queue.JobQueue
	hub      *sse.Hub
}

func NewHandlers(
	outline *logic.OutlineService,
	gen *logic.GenerateService,
	versions *logic.VersionService,
	billing *logic.BillingService,
	config *logic.ConfigCache,
	store *mysql.Store,
	progress logic.ProgressStore,
	jobs queue.JobQueue,
	hub *sse.Hub,
) *Handlers {
	return &Handlers{
		outline:  outline,
		gen:      gen,
		versions: versions,
		billing:  billing,
		config:   config,
		store:    store,
		progress: progress,
		jobs:     jobs,
		hub:      hub,
	}
}

// RegisterRoutes 挂载全部业务路由
func (h *Handlers) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")

	v1.POST("/outline", h.GenerateOutlineHandler)
	v1.POST("/images/generate", h.GenerateImagesHandler)
	v1.POST("/images/regenerate", h.RegenerateImageHandler)

	v1.GET("/events", h.EventsHandler)

	v1.GET("/tasks", h.ListTasksHandler)
	v1.GET("/tasks/:task_id", h.GetTaskHandler)
	v1.GET("/tasks/:task_id/progress", h.TaskProgressHandler)
	v1.POST("/tasks/:task_id/cancel", h.CancelTaskHandler)
	v1.DELETE("/tasks/:task_id", h.DeleteTaskHandler)

	v1.GET("/tasks/:task_id/versions/:page_index", h.ListVersionsHandler)
	v1.GET("/versions/:version_id", h.GetVersionHandler)
	v1.POST("/versions/restore", h.RestoreVersionHandler)

	v1.GET("/usage/:user_id", h.UsageHandler)
	v1.PUT("/billing/config", h.UpdateBillingConfigHandler)
}

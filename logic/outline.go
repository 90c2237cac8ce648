package logic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"xhs-creator/models"
	"xhs-creator/pkg/breaker"
	"xhs-creator/pkg/snowflake"
)

// 大纲提示词模板，{topic} 在生成时替换
const outlinePromptTemplate = `你是一位小红书爆款图文创作专家。请围绕主题「{topic}」创作一篇多页图文大纲。

要求：
1. 第一页是封面页，用 [封面] 标注，包含吸引眼球的主标题；
2. 中间为 3-6 页内容页，用 [内容] 标注，每页一个要点，文字精炼；
3. 最后一页是总结页，用 [总结] 标注；
4. 每一页用 <page></page> 包裹，页内不要再出现其它分隔符。`

const referenceImagesNote = "\n用户提供了 %d 张参考图，整体风格请与参考图保持一致。"

// OutlineService 负责 任务创建 → 大纲生成 → 解析分页 的前半程编排
type OutlineService struct {
	tasks    TaskStore
	billing  *BillingService
	resolver GeneratorResolver
	breakers *breaker.Registry
}

func NewOutlineService(tasks TaskStore, billing *BillingService, resolver GeneratorResolver, breakers *breaker.Registry) *OutlineService {
	return &OutlineService{tasks: tasks, billing: billing, resolver: resolver, breakers: breakers}
}

// GenerateOutline 生成大纲。计费在任务创建之前消耗，生成抛错时回滚。
// 状态迁移：pending → generating_outline → outline_ready，失败则 failed。
func (s *OutlineService) GenerateOutline(ctx context.Context, form *models.OutlineForm) (*models.Task, error) {
	consume, err := s.billing.Consume(ctx, form.UserID, models.BizTypeOutline, "",
		models.TxMeta{Remark: "大纲生成"})
	if err != nil {
		return nil, err
	}

	taskID, err := snowflake.GetID()
	if err != nil {
		s.rollbackOutline(ctx, form.UserID, consume, taskID)
		return nil, fmt.Errorf("generate task id: %w", err)
	}
	t := &models.Task{
		TaskID:     taskID,
		UserID:     form.UserID,
		Topic:      form.Topic,
		Status:     models.TaskStatusGeneratingOutline,
		UserImages: form.UserImages,
	}
	if err := s.tasks.CreateTask(ctx, t); err != nil {
		s.rollbackOutline(ctx, form.UserID, consume, taskID)
		return nil, fmt.Errorf("create task: %w", err)
	}

	outline, err := s.generateText(ctx, s.buildPrompt(form))
	if err != nil {
		s.rollbackOutline(ctx, form.UserID, consume, taskID)
		s.failTask(ctx, taskID, err)
		return nil, err
	}

	pages := ParseOutline(outline)
	if len(pages) == 0 {
		s.rollbackOutline(ctx, form.UserID, consume, taskID)
		s.failTask(ctx, taskID, ErrEmptyOutline)
		zap.L().Warn("大纲无法解析出页面",
			zap.Uint64("task_id", taskID),
			zap.Int("outline_len", len(outline)))
		return nil, ErrEmptyOutline
	}

	if err := s.tasks.SaveTaskOutline(ctx, taskID, outline, pages); err != nil {
		s.rollbackOutline(ctx, form.UserID, consume, taskID)
		s.failTask(ctx, taskID, err)
		return nil, fmt.Errorf("save outline: %w", err)
	}

	t.Outline = outline
	t.Pages = pages
	t.TotalPages = len(pages)
	t.Status = models.TaskStatusOutlineReady
	zap.L().Info("大纲生成完成",
		zap.Uint64("task_id", taskID),
		zap.Uint64("user_id", form.UserID),
		zap.Int("pages", len(pages)),
		zap.Bool("is_free", consume.IsFree))
	return t, nil
}

func (s *OutlineService) buildPrompt(form *models.OutlineForm) string {
	prompt := strings.ReplaceAll(outlinePromptTemplate, "{topic}", form.Topic)
	if len(form.UserImages) > 0 {
		prompt += fmt.Sprintf(referenceImagesNote, len(form.UserImages))
	}
	return prompt
}

// generateText 经熔断器调用文本生成适配器
func (s *OutlineService) generateText(ctx context.Context, prompt string) (string, error) {
	gen, info, err := s.resolver.Resolve(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve generator: %w", err)
	}
	var outline string
	err = s.breakers.Get(info.Provider).Do(ctx, func(ctx context.Context) error {
		text, gerr := gen.GenerateText(ctx, prompt)
		if gerr != nil {
			return gerr
		}
		outline = text
		return nil
	})
	if err != nil {
		if errors.Is(err, breaker.ErrOpen) {
			return "", fmt.Errorf("文本生成服务暂不可用: %w", err)
		}
		return "", fmt.Errorf("generate outline text: %w", err)
	}
	return outline, nil
}

func (s *OutlineService) rollbackOutline(ctx context.Context, userID uint64, consume *ConsumeResult, taskID uint64) {
	if consume != nil && consume.PowerDeducted > 0 {
		s.billing.RollbackPower(ctx, userID, consume.PowerDeducted,
			models.TxMeta{BizType: models.BizTypeOutline, TaskID: taskID})
	}
}

func (s *OutlineService) failTask(ctx context.Context, taskID uint64, cause error) {
	if err := s.tasks.UpdateTaskStatus(ctx, taskID, models.TaskStatusFailed, cause.Error()); err != nil {
		zap.L().Error("标记任务失败时出错", zap.Uint64("task_id", taskID), zap.Error(err))
	}
}

package logic

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"xhs-creator/models"
	"xhs-creator/pkg/breaker"
	"xhs-creator/pkg/generator"
	"xhs-creator/pkg/snowflake"
	"xhs-creator/pkg/sse"
	"xhs-creator/task"
	"xhs-creator/util"
)

// 图片提示词模板
const (
	coverPromptTemplate = `小红书风格封面图。主题文案：%s
要求：竖版 3:4 构图，大字标题突出，配色明快吸睛，适合信息流封面。`

	contentPromptTemplate = `小红书风格内容配图。本页要点：%s
要求：竖版 3:4 构图，画面简洁，信息可视化，和封面保持同一套视觉风格。`
)

// GenerateOptions 批量生成的进程级配置
type GenerateOptions struct {
	Parallel     bool   // true 走固定窗口并行策略，否则严格串行
	MaxWorkers   int    // 并行窗口大小，默认 3
	ImageSize    string // 出图尺寸
	ImageQuality string // 画质要求，为空时交给服务商默认值
	LocalDir     string // 生成结果落盘目录，为空时不落盘
}

// GenerateService 生成编排器：状态机、批量出图、计费包装、版本写入、事件推送。
//
// 一次调用只处理一个任务的批次。串行策略严格一页接一页；
// 并行策略维持固定大小的工作窗口（默认 3），一页完成即补位下一页，
// 事件按完成顺序发出而不是页码顺序。
type GenerateService struct {
	tasks    TaskStore
	images   ImageStore
	versions VersionStore
	billing  *BillingService
	resolver GeneratorResolver
	breakers *breaker.Registry
	events   EventSink
	progress ProgressStore
	opts     GenerateOptions

	// 同一 (task, page) 的并发重绘用进程内互斥锁串行化，
	// powerDeducted 标记仍是持久层的唯一事实来源
	pageLocks sync.Map
	canceled  sync.Map
}

func NewGenerateService(
	tasks TaskStore,
	images ImageStore,
	versions VersionStore,
	billing *BillingService,
	resolver GeneratorResolver,
	breakers *breaker.Registry,
	events EventSink,
	progress ProgressStore,
	opts GenerateOptions,
) *GenerateService {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 3
	}
	return &GenerateService{
		tasks:    tasks,
		images:   images,
		versions: versions,
		billing:  billing,
		resolver: resolver,
		breakers: breakers,
		events:   events,
		progress: progress,
		opts:     opts,
	}
}

func eventTopic(taskID uint64) string {
	return strconv.FormatUint(taskID, 10)
}

// Cancel 尽力而为的取消：标记任务失败并停止派发新页面，
// 已经在途的网络调用不会被强行中断
func (s *GenerateService) Cancel(ctx context.Context, taskID uint64) error {
	s.canceled.Store(taskID, struct{}{})
	return s.tasks.UpdateTaskStatus(ctx, taskID, models.TaskStatusFailed, "任务已取消")
}

func (s *GenerateService) isCanceled(taskID uint64) bool {
	_, ok := s.canceled.Load(taskID)
	return ok
}

// GenerateBatch 批量生成整组页面图片。
// 进入前校验状态机与总费用，余额不足时任务直接失败且不产生任何扣费；
// 单页失败只影响该页（积分回滚、发 error 事件），批次继续，
// 所有页面尝试完毕后任务进入 completed，失败页可单独重试。
func (s *GenerateService) GenerateBatch(ctx context.Context, job task.GenerateJob) error {
	topic := eventTopic(job.TaskID)
	t, err := s.tasks.GetTask(ctx, job.TaskID)
	if err != nil {
		return err
	}
	if t == nil {
		s.finishWithError(topic, ErrTaskNotFound.Error())
		return ErrTaskNotFound
	}
	if err := s.checkBatchState(t, job.IsRegenerate); err != nil {
		s.finishWithError(topic, err.Error())
		return err
	}

	pages := job.Pages
	if len(pages) == 0 {
		pages = t.Pages
	}
	if len(pages) == 0 {
		s.finishWithError(topic, ErrEmptyOutline.Error())
		return ErrEmptyOutline
	}
	defer s.releaseBatch(job.TaskID, pages)

	// 总费用前置校验，任何副作用之前完成
	totalCost, err := s.billing.TotalCost(ctx, pages)
	if err != nil {
		return err
	}
	enough, err := s.billing.HasSufficientBalance(ctx, t.UserID, totalCost)
	if err != nil {
		return err
	}
	if !enough {
		s.failTask(ctx, job.TaskID, ErrInsufficientBalance)
		s.finishWithError(topic, ErrInsufficientBalance.Error())
		return ErrInsufficientBalance
	}

	s.canceled.Delete(job.TaskID)
	if err := s.tasks.UpdateTaskStatus(ctx, job.TaskID, models.TaskStatusGeneratingImages, ""); err != nil {
		return err
	}
	if err := s.tasks.ResetGeneratedPages(ctx, job.TaskID); err != nil {
		return err
	}
	if err := s.progress.InitProgress(ctx, job.TaskID, len(pages)); err != nil {
		zap.L().Warn("初始化进度快照失败", zap.Uint64("task_id", job.TaskID), zap.Error(err))
	}

	// 建立/复位每页的图片记录。复位保留 current_version，只清错误信息
	imgs := make(map[int]*models.Image, len(pages))
	for _, p := range pages {
		img, err := s.ensureImage(ctx, t, p)
		if err != nil {
			s.failTask(ctx, job.TaskID, err)
			s.finishWithError(topic, "初始化图片记录失败")
			return err
		}
		imgs[p.Index] = img
	}

	generatedBy := models.GeneratedByInitial
	if job.IsRegenerate {
		generatedBy = models.GeneratedByBatchRegenerate
	}

	em := newBatchEmitter(s, topic, job.TaskID, len(pages))

	// 封面先行：封面一旦生成，无条件作为其余页面的参考图；
	// 没有封面或封面失败时退回用户上传的参考图
	refImages := t.UserImages
	coverAt := -1
	for i, p := range pages {
		if p.Type == models.PageTypeCover {
			coverAt = i
			break
		}
	}
	rest := pages
	if coverAt >= 0 {
		cover := pages[coverAt]
		rest = make([]models.Page, 0, len(pages)-1)
		rest = append(rest, pages[:coverAt]...)
		rest = append(rest, pages[coverAt+1:]...)

		em.emitDispatch("cover", cover.Index)
		url, gerr := s.generatePage(ctx, t, cover, t.UserImages, generatedBy, job.IsRegenerate, "")
		em.emitSettled(ctx, cover.Index, url, gerr)
		if gerr == nil {
			refImages = []string{url}
			if serr := s.tasks.SetTaskCover(ctx, t.TaskID, url); serr != nil {
				zap.L().Error("记录封面地址失败", zap.Uint64("task_id", t.TaskID), zap.Error(serr))
			}
		}
	}

	if s.opts.Parallel {
		s.runParallel(ctx, t, rest, refImages, generatedBy, job.IsRegenerate, em)
	} else {
		s.runSequential(ctx, t, rest, refImages, generatedBy, job.IsRegenerate, em)
	}

	if s.isCanceled(job.TaskID) {
		// Cancel 已把任务置为 failed，这里只负责收尾事件
		s.events.Publish(topic, sse.Event{Type: sse.EventFinish, Message: "任务已取消"})
		return ErrTaskCanceled
	}

	// 所有页面尝试完毕即 completed，个别失败页保持单独可重试
	if err := s.tasks.UpdateTaskStatus(ctx, job.TaskID, models.TaskStatusCompleted, ""); err != nil {
		return err
	}
	if err := s.progress.SetStage(ctx, job.TaskID, "done", em.settledCount(), len(pages)); err != nil {
		zap.L().Warn("更新进度快照失败", zap.Uint64("task_id", job.TaskID), zap.Error(err))
	}
	s.events.Publish(topic, sse.Event{Type: sse.EventFinish, Current: em.settledCount(), Total: len(pages)})
	zap.L().Info("批量生成结束",
		zap.Uint64("task_id", job.TaskID),
		zap.Int("total", len(pages)),
		zap.Int("failed", em.failedCount()))
	return nil
}

// RegenerateSingle 单页重新生成，事件形状与批量一致，版本来源固定为 single-regenerate
func (s *GenerateService) RegenerateSingle(ctx context.Context, job task.GenerateJob) error {
	topic := eventTopic(job.TaskID)
	t, err := s.tasks.GetTask(ctx, job.TaskID)
	if err != nil {
		return err
	}
	if t == nil {
		s.finishWithError(topic, ErrTaskNotFound.Error())
		return ErrTaskNotFound
	}

	var page *models.Page
	for i := range t.Pages {
		if t.Pages[i].Index == job.PageIndex {
			page = &t.Pages[i]
			break
		}
	}
	if page == nil {
		s.finishWithError(topic, ErrImageNotFound.Error())
		return ErrImageNotFound
	}
	defer s.pageLocks.Delete(pageKey(job.TaskID, page.Index))

	cost, err := s.billing.CostFor(ctx, models.BizTypeImage, page.Type)
	if err != nil {
		return err
	}
	enough, err := s.billing.HasSufficientBalance(ctx, t.UserID, cost)
	if err != nil {
		return err
	}
	if !enough {
		s.finishWithError(topic, ErrInsufficientBalance.Error())
		return ErrInsufficientBalance
	}

	refImages := t.UserImages
	if t.CoverImageURL != "" && page.Type != models.PageTypeCover {
		refImages = []string{t.CoverImageURL}
	}

	em := newBatchEmitter(s, topic, job.TaskID, 1)
	em.emitDispatch("image", page.Index)
	url, gerr := s.generatePage(ctx, t, *page, refImages, models.GeneratedBySingleRegen, true, job.Prompt)
	em.emitSettled(ctx, page.Index, url, gerr)
	if page.Type == models.PageTypeCover && gerr == nil {
		if serr := s.tasks.SetTaskCover(ctx, t.TaskID, url); serr != nil {
			zap.L().Error("记录封面地址失败", zap.Uint64("task_id", t.TaskID), zap.Error(serr))
		}
	}
	s.events.Publish(topic, sse.Event{Type: sse.EventFinish, Current: 1, Total: 1})
	return gerr
}

// runSequential 串行策略：上一页未完成（无论成败）不开始下一页
func (s *GenerateService) runSequential(ctx context.Context, t *models.Task, pages []models.Page, refs []string, generatedBy string, isRegen bool, em *batchEmitter) {
	for _, p := range pages {
		if s.isCanceled(t.TaskID) {
			return
		}
		em.emitDispatch("image", p.Index)
		url, err := s.generatePage(ctx, t, p, refs, generatedBy, isRegen, "")
		em.emitSettled(ctx, p.Index, url, err)
	}
}

// runParallel 固定窗口并行策略：信号量控制同时在途的生成调用数，
// 一页完成即派发下一页，事件按完成顺序发出
func (s *GenerateService) runParallel(ctx context.Context, t *models.Task, pages []models.Page, refs []string, generatedBy string, isRegen bool, em *batchEmitter) {
	sem := make(chan struct{}, s.opts.MaxWorkers)
	var wg sync.WaitGroup
	for _, p := range pages {
		if s.isCanceled(t.TaskID) {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(p models.Page) {
			defer func() { <-sem; wg.Done() }()
			em.emitDispatch("image", p.Index)
			url, err := s.generatePage(ctx, t, p, refs, generatedBy, isRegen, "")
			em.emitSettled(ctx, p.Index, url, err)
		}(p)
	}
	wg.Wait()
}

// generatePage 单页的计费包装生成：
// 查 powerDeducted 标记 → 未扣费则扣费并置位 → 调用适配器（经熔断器）→
// 失败回滚积分并清标记、记录失败；成功写入新版本并推进计数。
// 同一 (task, page) 的并发调用在进程内互斥。
func (s *GenerateService) generatePage(ctx context.Context, t *models.Task, page models.Page, refs []string, generatedBy string, isRegen bool, overridePrompt string) (string, error) {
	mu := s.lockFor(t.TaskID, page.Index)
	mu.Lock()
	defer mu.Unlock()

	img, err := s.images.GetImage(ctx, t.TaskID, page.Index)
	if err != nil {
		return "", err
	}
	if img == nil {
		img, err = s.createImage(ctx, t, page)
		if err != nil {
			return "", err
		}
	}
	if overridePrompt != "" {
		img.Prompt = overridePrompt
	}
	if err := s.images.MarkImageGenerating(ctx, img.ImageID); err != nil {
		return "", err
	}

	// 版本号规则：重绘或已有多个版本时递增，否则从 1 开始
	nextVersion := 1
	if isRegen || img.CurrentVersion > 1 {
		nextVersion = img.CurrentVersion + 1
	}

	powerAmount := img.PowerAmount
	accountNo := img.BillingAccountNo
	if !img.PowerDeducted {
		consume, cerr := s.billing.Consume(ctx, t.UserID, models.BizTypeImage, page.Type, models.TxMeta{
			TaskID:    t.TaskID,
			PageIndex: page.Index,
		})
		if cerr != nil {
			s.markPageFailed(ctx, img.ImageID, cerr)
			return "", cerr
		}
		powerAmount = consume.PowerDeducted
		accountNo = consume.AccountNo
		if powerAmount > 0 {
			if berr := s.images.SetImageBilling(ctx, img.ImageID, true, powerAmount, accountNo); berr != nil {
				s.billing.RollbackPower(ctx, t.UserID, powerAmount, models.TxMeta{
					BizType: models.BizTypeImage, PageType: page.Type,
					TaskID: t.TaskID, PageIndex: page.Index,
				})
				s.markPageFailed(ctx, img.ImageID, berr)
				return "", berr
			}
		}
	}

	url, gerr := s.generateImage(ctx, img.Prompt, page.Type, refs)
	if gerr != nil {
		// 先回滚积分再向上暴露服务商/内部错误
		s.billing.RollbackPower(ctx, t.UserID, powerAmount, models.TxMeta{
			BizType: models.BizTypeImage, PageType: page.Type,
			TaskID: t.TaskID, PageIndex: page.Index,
		})
		s.markPageFailed(ctx, img.ImageID, gerr)
		return "", gerr
	}

	versionID, err := snowflake.GetID()
	if err != nil {
		s.billing.RollbackPower(ctx, t.UserID, powerAmount, models.TxMeta{
			BizType: models.BizTypeImage, PageType: page.Type,
			TaskID: t.TaskID, PageIndex: page.Index,
		})
		s.markPageFailed(ctx, img.ImageID, err)
		return "", err
	}
	if err := s.versions.SaveVersion(ctx, &models.ImageVersion{
		VersionID:   versionID,
		ImageID:     img.ImageID,
		TaskID:      t.TaskID,
		PageIndex:   page.Index,
		Version:     nextVersion,
		ImageURL:    url,
		Prompt:      img.Prompt,
		GeneratedBy: generatedBy,
		PowerAmount: powerAmount,
	}); err != nil {
		s.billing.RollbackPower(ctx, t.UserID, powerAmount, models.TxMeta{
			BizType: models.BizTypeImage, PageType: page.Type,
			TaskID: t.TaskID, PageIndex: page.Index,
		})
		s.markPageFailed(ctx, img.ImageID, err)
		return "", err
	}
	if err := s.tasks.IncrementGeneratedPages(ctx, t.TaskID); err != nil {
		zap.L().Error("推进生成计数失败", zap.Uint64("task_id", t.TaskID), zap.Error(err))
	}
	s.archiveLocal(url, t.TaskID, page.Index, nextVersion)
	return url, nil
}

// archiveLocal 把生成结果落盘一份本地副本，经 /pic 静态路由对外提供。
// 服务商地址有时效，落盘失败只记日志，不影响生成结果。
func (s *GenerateService) archiveLocal(url string, taskID uint64, pageIndex, version int) {
	if s.opts.LocalDir == "" || !strings.HasPrefix(url, "http") {
		return
	}
	if _, err := util.DownloadImage(s.opts.LocalDir, url, taskID, pageIndex, version); err != nil {
		zap.L().Warn("图片落盘失败",
			zap.Uint64("task_id", taskID),
			zap.Int("page_index", pageIndex),
			zap.Error(err))
	}
}

// generateImage 解析适配器并经熔断器出图
func (s *GenerateService) generateImage(ctx context.Context, prompt, pageType string, refs []string) (string, error) {
	gen, info, err := s.resolver.Resolve(ctx)
	if err != nil {
		return "", fmt.Errorf("resolve generator: %w", err)
	}
	var url string
	err = s.breakers.Get(info.Provider).Do(ctx, func(ctx context.Context) error {
		u, gerr := gen.GenerateImage(ctx, prompt, generator.ImageOptions{
			ReferenceImages: refs,
			Size:            s.opts.ImageSize,
			Quality:         s.opts.ImageQuality,
		})
		if gerr != nil {
			return gerr
		}
		url = u
		return nil
	})
	if err != nil {
		if errors.Is(err, breaker.ErrOpen) {
			return "", fmt.Errorf("图片生成服务暂不可用: %w", err)
		}
		return "", err
	}
	return url, nil
}

// ensureImage 批次开始时建立或复位页面图片记录
func (s *GenerateService) ensureImage(ctx context.Context, t *models.Task, page models.Page) (*models.Image, error) {
	img, err := s.images.GetImage(ctx, t.TaskID, page.Index)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return s.createImage(ctx, t, page)
	}
	prompt := buildImagePrompt(page)
	if err := s.images.ResetImage(ctx, img.ImageID, prompt); err != nil {
		return nil, err
	}
	img.Status = models.ImageStatusPending
	img.Prompt = prompt
	img.ErrorMessage = ""
	return img, nil
}

func (s *GenerateService) createImage(ctx context.Context, t *models.Task, page models.Page) (*models.Image, error) {
	imageID, err := snowflake.GetID()
	if err != nil {
		return nil, err
	}
	img := &models.Image{
		ImageID:        imageID,
		TaskID:         t.TaskID,
		PageIndex:      page.Index,
		PageType:       page.Type,
		Prompt:         buildImagePrompt(page),
		Status:         models.ImageStatusPending,
		CurrentVersion: 1,
	}
	if err := s.images.CreateImage(ctx, img); err != nil {
		return nil, err
	}
	return img, nil
}

func (s *GenerateService) markPageFailed(ctx context.Context, imageID uint64, cause error) {
	if err := s.images.FailImage(ctx, imageID, cause.Error()); err != nil {
		zap.L().Error("标记图片失败时出错", zap.Uint64("image_id", imageID), zap.Error(err))
	}
}

func (s *GenerateService) failTask(ctx context.Context, taskID uint64, cause error) {
	if err := s.tasks.UpdateTaskStatus(ctx, taskID, models.TaskStatusFailed, cause.Error()); err != nil {
		zap.L().Error("标记任务失败时出错", zap.Uint64("task_id", taskID), zap.Error(err))
	}
}

func (s *GenerateService) finishWithError(topic string, msg string) {
	s.events.Publish(topic, sse.Event{Type: sse.EventError, Message: msg})
	s.events.Publish(topic, sse.Event{Type: sse.EventFinish, Message: msg})
}

func (s *GenerateService) checkBatchState(t *models.Task, isRegenerate bool) error {
	switch t.Status {
	case models.TaskStatusOutlineReady:
		return nil
	case models.TaskStatusCompleted, models.TaskStatusFailed:
		if isRegenerate {
			return nil
		}
		return ErrInvalidTaskState
	default:
		return ErrInvalidTaskState
	}
}

func pageKey(taskID uint64, pageIndex int) string {
	return strconv.FormatUint(taskID, 10) + ":" + strconv.Itoa(pageIndex)
}

func (s *GenerateService) lockFor(taskID uint64, pageIndex int) *sync.Mutex {
	v, _ := s.pageLocks.LoadOrStore(pageKey(taskID, pageIndex), &sync.Mutex{})
	return v.(*sync.Mutex)
}

// releaseBatch 批次收尾时清掉进程内的页锁与取消标记，避免长驻进程里累积
func (s *GenerateService) releaseBatch(taskID uint64, pages []models.Page) {
	for _, p := range pages {
		s.pageLocks.Delete(pageKey(taskID, p.Index))
	}
	s.canceled.Delete(taskID)
}

// buildImagePrompt 按页面类型套用提示词模板
func buildImagePrompt(page models.Page) string {
	content := strings.TrimSpace(page.Content)
	if page.Type == models.PageTypeCover {
		return fmt.Sprintf(coverPromptTemplate, content)
	}
	return fmt.Sprintf(contentPromptTemplate, content)
}

// batchEmitter 串行化事件发出与完成计数。
// 并行策略下多个 goroutine 同时结算，事件顺序即完成顺序。
type batchEmitter struct {
	svc    *GenerateService
	topic  string
	taskID uint64
	total  int

	mu      sync.Mutex
	settled int
	failed  int
}

func newBatchEmitter(svc *GenerateService, topic string, taskID uint64, total int) *batchEmitter {
	return &batchEmitter{svc: svc, topic: topic, taskID: taskID, total: total}
}

// emitDispatch 页面开始生成前发 progress 事件
func (e *batchEmitter) emitDispatch(stage string, pageIndex int) {
	e.mu.Lock()
	current := e.settled
	e.mu.Unlock()
	idx := pageIndex
	e.svc.events.Publish(e.topic, sse.Event{
		Type:      sse.EventProgress,
		Stage:     stage,
		Current:   current,
		Total:     e.total,
		PageIndex: &idx,
	})
}

// emitSettled 页面结算：先写进度快照（服务端权威状态），再推事件
func (e *batchEmitter) emitSettled(ctx context.Context, pageIndex int, url string, err error) {
	e.mu.Lock()
	e.settled++
	if err != nil {
		e.failed++
	}
	current := e.settled
	e.mu.Unlock()

	idx := pageIndex
	if err != nil {
		if perr := e.svc.progress.SetPageStatus(ctx, e.taskID, pageIndex, models.ImageStatusFailed, "", err.Error()); perr != nil {
			zap.L().Warn("更新进度快照失败", zap.Uint64("task_id", e.taskID), zap.Error(perr))
		}
		e.svc.events.Publish(e.topic, sse.Event{
			Type:      sse.EventError,
			Stage:     "image",
			Current:   current,
			Total:     e.total,
			PageIndex: &idx,
			Message:   err.Error(),
		})
		return
	}
	if perr := e.svc.progress.SetPageStatus(ctx, e.taskID, pageIndex, models.ImageStatusCompleted, url, ""); perr != nil {
		zap.L().Warn("更新进度快照失败", zap.Uint64("task_id", e.taskID), zap.Error(perr))
	}
	if perr := e.svc.progress.SetStage(ctx, e.taskID, "image", current, e.total); perr != nil {
		zap.L().Warn("更新进度快照失败", zap.Uint64("task_id", e.taskID), zap.Error(perr))
	}
	e.svc.events.Publish(e.topic, sse.Event{
		Type:      sse.EventComplete,
		Stage:     "image",
		Current:   current,
		Total:     e.total,
		PageIndex: &idx,
		ImageURL:  url,
	})
}

func (e *batchEmitter) settledCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settled
}

func (e *batchEmitter) failedCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failed
}

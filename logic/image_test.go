package logic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xhs-creator/models"
	"xhs-creator/pkg/breaker"
	"xhs-creator/pkg/snowflake"
	"xhs-creator/pkg/sse"
	"xhs-creator/task"
)

const testTaskID = uint64(100)

func newGenEnv(t *testing.T, parallel bool) (*memStore, *eventRecorder, *fakeGenerator, *GenerateService) {
	t.Helper()
	require.NoError(t, snowflake.Init(1))

	store := newMemStore()
	// 免费额度用完，所有消耗都走钱包，便于断言扣费与回滚
	store.usage[1] = 3
	store.balances[1] = 1000

	rec := &eventRecorder{}
	gen := &fakeGenerator{}
	svc := NewGenerateService(
		store, store, store,
		newTestBilling(store),
		&fakeResolver{gen: gen},
		breaker.NewRegistry(breaker.DefaultOptions()),
		rec, store,
		GenerateOptions{Parallel: parallel},
	)
	return store, rec, gen, svc
}

func seedTask(store *memStore, status string, pages []models.Page) {
	store.tasks[testTaskID] = &models.Task{
		TaskID:     testTaskID,
		UserID:     1,
		Topic:      "秋日穿搭",
		Status:     status,
		Pages:      pages,
		TotalPages: len(pages),
		UpdatedAt:  time.Now(),
	}
}

func threePages() []models.Page {
	return []models.Page{
		{Index: 0, Type: models.PageTypeCover, Content: "秋日穿搭指南"},
		{Index: 1, Type: models.PageTypeContent, Content: "燕麦色大衣"},
		{Index: 2, Type: models.PageTypeContent, Content: "焦糖色毛衣"},
	}
}

func TestGenerateBatch_AllPagesSucceed(t *testing.T) {
	// GIVEN: 大纲就绪的三页任务
	store, rec, gen, svc := newGenEnv(t, false)
	seedTask(store, models.TaskStatusOutlineReady, threePages())

	// WHEN: 批量生成
	err := svc.GenerateBatch(context.Background(), task.GenerateJob{
		Mode: task.JobModeBatch, TaskID: testTaskID, UserID: 1,
	})
	require.NoError(t, err)

	// THEN: 任务完成，页面计数走满，封面地址落到任务上
	tk, _ := store.GetTask(context.Background(), testTaskID)
	assert.Equal(t, models.TaskStatusCompleted, tk.Status)
	assert.Equal(t, 3, tk.GeneratedPages)
	assert.NotEmpty(t, tk.CoverImageURL)

	// AND: 每页一条版本记录且都是当前版本，版本号从 1 开始
	for idx := 0; idx < 3; idx++ {
		versions, _ := store.ListVersions(context.Background(), testTaskID, idx)
		require.Len(t, versions, 1)
		assert.Equal(t, 1, versions[0].Version)
		assert.True(t, versions[0].IsCurrent)
		assert.Equal(t, models.GeneratedByInitial, versions[0].GeneratedBy)
	}

	// AND: 三条 complete 事件，finish 收尾
	assert.Len(t, rec.byType(sse.EventComplete), 3)
	events := rec.all()
	assert.Equal(t, sse.EventFinish, events[len(events)-1].Type)

	// AND: 扣费 = 封面 20 + 内容 15*2
	balance, _ := store.GetBalance(context.Background(), 1)
	assert.EqualValues(t, 1000-50, balance)
	assert.Len(t, gen.calls(), 3)
}

func TestGenerateBatch_CoverFeedsContentPages(t *testing.T) {
	// GIVEN: 带用户参考图的三页任务
	store, _, gen, svc := newGenEnv(t, false)
	seedTask(store, models.TaskStatusOutlineReady, threePages())
	store.tasks[testTaskID].UserImages = []string{"https://user.example.com/ref.jpg"}

	require.NoError(t, svc.GenerateBatch(context.Background(), task.GenerateJob{
		Mode: task.JobModeBatch, TaskID: testTaskID, UserID: 1,
	}))

	// THEN: 封面用用户参考图，内容页的参考图换成生成出的封面
	calls := gen.calls()
	require.Len(t, calls, 3)
	assert.Equal(t, []string{"https://user.example.com/ref.jpg"}, calls[0].refs)
	tk, _ := store.GetTask(context.Background(), testTaskID)
	for _, call := range calls[1:] {
		assert.Equal(t, []string{tk.CoverImageURL}, call.refs)
	}
}

func TestGenerateBatch_PartialFailureContained(t *testing.T) {
	// GIVEN: 第二页（燕麦色大衣）会生成失败
	store, rec, gen, svc := newGenEnv(t, false)
	seedTask(store, models.TaskStatusOutlineReady, threePages())
	gen.imageErr = func(prompt string) error {
		if strings.Contains(prompt, "燕麦色大衣") {
			return errors.New("provider error")
		}
		return nil
	}

	// WHEN: 批量生成
	err := svc.GenerateBatch(context.Background(), task.GenerateJob{
		Mode: task.JobModeBatch, TaskID: testTaskID, UserID: 1,
	})
	require.NoError(t, err)

	// THEN: 任务仍然 completed，失败只落在那一页上
	tk, _ := store.GetTask(context.Background(), testTaskID)
	assert.Equal(t, models.TaskStatusCompleted, tk.Status)
	assert.Equal(t, 2, tk.GeneratedPages)

	img, _ := store.GetImage(context.Background(), testTaskID, 1)
	assert.Equal(t, models.ImageStatusFailed, img.Status)
	assert.False(t, img.PowerDeducted)

	// AND: 恰好一条 error 事件指向第二页，成功页各一条 complete，finish 收尾
	errs := rec.byType(sse.EventError)
	require.Len(t, errs, 1)
	require.NotNil(t, errs[0].PageIndex)
	assert.Equal(t, 1, *errs[0].PageIndex)
	assert.Len(t, rec.byType(sse.EventComplete), 2)
	events := rec.all()
	assert.Equal(t, sse.EventFinish, events[len(events)-1].Type)

	// AND: 失败页的扣费被退回（净扣 = 20 + 15）
	balance, _ := store.GetBalance(context.Background(), 1)
	assert.EqualValues(t, 1000-35, balance)
}

func TestGenerateBatch_InsufficientBalanceFailsBeforeSideEffects(t *testing.T) {
	// GIVEN: 余额不足以覆盖批次总费用
	store, rec, gen, svc := newGenEnv(t, false)
	store.balances[1] = 10
	seedTask(store, models.TaskStatusOutlineReady, threePages())

	err := svc.GenerateBatch(context.Background(), task.GenerateJob{
		Mode: task.JobModeBatch, TaskID: testTaskID, UserID: 1,
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// THEN: 任务失败，没有任何扣费和生成调用
	tk, _ := store.GetTask(context.Background(), testTaskID)
	assert.Equal(t, models.TaskStatusFailed, tk.Status)
	assert.Empty(t, store.txs)
	assert.Empty(t, gen.calls())
	require.NotEmpty(t, rec.byType(sse.EventError))
	events := rec.all()
	assert.Equal(t, sse.EventFinish, events[len(events)-1].Type)
}

func TestGenerateBatch_InvalidState(t *testing.T) {
	store, _, _, svc := newGenEnv(t, false)
	seedTask(store, models.TaskStatusGeneratingOutline, threePages())

	err := svc.GenerateBatch(context.Background(), task.GenerateJob{
		Mode: task.JobModeBatch, TaskID: testTaskID, UserID: 1,
	})
	assert.ErrorIs(t, err, ErrInvalidTaskState)

	// 已完成的任务不带重绘标记也不允许重入
	seedTask(store, models.TaskStatusCompleted, threePages())
	err = svc.GenerateBatch(context.Background(), task.GenerateJob{
		Mode: task.JobModeBatch, TaskID: testTaskID, UserID: 1,
	})
	assert.ErrorIs(t, err, ErrInvalidTaskState)
}

func TestGenerateBatch_SkipsBillingWhenAlreadyDeducted(t *testing.T) {
	// GIVEN: 第一页的图片记录已带扣费标记（上一轮扣费成功但生成中断）
	store, _, _, svc := newGenEnv(t, false)
	seedTask(store, models.TaskStatusOutlineReady, threePages())
	store.images[9001] = &models.Image{
		ImageID: 9001, TaskID: testTaskID, PageIndex: 0,
		PageType: models.PageTypeCover, Status: models.ImageStatusFailed,
		PowerDeducted: true, PowerAmount: 20, BillingAccountNo: "acct-old",
		CurrentVersion: 1,
	}

	require.NoError(t, svc.GenerateBatch(context.Background(), task.GenerateJob{
		Mode: task.JobModeBatch, TaskID: testTaskID, UserID: 1,
	}))

	// THEN: 第一页不再扣费，流水里只有另外两页的 debit
	var debits int
	for _, tx := range store.txs {
		if tx.TxType == models.TxTypeDebit {
			debits++
		}
	}
	assert.Equal(t, 2, debits)
	balance, _ := store.GetBalance(context.Background(), 1)
	assert.EqualValues(t, 1000-30, balance)
}

func TestGenerateBatch_RegenerateBumpsVersions(t *testing.T) {
	// GIVEN: 已经成功生成过一轮的任务
	store, _, _, svc := newGenEnv(t, false)
	seedTask(store, models.TaskStatusOutlineReady, threePages())
	require.NoError(t, svc.GenerateBatch(context.Background(), task.GenerateJob{
		Mode: task.JobModeBatch, TaskID: testTaskID, UserID: 1,
	}))

	// WHEN: 带重绘标记再跑一轮
	require.NoError(t, svc.GenerateBatch(context.Background(), task.GenerateJob{
		Mode: task.JobModeBatch, TaskID: testTaskID, UserID: 1, IsRegenerate: true,
	}))

	// THEN: 每页两个版本，版本 2 成为当前版本，来源标记为批量重绘
	for idx := 0; idx < 3; idx++ {
		versions, _ := store.ListVersions(context.Background(), testTaskID, idx)
		require.Len(t, versions, 2)
		assert.Equal(t, 2, versions[0].Version)
		assert.True(t, versions[0].IsCurrent)
		assert.Equal(t, models.GeneratedByBatchRegenerate, versions[0].GeneratedBy)
		assert.False(t, versions[1].IsCurrent)
	}
}

func TestGenerateBatch_ParallelCompletesAll(t *testing.T) {
	// GIVEN: 并行策略下的五页任务
	store, rec, _, svc := newGenEnv(t, true)
	pages := []models.Page{
		{Index: 0, Type: models.PageTypeCover, Content: "封面"},
		{Index: 1, Type: models.PageTypeContent, Content: "第一"},
		{Index: 2, Type: models.PageTypeContent, Content: "第二"},
		{Index: 3, Type: models.PageTypeContent, Content: "第三"},
		{Index: 4, Type: models.PageTypeSummary, Content: "总结"},
	}
	seedTask(store, models.TaskStatusOutlineReady, pages)

	require.NoError(t, svc.GenerateBatch(context.Background(), task.GenerateJob{
		Mode: task.JobModeBatch, TaskID: testTaskID, UserID: 1,
	}))

	// THEN: 全部页面完成，finish 在所有 complete 之后
	tk, _ := store.GetTask(context.Background(), testTaskID)
	assert.Equal(t, models.TaskStatusCompleted, tk.Status)
	assert.Equal(t, 5, tk.GeneratedPages)
	assert.Len(t, rec.byType(sse.EventComplete), 5)
	events := rec.all()
	assert.Equal(t, sse.EventFinish, events[len(events)-1].Type)
}

func TestGenerateBatch_CancelStopsDispatch(t *testing.T) {
	// GIVEN: 封面生成期间任务被取消
	store, rec, gen, svc := newGenEnv(t, false)
	seedTask(store, models.TaskStatusOutlineReady, threePages())
	gen.imageErr = func(prompt string) error {
		_ = svc.Cancel(context.Background(), testTaskID)
		return nil
	}

	err := svc.GenerateBatch(context.Background(), task.GenerateJob{
		Mode: task.JobModeBatch, TaskID: testTaskID, UserID: 1,
	})
	assert.ErrorIs(t, err, ErrTaskCanceled)

	// THEN: 后续页面不再派发，任务保持失败态
	tk, _ := store.GetTask(context.Background(), testTaskID)
	assert.Equal(t, models.TaskStatusFailed, tk.Status)
	assert.Len(t, gen.calls(), 1)
	events := rec.all()
	assert.Equal(t, sse.EventFinish, events[len(events)-1].Type)
}

func TestRegenerateSingle_NewVersionBecomesCurrent(t *testing.T) {
	// GIVEN: 已完成的任务，第二页有一个版本
	store, rec, _, svc := newGenEnv(t, false)
	seedTask(store, models.TaskStatusOutlineReady, threePages())
	require.NoError(t, svc.GenerateBatch(context.Background(), task.GenerateJob{
		Mode: task.JobModeBatch, TaskID: testTaskID, UserID: 1,
	}))
	rec.mu.Lock()
	rec.events = nil
	rec.mu.Unlock()

	// WHEN: 单页重绘，带自定义提示词
	err := svc.RegenerateSingle(context.Background(), task.GenerateJob{
		Mode: task.JobModeSingle, TaskID: testTaskID, UserID: 1,
		PageIndex: 1, Prompt: "换成更亮的配色",
	})
	require.NoError(t, err)

	// THEN: 版本 2 成为当前版本，来源是单页重绘，自定义提示词生效
	versions, _ := store.ListVersions(context.Background(), testTaskID, 1)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)
	assert.True(t, versions[0].IsCurrent)
	assert.Equal(t, models.GeneratedBySingleRegen, versions[0].GeneratedBy)
	assert.Equal(t, "换成更亮的配色", versions[0].Prompt)

	// AND: 其他页不受影响
	others, _ := store.ListVersions(context.Background(), testTaskID, 2)
	require.Len(t, others, 1)
	assert.True(t, others[0].IsCurrent)

	// AND: 事件流是 progress → complete → finish
	events := rec.all()
	require.Len(t, events, 3)
	assert.Equal(t, sse.EventProgress, events[0].Type)
	assert.Equal(t, sse.EventComplete, events[1].Type)
	assert.Equal(t, sse.EventFinish, events[2].Type)
}

func TestRegenerateSingle_UnknownPage(t *testing.T) {
	store, _, _, svc := newGenEnv(t, false)
	seedTask(store, models.TaskStatusCompleted, threePages())

	err := svc.RegenerateSingle(context.Background(), task.GenerateJob{
		Mode: task.JobModeSingle, TaskID: testTaskID, UserID: 1, PageIndex: 9,
	})
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestGenerateBatch_ArchivesLocalCopies(t *testing.T) {
	// GIVEN: 可下载的生成结果和配置好的落盘目录
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("jpeg"))
	}))
	defer srv.Close()

	store, _, gen, svc := newGenEnv(t, false)
	gen.baseURL = srv.URL
	dir := t.TempDir()
	svc.opts.LocalDir = dir
	seedTask(store, models.TaskStatusOutlineReady, threePages())

	require.NoError(t, svc.GenerateBatch(context.Background(), task.GenerateJob{
		Mode: task.JobModeBatch, TaskID: testTaskID, UserID: 1,
	}))

	// THEN: 每页首版都有一份本地副本，库里保留服务商地址
	for idx := 0; idx < 3; idx++ {
		name := fmt.Sprintf("%d_%d_v1.jpg", testTaskID, idx)
		data, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, "jpeg", string(data))

		versions, _ := store.ListVersions(context.Background(), testTaskID, idx)
		require.Len(t, versions, 1)
		assert.True(t, strings.HasPrefix(versions[0].ImageURL, srv.URL))
	}
}

func TestGenerateBatch_PassesImageOptions(t *testing.T) {
	store, _, gen, svc := newGenEnv(t, false)
	svc.opts.ImageSize = "1024x1365"
	svc.opts.ImageQuality = "hd"
	seedTask(store, models.TaskStatusOutlineReady, threePages())

	require.NoError(t, svc.GenerateBatch(context.Background(), task.GenerateJob{
		Mode: task.JobModeBatch, TaskID: testTaskID, UserID: 1,
	}))

	// 尺寸和画质逐次传给适配器
	calls := gen.calls()
	require.Len(t, calls, 3)
	for _, call := range calls {
		assert.Equal(t, "1024x1365", call.size)
		assert.Equal(t, "hd", call.quality)
	}
}

func TestGenerateBatch_ReleasesProcessState(t *testing.T) {
	store, _, _, svc := newGenEnv(t, false)
	seedTask(store, models.TaskStatusOutlineReady, threePages())

	require.NoError(t, svc.GenerateBatch(context.Background(), task.GenerateJob{
		Mode: task.JobModeBatch, TaskID: testTaskID, UserID: 1,
	}))

	// 批次收尾后进程内不残留页锁
	assert.Zero(t, syncMapLen(&svc.pageLocks))
	assert.Zero(t, syncMapLen(&svc.canceled))

	// 单页重绘同样不残留
	require.NoError(t, svc.RegenerateSingle(context.Background(), task.GenerateJob{
		Mode: task.JobModeSingle, TaskID: testTaskID, UserID: 1, PageIndex: 1,
	}))
	assert.Zero(t, syncMapLen(&svc.pageLocks))
}

func TestGenerateBatch_CancelMarkerClearedAfterBatch(t *testing.T) {
	store, _, gen, svc := newGenEnv(t, false)
	seedTask(store, models.TaskStatusOutlineReady, threePages())
	gen.imageErr = func(prompt string) error {
		svc.Cancel(context.Background(), testTaskID)
		return nil
	}

	err := svc.GenerateBatch(context.Background(), task.GenerateJob{
		Mode: task.JobModeBatch, TaskID: testTaskID, UserID: 1,
	})
	require.ErrorIs(t, err, ErrTaskCanceled)
	assert.Zero(t, syncMapLen(&svc.canceled))
}

func syncMapLen(m *sync.Map) int {
	n := 0
	m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

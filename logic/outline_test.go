package logic

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xhs-creator/models"
	"xhs-creator/pkg/breaker"
	"xhs-creator/pkg/snowflake"
)

const validOutline = `<page>[封面] 秋日穿搭指南</page>
<page>[内容] 燕麦色大衣怎么配</page>
<page>[总结] 三套穿搭速览</page>`

func newOutlineEnv(t *testing.T) (*memStore, *fakeGenerator, *OutlineService) {
	t.Helper()
	require.NoError(t, snowflake.Init(1))
	store := newMemStore()
	store.usage[1] = 3
	store.balances[1] = 100
	gen := &fakeGenerator{text: validOutline}
	svc := NewOutlineService(store, newTestBilling(store), &fakeResolver{gen: gen},
		breaker.NewRegistry(breaker.DefaultOptions()))
	return store, gen, svc
}

func TestGenerateOutline_Success(t *testing.T) {
	// GIVEN: 模型返回结构良好的大纲
	store, gen, svc := newOutlineEnv(t)

	// WHEN: 生成大纲
	tk, err := svc.GenerateOutline(context.Background(), &models.OutlineForm{
		UserID: 1, Topic: "秋日穿搭",
	})
	require.NoError(t, err)

	// THEN: 任务进入 outline_ready，分页正确
	assert.Equal(t, models.TaskStatusOutlineReady, tk.Status)
	require.Len(t, tk.Pages, 3)
	assert.Equal(t, models.PageTypeCover, tk.Pages[0].Type)
	assert.Equal(t, 3, tk.TotalPages)

	// AND: 扣了一次大纲费用（10）
	balance, _ := store.GetBalance(context.Background(), 1)
	assert.EqualValues(t, 90, balance)

	// AND: 提示词里替换了主题
	require.Len(t, gen.textPrompts, 1)
	assert.True(t, strings.Contains(gen.textPrompts[0], "秋日穿搭"))
	stored, _ := store.GetTask(context.Background(), tk.TaskID)
	assert.Equal(t, models.TaskStatusOutlineReady, stored.Status)
}

func TestGenerateOutline_ReferenceImagesInPrompt(t *testing.T) {
	_, gen, svc := newOutlineEnv(t)

	_, err := svc.GenerateOutline(context.Background(), &models.OutlineForm{
		UserID: 1, Topic: "五分钟早餐",
		UserImages: []string{"https://u.example.com/1.jpg", "https://u.example.com/2.jpg"},
	})
	require.NoError(t, err)

	// 文本提示词带上参考图说明
	require.Len(t, gen.textPrompts, 1)
	assert.True(t, strings.Contains(gen.textPrompts[0], "2 张参考图"))
}

func TestGenerateOutline_ProviderErrorRollsBack(t *testing.T) {
	// GIVEN: 文本生成失败
	store, gen, svc := newOutlineEnv(t)
	gen.textErr = errors.New("provider error")

	// WHEN: 生成大纲
	_, err := svc.GenerateOutline(context.Background(), &models.OutlineForm{
		UserID: 1, Topic: "秋日穿搭",
	})
	require.Error(t, err)

	// THEN: 扣费被退回，任务失败
	balance, _ := store.GetBalance(context.Background(), 1)
	assert.EqualValues(t, 100, balance)
	var failed bool
	for _, tk := range store.tasks {
		if tk.Status == models.TaskStatusFailed {
			failed = true
		}
	}
	assert.True(t, failed)
}

func TestGenerateOutline_UnparseableRollsBack(t *testing.T) {
	// GIVEN: 模型返回无结构文本
	store, gen, svc := newOutlineEnv(t)
	gen.text = "一段完全没有分页结构的回复"

	_, err := svc.GenerateOutline(context.Background(), &models.OutlineForm{
		UserID: 1, Topic: "秋日穿搭",
	})
	assert.ErrorIs(t, err, ErrEmptyOutline)

	balance, _ := store.GetBalance(context.Background(), 1)
	assert.EqualValues(t, 100, balance)
}

func TestGenerateOutline_InsufficientBalance(t *testing.T) {
	// GIVEN: 免费额度用尽且余额不足
	store, _, svc := newOutlineEnv(t)
	store.balances[1] = 5

	_, err := svc.GenerateOutline(context.Background(), &models.OutlineForm{
		UserID: 1, Topic: "秋日穿搭",
	})
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// 没创建任何任务
	assert.Empty(t, store.tasks)
}

func TestGenerateOutline_FreeUsageNotRefunded(t *testing.T) {
	// GIVEN: 免费额度可用但生成失败
	store, gen, svc := newOutlineEnv(t)
	store.usage[1] = 0
	gen.textErr = errors.New("provider error")

	_, err := svc.GenerateOutline(context.Background(), &models.OutlineForm{
		UserID: 1, Topic: "秋日穿搭",
	})
	require.Error(t, err)

	// THEN: 免费次数已消耗不回退，也没有钱包流水
	count, _ := store.GetFreeUsageCount(context.Background(), 1)
	assert.Equal(t, 1, count)
	assert.Empty(t, store.txs)
}

func TestBuildPrompt_TopicSubstitution(t *testing.T) {
	_, _, svc := newOutlineEnv(t)

	prompt := svc.buildPrompt(&models.OutlineForm{Topic: "租房避坑"})
	assert.True(t, strings.Contains(prompt, "租房避坑"))
	assert.False(t, strings.Contains(prompt, "{topic}"))

	withRefs := svc.buildPrompt(&models.OutlineForm{
		Topic: "租房避坑", UserImages: []string{"a", "b", "c"},
	})
	assert.True(t, strings.Contains(withRefs, "3 张参考图"))
}

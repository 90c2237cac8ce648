package logic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xhs-creator/models"
)

func TestParseOutline_PageTags(t *testing.T) {
	// GIVEN: 带 <page> 标记的大纲文本
	text := `开场白，不属于任何页面
<page>[封面] 秋日穿搭指南</page>
<page>[内容] 第一套：燕麦色大衣配直筒裤</page>
<page>[总结] 三套穿搭总结与购买清单</page>`

	// WHEN: 解析
	pages := ParseOutline(text)

	// THEN: 三页按顺序产出，类型与内容正确，标记被剥掉
	require.Len(t, pages, 3)
	assert.Equal(t, models.PageTypeCover, pages[0].Type)
	assert.Equal(t, "秋日穿搭指南", pages[0].Content)
	assert.Equal(t, models.PageTypeContent, pages[1].Type)
	assert.Equal(t, models.PageTypeSummary, pages[2].Type)
	assert.Equal(t, 0, pages[0].Index)
	assert.Equal(t, 2, pages[2].Index)
}

func TestParseOutline_Separators(t *testing.T) {
	// GIVEN: 没有 <page> 标记，用 --- 分隔
	text := `[封面] 五分钟早餐
---
[内容] 第一天：牛油果吐司
---
[内容] 第二天：隔夜燕麦`

	pages := ParseOutline(text)

	require.Len(t, pages, 3)
	assert.Equal(t, models.PageTypeCover, pages[0].Type)
	assert.Equal(t, "第二天：隔夜燕麦", pages[2].Content)
}

func TestParseOutline_LegacyHeaders(t *testing.T) {
	// GIVEN: 旧版【第N页 - 类型】标题格式
	text := `【第1页 - 封面】租房避坑指南
【第2页 - 内容】看房时必须检查的五个细节
【第3页】没写类型的页`

	pages := ParseOutline(text)

	require.Len(t, pages, 3)
	assert.Equal(t, models.PageTypeCover, pages[0].Type)
	assert.Equal(t, "租房避坑指南", pages[0].Content)
	// 类型缺失默认按内容页
	assert.Equal(t, models.PageTypeContent, pages[2].Type)
}

func TestParseOutline_StrategyPriority(t *testing.T) {
	// GIVEN: 同时出现 <page> 标记和 --- 分隔线
	text := `<page>[封面] 标题</page>
---
<page>[内容] 正文</page>`

	pages := ParseOutline(text)

	// THEN: <page> 策略优先，--- 不参与切分
	require.Len(t, pages, 2)
	assert.Equal(t, "标题", pages[0].Content)
	assert.Equal(t, "正文", pages[1].Content)
}

func TestParseOutline_UnknownMarkerKept(t *testing.T) {
	// GIVEN: 开头是识别不了的方括号标签
	text := `<page>[重点] 这一行的标签不是类型标记</page>`

	pages := ParseOutline(text)

	// THEN: 按内容页处理，标签保留在正文里
	require.Len(t, pages, 1)
	assert.Equal(t, models.PageTypeContent, pages[0].Type)
	assert.Equal(t, "[重点] 这一行的标签不是类型标记", pages[0].Content)
}

func TestParseOutline_BlankPagesDropped(t *testing.T) {
	text := `<page>[封面] 标题</page>
<page>   </page>
<page>[内容] 正文</page>`

	pages := ParseOutline(text)

	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[1].Index)
}

func TestParseOutline_Unparseable(t *testing.T) {
	// GIVEN: 一段纯文本，三种策略都切不出页面
	pages := ParseOutline("这只是一段没有任何结构的闲聊文本")

	assert.Empty(t, pages)
}

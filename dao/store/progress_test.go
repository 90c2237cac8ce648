package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProgressFromHash_EmptyHashMeansNoSnapshot(t *testing.T) {
	// HGetAll 对不存在的 key 返回空 map，未知任务必须得到 nil 而不是空快照
	assert.Nil(t, progressFromHash(42, nil))
	assert.Nil(t, progressFromHash(42, map[string]string{}))
}

func TestProgressFromHash_RebuildsSnapshot(t *testing.T) {
	hash := map[string]string{
		"stage":         "image",
		"current":       "2",
		"total":         "3",
		"page:0:status": "failed",
		"page:0:url":    "",
		"page:0:msg":    "服务商超时",
		"page:1:status": "completed",
		"page:1:url":    "https://img.example.com/1.jpg",
		"page:1:msg":    "",
	}

	p := progressFromHash(7, hash)
	require.NotNil(t, p)
	assert.EqualValues(t, 7, p.TaskID)
	assert.Equal(t, "image", p.Stage)
	assert.Equal(t, 2, p.Current)
	assert.Equal(t, 3, p.Total)

	// 页码升序
	require.Len(t, p.Pages, 2)
	assert.Equal(t, 0, p.Pages[0].PageIndex)
	assert.Equal(t, "failed", p.Pages[0].Status)
	assert.Equal(t, "服务商超时", p.Pages[0].Message)
	assert.Equal(t, 1, p.Pages[1].PageIndex)
	assert.Equal(t, "completed", p.Pages[1].Status)
	assert.Equal(t, "https://img.example.com/1.jpg", p.Pages[1].ImageURL)
}

func TestProgressFromHash_IgnoresMalformedFields(t *testing.T) {
	p := progressFromHash(7, map[string]string{
		"stage":      "image",
		"page:x:url": "https://img.example.com/x.jpg",
		"page:3":     "garbage",
		"unrelated":  "value",
		"page:2:url": "https://img.example.com/2.jpg",
	})
	require.NotNil(t, p)
	require.Len(t, p.Pages, 1)
	assert.Equal(t, 2, p.Pages[0].PageIndex)
}

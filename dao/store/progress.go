package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"xhs-creator/models"
)

// 进度快照存在 redis hash 里，事件流只是它的推送视图：
// 每个事件在发布前先落快照，断线客户端轮询快照即可补齐状态。
const progressTTL = 24 * time.Hour

// ProgressStore 任务进度快照的读写
type ProgressStore struct {
	client *redis.Client
}

func NewProgressStore(client *redis.Client) *ProgressStore {
	return &ProgressStore{client: client}
}

func progressKey(taskID uint64) string {
	return "task:" + strconv.FormatUint(taskID, 10) + ":progress"
}

// InitProgress 批次开始前重置快照
func (p *ProgressStore) InitProgress(ctx context.Context, taskID uint64, total int) error {
	key := progressKey(taskID)
	pipe := p.client.TxPipeline()
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, map[string]interface{}{
		"stage":   "image",
		"current": 0,
		"total":   total,
	})
	pipe.Expire(ctx, key, progressTTL)
	_, err := pipe.Exec(ctx)
	return err
}

// SetStage 更新批次阶段与已完成计数
func (p *ProgressStore) SetStage(ctx context.Context, taskID uint64, stage string, current, total int) error {
	return p.client.HSet(ctx, progressKey(taskID), map[string]interface{}{
		"stage":   stage,
		"current": current,
		"total":   total,
	}).Err()
}

// SetPageStatus 更新单页状态
func (p *ProgressStore) SetPageStatus(ctx context.Context, taskID uint64, pageIndex int, status, imageURL, errMsg string) error {
	prefix := fmt.Sprintf("page:%d:", pageIndex)
	return p.client.HSet(ctx, progressKey(taskID), map[string]interface{}{
		prefix + "status": status,
		prefix + "url":    imageURL,
		prefix + "msg":    errMsg,
	}).Err()
}

// GetProgress 读取快照，任务没有进度数据时返回 nil
func (p *ProgressStore) GetProgress(ctx context.Context, taskID uint64) (*models.TaskProgress, error) {
	hash, err := p.client.HGetAll(ctx, progressKey(taskID)).Result()
	if err != nil {
		return nil, err
	}
	return progressFromHash(taskID, hash), nil
}

// progressFromHash 把 redis hash 还原成进度快照。
// HGetAll 对不存在的 key 返回空 map，视为任务无进度。
func progressFromHash(taskID uint64, hash map[string]string) *models.TaskProgress {
	if len(hash) == 0 {
		return nil
	}
	progress := &models.TaskProgress{TaskID: taskID, Pages: []models.PageProgress{}}
	progress.Stage = hash["stage"]
	progress.Current, _ = strconv.Atoi(hash["current"])
	progress.Total, _ = strconv.Atoi(hash["total"])

	pages := map[int]*models.PageProgress{}
	pageOf := func(idx int) *models.PageProgress {
		pp, ok := pages[idx]
		if !ok {
			pp = &models.PageProgress{PageIndex: idx}
			pages[idx] = pp
		}
		return pp
	}
	for field, value := range hash {
		if !strings.HasPrefix(field, "page:") {
			continue
		}
		parts := strings.SplitN(field, ":", 3)
		if len(parts) != 3 {
			continue
		}
		idx, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		switch parts[2] {
		case "status":
			pageOf(idx).Status = value
		case "url":
			pageOf(idx).ImageURL = value
		case "msg":
			pageOf(idx).Message = value
		}
	}
	for _, pp := range pages {
		progress.Pages = append(progress.Pages, *pp)
	}
	sort.Slice(progress.Pages, func(i, j int) bool {
		return progress.Pages[i].PageIndex < progress.Pages[j].PageIndex
	})
	return progress
}

// ClearProgress 任务删除时连同快照一起清理
func (p *ProgressStore) ClearProgress(ctx context.Context, taskID uint64) error {
	return p.client.Del(ctx, progressKey(taskID)).Err()
}

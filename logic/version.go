package logic

import (
	"context"

	"go.uber.org/zap"

	"xhs-creator/models"
)

// VersionService 版本历史查询与恢复。
// 恢复只移动 is_current 指针：不产生新版本行、不触发任何计费、不调用生成服务。
type VersionService struct {
	tasks    TaskStore
	images   ImageStore
	versions VersionStore
}

func NewVersionService(tasks TaskStore, images ImageStore, versions VersionStore) *VersionService {
	return &VersionService{tasks: tasks, images: images, versions: versions}
}

// ListVersions 某一页的全部历史版本，新版本在前
func (s *VersionService) ListVersions(ctx context.Context, taskID uint64, pageIndex int) ([]models.ImageVersion, error) {
	img, err := s.images.GetImage(ctx, taskID, pageIndex)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, ErrImageNotFound
	}
	return s.versions.ListVersions(ctx, taskID, pageIndex)
}

// GetVersion 按版本 ID 读取单条版本记录
func (s *VersionService) GetVersion(ctx context.Context, versionID uint64) (*models.ImageVersion, error) {
	return s.versions.GetVersion(ctx, versionID)
}

// RestoreVersion 把指定页面恢复到历史版本 version。
// 目标版本已是当前版本时为幂等空操作。封面页恢复后同步任务封面地址。
func (s *VersionService) RestoreVersion(ctx context.Context, taskID uint64, pageIndex, version int) (*models.ImageVersion, error) {
	img, err := s.images.GetImage(ctx, taskID, pageIndex)
	if err != nil {
		return nil, err
	}
	if img == nil {
		return nil, ErrImageNotFound
	}

	restored, err := s.versions.RestoreVersion(ctx, taskID, pageIndex, version)
	if err != nil {
		return nil, err
	}

	if img.PageType == models.PageTypeCover {
		if serr := s.tasks.SetTaskCover(ctx, taskID, restored.ImageURL); serr != nil {
			zap.L().Error("恢复版本后同步封面失败",
				zap.Uint64("task_id", taskID),
				zap.Int("page_index", pageIndex),
				zap.Error(serr))
		}
	}
	zap.L().Info("版本恢复完成",
		zap.Uint64("task_id", taskID),
		zap.Int("page_index", pageIndex),
		zap.Int("version", version))
	return restored, nil
}

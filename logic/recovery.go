package logic

import (
	"context"
	"time"

	"go.uber.org/zap"

	"xhs-creator/models"
)

const (
	defaultSweepInterval = time.Minute
	defaultStuckTimeout  = 10 * time.Minute

	orphanMessage = "服务重启，任务已中断"
	stuckMessage  = "任务执行超时"
)

// RecoveryService 任务回收：
// 启动时把所有 generating_* 状态的孤儿任务标记失败（进程重启后没有 worker 会继续它们），
// 之后周期扫描超时卡死的任务。失败页的积分回滚已在生成路径内完成，回收只改状态。
type RecoveryService struct {
	store    RecoveryStore
	interval time.Duration
	timeout  time.Duration
	stop     chan struct{}
}

func NewRecoveryService(store RecoveryStore) *RecoveryService {
	return &RecoveryService{
		store:    store,
		interval: defaultSweepInterval,
		timeout:  defaultStuckTimeout,
		stop:     make(chan struct{}),
	}
}

// ReclaimOrphans 启动时调用一次
func (s *RecoveryService) ReclaimOrphans(ctx context.Context) error {
	n, err := s.store.FailTasksInStatuses(ctx, []string{
		models.TaskStatusGeneratingOutline,
		models.TaskStatusGeneratingImages,
	}, orphanMessage)
	if err != nil {
		return err
	}
	if n > 0 {
		zap.L().Warn("回收孤儿任务", zap.Int64("count", n))
	}
	return nil
}

// Start 启动后台扫描协程
func (s *RecoveryService) Start() {
	go s.loop()
}

func (s *RecoveryService) Stop() {
	close(s.stop)
}

func (s *RecoveryService) loop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *RecoveryService) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	n, err := s.store.FailStuckTasks(ctx, time.Now().Add(-s.timeout), stuckMessage)
	if err != nil {
		zap.L().Error("扫描超时任务失败", zap.Error(err))
		return
	}
	if n > 0 {
		zap.L().Warn("标记超时任务失败", zap.Int64("count", n))
	}
}

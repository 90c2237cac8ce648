package worker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"xhs-creator/logic"
	"xhs-creator/queue"
	"xhs-creator/task"
)

// JobProcessor 从队列消费生成任务并派发到编排层。
// 队列层负责 Ack/Nack 与重投，这里只做模式分发。
type JobProcessor struct {
	queue queue.JobQueue
	gen   *logic.GenerateService
}

func NewJobProcessor(q queue.JobQueue, gen *logic.GenerateService) *JobProcessor {
	return &JobProcessor{queue: q, gen: gen}
}

// Start 挂载消费回调，消费循环由队列层驱动
func (p *JobProcessor) Start() error {
	return p.queue.Consume(p.process)
}

func (p *JobProcessor) process(ctx context.Context, job task.GenerateJob) error {
	zap.L().Info("开始处理生成任务",
		zap.Uint64("task_id", job.TaskID),
		zap.String("mode", job.Mode))
	switch job.Mode {
	case task.JobModeBatch:
		return p.gen.GenerateBatch(ctx, job)
	case task.JobModeSingle:
		return p.gen.RegenerateSingle(ctx, job)
	default:
		return fmt.Errorf("unknown job mode: %s", job.Mode)
	}
}

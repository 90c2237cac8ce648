package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"

	"github.com/streadway/amqp"
	"go.uber.org/zap"

	"xhs-creator/task"
)

// JobQueue 生成任务队列的最小接口（发布与消费）
type JobQueue interface {
	PublishJob(job task.GenerateJob) error
	Consume(handler func(ctx context.Context, job task.GenerateJob) error) error
	Close() error
}

var (
	rabbitOnce     sync.Once
	rabbitInstance JobQueue
	rabbitInitErr  error
)

// InitRabbitMQ 使用单例模式初始化 RabbitMQ（首次调用生效，后续调用忽略）
func InitRabbitMQ(dsn string) error {
	rabbitOnce.Do(func() {
		inst, err := newAMQPQueue(dsn)
		if err != nil {
			rabbitInitErr = err
			zap.L().Error("初始化 AMQP 队列失败", zap.Error(err))
			return
		}
		rabbitInstance = inst
	})
	return rabbitInitErr
}

// GetRabbitMQ 返回单例的 JobQueue，未初始化或初始化失败时返回错误
func GetRabbitMQ() (JobQueue, error) {
	if rabbitInstance == nil {
		if rabbitInitErr != nil {
			return nil, rabbitInitErr
		}
		return nil, errors.New("rabbitmq not initialized; call InitRabbitMQ")
	}
	return rabbitInstance, nil
}

// --- AMQP 实现 ---------------------------------------------------------
type amqpQueue struct {
	conn      *amqp.Connection
	ch        *amqp.Channel
	queueName string
}

func newAMQPQueue(dsn string) (JobQueue, error) {
	conn, err := amqp.Dial(dsn)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}
	q, err := ch.QueueDeclare(
		"generate_jobs", // name
		true,            // durable
		false,           // delete when unused
		false,           // exclusive
		false,           // no-wait
		nil,             // args
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}
	// prefetch 与消费者并发数配合：一个进程同时最多跑 3 个批次
	_ = ch.Qos(3, 0, false)
	return &amqpQueue{conn: conn, ch: ch, queueName: q.Name}, nil
}

func (q *amqpQueue) PublishJob(job task.GenerateJob) error {
	b, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.ch.Publish(
		"", q.queueName, false, false,
		amqp.Publishing{ContentType: "application/json", Body: b, DeliveryMode: amqp.Persistent},
	)
}

// Consume 启动消费循环，handler 返回 nil 则 Ack；
// 首次失败 Nack 重新入队，二次投递仍失败则丢弃（生成路径本身已把任务标记失败）
func (q *amqpQueue) Consume(handler func(ctx context.Context, job task.GenerateJob) error) error {
	deliveries, err := q.ch.Consume(q.queueName, "", false, false, false, false, nil)
	if err != nil {
		return err
	}

	concurrency := 3
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	go func() {
		for d := range deliveries {
			sem <- struct{}{}
			wg.Add(1)
			go func(del amqp.Delivery) {
				defer func() { <-sem; wg.Done() }()

				var job task.GenerateJob
				if err := json.Unmarshal(del.Body, &job); err != nil {
					zap.L().Error("解析生成任务消息失败", zap.Error(err))
					del.Nack(false, false)
					return
				}
				if err := handler(context.Background(), job); err != nil {
					zap.L().Error("处理生成任务失败",
						zap.Uint64("task_id", job.TaskID),
						zap.Bool("redelivered", del.Redelivered),
						zap.Error(err))
					del.Nack(false, !del.Redelivered)
					return
				}
				del.Ack(false)
			}(d)
		}
		wg.Wait()
	}()
	return nil
}

func (q *amqpQueue) Close() error {
	if err := q.ch.Close(); err != nil {
		return err
	}
	return q.conn.Close()
}

package sse

// Hub 管理基于 topic（任务 ID）的事件订阅者。
//
// 说明：
//   - 每个 topic 对应一组客户端通道，Hub 把发布到该 topic 的事件广播给所有订阅者。
//   - 订阅/取消订阅/发布通过三个控制通道在单个 goroutine 中串行化，
//     外部并发调用不会对 topics 产生竞态。
//   - 发布是 fire-and-forget：订阅通道写不进去就丢弃该条事件，
//     慢消费者不会阻塞生成流程，断线客户端靠进度快照接口补齐状态。
type Hub struct {
	topics map[string]map[chan Event]bool

	subscribe   chan subscription
	unsubscribe chan subscription
	publish     chan topicEvent
	stop        chan struct{}
}

type subscription struct {
	ch    chan Event
	topic string
}

type topicEvent struct {
	topic string
	ev    Event
}

// NewHub 创建一个 Hub。publish 通道带缓冲（256），吸收短时的发布突发。
func NewHub() *Hub {
	return &Hub{
		topics:      make(map[string]map[chan Event]bool),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		publish:     make(chan topicEvent, 256),
		stop:        make(chan struct{}),
	}
}

// Run 启动事件循环，应在独立 goroutine 中运行：
//
//	hub := sse.NewHub()
//	go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			return
		case s := <-h.subscribe:
			subs, ok := h.topics[s.topic]
			if !ok {
				subs = make(map[chan Event]bool)
				h.topics[s.topic] = subs
			}
			subs[s.ch] = true
		case s := <-h.unsubscribe:
			if subs, ok := h.topics[s.topic]; ok {
				delete(subs, s.ch)
				if len(subs) == 0 {
					delete(h.topics, s.topic)
				}
			}
		case te := <-h.publish:
			for ch := range h.topics[te.topic] {
				select {
				case ch <- te.ev:
				default:
					// 客户端没在读，丢弃
				}
			}
		}
	}
}

// Stop 关闭事件循环，服务退出时调用
func (h *Hub) Stop() {
	close(h.stop)
}

// Publish 把事件发布到指定 topic 的所有订阅者
func (h *Hub) Publish(topic string, ev Event) {
	select {
	case h.publish <- topicEvent{topic: topic, ev: ev}:
	case <-h.stop:
	}
}

// Subscribe 注册订阅通道。调用方应提供带缓冲的通道（建议 16 以上），
// 在不再需要时负责 Unsubscribe；Hub 不会关闭订阅者的通道。
func (h *Hub) Subscribe(ch chan Event, topic string) {
	select {
	case h.subscribe <- subscription{ch: ch, topic: topic}:
	case <-h.stop:
	}
}

// Unsubscribe 取消订阅
func (h *Hub) Unsubscribe(ch chan Event, topic string) {
	select {
	case h.unsubscribe <- subscription{ch: ch, topic: topic}:
	case <-h.stop:
	}
}

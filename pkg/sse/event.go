package sse

import "encoding/json"

// 事件类型，progress/complete/error 为过程事件，finish 表示流结束
const (
	EventProgress = "progress"
	EventComplete = "complete"
	EventError    = "error"
	EventFinish   = "finish"
)

// Event 推送给客户端的进度事件。
// 并行策略下事件按编排器观测到的完成顺序发出，不保证 page_index 有序。
type Event struct {
	Type      string `json:"type"`
	Stage     string `json:"stage,omitempty"` // outline/cover/image
	Current   int    `json:"current,omitempty"`
	Total     int    `json:"total,omitempty"`
	PageIndex *int   `json:"page_index,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Encode 序列化为 SSE data 载荷
func (e Event) Encode() []byte {
	b, _ := json.Marshal(e)
	return b
}

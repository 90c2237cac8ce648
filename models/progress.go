package models

// PageProgress 单页的服务端权威进度
type PageProgress struct {
	PageIndex int    `json:"page_index"`
	Status    string `json:"status"`
	ImageURL  string `json:"image_url,omitempty"`
	Message   string `json:"message,omitempty"`
}

// TaskProgress 任务进度快照。断线重连的客户端不必重新订阅事件流，
// 轮询该快照即可恢复到服务端权威状态。
type TaskProgress struct {
	TaskID  uint64         `json:"task_id"`
	Stage   string         `json:"stage"`
	Current int            `json:"current"`
	Total   int            `json:"total"`
	Pages   []PageProgress `json:"pages"`
}

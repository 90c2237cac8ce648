package sse

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Stream 以 SSE 格式向客户端转发指定 topic 的事件，
// 收到 finish 事件或客户端断开连接后返回。
func Stream(c *gin.Context, h *Hub, topic string) {
	// SSE 必要的响应头，保证浏览器和代理按流式处理
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.String(http.StatusInternalServerError, "streaming unsupported")
		return
	}

	msgCh := make(chan Event, 32)
	h.Subscribe(msgCh, topic)
	defer h.Unsubscribe(msgCh, topic)

	notify := c.Request.Context().Done()
	// 发送一个注释作为握手/保活，部分代理需要它来维持连接
	fmt.Fprintf(c.Writer, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-notify:
			return
		case ev := <-msgCh:
			fmt.Fprintf(c.Writer, "data: %s\n\n", ev.Encode())
			flusher.Flush()
			if ev.Type == EventFinish {
				return
			}
		}
	}
}

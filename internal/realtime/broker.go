// Package realtime 通过 SSE 向仪表盘推送列表追加、通知与概览变化。
package realtime

import (
	"encoding/json"
	"sync"
)

// 事件类型。
const (
	EventFindingsAppended = "findings_appended"
	EventNotification     = "notification"
	EventOverviewChanged  = "overview_changed"
)

// Event 描述 SSE 推送时的消息载荷。Feed 为空时广播给所有订阅者。
type Event struct {
	Type    string      `json:"type"`
	Feed    string      `json:"feed,omitempty"`
	Payload interface{} `json:"payload,omitempty"`
}

// Broker 负责向实时订阅者（SSE 客户端）分发事件。
type Broker struct {
	mu       sync.RWMutex
	clients  map[chan []byte]string
	shutdown chan struct{}
	once     sync.Once
}

// NewBroker 创建一个新的 Broker 实例。
func NewBroker() *Broker {
	return &Broker{
		clients:  make(map[chan []byte]string),
		shutdown: make(chan struct{}),
	}
}

// Subscribe 注册客户端通道并返回清理函数。feed 为该客户端所属的加载会话，可为空。
func (b *Broker) Subscribe(feed string) (<-chan []byte, func()) {
	ch := make(chan []byte, 8)
	b.mu.Lock()
	b.clients[ch] = feed
	b.mu.Unlock()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.clients, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cleanup
}

// Publish 将事件发给匹配的订阅者。
func (b *Broker) Publish(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch, feed := range b.clients {
		if evt.Feed != "" && evt.Feed != feed {
			continue
		}
		select {
		case ch <- data:
		default:
			// 如果订阅者处理过慢则丢弃消息，避免阻塞。
		}
	}
}

// Subscribers 返回当前订阅者数量。
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Done 在 Close 之后关闭，SSE 处理器据此结束长连接。
func (b *Broker) Done() <-chan struct{} {
	return b.shutdown
}

// Close 通知所有长连接退出。
func (b *Broker) Close() {
	b.once.Do(func() { close(b.shutdown) })
}

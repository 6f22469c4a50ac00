// Package notify 实现单槽通知通道：最新的消息覆盖旧消息，不排队、不确认、不自动清除。
package notify

import "sync"

// Channel 保存一条可选的通知消息。
// 由会话显式创建并在会话结束时关闭，不作为全局变量使用。
type Channel struct {
	mu      sync.Mutex
	message *string
	subs    map[int]func(string)
	nextID  int
	closed  bool
}

// New 创建一个空的通知通道。
func New() *Channel {
	return &Channel{subs: make(map[int]func(string))}
}

// Publish 用 msg 覆盖当前消息，并通知订阅者。关闭后调用无效果。
func (c *Channel) Publish(msg string) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.message = &msg
	subs := make([]func(string), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.Unlock()

	for _, fn := range subs {
		fn(msg)
	}
}

// Message 返回当前消息；没有消息时 ok 为 false。
func (c *Channel) Message() (msg string, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.message == nil {
		return "", false
	}
	return *c.message, true
}

// Subscribe 注册展示端回调并返回取消函数。
func (c *Channel) Subscribe(fn func(string)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return func() {}
	}
	id := c.nextID
	c.nextID++
	c.subs[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// Close 释放订阅者，之后的 Publish 会被忽略。
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.subs = make(map[int]func(string))
}

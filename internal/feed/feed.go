// Package feed 实现发现列表的增量加载：哨兵完全可见时页码加一，并按页序追加结果。
package feed

import (
	"context"
	"sync"

	"github.com/hitushen/langdonboard/internal/adapter"
	"github.com/hitushen/langdonboard/internal/models"
	"github.com/hitushen/langdonboard/internal/visibility"
)

// DefaultSentinel 是默认观察的哨兵目标名。
const DefaultSentinel = "findings-sentinel"

// Notifier 接收加载失败时的错误文本。
type Notifier interface {
	Publish(msg string)
}

// Controller 维护一个会话内追加式的发现列表。
//
// 所有请求由同一个 worker 串行发出，页号严格递增，因此结果按请求顺序追加。
// 某页失败时只发布通知，不重试，列表保持原样。
type Controller struct {
	src      adapter.FindingsSource
	notifier Notifier
	observer visibility.Observer
	target   string

	mu        sync.Mutex
	items     []models.Finding
	page      int
	attempted int
	applied   int
	exhausted bool
	hooks     []func([]models.Finding)

	wake      chan struct{}
	ready     chan struct{}
	done      chan struct{}
	cancel    context.CancelFunc
	unobserve func()
	started   bool
	closed    bool
}

// Option 调整 Controller 的可选参数。
type Option func(*Controller)

// WithSentinel 指定观察的哨兵目标名。
func WithSentinel(target string) Option {
	return func(c *Controller) {
		if target != "" {
			c.target = target
		}
	}
}

// New 创建控制器；调用 Start 之前不会发出任何请求。
func New(src adapter.FindingsSource, notifier Notifier, observer visibility.Observer, opts ...Option) *Controller {
	c := &Controller{
		src:       src,
		notifier:  notifier,
		observer:  observer,
		target:    DefaultSentinel,
		attempted: -1,
		applied:   -1,
		wake:      make(chan struct{}, 1),
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Sentinel 返回观察的哨兵目标名。
func (c *Controller) Sentinel() string {
	return c.target
}

// OnAppend 注册追加回调，参数为本次新增的条目。回调在 worker 中执行，不应阻塞。
func (c *Controller) OnAppend(fn func([]models.Finding)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, fn)
}

// Start 加载第 0 页并开始观察哨兵。重复调用无效果。
func (c *Controller) Start(ctx context.Context) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.unobserve = c.observer.Observe(c.target, visibility.FullyVisible, c.advance)
	c.signal()
	go c.run(ctx)
	close(c.ready)
}

// Close 解除观察，取消进行中的请求并等待 worker 退出。
// 与 Start 并发调用时，先等待 Start 完成注册。
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	started := c.started
	c.mu.Unlock()

	if !started {
		return
	}
	<-c.ready
	c.unobserve()
	c.cancel()
	<-c.done
}

// Items 返回当前已加载条目的副本。
func (c *Controller) Items() []models.Finding {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]models.Finding(nil), c.items...)
}

// Page 返回当前页码。
func (c *Controller) Page() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// Exhausted 表示数据源已返回空的 next。
func (c *Controller) Exhausted() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.exhausted
}

func (c *Controller) advance() {
	c.mu.Lock()
	if c.closed || c.exhausted {
		c.mu.Unlock()
		return
	}
	c.page++
	c.mu.Unlock()
	c.signal()
}

func (c *Controller) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// pending 返回下一个待请求的页号。
func (c *Controller) pending() (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.exhausted || c.attempted >= c.page {
		return 0, false
	}
	c.attempted++
	return c.attempted, true
}

func (c *Controller) run(ctx context.Context) {
	defer close(c.done)
	for {
		page, ok := c.pending()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-c.wake:
			}
			continue
		}

		res, err := c.src.Findings(ctx, adapter.Page(page))
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			c.notifier.Publish(err.Error())
			continue
		}
		c.apply(page, res)
	}
}

func (c *Controller) apply(page int, res models.FindingsPage) {
	c.mu.Lock()
	if page <= c.applied {
		c.mu.Unlock()
		return
	}
	c.applied = page
	c.items = append(c.items, res.Results...)
	if res.Next == nil {
		c.exhausted = true
	}
	added := append([]models.Finding(nil), res.Results...)
	hooks := append([]func([]models.Finding){}, c.hooks...)
	c.mu.Unlock()

	for _, fn := range hooks {
		fn(added)
	}
}

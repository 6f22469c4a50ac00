// Package visibility 把原始的可见比例上报转换成“变为可见”的一次性回调。
package visibility

import "sync"

// FullyVisible 是要求哨兵元素完全可见的阈值。
const FullyVisible = 1.0

// Observer 接受一个目标与回调，返回解除观察的函数。
// 目标从不可见变为达到阈值时回调触发一次，保持可见不会重复触发。
type Observer interface {
	Observe(target string, threshold float64, fn func()) (unobserve func())
}

type subscription struct {
	threshold float64
	fn        func()
	visible   bool
}

// Tracker 是 Observer 的实现，由宿主（浏览器上报、终端按键等）调用 Report 输入可见比例。
type Tracker struct {
	mu     sync.Mutex
	subs   map[string]map[int]*subscription
	nextID int
}

// NewTracker 创建空的 Tracker。
func NewTracker() *Tracker {
	return &Tracker{subs: make(map[string]map[int]*subscription)}
}

// Observe 实现 Observer。
func (t *Tracker) Observe(target string, threshold float64, fn func()) func() {
	t.mu.Lock()
	defer t.mu.Unlock()

	id := t.nextID
	t.nextID++
	if t.subs[target] == nil {
		t.subs[target] = make(map[int]*subscription)
	}
	t.subs[target][id] = &subscription{threshold: threshold, fn: fn}

	var once sync.Once
	return func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			delete(t.subs[target], id)
			if len(t.subs[target]) == 0 {
				delete(t.subs, target)
			}
		})
	}
}

// Report 上报目标当前的可见比例（0 到 1）。
// 只在从低于阈值跨越到达到阈值时回调；降到阈值以下后重新武装。
func (t *Tracker) Report(target string, ratio float64) {
	var fire []func()

	t.mu.Lock()
	for _, sub := range t.subs[target] {
		visible := ratio >= sub.threshold
		if visible && !sub.visible {
			fire = append(fire, sub.fn)
		}
		sub.visible = visible
	}
	t.mu.Unlock()

	for _, fn := range fire {
		fn()
	}
}

// Observed 返回目标当前的订阅数量。
func (t *Tracker) Observed(target string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.subs[target])
}

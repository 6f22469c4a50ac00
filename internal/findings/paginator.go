// Package findings 负责“有价值发现”的分页、展示标签与路由映射。
package findings

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/hitushen/langdonboard/internal/models"
	"github.com/hitushen/langdonboard/internal/store"
)

// Lister 是分页器依赖的存储能力。
type Lister interface {
	CountPromising(ctx context.Context) (store.PromisingCounts, error)
	ListPromising(ctx context.Context, t models.FindingType, offset, limit int) ([]models.Finding, error)
}

// Paginator 按各类别占比把混合列表切成固定大小的页。
//
// 所有记录按加权交错顺序排成一列：类别 c 的第 k 条位置键为 (2k+1)/(2*count_c)。
// 第 p 页取这一序列中 [p*pageSize, (p+1)*pageSize) 的部分，
// 因此除最后一页外每页都是满的，相邻页之间没有重叠也没有遗漏。
type Paginator struct {
	src      Lister
	pageSize int

	mu      sync.Mutex
	shuffle func([]models.Finding)
}

// NewPaginator 创建分页器，pageSize 小于 1 时按 1 处理。
func NewPaginator(src Lister, pageSize int) *Paginator {
	if pageSize < 1 {
		pageSize = 1
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Paginator{
		src:      src,
		pageSize: pageSize,
		shuffle: func(items []models.Finding) {
			rng.Shuffle(len(items), func(i, j int) { items[i], items[j] = items[j], items[i] })
		},
	}
}

// SetShuffle 替换打乱函数，传入 nil 时保留类别顺序。
func (p *Paginator) SetShuffle(fn func([]models.Finding)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if fn == nil {
		fn = func([]models.Finding) {}
	}
	p.shuffle = fn
}

// PageSize 返回每页条目数。
func (p *Paginator) PageSize() int {
	return p.pageSize
}

// Total 返回所有类别有价值记录的总数。
func (p *Paginator) Total(ctx context.Context) (int, error) {
	counts, err := p.src.CountPromising(ctx)
	if err != nil {
		return 0, fmt.Errorf("count findings: %w", err)
	}
	return counts.Total(), nil
}

// Page 返回第 page 页；负数按 0 处理。
func (p *Paginator) Page(ctx context.Context, page int) (models.FindingsPage, error) {
	if page < 0 {
		page = 0
	}
	counts, err := p.src.CountPromising(ctx)
	if err != nil {
		return models.FindingsPage{}, fmt.Errorf("count findings: %w", err)
	}
	total := counts.Total()
	result := models.FindingsPage{
		Count:   total,
		Results: []models.Finding{},
	}
	if total == 0 {
		return result, nil
	}

	first := total
	if page < total && page*p.pageSize < total {
		first = page * p.pageSize
	}
	last := first + p.pageSize
	if last > total {
		last = total
	}
	sizes := make([]int, len(store.PromisingTypes))
	for i, t := range store.PromisingTypes {
		sizes[i] = counts.Of(t)
	}
	lo := interleave(sizes, make([]int, len(sizes)), first)
	hi := interleave(sizes, append([]int(nil), lo...), last-first)

	for i, t := range store.PromisingTypes {
		if hi[i] <= lo[i] {
			continue
		}
		items, err := p.src.ListPromising(ctx, t, lo[i], hi[i]-lo[i])
		if err != nil {
			return models.FindingsPage{}, fmt.Errorf("list %s: %w", t, err)
		}
		for _, item := range items {
			item.Label = DisplayLabel(item)
			result.Results = append(result.Results, item)
		}
	}

	p.mu.Lock()
	p.shuffle(result.Results)
	p.mu.Unlock()

	if last < total {
		next := page + 1
		result.Next = &next
	}
	return result, nil
}

// interleave 在已取数量 taken 的基础上按加权交错顺序再取 n 条，返回各类别的累计数量。
func interleave(sizes, taken []int, n int) []int {
	for ; n > 0; n-- {
		best := -1
		for i, size := range sizes {
			if taken[i] >= size {
				continue
			}
			// 比较 (2*taken[i]+1)/size 与当前最优者，交叉相乘避免浮点误差。
			if best < 0 || (2*taken[i]+1)*sizes[best] < (2*taken[best]+1)*size {
				best = i
			}
		}
		if best < 0 {
			break
		}
		taken[best]++
	}
	return taken
}

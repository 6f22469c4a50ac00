// Package adapter 提供概览与发现列表的数据源：模拟数据、进程内存储与远程 HTTP 接口。
package adapter

import (
	"context"

	"github.com/hitushen/langdonboard/internal/models"
)

// OverviewSource 返回完整的概览统计。
type OverviewSource interface {
	Overview(ctx context.Context) (models.OverviewStatistics, error)
}

// FindingsSource 返回指定页的发现列表，page 为 nil 时视为第 0 页。
type FindingsSource interface {
	Findings(ctx context.Context, page *int) (models.FindingsPage, error)
}

// Source 同时提供两类数据。
type Source interface {
	OverviewSource
	FindingsSource
}

// Totaler 由无需取页即可给出有价值发现总数的数据源实现。
type Totaler interface {
	Total(ctx context.Context) (int, error)
}

// PageNumber 把可选页码规整为非负整数：缺省、0 与负数都按第 0 页处理。
func PageNumber(page *int) int {
	if page == nil || *page <= 0 {
		return 0
	}
	return *page
}

// Page 返回指向 n 的指针，便于调用方传参。
func Page(n int) *int {
	return &n
}

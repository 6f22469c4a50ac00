package adapter

import (
	"context"

	"github.com/hitushen/langdonboard/internal/findings"
	"github.com/hitushen/langdonboard/internal/models"
)

// Counter 提供概览统计，通常由 *store.Store 实现。
type Counter interface {
	Overview(ctx context.Context) (models.OverviewStatistics, error)
}

// Local 在进程内直接读取侦察数据库。
type Local struct {
	counter   Counter
	paginator *findings.Paginator
}

// NewLocal 组合存储与分页器。
func NewLocal(counter Counter, paginator *findings.Paginator) *Local {
	return &Local{counter: counter, paginator: paginator}
}

// Overview 实现 OverviewSource。
func (l *Local) Overview(ctx context.Context) (models.OverviewStatistics, error) {
	return l.counter.Overview(ctx)
}

// Total 实现 Totaler。
func (l *Local) Total(ctx context.Context) (int, error) {
	return l.paginator.Total(ctx)
}

// Findings 实现 FindingsSource。
func (l *Local) Findings(ctx context.Context, page *int) (models.FindingsPage, error) {
	return l.paginator.Page(ctx, PageNumber(page))
}

package adapter

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/hitushen/langdonboard/internal/models"
)

// MockCounter 是模拟概览中每个计数项的取值。
const MockCounter = 2367

const mockMaxID = 1000000

// Mock 返回固定形状的模拟数据：概览恒定，每页四条发现且永不耗尽。
type Mock struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewMock 使用当前时间作为随机种子。
func NewMock() *Mock {
	return NewMockWithSeed(time.Now().UnixNano())
}

// NewMockWithSeed 使用固定种子，便于测试复现。
func NewMockWithSeed(seed int64) *Mock {
	return &Mock{rng: rand.New(rand.NewSource(seed))}
}

// Overview 实现 OverviewSource，总是成功。
func (m *Mock) Overview(context.Context) (models.OverviewStatistics, error) {
	return models.OverviewStatistics{
		AndroidApps:     MockCounter,
		Domains:         MockCounter,
		HTTPCookies:     MockCounter,
		HTTPHeaders:     MockCounter,
		IPAddresses:     MockCounter,
		Technologies:    MockCounter,
		UsedPorts:       MockCounter,
		Vulnerabilities: MockCounter,
		WebDirectories:  MockCounter,
	}, nil
}

// Findings 实现 FindingsSource：next 恒为 page+1，结果为每个类别各一条。
func (m *Mock) Findings(_ context.Context, page *int) (models.FindingsPage, error) {
	next := PageNumber(page) + 1
	return models.FindingsPage{
		Next: &next,
		Results: []models.Finding{
			{ID: m.randomID(), Label: "hxxps://example.com", Type: models.FindingWebDirectory},
			{ID: m.randomID(), Label: "192[.]168[.]0[.]1:8080", Type: models.FindingUsedPort},
			{ID: m.randomID(), Label: "Apache HTTP Server 2.4.18", Type: models.FindingTechnology},
			{ID: m.randomID(), Label: "CVE-2025-0868", Type: models.FindingVulnerability},
		},
	}, nil
}

func (m *Mock) randomID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.rng.Int63n(mockMaxID)
}

// Package scanner 在后台执行端口发现，并把开放端口与识别出的技术写入侦察库。
package scanner

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/hitushen/langdonboard/internal/realtime"
	"github.com/hitushen/langdonboard/internal/targets"
)

// Recorder 是扫描结果落库所需的存储能力。
type Recorder interface {
	UpsertDomain(ctx context.Context, name string, wasKnown bool) (int64, error)
	UpsertIPAddress(ctx context.Context, address string) (int64, error)
	LinkIPDomain(ctx context.Context, ipID, domainID int64) error
	UpsertUsedPort(ctx context.Context, port int, protocol string, filtered bool) (int64, error)
	LinkPortIP(ctx context.Context, portID, ipID int64) error
	UpsertTechnology(ctx context.Context, name, version string) (int64, error)
	LinkPortTechnology(ctx context.Context, portID, technologyID int64) error
}

// Publisher 接收扫描完成事件。
type Publisher interface {
	Publish(evt realtime.Event)
}

// Manager 负责协调后台端口扫描任务。
type Manager struct {
	store        Recorder
	realtime     Publisher
	resolver     targets.Resolver
	discover     discoverFunc
	logger       *slog.Logger
	timeout      time.Duration
	jobs         chan targets.Target
	wg           sync.WaitGroup
	shutdownOnce sync.Once
	stopCh       chan struct{}

	// sendMu 读锁覆盖一次入队，Close 持写锁置 closed 后不再有新任务进入 jobs。
	sendMu sync.RWMutex
	closed bool

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewManager 按照指定参数启动工作协程执行扫描。timeout 为单个端口的探测超时。
func NewManager(st Recorder, broker Publisher, timeout time.Duration, concurrency int, logger *slog.Logger) *Manager {
	return newManager(st, broker, timeout, concurrency, logger, runNaabu)
}

func newManager(st Recorder, broker Publisher, timeout time.Duration, concurrency int, logger *slog.Logger, discover discoverFunc) *Manager {
	if concurrency <= 0 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		store:    st,
		realtime: broker,
		resolver: net.DefaultResolver,
		discover: discover,
		logger:   logger.With("component", "scanner"),
		timeout:  timeout,
		jobs:     make(chan targets.Target, concurrency*2),
		stopCh:   make(chan struct{}),
		inflight: make(map[string]struct{}),
	}
	for i := 0; i < concurrency; i++ {
		m.wg.Add(1)
		go m.worker()
	}
	return m
}

// Schedule 为地址排入一次扫描；地址非法、正在扫描或管理器已关闭时返回 false。
func (m *Manager) Schedule(address string) bool {
	t, err := targets.Parse(address)
	if err != nil {
		m.logger.Warn("rejected scan target", "address", address, "error", err)
		return false
	}

	m.sendMu.RLock()
	defer m.sendMu.RUnlock()
	if m.closed {
		return false
	}

	m.mu.Lock()
	if _, busy := m.inflight[t.Host]; busy {
		m.mu.Unlock()
		return false
	}
	m.inflight[t.Host] = struct{}{}
	m.mu.Unlock()

	select {
	case m.jobs <- t:
		m.logger.Info("enqueued scan", "host", t.Host)
		return true
	case <-m.stopCh:
		m.release(t.Host)
		return false
	}
}

// Scanning 表示该地址是否已在队列或扫描中。
func (m *Manager) Scanning(address string) bool {
	host := targets.Normalize(address)
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.inflight[host]
	return ok
}

// Close 优雅停止所有扫描协程，未执行的排队任务被丢弃。
func (m *Manager) Close() {
	m.shutdownOnce.Do(func() {
		close(m.stopCh)
		m.sendMu.Lock()
		m.closed = true
		m.sendMu.Unlock()
	})
	m.wg.Wait()
	for {
		select {
		case t := <-m.jobs:
			m.release(t.Host)
		default:
			return
		}
	}
}

func (m *Manager) release(host string) {
	m.mu.Lock()
	delete(m.inflight, host)
	m.mu.Unlock()
}

func (m *Manager) worker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case t := <-m.jobs:
			m.handleJob(t)
			m.release(t.Host)
		}
	}
}

func (m *Manager) handleJob(t targets.Target) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-m.stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	start := time.Now()
	host := t.Host
	t, err := targets.Build(ctx, host, m.resolver)
	if err != nil {
		m.logger.Warn("scan target", "host", host, "error", err)
		return
	}

	scanCtx, cancelScan := context.WithTimeout(ctx, scanDeadline(m.timeout))
	defer cancelScan()

	found, scanErr := m.discover(scanCtx, t.Hosts(), m.timeout)
	if scanErr != nil {
		m.logger.Error("scan failed", "host", t.Host, "error", scanErr)
	}
	recorded := m.record(ctx, t, found)

	m.logger.Info("scan completed", "host", t.Host, "open", len(found), "recorded", recorded,
		"duration", time.Since(start).Truncate(time.Millisecond))
	m.realtime.Publish(realtime.Event{
		Type: realtime.EventOverviewChanged,
		Payload: map[string]interface{}{
			"target":    t.Host,
			"ports":     recorded,
			"success":   scanErr == nil,
			"completed": time.Now().UTC(),
		},
	})
}

const (
	// probeRounds 是一次 top 1000 端口扫描（重试一次）折合的单端口超时次数。
	probeRounds = 500
	// minScanDeadline 是单个目标扫描总时限的下限。
	minScanDeadline = 2 * time.Minute
)

// scanDeadline 由单端口超时推出整个目标的扫描时限。
func scanDeadline(timeout time.Duration) time.Duration {
	deadline := timeout * probeRounds
	if deadline < minScanDeadline {
		deadline = minScanDeadline
	}
	return deadline
}

// record 把发现写入库中，返回成功写入的端口数。
func (m *Manager) record(ctx context.Context, t targets.Target, found []Discovery) int {
	var domainID int64
	if t.Domain != "" {
		id, err := m.store.UpsertDomain(ctx, t.Domain, true)
		if err != nil {
			m.logger.Warn("record domain", "domain", t.Domain, "error", err)
		} else {
			domainID = id
		}
	}

	ipIDs := make(map[string]int64)
	ipFor := func(address string) (int64, bool) {
		if id, ok := ipIDs[address]; ok {
			return id, true
		}
		id, err := m.store.UpsertIPAddress(ctx, address)
		if err != nil {
			m.logger.Warn("record ip", "ip", address, "error", err)
			return 0, false
		}
		if domainID != 0 {
			if err := m.store.LinkIPDomain(ctx, id, domainID); err != nil {
				m.logger.Warn("link ip domain", "ip", address, "error", err)
			}
		}
		ipIDs[address] = id
		return id, true
	}
	for _, ip := range t.IPs {
		ipFor(ip)
	}

	recorded := 0
	for _, d := range found {
		portID, err := m.store.UpsertUsedPort(ctx, d.Port, d.Protocol, false)
		if err != nil {
			m.logger.Warn("record port", "port", d.Port, "error", err)
			continue
		}
		recorded++
		if d.IP != "" {
			if ipID, ok := ipFor(d.IP); ok {
				if err := m.store.LinkPortIP(ctx, portID, ipID); err != nil {
					m.logger.Warn("link port ip", "port", d.Port, "ip", d.IP, "error", err)
				}
			}
		}
		if d.Product == "" {
			continue
		}
		techID, err := m.store.UpsertTechnology(ctx, d.Product, d.Version)
		if err != nil {
			m.logger.Warn("record technology", "name", d.Product, "error", err)
			continue
		}
		if err := m.store.LinkPortTechnology(ctx, portID, techID); err != nil {
			m.logger.Warn("link port technology", "port", d.Port, "error", err)
		}
	}
	return recorded
}

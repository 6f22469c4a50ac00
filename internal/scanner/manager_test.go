package scanner

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hitushen/langdonboard/internal/realtime"
	"github.com/hitushen/langdonboard/internal/store"
)

// 数据库连接在 t.Cleanup 中关闭，晚于泄漏检查。
var ignoreDB = goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener")

type eventSink chan realtime.Event

func (s eventSink) Publish(evt realtime.Event) { s <- evt }

type staticResolver map[string][]string

func (r staticResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	if ips, ok := r[host]; ok {
		return ips, nil
	}
	return nil, errors.New("no such host")
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(filepath.Join(t.TempDir(), "scan.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func waitEvent(t *testing.T, sink eventSink) realtime.Event {
	t.Helper()
	select {
	case evt := <-sink:
		return evt
	case <-time.After(2 * time.Second):
		t.Fatal("no scan event")
		return realtime.Event{}
	}
}

func TestScanRecordsFindings(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreDB)

	st := newStore(t)
	sink := make(eventSink, 4)
	var scanned []string
	discover := func(_ context.Context, hosts []string, _ time.Duration) ([]Discovery, error) {
		scanned = hosts
		return []Discovery{
			{IP: "192.0.2.10", Port: 80, Protocol: "tcp", Product: "nginx", Version: "1.25.3"},
			{IP: "192.0.2.10", Port: 22, Protocol: "tcp"},
		}, nil
	}
	m := newManager(st, sink, time.Second, 1, nil, discover)
	m.resolver = staticResolver{"scan.example": {"192.0.2.10"}}
	defer m.Close()

	require.True(t, m.Schedule("https://scan.example/"))
	evt := waitEvent(t, sink)
	assert.Equal(t, realtime.EventOverviewChanged, evt.Type)
	payload := evt.Payload.(map[string]interface{})
	assert.Equal(t, 2, payload["ports"])
	assert.Equal(t, true, payload["success"])
	assert.Equal(t, []string{"scan.example", "192.0.2.10"}, scanned)

	o, err := st.Overview(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, o.Domains)
	assert.Equal(t, 1, o.IPAddresses)
	assert.Equal(t, 2, o.UsedPorts)
	assert.Equal(t, 1, o.Technologies)

	counts, err := st.CountPromising(context.Background())
	require.NoError(t, err)
	assert.Zero(t, counts.Domains, "scanned domains are known scope")
	assert.Equal(t, 2, counts.UsedPorts)
	assert.Equal(t, 1, counts.Technologies)
}

func TestScheduleDedupesAndRejects(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreDB)

	gate := make(chan struct{})
	discover := func(ctx context.Context, _ []string, _ time.Duration) ([]Discovery, error) {
		select {
		case <-gate:
		case <-ctx.Done():
		}
		return nil, errors.New("interrupted")
	}
	sink := make(eventSink, 4)
	m := newManager(newStore(t), sink, time.Second, 1, nil, discover)

	assert.False(t, m.Schedule("not a host!"))
	require.True(t, m.Schedule("10.0.0.1"))
	assert.True(t, m.Scanning("10.0.0.1:22"))
	assert.False(t, m.Schedule("10.0.0.1"))

	close(gate)
	evt := waitEvent(t, sink)
	assert.Equal(t, false, evt.Payload.(map[string]interface{})["success"])
	require.Eventually(t, func() bool { return !m.Scanning("10.0.0.1") }, time.Second, time.Millisecond)

	m.Close()
	assert.False(t, m.Schedule("10.0.0.2"))
}

func TestCloseDropsQueuedJobs(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreDB)

	started := make(chan struct{}, 4)
	discover := func(ctx context.Context, _ []string, _ time.Duration) ([]Discovery, error) {
		started <- struct{}{}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	sink := make(eventSink, 8)
	m := newManager(newStore(t), sink, time.Second, 1, nil, discover)

	require.True(t, m.Schedule("10.0.0.1"))
	<-started
	require.True(t, m.Schedule("10.0.0.2"))
	require.True(t, m.Schedule("10.0.0.3"))

	m.Close()
	for _, host := range []string{"10.0.0.1", "10.0.0.2", "10.0.0.3"} {
		assert.False(t, m.Scanning(host), host)
	}
	assert.False(t, m.Schedule("10.0.0.4"))
	assert.False(t, m.Scanning("10.0.0.4"))
}

func TestScanDeadline(t *testing.T) {
	assert.Equal(t, minScanDeadline, scanDeadline(time.Millisecond))
	assert.Equal(t, 10*time.Minute, scanDeadline(1200*time.Millisecond))
}

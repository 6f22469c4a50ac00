package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitushen/langdonboard/internal/adapter"
	"github.com/hitushen/langdonboard/internal/config"
	"github.com/hitushen/langdonboard/internal/findings"
	"github.com/hitushen/langdonboard/internal/importer"
	"github.com/hitushen/langdonboard/internal/log"
	"github.com/hitushen/langdonboard/internal/models"
	"github.com/hitushen/langdonboard/internal/realtime"
	"github.com/hitushen/langdonboard/internal/store"
)

const waitFor = 2 * time.Second

type fakeScheduler struct {
	mu        sync.Mutex
	scheduled []string
}

func (f *fakeScheduler) Schedule(address string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.scheduled {
		if a == address {
			return false
		}
	}
	f.scheduled = append(f.scheduled, address)
	return true
}

func (f *fakeScheduler) Close() {}

// flaky 第 1 页失败，其余页委托给 Mock。
type flaky struct {
	*adapter.Mock
}

func (f flaky) Findings(ctx context.Context, page *int) (models.FindingsPage, error) {
	if adapter.PageNumber(page) == 1 {
		return models.FindingsPage{}, errors.New("upstream exploded")
	}
	return f.Mock.Findings(ctx, page)
}

type harness struct {
	t         *testing.T
	srv       *Server
	http      *httptest.Server
	client    *http.Client
	token     string
	store     *store.Store
	scheduler *fakeScheduler
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		AdminUser:       "admin",
		AdminPassword:   "secret",
		SessionKey:      []byte("0123456789abcdef0123456789abcdef"),
		CSRFKey:         []byte("abcdef0123456789abcdef0123456789"),
		DBPath:          filepath.Join(t.TempDir(), "langdon.db"),
		PageSize:        2,
		ScanTimeout:     time.Second,
		ScanConcurrency: 1,
	}
}

func newHarness(t *testing.T, cfg *config.Config, opts ...Option) *harness {
	t.Helper()
	st, err := store.New(cfg.DBPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.EnsureAdmin(context.Background(), cfg.AdminUser, cfg.AdminPassword))
	seedStore(t, st)

	sch := &fakeScheduler{}
	srv, err := New(cfg, st, nil, append([]Option{WithScheduler(sch)}, opts...)...)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &harness{
		t:         t,
		srv:       srv,
		http:      ts,
		client:    &http.Client{Jar: jar, Timeout: 5 * time.Second},
		store:     st,
		scheduler: sch,
	}
}

func seedStore(t *testing.T, st *store.Store) {
	t.Helper()
	_, err := importer.New(st).Seed(context.Background(), importer.Seed{
		Domains:     []importer.SeedDomain{{Name: "fresh.example", IPs: []string{"192.0.2.10"}}},
		AndroidApps: []string{"com.example.app"},
		Technologies: []importer.SeedTechnology{{
			Name: "Apache HTTP Server", Version: "2.4.18",
			Vulnerabilities: []importer.SeedVulnerability{{Name: "CVE-2025-0868", Source: "nvd"}},
		}},
		UsedPorts: []importer.SeedPort{{Port: 8080, IP: "192.0.2.10"}},
		WebDirectories: []importer.SeedWebDirectory{{
			Path: "/login", IP: "192.0.2.10", SSL: true,
			Responses: []importer.SeedResponse{{Hash: "abc", Path: "r/abc"}},
			Headers:   []string{"Server"},
			Cookies:   []string{"sid"},
		}},
	})
	require.NoError(t, err)
}

var csrfField = regexp.MustCompile(`name="csrf_token" value="([^"]+)"`)

func (h *harness) login() {
	h.t.Helper()
	res, err := h.client.Get(h.http.URL + "/login")
	require.NoError(h.t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	m := csrfField.FindSubmatch(body)
	require.NotNil(h.t, m, "csrf field in login page")
	h.token = string(m[1])

	res, err = h.client.PostForm(h.http.URL+"/login", url.Values{
		"username":   {"admin"},
		"password":   {"secret"},
		"csrf_token": {h.token},
	})
	require.NoError(h.t, err)
	defer res.Body.Close()
	require.Equal(h.t, http.StatusOK, res.StatusCode)
	require.Equal(h.t, "/", res.Request.URL.Path)
}

func (h *harness) do(method, path string, body interface{}) (*http.Response, []byte) {
	h.t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(h.t, err)
		reader = strings.NewReader(string(data))
	}
	req, err := http.NewRequest(method, h.http.URL+path, reader)
	require.NoError(h.t, err)
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("X-CSRF-Token", h.token)
	}
	res, err := h.client.Do(req)
	require.NoError(h.t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(h.t, err)
	return res, data
}

func (h *harness) getJSON(path string, dst interface{}) int {
	h.t.Helper()
	res, data := h.do(http.MethodGet, path, nil)
	require.NoError(h.t, json.Unmarshal(data, dst), string(data))
	return res.StatusCode
}

type feedState struct {
	Items []struct {
		ID    int64  `json:"id"`
		Label string `json:"label"`
		Type  string `json:"type"`
		Route string `json:"route"`
	} `json:"items"`
	Page      int  `json:"page"`
	Exhausted bool `json:"exhausted"`
}

func (h *harness) feed() feedState {
	h.t.Helper()
	var st feedState
	require.Equal(h.t, http.StatusOK, h.getJSON("/api/feed", &st))
	return st
}

func (h *harness) sentinel(ratio float64) {
	h.t.Helper()
	res, data := h.do(http.MethodPost, "/api/feed/sentinel", map[string]float64{"ratio": ratio})
	require.Equal(h.t, http.StatusOK, res.StatusCode, string(data))
}

func TestLoginRequired(t *testing.T) {
	h := newHarness(t, testConfig(t))

	res, data := h.do(http.MethodGet, "/api/overview", nil)
	assert.Equal(t, http.StatusUnauthorized, res.StatusCode)
	assert.JSONEq(t, `{"error":"unauthorised"}`, string(data))

	res, _ = h.do(http.MethodGet, "/", nil)
	assert.Equal(t, "/login", res.Request.URL.Path)

	res, _ = h.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
}

func TestCSRFIsEnforced(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.login()
	h.token = ""

	res, data := h.do(http.MethodPost, "/api/feed", nil)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Contains(t, string(data), "error")
}

func TestDashboard(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.login()

	res, data := h.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	body := string(data)
	assert.Contains(t, body, `data-key="web_directories"`)
	assert.Contains(t, body, `data-target="findings-sentinel"`)
	assert.Contains(t, body, `<meta name="csrf-token"`)
	assert.Contains(t, body, `<small id="promising-count">5</small>`)

	res, data = h.do(http.MethodGet, "/static/app.js", nil)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(data), "events.onopen", "feed starts once the event stream is open")
}

func TestOverviewAndFindings(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.login()

	var overview models.OverviewStatistics
	require.Equal(t, http.StatusOK, h.getJSON("/api/overview", &overview))
	assert.Equal(t, models.OverviewStatistics{
		AndroidApps: 1, Domains: 1, HTTPCookies: 1, HTTPHeaders: 1, IPAddresses: 1,
		Technologies: 1, UsedPorts: 1, Vulnerabilities: 1, WebDirectories: 1,
	}, overview)

	var page models.FindingsPage
	require.Equal(t, http.StatusOK, h.getJSON("/api/promissingfindings", &page))
	assert.Equal(t, 5, page.Count)
	require.NotNil(t, page.Next)
	assert.Equal(t, 1, *page.Next)
	assert.Len(t, page.Results, 2)

	require.Equal(t, http.StatusOK, h.getJSON("/api/promissingfindings?page=2", &page))
	assert.Nil(t, page.Next)
	require.Len(t, page.Results, 1)
	assert.Equal(t, models.FindingWebDirectory, page.Results[0].Type)
	assert.Equal(t, "hxxps://192[.]0[.]2[.]10/login", page.Results[0].Label)

	require.Equal(t, http.StatusOK, h.getJSON("/api/promissingfindings?page=-1", &page))
	assert.Equal(t, 1, *page.Next)

	var failure map[string]string
	assert.Equal(t, http.StatusBadRequest, h.getJSON("/api/promissingfindings?page=abc", &failure))
	assert.Contains(t, failure["error"], ErrInvalidPage.Error())
}

func TestMockData(t *testing.T) {
	cfg := testConfig(t)
	cfg.MockData = true
	h := newHarness(t, cfg)
	h.login()

	var overview models.OverviewStatistics
	h.getJSON("/api/overview", &overview)
	assert.Equal(t, adapter.MockCounter, overview.Domains)

	var page models.FindingsPage
	h.getJSON("/api/promissingfindings?page=5", &page)
	require.NotNil(t, page.Next)
	assert.Equal(t, 6, *page.Next)
	assert.Len(t, page.Results, 4)

	res, data := h.do(http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.NotContains(t, string(data), `id="promising-count"`)
}

func TestFeedLifecycle(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.login()

	res, _ := h.do(http.MethodGet, "/api/feed", nil)
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, data := h.do(http.MethodPost, "/api/feed", nil)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(data))

	require.Eventually(t, func() bool { return len(h.feed().Items) == 2 }, waitFor, 5*time.Millisecond)

	h.sentinel(1)
	h.sentinel(1)
	require.Eventually(t, func() bool { return len(h.feed().Items) == 4 }, waitFor, 5*time.Millisecond)
	assert.Equal(t, 1, h.feed().Page, "staying visible does not advance")

	h.sentinel(0)
	h.sentinel(1)
	require.Eventually(t, func() bool { return h.feed().Exhausted }, waitFor, 5*time.Millisecond)

	state := h.feed()
	require.Len(t, state.Items, 5)
	seen := map[string]bool{}
	for _, item := range state.Items {
		assert.False(t, seen[item.Route], item.Route)
		seen[item.Route] = true
		assert.NotEqual(t, "#", item.Route)
	}

	h.sentinel(0)
	h.sentinel(1)
	assert.Equal(t, 2, h.feed().Page)

	res, _ = h.do(http.MethodPost, "/api/feed/sentinel", map[string]float64{"ratio": 3})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestFeedNotification(t *testing.T) {
	h := newHarness(t, testConfig(t), WithSource(flaky{adapter.NewMock()}))
	h.login()

	var note struct {
		Message *string `json:"message"`
	}
	h.getJSON("/api/notification", &note)
	assert.Nil(t, note.Message)

	res, _ := h.do(http.MethodPost, "/api/feed", nil)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	require.Eventually(t, func() bool { return len(h.feed().Items) == 4 }, waitFor, 5*time.Millisecond)

	h.sentinel(1)
	require.Eventually(t, func() bool {
		h.getJSON("/api/notification", &note)
		return note.Message != nil
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, "upstream exploded", *note.Message)
	assert.Len(t, h.feed().Items, 4)
}

func TestEventStream(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.login()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.http.URL+"/api/events", nil)
	require.NoError(t, err)
	stream := &http.Client{Jar: h.client.Jar}
	res, err := stream.Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))
	require.Eventually(t, func() bool { return h.srv.broker.Subscribers() == 1 }, waitFor, time.Millisecond)

	res2, _ := h.do(http.MethodPost, "/api/feed", nil)
	require.Equal(t, http.StatusCreated, res2.StatusCode)

	events := make(chan realtime.Event, 4)
	go func() {
		scanner := bufio.NewScanner(res.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var evt realtime.Event
			if json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &evt) == nil {
				events <- evt
			}
		}
		close(events)
	}()

	select {
	case evt := <-events:
		assert.Equal(t, realtime.EventFindingsAppended, evt.Type)
		assert.NotEmpty(t, evt.Feed)
		items, ok := evt.Payload.([]interface{})
		require.True(t, ok)
		assert.Len(t, items, 2)
	case <-time.After(waitFor):
		t.Fatal("no event received")
	}
}

func TestEntityDetail(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.login()

	var page models.FindingsPage
	h.getJSON("/api/promissingfindings?page=0", &page)
	require.NotEmpty(t, page.Results)
	first := page.Results[0]

	var detail map[string]interface{}
	res, data := h.do(http.MethodGet, findings.Route(first), nil)
	require.Equal(t, http.StatusOK, res.StatusCode, string(data))
	require.NoError(t, json.Unmarshal(data, &detail))
	assert.Equal(t, string(first.Type), detail["type"])

	res, _ = h.do(http.MethodGet, "/domains/999", nil)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	res, _ = h.do(http.MethodGet, "/ports/abc", nil)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestScan(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.login()

	res, data := h.do(http.MethodPost, "/api/scan", map[string]string{"address": "https://10.0.0.1:8443/"})
	require.Equal(t, http.StatusAccepted, res.StatusCode, string(data))
	assert.JSONEq(t, `{"status":"scheduled","target":"10.0.0.1"}`, string(data))

	res, _ = h.do(http.MethodPost, "/api/scan", map[string]string{"address": "https://10.0.0.1:8443/"})
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, _ = h.do(http.MethodPost, "/api/scan", map[string]string{"address": "not a host!"})
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	assert.Equal(t, []string{"https://10.0.0.1:8443/"}, h.scheduler.scheduled)
}

func TestLogoutDropsFeed(t *testing.T) {
	h := newHarness(t, testConfig(t))
	h.login()

	res, _ := h.do(http.MethodPost, "/api/feed", nil)
	require.Equal(t, http.StatusCreated, res.StatusCode)
	h.srv.mu.Lock()
	assert.Len(t, h.srv.feeds, 1)
	h.srv.mu.Unlock()

	res, _ = h.do(http.MethodPost, "/logout", nil)
	assert.Equal(t, "/login", res.Request.URL.Path)

	h.srv.mu.Lock()
	assert.Empty(t, h.srv.feeds)
	h.srv.mu.Unlock()
}

func TestLogContextAddsRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := log.NewWriter(&buf, false)
	h := middleware.RequestID(logContext(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.InfoContext(r.Context(), "handled")
	})))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-42")
	h.ServeHTTP(httptest.NewRecorder(), req)

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "handled", entry["msg"])
	assert.Equal(t, "req-42", entry["request_id"])
}

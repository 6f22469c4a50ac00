package adapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/hitushen/langdonboard/internal/models"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected status code")
	ErrInvalidBaseURL   = errors.New("invalid base URL")
)

type limiter interface {
	Wait(context.Context) error
}

// HTTP 通过仪表盘的 JSON 接口获取数据。
type HTTP struct {
	baseURL *url.URL
	client  *http.Client
	limiter limiter
	headers http.Header
}

// NewHTTP 创建远程数据源；ratePerSecond 不大于 0 时不限速。
func NewHTTP(baseURL string, ratePerSecond float64) (*HTTP, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBaseURL, baseURL)
	}
	limit := rate.Inf
	if ratePerSecond > 0 {
		limit = rate.Limit(ratePerSecond)
	}
	return &HTTP{
		baseURL: u,
		client:  http.DefaultClient,
		limiter: rate.NewLimiter(limit, 1),
		headers: http.Header{},
	}, nil
}

// SetClient 替换底层 HTTP 客户端。
func (h *HTTP) SetClient(c *http.Client) {
	h.client = c
}

// SetHeader 为每个请求附加请求头，例如会话 Cookie。
func (h *HTTP) SetHeader(key, value string) {
	h.headers.Set(key, value)
}

// Overview 实现 OverviewSource。
func (h *HTTP) Overview(ctx context.Context) (models.OverviewStatistics, error) {
	var out models.OverviewStatistics
	if err := h.getJSON(ctx, "/api/overview", nil, &out); err != nil {
		return models.OverviewStatistics{}, err
	}
	return out, nil
}

// Findings 实现 FindingsSource。
func (h *HTTP) Findings(ctx context.Context, page *int) (models.FindingsPage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(PageNumber(page)))

	var out models.FindingsPage
	if err := h.getJSON(ctx, "/api/promissingfindings", query, &out); err != nil {
		return models.FindingsPage{}, err
	}
	if out.Results == nil {
		out.Results = []models.Finding{}
	}
	return out, nil
}

func (h *HTTP) getJSON(ctx context.Context, path string, query url.Values, dst interface{}) error {
	if err := h.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("error while rate limiting: %w", err)
	}

	u := *h.baseURL
	u.Path = u.Path + path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return fmt.Errorf("client: could not create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for key, values := range h.headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	res, err := h.client.Do(req)
	if err != nil {
		return fmt.Errorf("client: error making http request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("%w: GET %s: %d%s", ErrUnexpectedStatus, path, res.StatusCode, errorSuffix(res.Body))
	}
	if err := json.NewDecoder(res.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// errorSuffix 尝试读取服务端 {"error": "..."} 形式的错误信息。
func errorSuffix(body io.Reader) string {
	var payload struct {
		Error string `json:"error"`
	}
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || json.Unmarshal(data, &payload) != nil || payload.Error == "" {
		return ""
	}
	return " (" + payload.Error + ")"
}

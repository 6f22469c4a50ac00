package server

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/csrf"
	"golang.org/x/sync/errgroup"

	"github.com/hitushen/langdonboard/internal/adapter"
	"github.com/hitushen/langdonboard/internal/auth"
	"github.com/hitushen/langdonboard/internal/config"
	"github.com/hitushen/langdonboard/internal/feed"
	"github.com/hitushen/langdonboard/internal/findings"
	"github.com/hitushen/langdonboard/internal/log"
	"github.com/hitushen/langdonboard/internal/models"
	"github.com/hitushen/langdonboard/internal/realtime"
	"github.com/hitushen/langdonboard/internal/scanner"
	"github.com/hitushen/langdonboard/internal/store"
	"github.com/hitushen/langdonboard/web"
)

// Scheduler 接收扫描请求。
type Scheduler interface {
	Schedule(address string) bool
	Close()
}

// Server 负责协调 HTTP 路由、模板渲染与业务逻辑。
type Server struct {
	cfg       *config.Config
	store     *store.Store
	source    adapter.Source
	auth      *auth.Manager
	scanner   Scheduler
	broker    *realtime.Broker
	templates *template.Template
	logger    *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu    sync.Mutex
	feeds map[string]*feedSession
}

// Option 调整 Server 的可选依赖。
type Option func(*Server)

// WithSource 替换概览与发现列表的数据源。
func WithSource(src adapter.Source) Option {
	return func(s *Server) { s.source = src }
}

// WithScheduler 替换扫描调度器。
func WithScheduler(sch Scheduler) Option {
	return func(s *Server) { s.scanner = sch }
}

// New 创建并初始化带路由的 Server。
func New(cfg *config.Config, st *store.Store, logger *slog.Logger, opts ...Option) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}
	tmpl, err := web.Templates()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	srv := &Server{
		cfg:       cfg,
		store:     st,
		auth:      auth.NewManager(st, cfg.SessionKey, cfg.SecureCookies),
		broker:    realtime.NewBroker(),
		templates: tmpl,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		feeds:     make(map[string]*feedSession),
	}
	for _, opt := range opts {
		opt(srv)
	}
	if srv.source == nil {
		if cfg.MockData {
			srv.source = adapter.NewMock()
		} else {
			srv.source = adapter.NewLocal(st, findings.NewPaginator(st, cfg.PageSize))
		}
	}
	if srv.scanner == nil {
		srv.scanner = scanner.NewManager(st, srv.broker, cfg.ScanTimeout, cfg.ScanConcurrency, logger)
	}
	return srv, nil
}

// Close 关闭后台组件。
func (s *Server) Close() {
	s.cancel()
	s.broker.Close()

	s.mu.Lock()
	sessions := make([]*feedSession, 0, len(s.feeds))
	for id, fs := range s.feeds {
		sessions = append(sessions, fs)
		delete(s.feeds, id)
	}
	s.mu.Unlock()
	for _, fs := range sessions {
		fs.close()
	}

	s.scanner.Close()
}

// Handler 返回根 HTTP 处理器。
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logContext)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))

	csrfMiddleware := csrf.Protect(
		s.cfg.CSRFKey,
		csrf.Secure(s.cfg.SecureCookies),
		csrf.Path("/"),
		csrf.FieldName("csrf_token"),
		csrf.ErrorHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reason := "forbidden"
			if err := csrf.FailureReason(r); err != nil {
				reason = err.Error()
			}
			writeMessage(w, reason, http.StatusForbidden)
		})),
	)

	r.Group(func(pub chi.Router) {
		pub.Get("/login", s.showLogin)
		pub.Post("/login", s.handleLogin)
	})

	r.Handle("/static/*", http.StripPrefix("/static/", web.Static()))

	authRoutes := r.With(s.auth.Middleware)
	authRoutes.Get("/", s.dashboard)
	authRoutes.Post("/logout", s.handleLogout)

	for t, prefix := range findings.RoutePrefixes {
		authRoutes.Get(prefix+"/{id}", s.entityDetail(t))
	}

	authRoutes.Route("/api", func(api chi.Router) {
		api.Get("/events", s.streamEvents)

		api.Get("/overview", s.apiOverview)
		api.Get("/promissingfindings", s.apiPromisingFindings)

		api.Post("/feed", s.apiStartFeed)
		api.Get("/feed", s.apiFeedState)
		api.Post("/feed/sentinel", s.apiSentinel)
		api.Get("/notification", s.apiNotification)

		api.Post("/scan", s.apiScan)
	})

	return csrfMiddleware(r)
}

func (s *Server) showLogin(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"CSRFField": csrf.TemplateField(r),
		"CSRFToken": csrf.Token(r),
		"Error":     r.URL.Query().Get("error"),
	}
	if err := s.templates.ExecuteTemplate(w, "login", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	username := r.FormValue("username")
	password := r.FormValue("password")
	if err := s.auth.Authenticate(w, r, username, password); err != nil {
		if !errors.Is(err, store.ErrInvalidCredentials) {
			s.logger.ErrorContext(r.Context(), "login failed", "username", username, "error", err)
		}
		http.Redirect(w, r, "/login?error=1", http.StatusFound)
		return
	}
	http.Redirect(w, r, "/", http.StatusFound)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	feedID, _ := s.auth.Logout(w, r)
	s.dropFeed(feedID)
	http.Redirect(w, r, "/login", http.StatusFound)
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request) {
	var (
		overview  models.OverviewStatistics
		promising *int
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		overview, err = s.source.Overview(ctx)
		return err
	})
	// 只有能直接计数的数据源才显示总数，列表本身由 feed 加载。
	if totaler, ok := s.source.(adapter.Totaler); ok {
		g.Go(func() error {
			n, err := totaler.Total(ctx)
			promising = &n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		s.logger.ErrorContext(r.Context(), "load dashboard", "error", err)
		http.Error(w, "failed to load dashboard", http.StatusInternalServerError)
		return
	}

	data := map[string]interface{}{
		"Counters":       overview.Counters(),
		"PromisingCount": promising,
		"Sentinel":       feed.DefaultSentinel,
		"Username":       s.auth.Username(r),
		"CSRFField":      csrf.TemplateField(r),
		"CSRFToken":      csrf.Token(r),
	}
	if err := s.templates.ExecuteTemplate(w, "dashboard", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// logContext 让后续日志带上请求 ID。
func logContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := middleware.GetReqID(ctx); id != "" {
			ctx = log.ContextAttrs(ctx, slog.String("request_id", id))
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	writeJSONStatus(w, payload, http.StatusOK)
}

func writeJSONStatus(w http.ResponseWriter, payload interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeErr(w http.ResponseWriter, err error, status int) {
	writeMessage(w, err.Error(), status)
}

func writeMessage(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

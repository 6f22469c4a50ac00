package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"

	"github.com/hitushen/langdonboard/internal/log"
	"github.com/hitushen/langdonboard/internal/models"
)

const sessionName = "langdon_auth"

// ErrUnauthorised 表示请求没有有效的登录会话。
var ErrUnauthorised = errors.New("unauthorised")

// Authenticator 校验用户名与密码。
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
}

// Manager 负责处理登录会话。
type Manager struct {
	users  Authenticator
	cookie sessions.Store
}

// NewManager 使用提供的会话密钥创建 Manager。
func NewManager(users Authenticator, sessionKey []byte, secure bool) *Manager {
	cookieStore := sessions.NewCookieStore(sessionKey)
	cookieStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   60 * 60 * 12, // 12 小时
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
	return &Manager{
		users:  users,
		cookie: cookieStore,
	}
}

// Authenticate 校验凭证并写入会话信息，每次登录都会分配新的加载会话 ID。
func (m *Manager) Authenticate(w http.ResponseWriter, r *http.Request, username, password string) error {
	user, err := m.users.Authenticate(r.Context(), username, password)
	if err != nil {
		return err
	}
	session, _ := m.cookie.Get(r, sessionName)
	session.Values["user_id"] = user.ID
	session.Values["username"] = user.Username
	session.Values["feed_id"] = uuid.NewString()
	return session.Save(r, w)
}

// Logout 清理当前会话，并返回被清理的加载会话 ID。
func (m *Manager) Logout(w http.ResponseWriter, r *http.Request) (string, error) {
	session, _ := m.cookie.Get(r, sessionName)
	feedID, _ := session.Values["feed_id"].(string)
	session.Options.MaxAge = -1
	return feedID, session.Save(r, w)
}

// RequireUser 提取当前登录用户的 ID。
func (m *Manager) RequireUser(r *http.Request) (int64, error) {
	session, err := m.cookie.Get(r, sessionName)
	if err != nil {
		return 0, err
	}
	userID := toInt64(session.Values["user_id"])
	if userID == 0 {
		return 0, ErrUnauthorised
	}
	return userID, nil
}

// FeedID 返回会话绑定的加载会话 ID；旧会话没有时补发一个。
func (m *Manager) FeedID(w http.ResponseWriter, r *http.Request) (string, error) {
	session, err := m.cookie.Get(r, sessionName)
	if err != nil {
		return "", err
	}
	if id, ok := session.Values["feed_id"].(string); ok && id != "" {
		return id, nil
	}
	id := uuid.NewString()
	session.Values["feed_id"] = id
	if err := session.Save(r, w); err != nil {
		return "", err
	}
	return id, nil
}

// Middleware 确保请求具备已登录用户，页面请求跳转登录页，接口请求返回 401。
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := m.RequireUser(r)
		if err != nil {
			if wantsJSON(r) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorised"}`))
				return
			}
			http.Redirect(w, r, "/login", http.StatusFound)
			return
		}
		next.ServeHTTP(w, r.WithContext(ContextWithUser(r.Context(), userID)))
	})
}

func wantsJSON(r *http.Request) bool {
	if strings.HasPrefix(r.URL.Path, "/api/") {
		return true
	}
	return r.Header.Get("Accept") == "application/json"
}

// Username 获取用户名以供界面展示。
func (m *Manager) Username(r *http.Request) string {
	session, err := m.cookie.Get(r, sessionName)
	if err != nil {
		return ""
	}
	if uname, ok := session.Values["username"].(string); ok {
		return uname
	}
	return ""
}

// ContextWithUser 将用户 ID 写入上下文，并作为日志属性附带。
func ContextWithUser(ctx context.Context, userID int64) context.Context {
	ctx = log.ContextAttrs(ctx, slog.Int64("user_id", userID))
	return context.WithValue(ctx, contextKey("user_id"), userID)
}

// UserFromContext 从上下文读取用户 ID。
func UserFromContext(ctx context.Context) (int64, bool) {
	val := ctx.Value(contextKey("user_id"))
	if val == nil {
		return 0, false
	}
	id, ok := val.(int64)
	return id, ok
}

type contextKey string

func toInt64(v interface{}) int64 {
	switch value := v.(type) {
	case int:
		return int64(value)
	case int64:
		return value
	case uint:
		return int64(value)
	case uint64:
		return int64(value)
	case float64:
		return int64(value)
	default:
		return 0
	}
}

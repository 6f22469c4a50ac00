package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/adrg/xdg"
)

// DefaultPageSize 是“有价值发现”每页的条目数。
const DefaultPageSize = 20

// Config 汇总服务运行时所需的全部配置。
type Config struct {
	Addr            string
	AdminUser       string
	AdminPassword   string
	SessionKey      []byte
	CSRFKey         []byte
	SecureCookies   bool
	DBPath          string
	PageSize        int
	MockData        bool
	Verbose         bool
	ScanTimeout     time.Duration
	ScanConcurrency int
}

// Load 从环境变量构建配置，并提供合理的默认值。
func Load() (*Config, error) {
	cfg := &Config{
		Addr:            getenv("LANGDON_HTTP_ADDR", ":8080"),
		AdminUser:       getenv("LANGDON_ADMIN_USER", "admin"),
		AdminPassword:   getenv("LANGDON_ADMIN_PASS", "admin123"),
		SessionKey:      []byte(getenv("LANGDON_SESSION_KEY", "0123456789abcdef0123456789abcdef")),
		CSRFKey:         []byte(getenv("LANGDON_CSRF_KEY", "abcdef0123456789abcdef0123456789")),
		SecureCookies:   boolEnv("LANGDON_SECURE_COOKIES", false),
		DBPath:          getenv("LANGDON_DB_PATH", DefaultDBPath()),
		PageSize:        intEnv("LANGDON_PAGE_SIZE", DefaultPageSize),
		MockData:        boolEnv("LANGDON_MOCK_DATA", false),
		Verbose:         boolEnv("LANGDON_VERBOSE", false),
		ScanTimeout:     durationEnv("LANGDON_SCAN_TIMEOUT", 2*time.Second),
		ScanConcurrency: intEnv("LANGDON_SCAN_CONCURRENCY", 4),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 检查配置项之间的约束。
func (c *Config) Validate() error {
	if len(c.SessionKey) < 32 {
		return fmt.Errorf("session key must be at least 32 bytes, got %d", len(c.SessionKey))
	}
	if len(c.CSRFKey) < 32 {
		return fmt.Errorf("csrf key must be at least 32 bytes, got %d", len(c.CSRFKey))
	}
	if c.AdminUser == "" || c.AdminPassword == "" {
		return fmt.Errorf("admin credentials must not be empty")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("page size must be positive")
	}
	if c.ScanConcurrency <= 0 {
		return fmt.Errorf("scan concurrency must be positive")
	}
	return nil
}

// DefaultDBPath 返回 XDG 数据目录下的数据库路径。
func DefaultDBPath() string {
	return filepath.Join(xdg.DataHome, "langdonboard", "langdon.db")
}

func getenv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func durationEnv(key string, fallback time.Duration) time.Duration {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func intEnv(key string, fallback int) int {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return n
}

func boolEnv(key string, fallback bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return fallback
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return b
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/hitushen/langdonboard/internal/models"
	"golang.org/x/crypto/bcrypt"
)

// ErrNotFound 表示查询的记录不存在。
var ErrNotFound = errors.New("not found")

// ErrInvalidCredentials 表示用户名或密码错误。
var ErrInvalidCredentials = errors.New("invalid credentials")

// Store 封装了对侦察 SQLite 数据库的持久化访问。
// 表结构与 langdon 侦察工具写入的库保持一致，可以直接打开其产出的数据库。
type Store struct {
	DB *sql.DB
}

// New 根据给定的 SQLite 文件路径初始化 Store。
func New(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite 更适合单写入，这里保持简单配置。

	s := &Store{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close 释放数据库资源。
func (s *Store) Close() error {
	return s.DB.Close()
}

func (s *Store) migrate() error {
	schema := []string{
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		);`,
		`CREATE TABLE IF NOT EXISTS langdon_domains (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			was_known BOOLEAN NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS langdon_androidapps (
			id INTEGER PRIMARY KEY,
			android_app_id TEXT NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS langdon_ipaddresses (
			id INTEGER PRIMARY KEY,
			address TEXT NOT NULL UNIQUE,
			version TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS langdon_ipdomainrels (
			id INTEGER PRIMARY KEY,
			ip_id INTEGER NOT NULL REFERENCES langdon_ipaddresses(id),
			domain_id INTEGER NOT NULL REFERENCES langdon_domains(id)
		);`,
		`CREATE TABLE IF NOT EXISTS langdon_webdirectories (
			id INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			domain_id INTEGER REFERENCES langdon_domains(id),
			ip_id INTEGER REFERENCES langdon_ipaddresses(id),
			uses_ssl BOOLEAN NOT NULL,
			CONSTRAINT _path_domain_ip_uc UNIQUE (path, domain_id, ip_id)
		);`,
		`CREATE TABLE IF NOT EXISTS langdon_httpheaders (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS langdon_dirheaderrels (
			id INTEGER PRIMARY KEY,
			header_id INTEGER NOT NULL REFERENCES langdon_httpheaders(id),
			directory_id INTEGER NOT NULL REFERENCES langdon_webdirectories(id)
		);`,
		`CREATE TABLE IF NOT EXISTS langdon_httpcookies (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE
		);`,
		`CREATE TABLE IF NOT EXISTS langdon_dircookierels (
			id INTEGER PRIMARY KEY,
			cookie_id INTEGER NOT NULL REFERENCES langdon_httpcookies(id),
			directory_id INTEGER NOT NULL REFERENCES langdon_webdirectories(id)
		);`,
		`CREATE TABLE IF NOT EXISTS langdon_webdirectoryresponses (
			id INTEGER PRIMARY KEY,
			directory_id INTEGER NOT NULL REFERENCES langdon_webdirectories(id),
			response_hash TEXT NOT NULL,
			response_path TEXT NOT NULL,
			CONSTRAINT _wd_id_hash_uc UNIQUE (directory_id, response_hash)
		);`,
		`CREATE TABLE IF NOT EXISTS langdon_usedports (
			id INTEGER PRIMARY KEY,
			port INTEGER NOT NULL,
			transport_layer_protocol TEXT NOT NULL,
			is_filtered BOOLEAN NOT NULL,
			CONSTRAINT _port_tlp_is_filtered_uc UNIQUE (port, transport_layer_protocol, is_filtered)
		);`,
		`CREATE TABLE IF NOT EXISTS langdon_portiprels (
			id INTEGER PRIMARY KEY,
			port_id INTEGER NOT NULL REFERENCES langdon_usedports(id),
			ip_id INTEGER NOT NULL REFERENCES langdon_ipaddresses(id)
		);`,
		`CREATE TABLE IF NOT EXISTS langdon_technologies (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			version TEXT,
			CONSTRAINT _name_version_uc UNIQUE (name, version)
		);`,
		`CREATE TABLE IF NOT EXISTS langdon_webdirtechrels (
			id INTEGER PRIMARY KEY,
			directory_id INTEGER NOT NULL REFERENCES langdon_webdirectories(id),
			technology_id INTEGER NOT NULL REFERENCES langdon_technologies(id)
		);`,
		`CREATE TABLE IF NOT EXISTS langdon_porttechrels (
			id INTEGER PRIMARY KEY,
			port_id INTEGER NOT NULL REFERENCES langdon_usedports(id),
			technology_id INTEGER NOT NULL REFERENCES langdon_technologies(id)
		);`,
		`CREATE TABLE IF NOT EXISTS langdon_vulnerabilities (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL,
			technology_id INTEGER NOT NULL REFERENCES langdon_technologies(id)
		);`,
	}
	for _, stmt := range schema {
		if _, err := s.DB.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// EnsureAdmin 根据给定凭证创建或更新管理员账号，确保其存在。
func (s *Store) EnsureAdmin(ctx context.Context, username, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var existingID int64
	err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE username = ?`, username).Scan(&existingID)
	if errors.Is(err, sql.ErrNoRows) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO users (username, password_hash) VALUES (?, ?)`, username, string(hash)); err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
	} else if err == nil {
		if _, err := tx.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, string(hash), existingID); err != nil {
			return fmt.Errorf("update admin: %w", err)
		}
	} else {
		return err
	}

	return tx.Commit()
}

// Authenticate 校验登录凭证，成功时返回用户。
func (s *Store) Authenticate(ctx context.Context, username, password string) (*models.User, error) {
	var user models.User
	err := s.DB.QueryRowContext(ctx, `SELECT id, username, password_hash, created_at FROM users WHERE username = ?`, username).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return &user, nil
}

func notFound(err error, what string, id int64) error {
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %d: %w", what, id, ErrNotFound)
	}
	return err
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/hitushen/langdonboard/internal/models"
)

// ensure 先按唯一键查找，不存在时插入，返回记录 ID。
// 唯一键中可能含有 NULL，SQLite 的 ON CONFLICT 无法覆盖这种情况，因此用 IS 比较。
func (s *Store) ensure(ctx context.Context, selectSQL string, selectArgs []interface{}, insertSQL string, insertArgs []interface{}) (int64, bool, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, err
	}
	defer func() { _ = tx.Rollback() }()

	var id int64
	err = tx.QueryRowContext(ctx, selectSQL, selectArgs...).Scan(&id)
	if err == nil {
		return id, false, tx.Commit()
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, false, err
	}
	res, err := tx.ExecContext(ctx, insertSQL, insertArgs...)
	if err != nil {
		return 0, false, err
	}
	id, err = res.LastInsertId()
	if err != nil {
		return 0, false, err
	}
	return id, true, tx.Commit()
}

func nullable(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}

func nullableID(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// UpsertDomain 保存域名；已存在时保持原有 was_known 标记。
func (s *Store) UpsertDomain(ctx context.Context, name string, wasKnown bool) (int64, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return 0, fmt.Errorf("domain name required")
	}
	id, _, err := s.ensure(ctx,
		`SELECT id FROM langdon_domains WHERE name = ?`, []interface{}{name},
		`INSERT INTO langdon_domains (name, was_known) VALUES (?, ?)`, []interface{}{name, boolToInt(wasKnown)},
	)
	if err != nil {
		return 0, fmt.Errorf("upsert domain %q: %w", name, err)
	}
	return id, nil
}

// AddAndroidApp 保存安卓应用 ID。
func (s *Store) AddAndroidApp(ctx context.Context, appID string) (int64, error) {
	appID = strings.TrimSpace(appID)
	id, _, err := s.ensure(ctx,
		`SELECT id FROM langdon_androidapps WHERE android_app_id = ?`, []interface{}{appID},
		`INSERT INTO langdon_androidapps (android_app_id) VALUES (?)`, []interface{}{appID},
	)
	if err != nil {
		return 0, fmt.Errorf("add android app %q: %w", appID, err)
	}
	return id, nil
}

// UpsertIPAddress 保存 IP 地址，版本由地址本身推断。
func (s *Store) UpsertIPAddress(ctx context.Context, address string) (int64, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(address))
	if err != nil {
		return 0, fmt.Errorf("parse ip %q: %w", address, err)
	}
	addr = addr.Unmap()
	version := models.IPv4
	if addr.Is6() {
		version = models.IPv6
	}
	text := addr.String()
	id, _, err := s.ensure(ctx,
		`SELECT id FROM langdon_ipaddresses WHERE address = ?`, []interface{}{text},
		`INSERT INTO langdon_ipaddresses (address, version) VALUES (?, ?)`, []interface{}{text, version},
	)
	if err != nil {
		return 0, fmt.Errorf("upsert ip %s: %w", text, err)
	}
	return id, nil
}

// LinkIPDomain 记录 IP 与域名的解析关系。
func (s *Store) LinkIPDomain(ctx context.Context, ipID, domainID int64) error {
	_, _, err := s.ensure(ctx,
		`SELECT id FROM langdon_ipdomainrels WHERE ip_id = ? AND domain_id = ?`, []interface{}{ipID, domainID},
		`INSERT INTO langdon_ipdomainrels (ip_id, domain_id) VALUES (?, ?)`, []interface{}{ipID, domainID},
	)
	return err
}

// UpsertUsedPort 保存端口记录。
func (s *Store) UpsertUsedPort(ctx context.Context, port int, protocol string, filtered bool) (int64, error) {
	if port <= 0 || port > 65535 {
		return 0, fmt.Errorf("invalid port number %d", port)
	}
	if protocol == "" {
		protocol = models.ProtocolTCP
	}
	id, _, err := s.ensure(ctx,
		`SELECT id FROM langdon_usedports WHERE port = ? AND transport_layer_protocol = ? AND is_filtered = ?`,
		[]interface{}{port, protocol, boolToInt(filtered)},
		`INSERT INTO langdon_usedports (port, transport_layer_protocol, is_filtered) VALUES (?, ?, ?)`,
		[]interface{}{port, protocol, boolToInt(filtered)},
	)
	if err != nil {
		return 0, fmt.Errorf("upsert port %d/%s: %w", port, protocol, err)
	}
	return id, nil
}

// LinkPortIP 记录端口与 IP 的关联。
func (s *Store) LinkPortIP(ctx context.Context, portID, ipID int64) error {
	_, _, err := s.ensure(ctx,
		`SELECT id FROM langdon_portiprels WHERE port_id = ? AND ip_id = ?`, []interface{}{portID, ipID},
		`INSERT INTO langdon_portiprels (port_id, ip_id) VALUES (?, ?)`, []interface{}{portID, ipID},
	)
	return err
}

// UpsertTechnology 保存技术名称与版本，版本为空时写入 NULL。
func (s *Store) UpsertTechnology(ctx context.Context, name, version string) (int64, error) {
	name = strings.TrimSpace(name)
	version = strings.TrimSpace(version)
	if name == "" {
		return 0, fmt.Errorf("technology name required")
	}
	id, _, err := s.ensure(ctx,
		`SELECT id FROM langdon_technologies WHERE name = ? AND version IS ?`, []interface{}{name, nullable(version)},
		`INSERT INTO langdon_technologies (name, version) VALUES (?, ?)`, []interface{}{name, nullable(version)},
	)
	if err != nil {
		return 0, fmt.Errorf("upsert technology %q: %w", name, err)
	}
	return id, nil
}

// LinkPortTechnology 记录端口上运行的技术。
func (s *Store) LinkPortTechnology(ctx context.Context, portID, technologyID int64) error {
	_, _, err := s.ensure(ctx,
		`SELECT id FROM langdon_porttechrels WHERE port_id = ? AND technology_id = ?`, []interface{}{portID, technologyID},
		`INSERT INTO langdon_porttechrels (port_id, technology_id) VALUES (?, ?)`, []interface{}{portID, technologyID},
	)
	return err
}

// LinkDirectoryTechnology 记录目录响应中识别出的技术。
func (s *Store) LinkDirectoryTechnology(ctx context.Context, directoryID, technologyID int64) error {
	_, _, err := s.ensure(ctx,
		`SELECT id FROM langdon_webdirtechrels WHERE directory_id = ? AND technology_id = ?`, []interface{}{directoryID, technologyID},
		`INSERT INTO langdon_webdirtechrels (directory_id, technology_id) VALUES (?, ?)`, []interface{}{directoryID, technologyID},
	)
	return err
}

// AddVulnerability 保存漏洞；同名漏洞只保留第一条。
func (s *Store) AddVulnerability(ctx context.Context, name, source string, technologyID int64) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, fmt.Errorf("vulnerability name required")
	}
	id, _, err := s.ensure(ctx,
		`SELECT id FROM langdon_vulnerabilities WHERE name = ?`, []interface{}{name},
		`INSERT INTO langdon_vulnerabilities (name, source, technology_id) VALUES (?, ?, ?)`, []interface{}{name, source, technologyID},
	)
	if err != nil {
		return 0, fmt.Errorf("add vulnerability %q: %w", name, err)
	}
	return id, nil
}

// UpsertWebDirectory 保存目录；域名与 IP 至少提供一个。
func (s *Store) UpsertWebDirectory(ctx context.Context, path string, domainID, ipID *int64, usesSSL bool) (int64, error) {
	if domainID == nil && ipID == nil {
		return 0, fmt.Errorf("web directory %q needs a domain or an ip", path)
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	id, _, err := s.ensure(ctx,
		`SELECT id FROM langdon_webdirectories WHERE path = ? AND domain_id IS ? AND ip_id IS ?`,
		[]interface{}{path, nullableID(domainID), nullableID(ipID)},
		`INSERT INTO langdon_webdirectories (path, domain_id, ip_id, uses_ssl) VALUES (?, ?, ?, ?)`,
		[]interface{}{path, nullableID(domainID), nullableID(ipID), boolToInt(usesSSL)},
	)
	if err != nil {
		return 0, fmt.Errorf("upsert web directory %q: %w", path, err)
	}
	return id, nil
}

// AddWebDirectoryResponse 记录目录的一次响应，按内容哈希去重。
func (s *Store) AddWebDirectoryResponse(ctx context.Context, directoryID int64, hash, responsePath string) (int64, error) {
	id, _, err := s.ensure(ctx,
		`SELECT id FROM langdon_webdirectoryresponses WHERE directory_id = ? AND response_hash = ?`, []interface{}{directoryID, hash},
		`INSERT INTO langdon_webdirectoryresponses (directory_id, response_hash, response_path) VALUES (?, ?, ?)`,
		[]interface{}{directoryID, hash, responsePath},
	)
	return id, err
}

// AddHTTPHeader 保存响应头名称并关联到目录。
func (s *Store) AddHTTPHeader(ctx context.Context, directoryID int64, name string) error {
	headerID, _, err := s.ensure(ctx,
		`SELECT id FROM langdon_httpheaders WHERE name = ?`, []interface{}{name},
		`INSERT INTO langdon_httpheaders (name) VALUES (?)`, []interface{}{name},
	)
	if err != nil {
		return fmt.Errorf("add header %q: %w", name, err)
	}
	_, _, err = s.ensure(ctx,
		`SELECT id FROM langdon_dirheaderrels WHERE header_id = ? AND directory_id = ?`, []interface{}{headerID, directoryID},
		`INSERT INTO langdon_dirheaderrels (header_id, directory_id) VALUES (?, ?)`, []interface{}{headerID, directoryID},
	)
	return err
}

// AddHTTPCookie 保存 Cookie 名称并关联到目录。
func (s *Store) AddHTTPCookie(ctx context.Context, directoryID int64, name string) error {
	cookieID, _, err := s.ensure(ctx,
		`SELECT id FROM langdon_httpcookies WHERE name = ?`, []interface{}{name},
		`INSERT INTO langdon_httpcookies (name) VALUES (?)`, []interface{}{name},
	)
	if err != nil {
		return fmt.Errorf("add cookie %q: %w", name, err)
	}
	_, _, err = s.ensure(ctx,
		`SELECT id FROM langdon_dircookierels WHERE cookie_id = ? AND directory_id = ?`, []interface{}{cookieID, directoryID},
		`INSERT INTO langdon_dircookierels (cookie_id, directory_id) VALUES (?, ?)`, []interface{}{cookieID, directoryID},
	)
	return err
}

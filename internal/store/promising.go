package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/hitushen/langdonboard/internal/models"
)

// Overview 统计九类资产的数量。
func (s *Store) Overview(ctx context.Context) (models.OverviewStatistics, error) {
	var o models.OverviewStatistics
	targets := []struct {
		table string
		dst   *int
	}{
		{"langdon_androidapps", &o.AndroidApps},
		{"langdon_domains", &o.Domains},
		{"langdon_httpcookies", &o.HTTPCookies},
		{"langdon_httpheaders", &o.HTTPHeaders},
		{"langdon_ipaddresses", &o.IPAddresses},
		{"langdon_technologies", &o.Technologies},
		{"langdon_usedports", &o.UsedPorts},
		{"langdon_vulnerabilities", &o.Vulnerabilities},
		{"langdon_webdirectories", &o.WebDirectories},
	}
	for _, t := range targets {
		if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(1) FROM `+t.table).Scan(t.dst); err != nil {
			return models.OverviewStatistics{}, fmt.Errorf("count %s: %w", t.table, err)
		}
	}
	return o, nil
}

// PromisingCounts 记录每个类别中“有价值”的记录数。
type PromisingCounts struct {
	Domains         int
	Technologies    int
	UsedPorts       int
	Vulnerabilities int
	WebDirectories  int
}

// Total 返回所有类别之和。
func (c PromisingCounts) Total() int {
	return c.Domains + c.Technologies + c.UsedPorts + c.Vulnerabilities + c.WebDirectories
}

// Of 返回指定类别的数量。
func (c PromisingCounts) Of(t models.FindingType) int {
	switch t {
	case models.FindingDomain:
		return c.Domains
	case models.FindingTechnology:
		return c.Technologies
	case models.FindingUsedPort:
		return c.UsedPorts
	case models.FindingVulnerability:
		return c.Vulnerabilities
	case models.FindingWebDirectory:
		return c.WebDirectories
	}
	return 0
}

// PromisingTypes 是分页时遍历类别的固定顺序。
var PromisingTypes = []models.FindingType{
	models.FindingDomain,
	models.FindingTechnology,
	models.FindingUsedPort,
	models.FindingVulnerability,
	models.FindingWebDirectory,
}

type promisingQuery struct {
	count string
	list  string
	scan  func(*sql.Rows) (models.Finding, error)
}

var promisingQueries = map[models.FindingType]promisingQuery{
	models.FindingDomain: {
		count: `SELECT COUNT(1) FROM langdon_domains WHERE was_known = 0`,
		list:  `SELECT id, name FROM langdon_domains WHERE was_known = 0 ORDER BY id LIMIT ? OFFSET ?`,
		scan: func(rows *sql.Rows) (models.Finding, error) {
			f := models.Finding{Type: models.FindingDomain}
			err := rows.Scan(&f.ID, &f.Label)
			return f, err
		},
	},
	models.FindingTechnology: {
		count: `SELECT COUNT(1) FROM langdon_technologies WHERE version IS NOT NULL AND version <> ''`,
		list:  `SELECT id, name, version FROM langdon_technologies WHERE version IS NOT NULL AND version <> '' ORDER BY id LIMIT ? OFFSET ?`,
		scan: func(rows *sql.Rows) (models.Finding, error) {
			var t models.Technology
			if err := rows.Scan(&t.ID, &t.Name, &t.Version); err != nil {
				return models.Finding{}, err
			}
			return models.Finding{ID: t.ID, Label: t.Label(), Type: models.FindingTechnology}, nil
		},
	},
	models.FindingUsedPort: {
		count: `SELECT COUNT(1) FROM langdon_usedports WHERE is_filtered = 0`,
		list: `SELECT p.id, p.port, p.transport_layer_protocol,
			(SELECT i.address FROM langdon_portiprels r JOIN langdon_ipaddresses i ON i.id = r.ip_id
			 WHERE r.port_id = p.id ORDER BY i.id LIMIT 1)
			FROM langdon_usedports p WHERE p.is_filtered = 0 ORDER BY p.id LIMIT ? OFFSET ?`,
		scan: func(rows *sql.Rows) (models.Finding, error) {
			var p models.UsedPort
			var ip sql.NullString
			if err := rows.Scan(&p.ID, &p.Port, &p.Protocol, &ip); err != nil {
				return models.Finding{}, err
			}
			return models.Finding{ID: p.ID, Label: portLabel(p, ip.String), Type: models.FindingUsedPort}, nil
		},
	},
	models.FindingVulnerability: {
		count: `SELECT COUNT(1) FROM langdon_vulnerabilities`,
		list:  `SELECT id, name FROM langdon_vulnerabilities ORDER BY id LIMIT ? OFFSET ?`,
		scan: func(rows *sql.Rows) (models.Finding, error) {
			f := models.Finding{Type: models.FindingVulnerability}
			err := rows.Scan(&f.ID, &f.Label)
			return f, err
		},
	},
	models.FindingWebDirectory: {
		count: `SELECT COUNT(1) FROM langdon_webdirectories d
			WHERE EXISTS (SELECT 1 FROM langdon_webdirectoryresponses r WHERE r.directory_id = d.id)`,
		list: `SELECT d.id, d.path, d.uses_ssl, COALESCE(dm.name, ip.address, '')
			FROM langdon_webdirectories d
			LEFT JOIN langdon_domains dm ON dm.id = d.domain_id
			LEFT JOIN langdon_ipaddresses ip ON ip.id = d.ip_id
			WHERE EXISTS (SELECT 1 FROM langdon_webdirectoryresponses r WHERE r.directory_id = d.id)
			ORDER BY d.id LIMIT ? OFFSET ?`,
		scan: func(rows *sql.Rows) (models.Finding, error) {
			var d models.WebDirectory
			if err := rows.Scan(&d.ID, &d.Path, &d.UsesSSL, &d.Host); err != nil {
				return models.Finding{}, err
			}
			return models.Finding{ID: d.ID, Label: d.URL(), Type: models.FindingWebDirectory}, nil
		},
	},
}

func portLabel(p models.UsedPort, ip string) string {
	if ip == "" {
		return strconv.Itoa(p.Port) + "/" + p.Protocol
	}
	if strings.Contains(ip, ":") {
		return "[" + ip + "]:" + strconv.Itoa(p.Port)
	}
	return ip + ":" + strconv.Itoa(p.Port)
}

// CountPromising 统计每个类别的有价值记录。
func (s *Store) CountPromising(ctx context.Context) (PromisingCounts, error) {
	var c PromisingCounts
	dst := map[models.FindingType]*int{
		models.FindingDomain:        &c.Domains,
		models.FindingTechnology:    &c.Technologies,
		models.FindingUsedPort:      &c.UsedPorts,
		models.FindingVulnerability: &c.Vulnerabilities,
		models.FindingWebDirectory:  &c.WebDirectories,
	}
	for _, t := range PromisingTypes {
		if err := s.DB.QueryRowContext(ctx, promisingQueries[t].count).Scan(dst[t]); err != nil {
			return PromisingCounts{}, fmt.Errorf("count promising %s: %w", t, err)
		}
	}
	return c, nil
}

// ListPromising 返回指定类别中 [offset, offset+limit) 区间的记录，标签未做脱敏。
func (s *Store) ListPromising(ctx context.Context, t models.FindingType, offset, limit int) ([]models.Finding, error) {
	q, ok := promisingQueries[t]
	if !ok {
		return nil, fmt.Errorf("unknown finding type %q", t)
	}
	if limit <= 0 {
		return nil, nil
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := s.DB.QueryContext(ctx, q.list, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list promising %s: %w", t, err)
	}
	defer rows.Close()

	var out []models.Finding
	for rows.Next() {
		f, err := q.scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// GetDomain 根据 ID 获取域名。
func (s *Store) GetDomain(ctx context.Context, id int64) (*models.Domain, error) {
	var d models.Domain
	err := s.DB.QueryRowContext(ctx, `SELECT id, name, was_known FROM langdon_domains WHERE id = ?`, id).
		Scan(&d.ID, &d.Name, &d.WasKnown)
	if err != nil {
		return nil, notFound(err, "domain", id)
	}
	return &d, nil
}

// GetTechnology 根据 ID 获取技术。
func (s *Store) GetTechnology(ctx context.Context, id int64) (*models.Technology, error) {
	var t models.Technology
	var version sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT id, name, version FROM langdon_technologies WHERE id = ?`, id).
		Scan(&t.ID, &t.Name, &version)
	if err != nil {
		return nil, notFound(err, "technology", id)
	}
	t.Version = version.String
	return &t, nil
}

// GetUsedPort 根据 ID 获取端口。
func (s *Store) GetUsedPort(ctx context.Context, id int64) (*models.UsedPort, error) {
	var p models.UsedPort
	err := s.DB.QueryRowContext(ctx, `SELECT id, port, transport_layer_protocol, is_filtered FROM langdon_usedports WHERE id = ?`, id).
		Scan(&p.ID, &p.Port, &p.Protocol, &p.IsFiltered)
	if err != nil {
		return nil, notFound(err, "port", id)
	}
	return &p, nil
}

// GetVulnerability 根据 ID 获取漏洞。
func (s *Store) GetVulnerability(ctx context.Context, id int64) (*models.Vulnerability, error) {
	var v models.Vulnerability
	err := s.DB.QueryRowContext(ctx, `SELECT id, name, source, technology_id FROM langdon_vulnerabilities WHERE id = ?`, id).
		Scan(&v.ID, &v.Name, &v.Source, &v.TechnologyID)
	if err != nil {
		return nil, notFound(err, "vulnerability", id)
	}
	return &v, nil
}

// GetWebDirectory 根据 ID 获取目录及其响应数量。
func (s *Store) GetWebDirectory(ctx context.Context, id int64) (*models.WebDirectory, error) {
	var d models.WebDirectory
	var domainID, ipID sql.NullInt64
	err := s.DB.QueryRowContext(ctx, `
		SELECT d.id, d.path, d.domain_id, d.ip_id, d.uses_ssl, COALESCE(dm.name, ip.address, ''),
			(SELECT COUNT(1) FROM langdon_webdirectoryresponses r WHERE r.directory_id = d.id)
		FROM langdon_webdirectories d
		LEFT JOIN langdon_domains dm ON dm.id = d.domain_id
		LEFT JOIN langdon_ipaddresses ip ON ip.id = d.ip_id
		WHERE d.id = ?`, id).
		Scan(&d.ID, &d.Path, &domainID, &ipID, &d.UsesSSL, &d.Host, &d.Responses)
	if err != nil {
		return nil, notFound(err, "web directory", id)
	}
	if domainID.Valid {
		d.DomainID = &domainID.Int64
	}
	if ipID.Valid {
		d.IPID = &ipID.Int64
	}
	return &d, nil
}

package importer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/asaskevich/govalidator"
	"gopkg.in/yaml.v3"

	"github.com/hitushen/langdonboard/internal/models"
)

// Seed 是 YAML 演示数据文件的结构。
type Seed struct {
	Domains        []SeedDomain       `yaml:"domains"`
	AndroidApps    []string           `yaml:"android_apps"`
	IPAddresses    []string           `yaml:"ip_addresses"`
	Technologies   []SeedTechnology   `yaml:"technologies"`
	UsedPorts      []SeedPort         `yaml:"used_ports"`
	WebDirectories []SeedWebDirectory `yaml:"web_directories"`
}

type SeedDomain struct {
	Name  string   `yaml:"name"`
	Known bool     `yaml:"known"`
	IPs   []string `yaml:"ips"`
}

type SeedTechnology struct {
	Name            string              `yaml:"name"`
	Version         string              `yaml:"version"`
	Vulnerabilities []SeedVulnerability `yaml:"vulnerabilities"`
}

type SeedVulnerability struct {
	Name   string `yaml:"name"`
	Source string `yaml:"source"`
}

type SeedPort struct {
	Port         int              `yaml:"port"`
	Protocol     string           `yaml:"protocol"`
	Filtered     bool             `yaml:"filtered"`
	IP           string           `yaml:"ip"`
	Technologies []SeedTechnology `yaml:"technologies"`
}

type SeedWebDirectory struct {
	Path         string           `yaml:"path"`
	Domain       string           `yaml:"domain"`
	IP           string           `yaml:"ip"`
	SSL          bool             `yaml:"ssl"`
	Responses    []SeedResponse   `yaml:"responses"`
	Headers      []string         `yaml:"headers"`
	Cookies      []string         `yaml:"cookies"`
	Technologies []SeedTechnology `yaml:"technologies"`
}

type SeedResponse struct {
	Hash string `yaml:"hash"`
	Path string `yaml:"path"`
}

// YAML 解码并导入演示数据。校验失败的条目记入 Problems 后跳过，存储错误立即返回。
func (im *Importer) YAML(ctx context.Context, r io.Reader) (Report, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return Report{}, fmt.Errorf("decode seed: %w", err)
	}
	return im.Seed(ctx, seed)
}

// Seed 导入已解码的演示数据。
func (im *Importer) Seed(ctx context.Context, seed Seed) (Report, error) {
	s := seeder{im: im, ctx: ctx, domains: map[string]int64{}, ips: map[string]int64{}, techs: map[string]int64{}}

	for _, d := range seed.Domains {
		if _, err := s.domain(d.Name, d.Known); err != nil {
			if s.fatal(err) {
				return s.report, err
			}
			continue
		}
		for _, ip := range d.IPs {
			if err := s.linkIP(ip, d.Name); err != nil && s.fatal(err) {
				return s.report, err
			}
		}
	}
	for _, app := range seed.AndroidApps {
		if err := im.importAsset(ctx, &s.report, AssetGooglePlayAppID, app); err != nil && s.fatal(err) {
			return s.report, err
		}
	}
	for _, ip := range seed.IPAddresses {
		if _, err := s.ip(ip); err != nil && s.fatal(err) {
			return s.report, err
		}
	}
	for _, t := range seed.Technologies {
		if _, err := s.technology(t); err != nil && s.fatal(err) {
			return s.report, err
		}
	}
	for _, p := range seed.UsedPorts {
		if err := s.port(p); err != nil && s.fatal(err) {
			return s.report, err
		}
	}
	for _, w := range seed.WebDirectories {
		if err := s.webDirectory(w); err != nil && s.fatal(err) {
			return s.report, err
		}
	}
	return s.report, nil
}

type seeder struct {
	im      *Importer
	ctx     context.Context
	report  Report
	domains map[string]int64
	ips     map[string]int64
	techs   map[string]int64
}

// fatal 区分校验错误与存储错误，前者记录后继续。
func (s *seeder) fatal(err error) bool {
	if invalid(err) {
		s.report.Skipped++
		s.report.Problems = append(s.report.Problems, err.Error())
		return false
	}
	return true
}

func invalidf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: "+format, append([]interface{}{ErrInvalidAsset}, args...)...)
}

func invalid(err error) bool {
	return errors.Is(err, ErrInvalidAsset) || errors.Is(err, ErrUnsupportedAssetType)
}

func (s *seeder) domain(name string, known bool) (int64, error) {
	if id, ok := s.domains[name]; ok {
		return id, nil
	}
	if !govalidator.IsDNSName(name) || govalidator.IsIP(name) {
		return 0, invalidf("domain %q is not a DNS name", name)
	}
	id, err := s.im.store.UpsertDomain(s.ctx, name, known)
	if err != nil {
		return 0, err
	}
	s.domains[name] = id
	s.report.Domains++
	return id, nil
}

func (s *seeder) ip(address string) (int64, error) {
	if id, ok := s.ips[address]; ok {
		return id, nil
	}
	if !govalidator.IsIP(address) {
		return 0, invalidf("ip address %q is invalid", address)
	}
	id, err := s.im.store.UpsertIPAddress(s.ctx, address)
	if err != nil {
		return 0, err
	}
	s.ips[address] = id
	s.report.IPAddresses++
	return id, nil
}

func (s *seeder) linkIP(address, domain string) error {
	ipID, err := s.ip(address)
	if err != nil {
		return err
	}
	return s.im.store.LinkIPDomain(s.ctx, ipID, s.domains[domain])
}

func (s *seeder) technology(t SeedTechnology) (int64, error) {
	if t.Name == "" {
		return 0, invalidf("technology without a name")
	}
	id, err := s.im.store.UpsertTechnology(s.ctx, t.Name, t.Version)
	if err != nil {
		return 0, err
	}
	if _, seen := s.techs[t.Name+"\x00"+t.Version]; !seen {
		s.techs[t.Name+"\x00"+t.Version] = id
		s.report.Technologies++
	}
	for _, v := range t.Vulnerabilities {
		if v.Name == "" {
			s.fatal(invalidf("vulnerability of %q without a name", t.Name))
			continue
		}
		if _, err := s.im.store.AddVulnerability(s.ctx, v.Name, v.Source, id); err != nil {
			return id, err
		}
		s.report.Vulnerabilities++
	}
	return id, nil
}

func (s *seeder) port(p SeedPort) error {
	if p.Port <= 0 || p.Port > 65535 {
		return invalidf("port %d out of range", p.Port)
	}
	if p.Protocol != "" && p.Protocol != models.ProtocolTCP && p.Protocol != models.ProtocolUDP {
		return invalidf("port %d: unknown protocol %q", p.Port, p.Protocol)
	}
	portID, err := s.im.store.UpsertUsedPort(s.ctx, p.Port, p.Protocol, p.Filtered)
	if err != nil {
		return err
	}
	s.report.UsedPorts++
	if p.IP != "" {
		ipID, err := s.ip(p.IP)
		if err != nil {
			return err
		}
		if err := s.im.store.LinkPortIP(s.ctx, portID, ipID); err != nil {
			return err
		}
	}
	for _, t := range p.Technologies {
		techID, err := s.technology(t)
		if err != nil {
			return err
		}
		if err := s.im.store.LinkPortTechnology(s.ctx, portID, techID); err != nil {
			return err
		}
	}
	return nil
}

func (s *seeder) webDirectory(w SeedWebDirectory) error {
	var domainID, ipID *int64
	if w.Domain != "" {
		id, err := s.domain(w.Domain, false)
		if err != nil {
			return err
		}
		domainID = &id
	}
	if w.IP != "" {
		id, err := s.ip(w.IP)
		if err != nil {
			return err
		}
		ipID = &id
	}
	if domainID == nil && ipID == nil {
		return invalidf("web directory %q needs a domain or an ip", w.Path)
	}

	dirID, err := s.im.store.UpsertWebDirectory(s.ctx, w.Path, domainID, ipID, w.SSL)
	if err != nil {
		return err
	}
	s.report.WebDirectories++
	for _, r := range w.Responses {
		if _, err := s.im.store.AddWebDirectoryResponse(s.ctx, dirID, r.Hash, r.Path); err != nil {
			return err
		}
	}
	for _, h := range w.Headers {
		if err := s.im.store.AddHTTPHeader(s.ctx, dirID, h); err != nil {
			return err
		}
	}
	for _, c := range w.Cookies {
		if err := s.im.store.AddHTTPCookie(s.ctx, dirID, c); err != nil {
			return err
		}
	}
	for _, t := range w.Technologies {
		techID, err := s.technology(t)
		if err != nil {
			return err
		}
		if err := s.im.store.LinkDirectoryTechnology(s.ctx, dirID, techID); err != nil {
			return err
		}
	}
	return nil
}

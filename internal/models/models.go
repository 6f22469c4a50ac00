package models

import "time"

// User 表示已认证的账户信息。
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// OverviewStatistics 汇总侦察数据库中各类资产的数量。
// 每次获取都会整体替换，不做增量更新。
type OverviewStatistics struct {
	AndroidApps     int `json:"android_apps"`
	Domains         int `json:"domains"`
	HTTPCookies     int `json:"http_cookies"`
	HTTPHeaders     int `json:"http_headers"`
	IPAddresses     int `json:"ip_addresses"`
	Technologies    int `json:"technologies"`
	UsedPorts       int `json:"used_ports"`
	Vulnerabilities int `json:"vulnerabilities"`
	WebDirectories  int `json:"web_directories"`
}

// Counter 是概览中的一个具名计数项，便于模板与报表按固定顺序展示。
type Counter struct {
	Key   string
	Label string
	Value int
}

// Counters 按固定顺序返回九个计数项。
func (o OverviewStatistics) Counters() []Counter {
	return []Counter{
		{Key: "android_apps", Label: "Android apps", Value: o.AndroidApps},
		{Key: "domains", Label: "Domains", Value: o.Domains},
		{Key: "http_cookies", Label: "Cookies", Value: o.HTTPCookies},
		{Key: "http_headers", Label: "Headers", Value: o.HTTPHeaders},
		{Key: "ip_addresses", Label: "IP addresses", Value: o.IPAddresses},
		{Key: "technologies", Label: "Technologies", Value: o.Technologies},
		{Key: "used_ports", Label: "Used ports", Value: o.UsedPorts},
		{Key: "vulnerabilities", Label: "Vulnerabilities", Value: o.Vulnerabilities},
		{Key: "web_directories", Label: "Web directories", Value: o.WebDirectories},
	}
}

// FindingType 定义发现项的类别。
type FindingType string

// 发现项类别枚举。
const (
	FindingWebDirectory  FindingType = "web_directory"
	FindingUsedPort      FindingType = "used_port"
	FindingTechnology    FindingType = "technology"
	FindingVulnerability FindingType = "vulnerability"
	FindingDomain        FindingType = "domain"
)

// Finding 是一条展示给用户的分类发现。
type Finding struct {
	ID    int64       `json:"id"`
	Label string      `json:"label"`
	Type  FindingType `json:"type"`
}

// FindingsPage 是分页接口返回的一页数据。
// Next 为 nil 表示数据已经取尽。
type FindingsPage struct {
	Count   int       `json:"count"`
	Next    *int      `json:"next"`
	Results []Finding `json:"results"`
}

// Domain 表示侦察得到的域名。
type Domain struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	WasKnown bool   `json:"wasKnown"`
}

// AndroidApp 表示范围内的安卓应用。
type AndroidApp struct {
	ID    int64  `json:"id"`
	AppID string `json:"appId"`
}

// IPAddress 表示解析或扫描得到的 IP 地址。
type IPAddress struct {
	ID      int64  `json:"id"`
	Address string `json:"address"`
	Version string `json:"version"`
}

// IP 版本取值。
const (
	IPv4 = "ipv4"
	IPv6 = "ipv6"
)

// WebDirectory 表示站点上发现的目录。
type WebDirectory struct {
	ID        int64  `json:"id"`
	Path      string `json:"path"`
	DomainID  *int64 `json:"domainId,omitempty"`
	IPID      *int64 `json:"ipId,omitempty"`
	UsesSSL   bool   `json:"usesSsl"`
	Host      string `json:"host"`
	Responses int    `json:"responses"`
}

// URL 拼出目录的完整地址。
func (d WebDirectory) URL() string {
	scheme := "http"
	if d.UsesSSL {
		scheme = "https"
	}
	return scheme + "://" + d.Host + d.Path
}

// UsedPort 表示开放或被过滤的端口。
type UsedPort struct {
	ID         int64  `json:"id"`
	Port       int    `json:"port"`
	Protocol   string `json:"protocol"`
	IsFiltered bool   `json:"isFiltered"`
}

// 传输层协议取值。
const (
	ProtocolTCP = "tcp"
	ProtocolUDP = "udp"
)

// Technology 表示识别出的技术栈及可选版本。
type Technology struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// Label 返回 "名称 版本" 形式的展示文本。
func (t Technology) Label() string {
	if t.Version == "" {
		return t.Name
	}
	return t.Name + " " + t.Version
}

// Vulnerability 表示与某个技术关联的漏洞。
type Vulnerability struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Source       string `json:"source"`
	TechnologyID int64  `json:"technologyId"`
}

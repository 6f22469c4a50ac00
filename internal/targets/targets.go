// Package targets 把用户输入的地址整理成扫描或导入所需的主机、域名与 IP。
package targets

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"

	"github.com/asaskevich/govalidator"
)

// ErrInvalidTarget 表示输入既不是合法域名也不是 IP。
var ErrInvalidTarget = errors.New("invalid target")

// Resolver 解析域名，net.DefaultResolver 满足该接口。
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Target 是一次扫描的对象。
type Target struct {
	Host   string
	Domain string
	IPs    []string
}

// Hosts 返回交给扫描器的唯一主机列表。
func (t Target) Hosts() []string {
	seen := make(map[string]struct{}, len(t.IPs)+1)
	out := make([]string, 0, len(t.IPs)+1)
	for _, h := range append([]string{t.Host}, t.IPs...) {
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, h)
	}
	return out
}

// Normalize 对用户输入的地址进行裁剪并提取主机部分。
func Normalize(address string) string {
	addr := strings.TrimSpace(address)
	if addr == "" {
		return ""
	}

	// 带协议前缀时交给 url 解析，Hostname 会去掉端口与方括号。
	if strings.Contains(addr, "://") {
		if u, err := url.Parse(addr); err == nil && u.Host != "" {
			return strings.ToLower(u.Hostname())
		}
	}

	addr = strings.TrimPrefix(addr, "//")
	if at := strings.LastIndex(addr, "@"); at != -1 {
		addr = addr[at+1:]
	}
	if cut := strings.IndexAny(addr, "/?#"); cut != -1 {
		addr = addr[:cut]
	}

	// [::1]:443、10.0.0.1:80 与 example.com:8080 都剥离端口；裸 IPv6 保持原样。
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return strings.ToLower(strings.Trim(addr, "[] "))
}

// StripWildcard 去掉通配域名首尾的 "*." 与 ".*"。
func StripWildcard(name string) string {
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "*.")
	name = strings.TrimSuffix(name, ".*")
	return name
}

// Parse 规整地址并区分域名与 IP。
func Parse(address string) (Target, error) {
	host := Normalize(address)
	if host == "" {
		return Target{}, fmt.Errorf("%w: empty address", ErrInvalidTarget)
	}
	if ip, err := netip.ParseAddr(host); err == nil {
		text := ip.Unmap().String()
		return Target{Host: text, IPs: []string{text}}, nil
	}
	if !govalidator.IsDNSName(host) {
		return Target{}, fmt.Errorf("%w: %q", ErrInvalidTarget, address)
	}
	return Target{Host: host, Domain: host}, nil
}

// Build 解析地址并补充域名解析出的 IP。解析失败时只返回主机本身。
func Build(ctx context.Context, address string, resolver Resolver) (Target, error) {
	t, err := Parse(address)
	if err != nil {
		return Target{}, err
	}
	if t.Domain == "" || resolver == nil {
		return t, nil
	}
	ips, err := resolver.LookupHost(ctx, t.Domain)
	if err != nil {
		return t, nil
	}
	for _, raw := range ips {
		if ip, err := netip.ParseAddr(raw); err == nil {
			t.IPs = append(t.IPs, ip.Unmap().String())
		}
	}
	t.IPs = t.Hosts()[1:]
	return t, nil
}

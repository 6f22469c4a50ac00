package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/projectdiscovery/goflags"
	portpkg "github.com/projectdiscovery/naabu/v2/pkg/port"
	"github.com/projectdiscovery/naabu/v2/pkg/result"
	"github.com/projectdiscovery/naabu/v2/pkg/runner"

	"github.com/hitushen/langdonboard/internal/models"
)

// Discovery 是一条开放端口记录。
type Discovery struct {
	IP       string
	Port     int
	Protocol string
	Product  string
	Version  string
}

// discoverFunc 对一组主机执行端口发现。
type discoverFunc func(ctx context.Context, hosts []string, timeout time.Duration) ([]Discovery, error)

func runNaabu(ctx context.Context, hosts []string, timeout time.Duration) ([]Discovery, error) {
	if len(hosts) == 0 {
		return nil, fmt.Errorf("no hosts to scan")
	}

	var (
		mu    sync.Mutex
		found []Discovery
	)
	onResult := func(hr *result.HostResult) {
		if hr == nil {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		for _, p := range hr.Ports {
			if p == nil {
				continue
			}
			product, version := serviceInfo(p)
			found = append(found, Discovery{
				IP:       hr.IP,
				Port:     p.Port,
				Protocol: models.ProtocolTCP,
				Product:  product,
				Version:  version,
			})
		}
	}

	opts := runner.Options{
		Host:             goflags.StringSlice(hosts),
		ScanType:         "c",
		OnResult:         onResult,
		NoColor:          true,
		Silent:           true,
		Stream:           true,
		TopPorts:         "1000",
		Retries:          1,
		Rate:             3000,
		Timeout:          timeout,
		ServiceDiscovery: true,
	}

	r, err := runner.NewRunner(&opts)
	if err != nil {
		return nil, fmt.Errorf("naabu runner init: %w", err)
	}
	defer r.Close()

	if err := r.RunEnumeration(ctx); err != nil {
		return nil, fmt.Errorf("naabu enumeration: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	return found, nil
}

// serviceInfo 从服务识别结果中取出产品名与版本。
func serviceInfo(p *portpkg.Port) (string, string) {
	if p == nil || p.Service == nil {
		return "", ""
	}
	svc := p.Service
	if svc.Product != "" {
		return svc.Product, svc.Version
	}
	return svc.Name, ""
}

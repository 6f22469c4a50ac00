// Package importer 把范围清单（CSV）与演示数据（YAML）导入侦察库。
package importer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/asaskevich/govalidator"

	"github.com/hitushen/langdonboard/internal/targets"
)

// CSV 中支持的资产类型。
const (
	AssetURL             = "URL"
	AssetWildcard        = "WILDCARD"
	AssetGooglePlayAppID = "GOOGLE_PLAY_APP_ID"
)

var (
	ErrMissingColumn        = errors.New("missing column")
	ErrUnsupportedAssetType = errors.New("unsupported asset type")
	ErrInvalidAsset         = errors.New("invalid asset")
)

// Recorder 是导入所需的存储能力。
type Recorder interface {
	UpsertDomain(ctx context.Context, name string, wasKnown bool) (int64, error)
	AddAndroidApp(ctx context.Context, appID string) (int64, error)
	UpsertIPAddress(ctx context.Context, address string) (int64, error)
	LinkIPDomain(ctx context.Context, ipID, domainID int64) error
	UpsertUsedPort(ctx context.Context, port int, protocol string, filtered bool) (int64, error)
	LinkPortIP(ctx context.Context, portID, ipID int64) error
	UpsertTechnology(ctx context.Context, name, version string) (int64, error)
	LinkPortTechnology(ctx context.Context, portID, technologyID int64) error
	LinkDirectoryTechnology(ctx context.Context, directoryID, technologyID int64) error
	AddVulnerability(ctx context.Context, name, source string, technologyID int64) (int64, error)
	UpsertWebDirectory(ctx context.Context, path string, domainID, ipID *int64, usesSSL bool) (int64, error)
	AddWebDirectoryResponse(ctx context.Context, directoryID int64, hash, responsePath string) (int64, error)
	AddHTTPHeader(ctx context.Context, directoryID int64, name string) error
	AddHTTPCookie(ctx context.Context, directoryID int64, name string) error
}

// Report 汇总一次导入的结果。
type Report struct {
	Domains         int      `json:"domains"`
	AndroidApps     int      `json:"android_apps"`
	IPAddresses     int      `json:"ip_addresses"`
	Technologies    int      `json:"technologies"`
	Vulnerabilities int      `json:"vulnerabilities"`
	UsedPorts       int      `json:"used_ports"`
	WebDirectories  int      `json:"web_directories"`
	Skipped         int      `json:"skipped"`
	Problems        []string `json:"problems,omitempty"`
}

func (r *Report) skip(line int, err error) {
	r.Skipped++
	r.Problems = append(r.Problems, fmt.Sprintf("line %d: %v", line, err))
}

// Importer 写入 Recorder。
type Importer struct {
	store Recorder
}

// New 创建 Importer。
func New(store Recorder) *Importer {
	return &Importer{store: store}
}

// CSV 导入包含 asset_type 与 name 两列的范围清单。
// URL 与通配域名写为未知域名，GOOGLE_PLAY_APP_ID 写为安卓应用，其他类型跳过。
func (im *Importer) CSV(ctx context.Context, r io.Reader) (Report, error) {
	var report Report

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return report, fmt.Errorf("read csv header: %w", err)
	}
	typeCol, nameCol := -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "asset_type":
			typeCol = i
		case "name":
			nameCol = i
		}
	}
	if typeCol < 0 || nameCol < 0 {
		return report, fmt.Errorf("%w: need asset_type and name", ErrMissingColumn)
	}

	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return report, fmt.Errorf("read csv line %d: %w", line, err)
		}
		if typeCol >= len(record) || nameCol >= len(record) {
			report.skip(line, ErrMissingColumn)
			continue
		}
		if err := im.importAsset(ctx, &report, strings.TrimSpace(record[typeCol]), strings.TrimSpace(record[nameCol])); err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			report.skip(line, err)
		}
	}
	return report, nil
}

func (im *Importer) importAsset(ctx context.Context, report *Report, assetType, name string) error {
	switch strings.ToUpper(assetType) {
	case AssetWildcard:
		name = targets.StripWildcard(name)
		fallthrough
	case AssetURL:
		domain := targets.Normalize(name)
		if !govalidator.IsDNSName(domain) || govalidator.IsIP(domain) {
			return fmt.Errorf("%w: domain %q", ErrInvalidAsset, name)
		}
		if _, err := im.store.UpsertDomain(ctx, domain, false); err != nil {
			return err
		}
		report.Domains++
	case AssetGooglePlayAppID:
		if name == "" || strings.ContainsAny(name, " /") {
			return fmt.Errorf("%w: app id %q", ErrInvalidAsset, name)
		}
		if _, err := im.store.AddAndroidApp(ctx, name); err != nil {
			return err
		}
		report.AndroidApps++
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedAssetType, assetType)
	}
	return nil
}

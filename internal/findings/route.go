package findings

import (
	"strconv"

	"github.com/hitushen/langdonboard/internal/models"
)

// FallbackRoute 是无法识别类别时使用的占位链接。
const FallbackRoute = "#"

// RoutePrefixes 把每个类别映射到详情页路径前缀，路径末尾追加发现项 ID。
var RoutePrefixes = map[models.FindingType]string{
	models.FindingDomain:        "/domains",
	models.FindingTechnology:    "/technologies",
	models.FindingUsedPort:      "/ports",
	models.FindingVulnerability: "/vulnerabilities",
	models.FindingWebDirectory:  "/content",
}

// Route 返回发现项的详情页路径。
func Route(f models.Finding) string {
	prefix, ok := RoutePrefixes[f.Type]
	if !ok {
		return FallbackRoute
	}
	return prefix + "/" + strconv.FormatInt(f.ID, 10)
}

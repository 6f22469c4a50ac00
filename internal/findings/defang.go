package findings

import (
	"strings"

	"github.com/hitushen/langdonboard/internal/models"
)

var defangReplacer = strings.NewReplacer(
	"https://", "hxxps://",
	"http://", "hxxp://",
	".", "[.]",
)

// Defang 让地址类文本无法被直接点击或解析。
func Defang(s string) string {
	return defangReplacer.Replace(s)
}

// DisplayLabel 返回用于展示的标签；域名、目录与端口（含 IP）会被脱敏。
func DisplayLabel(f models.Finding) string {
	switch f.Type {
	case models.FindingDomain, models.FindingWebDirectory, models.FindingUsedPort:
		return Defang(f.Label)
	}
	return f.Label
}

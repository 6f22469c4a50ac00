// Package web 内嵌仪表盘的模板与静态资源。
package web

import (
	"embed"
	"html/template"
	"io/fs"
	"net/http"
)

//go:embed templates/*.tmpl static/*
var assets embed.FS

// Templates 解析全部页面模板。
func Templates() (*template.Template, error) {
	return template.ParseFS(assets, "templates/*.tmpl")
}

// Static 返回 static 目录的文件服务器。
func Static() http.Handler {
	sub, err := fs.Sub(assets, "static")
	if err != nil {
		panic(err)
	}
	return http.FileServer(http.FS(sub))
}

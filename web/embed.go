package web

import "embed"

// TemplatesFS embeds the dashboard page templates.
//
//go:embed templates/*.html
var TemplatesFS embed.FS

// StaticFS embeds stylesheets and the chart script.
//
//go:embed static/*
var StaticFS embed.FS

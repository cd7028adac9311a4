// Package render turns a visual abstract into a standalone HTML page and,
// through headless Chromium, a PDF.
package render

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	goldhtml "github.com/yuin/goldmark/renderer/html"

	"github.com/joelkehle/visual-abstract/internal/abstract"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var pageTemplate = template.Must(template.New("abstract.html.tmpl").Funcs(template.FuncMap{
	"maxValue":    maxValue,
	"barWidth":    barWidth,
	"formatValue": formatValue,
}).ParseFS(templateFS, "templates/abstract.html.tmpl"))

// goldmark escapes raw HTML by default, so the converted summary is safe to
// embed unescaped.
var markdown = goldmark.New(
	goldmark.WithExtensions(extension.GFM),
	goldmark.WithRendererOptions(goldhtml.WithHardWraps()),
)

type pageData struct {
	Abstract    abstract.VisualAbstract
	SummaryHTML template.HTML
}

// HTML renders v as a complete document. summaryMarkdown may be empty.
func HTML(v abstract.VisualAbstract, summaryMarkdown string) (string, error) {
	p := pageData{Abstract: v}
	if strings.TrimSpace(summaryMarkdown) != "" {
		var buf bytes.Buffer
		if err := markdown.Convert([]byte(summaryMarkdown), &buf); err != nil {
			return "", fmt.Errorf("markdown convert: %w", err)
		}
		p.SummaryHTML = template.HTML(buf.String())
	}
	var out bytes.Buffer
	if err := pageTemplate.Execute(&out, p); err != nil {
		return "", fmt.Errorf("render abstract: %w", err)
	}
	return out.String(), nil
}

func maxValue(c abstract.Chart) float64 {
	m := 0.0
	for _, d := range c.Data {
		if d.Value > m {
			m = d.Value
		}
	}
	return m
}

func barWidth(v, max float64) string {
	if max <= 0 || v <= 0 {
		return "0"
	}
	return strconv.FormatFloat(v/max*100, 'f', 1, 64)
}

func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
